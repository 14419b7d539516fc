package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListNotificationFilter struct {
	RecipientID snowflake.ID
	UnreadOnly  bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, db *gorm.DB, filter ListNotificationFilter, page pagination.Pagination) ([]*Notification, error)
	CountUnread(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error)
	// MarkReadWhereUnread flips one row to read only if it is still
	// unread and owned by the recipient. Returns rows affected.
	MarkReadWhereUnread(ctx context.Context, db *gorm.DB, recipientID, id snowflake.ID) (int64, error)
	MarkAllRead(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error)
	DeleteByRecipient(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) error
	DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error
}
