package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListGroupFilter struct {
	Visibility string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, group *Group) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Group, error)
	List(ctx context.Context, db *gorm.DB, filter ListGroupFilter, page pagination.Pagination) ([]*Group, error)
	Update(ctx context.Context, db *gorm.DB, group *Group) error
	// SetOwner moves the owner reference; used by leadership transfer.
	SetOwner(ctx context.Context, db *gorm.DB, groupID, ownerID snowflake.ID) error
	// SetMustApprovePostsWhere flips the policy flag only when it currently
	// holds the expected previous value. Returns rows affected.
	SetMustApprovePostsWhere(ctx context.Context, db *gorm.DB, groupID snowflake.ID, from, to bool) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
