package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListPostFilter struct {
	GroupID  snowflake.ID
	AuthorID snowflake.ID
	Status   string
	// GroupLess restricts results to posts that belong to no group.
	GroupLess bool
	// VisibleOnly restricts results to statuses a plain member may see.
	VisibleOnly bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, post *Post) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Post, error)
	List(ctx context.Context, db *gorm.DB, filter ListPostFilter, page pagination.Pagination) ([]*Post, error)
	Update(ctx context.Context, db *gorm.DB, post *Post) error
	// UpdateStatusWhere moves the post from one status to another in a
	// single conditional update. Returns rows affected so callers can
	// tell a lost race from success.
	UpdateStatusWhere(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, now time.Time) (int64, error)
	// CascadeApprove flips every pending post in the group to approved
	// in one statement and returns how many rows moved.
	CascadeApprove(ctx context.Context, db *gorm.DB, groupID snowflake.ID, now time.Time) (int64, error)
	// ExpireDue marks non-terminal posts whose expires_at has passed as
	// expired, at most limit rows per call.
	ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
	DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error
}
