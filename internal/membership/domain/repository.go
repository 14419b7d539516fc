package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListMemberFilter struct {
	GroupID snowflake.ID
	Status  string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, membership *Membership) error
	Find(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) (*Membership, error)
	List(ctx context.Context, db *gorm.DB, filter ListMemberFilter, page pagination.Pagination) ([]*Membership, error)
	// CountActiveLeaders reports how many active leader rows a group
	// holds. The state machine keeps this at exactly one.
	CountActiveLeaders(ctx context.Context, db *gorm.DB, groupID snowflake.ID) (int64, error)
	// ActivateWherePending promotes a pending row to active in one
	// conditional update. Returns rows affected so callers can detect a
	// lost race without a prior read.
	ActivateWherePending(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (int64, error)
	// DeleteWhereStatus removes the row only when it still holds the
	// expected status. Returns rows affected.
	DeleteWhereStatus(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, status string) (int64, error)
	// UpdateRoleWhere swaps the role only when the row currently holds
	// the expected role and status. Returns rows affected.
	UpdateRoleWhere(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, fromRole, status, toRole string, now time.Time) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) error
	DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error
}
