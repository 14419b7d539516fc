package domain

import (
	"context"

	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogFilter struct {
	Action     string
	TargetType string
	TargetID   string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListAuditLogFilter, page pagination.Pagination) ([]*AuditLog, error)
}
