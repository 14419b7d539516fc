package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/membership/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, membership *domain.Membership) error {
	return db.WithContext(ctx).Create(membership).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) (*domain.Membership, error) {
	var membership domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.ID == 0 {
		return nil, nil
	}
	return &membership, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListMemberFilter, page pagination.Pagination) ([]*domain.Membership, error) {
	var memberships []*domain.Membership
	stmt := db.WithContext(ctx).Model(&domain.Membership{}).
		Where("group_id = ?", filter.GroupID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *repo) CountActiveLeaders(ctx context.Context, db *gorm.DB, groupID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Membership{}).
		Where("group_id = ? AND role = ? AND status = ?", groupID, domain.RoleLeader, domain.StatusActive).
		Count(&count).Error
	return count, err
}

func (r *repo) ActivateWherePending(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, joined_at = ?, updated_at = ?
		 WHERE group_id = ? AND user_id = ? AND status = ?`,
		domain.StatusActive, now, now,
		groupID, userID, domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteWhereStatus(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, status string) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM memberships WHERE group_id = ? AND user_id = ? AND status = ?`,
		groupID, userID, status,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateRoleWhere(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, fromRole, status, toRole string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET role = ?, updated_at = ?
		 WHERE group_id = ? AND user_id = ? AND role = ? AND status = ?`,
		toRole, now,
		groupID, userID, fromRole, status,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Error
}

func (r *repo) DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM memberships WHERE group_id = ?`, groupID,
	).Error
}
