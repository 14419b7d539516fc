package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/group/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, group *domain.Group) error {
	return db.WithContext(ctx).Create(group).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM groups WHERE id = ?`, id,
	).Scan(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListGroupFilter, page pagination.Pagination) ([]*domain.Group, error) {
	var groups []*domain.Group
	stmt := db.WithContext(ctx).Model(&domain.Group{})
	if filter.Visibility != "" {
		stmt = stmt.Where("visibility = ?", filter.Visibility)
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
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, group *domain.Group) error {
	return db.WithContext(ctx).Exec(
		`UPDATE groups
		 SET name = ?, slug = ?, description = ?, visibility = ?, allow_member_invites = ?, updated_at = ?
		 WHERE id = ?`,
		group.Name,
		group.Slug,
		group.Description,
		group.Visibility,
		group.AllowMemberInvites,
		group.UpdatedAt,
		group.ID,
	).Error
}

func (r *repo) SetOwner(ctx context.Context, db *gorm.DB, groupID, ownerID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE groups SET owner_id = ? WHERE id = ?`, ownerID, groupID,
	).Error
}

func (r *repo) SetMustApprovePostsWhere(ctx context.Context, db *gorm.DB, groupID snowflake.ID, from, to bool) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE groups SET must_approve_posts = ? WHERE id = ? AND must_approve_posts = ?`,
		to, groupID, from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM groups WHERE id = ?`, id).Error
}
