package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, post *domain.Post) error {
	return db.WithContext(ctx).Create(post).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Post, error) {
	var post domain.Post
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM posts WHERE id = ?`, id,
	).Scan(&post).Error
	if err != nil {
		return nil, err
	}
	if post.ID == 0 {
		return nil, nil
	}
	return &post, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListPostFilter, page pagination.Pagination) ([]*domain.Post, error) {
	var posts []*domain.Post
	stmt := db.WithContext(ctx).Model(&domain.Post{})
	if filter.GroupID != 0 {
		stmt = stmt.Where("group_id = ?", filter.GroupID)
	} else if filter.GroupLess {
		stmt = stmt.Where("group_id IS NULL")
	}
	if filter.AuthorID != 0 {
		stmt = stmt.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	} else if filter.VisibleOnly {
		stmt = stmt.Where("status IN ?", []string{domain.StatusApproved, domain.StatusSold})
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
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, post *domain.Post) error {
	return db.WithContext(ctx).Exec(
		`UPDATE posts
		 SET title = ?, body = ?, price_cent = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title,
		post.Body,
		post.PriceCent,
		post.UpdatedAt,
		post.ID,
	).Error
}

func (r *repo) UpdateStatusWhere(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) CascadeApprove(ctx context.Context, db *gorm.DB, groupID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE posts SET status = ?, updated_at = ? WHERE group_id = ? AND status = ?`,
		domain.StatusApproved, now, groupID, domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE posts SET status = ?, updated_at = ?
		 WHERE id IN (
		   SELECT id FROM posts
		   WHERE status NOT IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?
		   ORDER BY expires_at
		   LIMIT ?
		 )`,
		domain.StatusExpired, now,
		domain.StatusExpired, domain.StatusSold, now, limit,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM posts WHERE group_id = ?`, groupID,
	).Error
}
