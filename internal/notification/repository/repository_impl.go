package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/notification/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notification *domain.Notification) error {
	return db.WithContext(ctx).Create(notification).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notification, error) {
	var notification domain.Notification
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM notifications WHERE id = ?`, id,
	).Scan(&notification).Error
	if err != nil {
		return nil, err
	}
	if notification.ID == 0 {
		return nil, nil
	}
	return &notification, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListNotificationFilter, page pagination.Pagination) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	stmt := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("recipient_id = ?", filter.RecipientID)
	if filter.UnreadOnly {
		stmt = stmt.Where("read = ?", false)
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
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkReadWhereUnread(ctx context.Context, db *gorm.DB, recipientID, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = ? WHERE id = ? AND recipient_id = ? AND read = ?`,
		true, id, recipientID, false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET read = ? WHERE recipient_id = ? AND read = ?`,
		true, recipientID, false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteByRecipient(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM notifications WHERE recipient_id = ?`, recipientID,
	).Error
}

func (r *repo) DeleteByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM notifications WHERE group_id = ?`, groupID,
	).Error
}
