package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"gorm.io/gorm"
)

// EmitRequest describes one ledger entry to append.
type EmitRequest struct {
	RecipientID snowflake.ID
	ActorID     *snowflake.ID
	GroupID     *snowflake.ID
	Kind        ActionKind
	SubjectType string
	SubjectID   *snowflake.ID
	Payload     map[string]any
}

type NotificationResponse struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id,omitempty"`
	GroupID   string         `json:"group_id,omitempty"`
	Kind      ActionKind     `json:"kind"`
	SubjectID string         `json:"subject_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

type ListNotificationRequest struct {
	UnreadOnly bool
	PageToken  string
	PageSize   int32
}

type ListNotificationResponse struct {
	pagination.PageInfo
	UnreadCount   int64                  `json:"unread_count"`
	Notifications []NotificationResponse `json:"notifications"`
}

type Service interface {
	// Emit appends a ledger row on the caller's transaction handle so
	// the write commits or rolls back with the state change that caused
	// it.
	Emit(ctx context.Context, tx *gorm.DB, req EmitRequest) error
	// PushUnreadHint sends the recipient's current unread count over
	// the live channel. Fire and forget; call it only after the
	// emitting transaction committed.
	PushUnreadHint(ctx context.Context, recipientID snowflake.ID)
	List(ctx context.Context, userID snowflake.ID, req ListNotificationRequest) (ListNotificationResponse, error)
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
	// MarkRead flips one row to read. Already-read rows are a no-op
	// success.
	MarkRead(ctx context.Context, userID snowflake.ID, notificationID string) error
	// MarkAllRead flips every unread row; the unread count is zero
	// afterwards regardless of concurrent reads.
	MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error)
	DeleteAll(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrNotFound     = errors.New("not_found")
	ErrInvalidKind  = errors.New("invalid_kind")
	ErrInvalidInput = errors.New("invalid_input")
)
