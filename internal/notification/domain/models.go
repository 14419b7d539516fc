// Package domain contains the notification ledger model and the closed
// set of action kinds it records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActionKind names what happened. The set is closed; anything else
// parses to ActionKindUnknown so old rows survive schema drift.
type ActionKind string

const (
	ActionKindPostSuccess       ActionKind = "post_success"
	ActionKindAdminNewPost      ActionKind = "admin_new_post"
	ActionKindFavoriteProduct   ActionKind = "favorite_product"
	ActionKindGroupInvitation   ActionKind = "group_invitation"
	ActionKindMatchingBuyReq    ActionKind = "matching_buy_request"
	ActionKindJoinRequest       ActionKind = "join_request"
	ActionKindJoinApproved      ActionKind = "join_approved"
	ActionKindJoinRejected      ActionKind = "join_rejected"
	ActionKindPostApproved      ActionKind = "post_approved"
	ActionKindPostRejected      ActionKind = "post_rejected"
	ActionKindUnknown           ActionKind = "unknown"
)

var knownKinds = map[ActionKind]struct{}{
	ActionKindPostSuccess:     {},
	ActionKindAdminNewPost:    {},
	ActionKindFavoriteProduct: {},
	ActionKindGroupInvitation: {},
	ActionKindMatchingBuyReq:  {},
	ActionKindJoinRequest:     {},
	ActionKindJoinApproved:    {},
	ActionKindJoinRejected:    {},
	ActionKindPostApproved:    {},
	ActionKindPostRejected:    {},
}

// ParseActionKind maps a stored string to its kind, falling back to
// ActionKindUnknown rather than failing.
func ParseActionKind(s string) ActionKind {
	kind := ActionKind(s)
	if _, ok := knownKinds[kind]; ok {
		return kind
	}
	return ActionKindUnknown
}

// Notification is one ledger row. Unread state lives here and nowhere
// else; the unread counter is always derived by counting rows.
type Notification struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	RecipientID snowflake.ID      `gorm:"column:recipient_id;not null;index:ix_notifications_recipient_read" json:"recipient_id"`
	ActorID     *snowflake.ID     `gorm:"column:actor_id" json:"actor_id,omitempty"`
	GroupID     *snowflake.ID     `gorm:"column:group_id;index" json:"group_id,omitempty"`
	Kind        string            `gorm:"type:text;not null" json:"kind"`
	SubjectType string            `gorm:"column:subject_type;type:text" json:"subject_type,omitempty"`
	SubjectID   *snowflake.ID     `gorm:"column:subject_id" json:"subject_id,omitempty"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	Read        bool              `gorm:"not null;default:false;index:ix_notifications_recipient_read" json:"read"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
