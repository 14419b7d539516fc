// Package domain contains persistence models and the role authority
// rules for group membership.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleLeader = "leader"
	RoleMember = "member"
)

const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// Membership is one user's standing inside one group. A user holds at
// most one row per group, enforced by the composite unique index.
type Membership struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	GroupID     snowflake.ID `gorm:"column:group_id;not null;uniqueIndex:ux_memberships_group_user" json:"group_id"`
	UserID      snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_memberships_group_user;index" json:"user_id"`
	Role        string       `gorm:"type:text;not null;default:'member'" json:"role"`
	Status      string       `gorm:"type:text;not null;default:'pending'" json:"status"`
	RequestedAt time.Time    `gorm:"column:requested_at;not null;default:CURRENT_TIMESTAMP" json:"requested_at"`
	JoinedAt    *time.Time   `gorm:"column:joined_at" json:"joined_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }
