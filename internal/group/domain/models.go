// Package domain contains persistence models for the group service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Group represents one marketplace community.
type Group struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	Slug               string            `gorm:"type:text;not null;uniqueIndex:ux_groups_slug" json:"slug"`
	Description        string            `gorm:"type:text" json:"description"`
	Visibility         string            `gorm:"type:text;not null;default:'public'" json:"visibility"`
	MustApprovePosts   bool              `gorm:"column:must_approve_posts;not null;default:false" json:"must_approve_posts"`
	AllowMemberInvites bool              `gorm:"column:allow_member_invites;not null;default:true" json:"allow_member_invites"`
	OwnerID            snowflake.ID      `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Group) TableName() string { return "groups" }
