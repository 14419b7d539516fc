// Package domain contains persistence models for classified posts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusHidden   = "hidden"
	StatusExpired  = "expired"
	StatusSold     = "sold"
)

// Post is one classified listing, inside a group or free-standing. A
// group post starts pending or approved depending on the group's
// moderation flag at the moment of creation; a post with no group has
// no moderation gate and starts approved.
type Post struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	GroupID   *snowflake.ID     `gorm:"column:group_id;index:ix_posts_group_status" json:"group_id,omitempty"`
	AuthorID  snowflake.ID      `gorm:"column:author_id;not null;index" json:"author_id"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Body      string            `gorm:"type:text" json:"body"`
	PriceCent int64             `gorm:"column:price_cent;not null;default:0" json:"price_cent"`
	Currency  string            `gorm:"type:text;not null;default:'IDR'" json:"currency"`
	Status    string            `gorm:"type:text;not null;default:'pending';index:ix_posts_group_status" json:"status"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	ExpiresAt *time.Time        `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Post) TableName() string { return "posts" }
