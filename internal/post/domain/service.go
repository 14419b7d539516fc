package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

type CreatePostRequest struct {
	Title     string
	Body      string
	PriceCent int64
	Currency  string
}

type UpdatePostRequest struct {
	Title     *string
	Body      *string
	PriceCent *int64
}

type ListPostRequest struct {
	GroupID   string
	Status    string
	AuthorID  string
	PageToken string
	PageSize  int32
}

type PostResponse struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id,omitempty"`
	AuthorID  string     `json:"author_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	PriceCent int64      `json:"price_cent"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ListPostResponse struct {
	pagination.PageInfo
	Posts []PostResponse `json:"posts"`
}

type Service interface {
	// Create submits a post. The group's moderation flag, read at
	// creation time, decides whether the post starts pending or
	// approved; with an empty groupID the post is free-standing and
	// starts approved.
	Create(ctx context.Context, authorID snowflake.ID, groupID string, req CreatePostRequest) (*PostResponse, error)
	GetByID(ctx context.Context, actorID snowflake.ID, postID string) (*PostResponse, error)
	List(ctx context.Context, actorID snowflake.ID, req ListPostRequest) (ListPostResponse, error)
	Update(ctx context.Context, actorID snowflake.ID, postID string, req UpdatePostRequest) (*PostResponse, error)
	// SetApproval moves a pending post to approved or rejected and
	// notifies the author. Repeating a decision is a no-op success;
	// flipping one is an invalid transition.
	SetApproval(ctx context.Context, actorID snowflake.ID, postID string, approve bool) (*PostResponse, error)
	// Hide soft-deletes the author's own post.
	Hide(ctx context.Context, actorID snowflake.ID, postID string) error
	// Republish brings the author's hidden post back to approved.
	Republish(ctx context.Context, actorID snowflake.ID, postID string) (*PostResponse, error)
	MarkSold(ctx context.Context, actorID snowflake.ID, postID string) (*PostResponse, error)
	// AdminSetStatus forces any status; restricted to platform
	// moderators via the authorization service.
	AdminSetStatus(ctx context.Context, actorID snowflake.ID, postID string, status string) (*PostResponse, error)
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrGroupNotFound     = errors.New("group_not_found")
	ErrInvalidPost       = errors.New("invalid_post")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
)
