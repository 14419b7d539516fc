package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

type CreateGroupRequest struct {
	Name               string
	Description        string
	Visibility         string
	MustApprovePosts   bool
	AllowMemberInvites bool
}

type UpdateGroupRequest struct {
	Name        *string
	Description *string
	Visibility  *string
}

type ListGroupRequest struct {
	PageToken  string
	PageSize   int32
	Visibility string
}

type GroupResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Description        string    `json:"description"`
	Visibility         string    `json:"visibility"`
	MustApprovePosts   bool      `json:"must_approve_posts"`
	AllowMemberInvites bool      `json:"allow_member_invites"`
	OwnerID            string    `json:"owner_id"`
	CreatedAt          time.Time `json:"created_at"`
}

type ListGroupResponse struct {
	pagination.PageInfo
	Groups []GroupResponse `json:"groups"`
}

// SetPostPolicyResponse reports the bulk cascade outcome of a policy flip.
type SetPostPolicyResponse struct {
	MustApprovePosts  bool  `json:"must_approve_posts"`
	AutoApprovedCount int64 `json:"auto_approved_count"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateGroupRequest) (*GroupResponse, error)
	GetByID(ctx context.Context, id string) (*GroupResponse, error)
	List(ctx context.Context, req ListGroupRequest) (ListGroupResponse, error)
	Update(ctx context.Context, userID snowflake.ID, groupID string, req UpdateGroupRequest) (*GroupResponse, error)
	Delete(ctx context.Context, userID snowflake.ID, groupID string) error
	SetPostPolicy(ctx context.Context, userID snowflake.ID, groupID string, mustApprovePosts bool) (*SetPostPolicyResponse, error)
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidVisibility = errors.New("invalid_visibility")
	ErrInvalidGroup      = errors.New("invalid_group")
	ErrNotFound          = errors.New("not_found")
	ErrSlugTaken         = errors.New("conflict")
	ErrCascadeFailure    = errors.New("cascade_failure")
)
