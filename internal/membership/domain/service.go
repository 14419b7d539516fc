package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

type MemberResponse struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"group_id"`
	UserID      string     `json:"user_id"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
}

type ListMemberRequest struct {
	GroupID   string
	Status    string
	PageToken string
	PageSize  int32
}

type ListMemberResponse struct {
	pagination.PageInfo
	Members []MemberResponse `json:"members"`
}

type Service interface {
	// RequestJoin enrolls the caller in a group. Public groups admit
	// immediately; private groups create a pending request and notify
	// the leader. Repeating the call is a no-op success.
	RequestJoin(ctx context.Context, userID snowflake.ID, groupID string) (*MemberResponse, error)
	// CancelRequest withdraws a pending join request. Idempotent.
	CancelRequest(ctx context.Context, userID snowflake.ID, groupID string) error
	Approve(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) (*MemberResponse, error)
	Reject(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) error
	Leave(ctx context.Context, userID snowflake.ID, groupID string) error
	TransferLeadership(ctx context.Context, actorID snowflake.ID, groupID, newLeaderUserID string) error
	RemoveMember(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) error
	// Invite records an invitation as a notification to the invitee; it
	// does not create a membership row.
	Invite(ctx context.Context, actorID snowflake.ID, groupID, inviteeUserID string) error
	ListMembers(ctx context.Context, actorID snowflake.ID, req ListMemberRequest) (ListMemberResponse, error)
	// Find returns the membership row for (group, user), or nil when
	// the user holds none. Consumed by sibling services for authority
	// checks.
	Find(ctx context.Context, groupID, userID snowflake.ID) (*Membership, error)
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrGroupNotFound     = errors.New("group_not_found")
	ErrInvalidMember     = errors.New("invalid_member")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrAlreadyMember     = errors.New("already_member")
	ErrRateLimited       = errors.New("rate_limited")
)
