package domain

import (
	"errors"
	"testing"
)

func TestAuthorizeLeader(t *testing.T) {
	actions := []Action{
		ActionViewPosts,
		ActionCreatePost,
		ActionModeratePost,
		ActionApproveJoin,
		ActionInviteMember,
		ActionRemoveMember,
		ActionTransferLeadership,
		ActionUpdateGroup,
		ActionDeleteGroup,
	}
	for _, action := range actions {
		if err := Authorize(RoleLeader, StatusActive, action, "private"); err != nil {
			t.Fatalf("leader denied %s: %v", action, err)
		}
	}

	if err := Authorize(RoleLeader, StatusActive, ActionLeaveGroup, "private"); !errors.Is(err, ErrMustTransferFirst) {
		t.Fatalf("expected must_transfer_first for leader leave, got %v", err)
	}
}

func TestAuthorizeMember(t *testing.T) {
	allowed := []Action{ActionViewPosts, ActionCreatePost, ActionLeaveGroup, ActionInviteMember}
	for _, action := range allowed {
		if err := Authorize(RoleMember, StatusActive, action, "private"); err != nil {
			t.Fatalf("member denied %s: %v", action, err)
		}
	}

	denied := []Action{
		ActionModeratePost,
		ActionApproveJoin,
		ActionRemoveMember,
		ActionTransferLeadership,
		ActionUpdateGroup,
		ActionDeleteGroup,
	}
	for _, action := range denied {
		if err := Authorize(RoleMember, StatusActive, action, "private"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected unauthorized for member %s, got %v", action, err)
		}
	}
}

func TestAuthorizePendingAndOutsider(t *testing.T) {
	if err := Authorize(RoleMember, StatusPending, ActionCreatePost, "public"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pending member should not post, got %v", err)
	}
	if err := Authorize("", "", ActionViewPosts, "public"); err != nil {
		t.Fatalf("anyone may view a public group, got %v", err)
	}
	if err := Authorize("", "", ActionViewPosts, "private"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider should not view a private group, got %v", err)
	}
}
