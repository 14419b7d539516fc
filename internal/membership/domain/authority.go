package domain

import "errors"

// Action is a group-scoped capability checked against the actor's
// membership row.
type Action string

const (
	ActionViewPosts          Action = "posts.view"
	ActionCreatePost         Action = "posts.create"
	ActionModeratePost       Action = "posts.moderate"
	ActionApproveJoin        Action = "members.approve"
	ActionInviteMember       Action = "members.invite"
	ActionRemoveMember       Action = "members.remove"
	ActionLeaveGroup         Action = "group.leave"
	ActionTransferLeadership Action = "group.transfer"
	ActionUpdateGroup        Action = "group.update"
	ActionDeleteGroup        Action = "group.delete"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMustTransferFirst = errors.New("must_transfer_first")
)

// Authorize decides whether an actor with the given role and status may
// perform an action. Role and status come from the actor's membership
// row; both empty means the actor holds no row in the group.
//
// The sole asymmetry: an active leader may do everything a member can
// except leave, which requires transferring leadership first.
func Authorize(role, status string, action Action, groupVisibility string) error {
	active := status == StatusActive
	leader := active && role == RoleLeader

	switch action {
	case ActionViewPosts:
		if groupVisibility == "public" || active {
			return nil
		}
	case ActionCreatePost:
		if active {
			return nil
		}
	case ActionLeaveGroup:
		if leader {
			return ErrMustTransferFirst
		}
		if active {
			return nil
		}
	case ActionInviteMember:
		if active {
			return nil
		}
	case ActionModeratePost,
		ActionApproveJoin,
		ActionRemoveMember,
		ActionTransferLeadership,
		ActionUpdateGroup,
		ActionDeleteGroup:
		if leader {
			return nil
		}
	}
	return ErrUnauthorized
}
