package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/clock"
	groupdomain "github.com/smallbiznis/pasar/internal/group/domain"
	"github.com/smallbiznis/pasar/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/pasar/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/pasar/internal/observability/metrics"
	"github.com/smallbiznis/pasar/internal/ratelimit"
	"github.com/smallbiznis/pasar/pkg/db"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	GroupRepo       groupdomain.Repository
	NotificationSvc notificationdomain.Service
	JoinLimiter     *ratelimit.JoinLimiter `optional:"true"`
}

type ServiceImpl struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	groupRepo       groupdomain.Repository
	notificationSvc notificationdomain.Service
	joinLimiter     *ratelimit.JoinLimiter
}

func New(p Params) domain.Service {
	return &ServiceImpl{
		db:              p.DB,
		log:             p.Log.Named("membership.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		groupRepo:       p.GroupRepo,
		notificationSvc: p.NotificationSvc,
		joinLimiter:     p.JoinLimiter,
	}
}

// RequestJoin is idempotent: an existing row, pending or active, is
// returned as-is instead of failing. Public groups admit immediately;
// private groups park the caller in pending and notify the leader.
func (s *ServiceImpl) RequestJoin(ctx context.Context, userID snowflake.ID, groupID string) (*domain.MemberResponse, error) {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, s.db, group.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return toResponse(existing), nil
	}

	allowed, err := s.joinLimiter.AllowJoin(ctx, userID.String())
	if err != nil {
		s.log.Warn("join limiter unavailable", zap.Error(err))
	} else if !allowed {
		obsmetrics.JoinRequestsLimited.Inc()
		return nil, domain.ErrRateLimited
	}

	now := s.clock.Now()
	membership := &domain.Membership{
		ID:          s.genID.Generate(),
		GroupID:     group.ID,
		UserID:      userID,
		Role:        domain.RoleMember,
		Status:      domain.StatusPending,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if group.Visibility == groupdomain.VisibilityPublic {
		membership.Status = domain.StatusActive
		membership.JoinedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, membership); err != nil {
			return err
		}
		if membership.Status != domain.StatusPending {
			return nil
		}
		return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
			RecipientID: group.OwnerID,
			ActorID:     &userID,
			GroupID:     &group.ID,
			Kind:        notificationdomain.ActionKindJoinRequest,
			SubjectType: "membership",
			SubjectID:   &membership.ID,
			Payload:     map[string]any{"group_name": group.Name},
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Raced another request from the same user; surface theirs.
			existing, ferr := s.repo.Find(ctx, s.db, group.ID, userID)
			if ferr == nil && existing != nil {
				return toResponse(existing), nil
			}
		}
		return nil, err
	}

	if membership.Status == domain.StatusPending {
		s.notificationSvc.PushUnreadHint(ctx, group.OwnerID)
	}
	s.log.Info("join requested",
		zap.String("group_id", group.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", membership.Status),
	)
	return toResponse(membership), nil
}

// CancelRequest withdraws a pending request. Nothing to withdraw is
// still success, but a request an approve already resolved cannot be
// withdrawn; the caller learns they are a member now.
func (s *ServiceImpl) CancelRequest(ctx context.Context, userID snowflake.ID, groupID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	rows, err := s.repo.DeleteWhereStatus(ctx, s.db, group.ID, userID, domain.StatusPending)
	if err != nil {
		return err
	}
	if rows == 0 {
		membership, err := s.repo.Find(ctx, s.db, group.ID, userID)
		if err != nil {
			return err
		}
		if membership != nil && membership.Status == domain.StatusActive {
			return domain.ErrInvalidTransition
		}
	}
	return nil
}

// Approve promotes a pending request. The promotion is one conditional
// update, so two leaders racing on the same request resolve to a single
// activation; the loser sees the row already active and reports
// success.
func (s *ServiceImpl) Approve(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) (*domain.MemberResponse, error) {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, group, actorID, domain.ActionApproveJoin); err != nil {
		return nil, err
	}
	memberID, err := snowflake.ParseString(memberUserID)
	if err != nil {
		return nil, domain.ErrInvalidMember
	}

	var promoted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.ActivateWherePending(ctx, tx, group.ID, memberID, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		promoted = true
		return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
			RecipientID: memberID,
			ActorID:     &actorID,
			GroupID:     &group.ID,
			Kind:        notificationdomain.ActionKindJoinApproved,
			SubjectType: "group",
			SubjectID:   &group.ID,
			Payload:     map[string]any{"group_name": group.Name},
		})
	})
	if err != nil {
		return nil, err
	}

	membership, err := s.repo.Find(ctx, s.db, group.ID, memberID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, domain.ErrNotFound
	}
	if !promoted && membership.Status != domain.StatusActive {
		return nil, domain.ErrInvalidTransition
	}

	if promoted {
		s.notificationSvc.PushUnreadHint(ctx, memberID)
		s.log.Info("join approved",
			zap.String("group_id", group.ID.String()),
			zap.String("user_id", memberID.String()),
			zap.String("actor_id", actorID.String()),
		)
	}
	return toResponse(membership), nil
}

// Reject removes a pending request and notifies the requester. The
// user may request again later. A request already gone is a no-op
// success; an active membership cannot be rejected.
func (s *ServiceImpl) Reject(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, group, actorID, domain.ActionApproveJoin); err != nil {
		return err
	}
	memberID, err := snowflake.ParseString(memberUserID)
	if err != nil {
		return domain.ErrInvalidMember
	}

	var rejected bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.DeleteWhereStatus(ctx, tx, group.ID, memberID, domain.StatusPending)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		rejected = true
		return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
			RecipientID: memberID,
			ActorID:     &actorID,
			GroupID:     &group.ID,
			Kind:        notificationdomain.ActionKindJoinRejected,
			SubjectType: "group",
			SubjectID:   &group.ID,
			Payload:     map[string]any{"group_name": group.Name},
		})
	})
	if err != nil {
		return err
	}

	if !rejected {
		membership, err := s.repo.Find(ctx, s.db, group.ID, memberID)
		if err != nil {
			return err
		}
		if membership != nil && membership.Status == domain.StatusActive {
			return domain.ErrInvalidTransition
		}
		return nil
	}

	s.notificationSvc.PushUnreadHint(ctx, memberID)
	return nil
}

// Leave removes the caller's membership. The leader cannot leave; the
// group would be orphaned, so leadership must move first.
func (s *ServiceImpl) Leave(ctx context.Context, userID snowflake.ID, groupID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	membership, err := s.repo.Find(ctx, s.db, group.ID, userID)
	if err != nil {
		return err
	}
	if membership == nil {
		return domain.ErrNotFound
	}
	if err := domain.Authorize(membership.Role, membership.Status, domain.ActionLeaveGroup, group.Visibility); err != nil {
		if membership.Status == domain.StatusPending {
			// A pending requester "leaves" by withdrawing.
			_, derr := s.repo.DeleteWhereStatus(ctx, s.db, group.ID, userID, domain.StatusPending)
			return derr
		}
		return err
	}
	return s.repo.Delete(ctx, s.db, group.ID, userID)
}

// TransferLeadership demotes the current leader and promotes an active
// member in one transaction. Both role swaps are conditional updates;
// if either misses, the whole transfer rolls back and the group still
// has exactly one leader.
func (s *ServiceImpl) TransferLeadership(ctx context.Context, actorID snowflake.ID, groupID, newLeaderUserID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, group, actorID, domain.ActionTransferLeadership); err != nil {
		return err
	}
	newLeaderID, err := snowflake.ParseString(newLeaderUserID)
	if err != nil {
		return domain.ErrInvalidMember
	}
	if newLeaderID == actorID {
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.UpdateRoleWhere(ctx, tx, group.ID, actorID, domain.RoleLeader, domain.StatusActive, domain.RoleMember, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrInvalidTransition
		}
		rows, err = s.repo.UpdateRoleWhere(ctx, tx, group.ID, newLeaderID, domain.RoleMember, domain.StatusActive, domain.RoleLeader, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrInvalidTransition
		}
		return s.groupRepo.SetOwner(ctx, tx, group.ID, newLeaderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("leadership transferred",
		zap.String("group_id", group.ID.String()),
		zap.String("from", actorID.String()),
		zap.String("to", newLeaderID.String()),
	)
	return nil
}

// RemoveMember evicts a member or discards their pending request. The
// leader cannot remove themselves.
func (s *ServiceImpl) RemoveMember(ctx context.Context, actorID snowflake.ID, groupID, memberUserID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, group, actorID, domain.ActionRemoveMember); err != nil {
		return err
	}
	memberID, err := snowflake.ParseString(memberUserID)
	if err != nil {
		return domain.ErrInvalidMember
	}
	if memberID == actorID {
		return domain.ErrMustTransferFirst
	}
	membership, err := s.repo.Find(ctx, s.db, group.ID, memberID)
	if err != nil {
		return err
	}
	if membership == nil {
		return domain.ErrNotFound
	}
	return s.repo.Delete(ctx, s.db, group.ID, memberID)
}

// Invite records an invitation as a notification. It never creates a
// membership row; the invitee still walks the join flow.
func (s *ServiceImpl) Invite(ctx context.Context, actorID snowflake.ID, groupID, inviteeUserID string) error {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	actor, err := s.repo.Find(ctx, s.db, group.ID, actorID)
	if err != nil {
		return err
	}
	role, status := "", ""
	if actor != nil {
		role, status = actor.Role, actor.Status
	}
	if err := domain.Authorize(role, status, domain.ActionInviteMember, group.Visibility); err != nil {
		return err
	}
	if role != domain.RoleLeader && !group.AllowMemberInvites {
		return domain.ErrUnauthorized
	}

	inviteeID, err := snowflake.ParseString(inviteeUserID)
	if err != nil {
		return domain.ErrInvalidMember
	}
	existing, err := s.repo.Find(ctx, s.db, group.ID, inviteeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyMember
	}

	if err := s.notificationSvc.Emit(ctx, s.db, notificationdomain.EmitRequest{
		RecipientID: inviteeID,
		ActorID:     &actorID,
		GroupID:     &group.ID,
		Kind:        notificationdomain.ActionKindGroupInvitation,
		SubjectType: "group",
		SubjectID:   &group.ID,
		Payload:     map[string]any{"group_name": group.Name},
	}); err != nil {
		return err
	}
	s.notificationSvc.PushUnreadHint(ctx, inviteeID)
	return nil
}

func (s *ServiceImpl) ListMembers(ctx context.Context, actorID snowflake.ID, req domain.ListMemberRequest) (domain.ListMemberResponse, error) {
	resp := domain.ListMemberResponse{Members: []domain.MemberResponse{}}

	group, err := s.findGroup(ctx, req.GroupID)
	if err != nil {
		return resp, err
	}

	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}
	action := domain.ActionViewPosts
	if status == domain.StatusPending {
		// Only whoever can decide requests may see the queue.
		action = domain.ActionApproveJoin
	}
	if err := s.authorize(ctx, group, actorID, action); err != nil {
		return resp, err
	}

	size := int(req.PageSize)
	if size <= 0 || size > 100 {
		size = 50
	}
	members, err := s.repo.List(ctx, s.db, domain.ListMemberFilter{
		GroupID: group.ID,
		Status:  status,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return resp, err
	}

	pageInfo := pagination.BuildCursorPageInfo(members, int32(size), func(m *domain.Membership) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        m.ID.String(),
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(members) > size {
		members = members[:size]
	}
	for _, m := range members {
		resp.Members = append(resp.Members, *toResponse(m))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *ServiceImpl) Find(ctx context.Context, groupID, userID snowflake.ID) (*domain.Membership, error) {
	return s.repo.Find(ctx, s.db, groupID, userID)
}

func (s *ServiceImpl) findGroup(ctx context.Context, id string) (*groupdomain.Group, error) {
	groupID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrGroupNotFound
	}
	group, err := s.groupRepo.FindByID(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}
	return group, nil
}

func (s *ServiceImpl) authorize(ctx context.Context, group *groupdomain.Group, userID snowflake.ID, action domain.Action) error {
	membership, err := s.repo.Find(ctx, s.db, group.ID, userID)
	if err != nil {
		return err
	}
	role, status := "", ""
	if membership != nil {
		role, status = membership.Role, membership.Status
	}
	return domain.Authorize(role, status, action, group.Visibility)
}

func toResponse(m *domain.Membership) *domain.MemberResponse {
	return &domain.MemberResponse{
		ID:          m.ID.String(),
		GroupID:     m.GroupID.String(),
		UserID:      m.UserID.String(),
		Role:        m.Role,
		Status:      m.Status,
		RequestedAt: m.RequestedAt,
		JoinedAt:    m.JoinedAt,
	}
}
