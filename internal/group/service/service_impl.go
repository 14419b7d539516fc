package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/group/domain"
	membershipdomain "github.com/smallbiznis/pasar/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/pasar/internal/notification/domain"
	postdomain "github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/pkg/db"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"github.com/smallbiznis/pasar/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	MembershipRepo   membershipdomain.Repository
	PostRepo         postdomain.Repository
	NotificationRepo notificationdomain.Repository
}

type ServiceImpl struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	membershipRepo   membershipdomain.Repository
	postRepo         postdomain.Repository
	notificationRepo notificationdomain.Repository
}

func New(p Params) domain.Service {
	return &ServiceImpl{
		db:               p.DB,
		log:              p.Log.Named("group.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		membershipRepo:   p.MembershipRepo,
		postRepo:         p.PostRepo,
		notificationRepo: p.NotificationRepo,
	}
}

// Create inserts the group and its founding leader membership in one
// transaction so a group never exists without exactly one active
// leader.
func (s *ServiceImpl) Create(ctx context.Context, userID snowflake.ID, req domain.CreateGroupRequest) (*domain.GroupResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if visibility != domain.VisibilityPublic && visibility != domain.VisibilityPrivate {
		return nil, domain.ErrInvalidVisibility
	}

	now := s.clock.Now()
	group := &domain.Group{
		ID:                 s.genID.Generate(),
		Name:               name,
		Slug:               slug.Make(name),
		Description:        strings.TrimSpace(req.Description),
		Visibility:         visibility,
		MustApprovePosts:   req.MustApprovePosts,
		AllowMemberInvites: req.AllowMemberInvites,
		OwnerID:            userID,
		Metadata:           datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	leader := &membershipdomain.Membership{
		ID:          s.genID.Generate(),
		GroupID:     group.ID,
		UserID:      userID,
		Role:        membershipdomain.RoleLeader,
		Status:      membershipdomain.StatusActive,
		RequestedAt: now,
		JoinedAt:    &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, group); err != nil {
			return err
		}
		return s.membershipRepo.Insert(ctx, tx, leader)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		s.log.Error("failed to create group", zap.Error(err))
		return nil, err
	}

	s.log.Info("group created",
		zap.String("group_id", group.ID.String()),
		zap.String("owner_id", userID.String()),
	)
	return toResponse(group), nil
}

func (s *ServiceImpl) GetByID(ctx context.Context, id string) (*domain.GroupResponse, error) {
	group, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(group), nil
}

func (s *ServiceImpl) List(ctx context.Context, req domain.ListGroupRequest) (domain.ListGroupResponse, error) {
	resp := domain.ListGroupResponse{Groups: []domain.GroupResponse{}}

	if req.Visibility != "" &&
		req.Visibility != domain.VisibilityPublic &&
		req.Visibility != domain.VisibilityPrivate {
		return resp, domain.ErrInvalidVisibility
	}

	size := int(req.PageSize)
	if size <= 0 || size > 100 {
		size = 50
	}
	groups, err := s.repo.List(ctx, s.db, domain.ListGroupFilter{Visibility: req.Visibility}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return resp, err
	}

	pageInfo := pagination.BuildCursorPageInfo(groups, int32(size), func(g *domain.Group) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        g.ID.String(),
			CreatedAt: g.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(groups) > size {
		groups = groups[:size]
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, *toResponse(g))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *ServiceImpl) Update(ctx context.Context, userID snowflake.ID, groupID string, req domain.UpdateGroupRequest) (*domain.GroupResponse, error) {
	group, err := s.find(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, group, userID, membershipdomain.ActionUpdateGroup); err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		group.Name = name
		group.Slug = slug.Make(name)
	}
	if req.Description != nil {
		group.Description = strings.TrimSpace(*req.Description)
	}
	if req.Visibility != nil {
		if *req.Visibility != domain.VisibilityPublic && *req.Visibility != domain.VisibilityPrivate {
			return nil, domain.ErrInvalidVisibility
		}
		group.Visibility = *req.Visibility
	}
	group.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, group); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	return toResponse(group), nil
}

// Delete removes the group and everything scoped to it in one
// transaction.
func (s *ServiceImpl) Delete(ctx context.Context, userID snowflake.ID, groupID string) error {
	group, err := s.find(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, group, userID, membershipdomain.ActionDeleteGroup); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.postRepo.DeleteByGroup(ctx, tx, group.ID); err != nil {
			return err
		}
		if err := s.membershipRepo.DeleteByGroup(ctx, tx, group.ID); err != nil {
			return err
		}
		if err := s.notificationRepo.DeleteByGroup(ctx, tx, group.ID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, group.ID)
	})
}

// SetPostPolicy flips the moderation flag. Relaxing it (true to false)
// releases every pending post in the same transaction; if the cascade
// fails the flag change rolls back with it.
func (s *ServiceImpl) SetPostPolicy(ctx context.Context, userID snowflake.ID, groupID string, mustApprovePosts bool) (*domain.SetPostPolicyResponse, error) {
	group, err := s.find(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, group, userID, membershipdomain.ActionUpdateGroup); err != nil {
		return nil, err
	}

	resp := &domain.SetPostPolicyResponse{MustApprovePosts: mustApprovePosts}
	if group.MustApprovePosts == mustApprovePosts {
		return resp, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := s.repo.SetMustApprovePostsWhere(ctx, tx, group.ID, !mustApprovePosts, mustApprovePosts)
		if err != nil {
			return err
		}
		if flipped == 0 {
			// Lost a race with another toggle; the group already holds
			// the requested value.
			return nil
		}
		if mustApprovePosts {
			return nil
		}
		released, err := s.postRepo.CascadeApprove(ctx, tx, group.ID, s.clock.Now())
		if err != nil {
			return err
		}
		resp.AutoApprovedCount = released
		return nil
	})
	if err != nil {
		s.log.Error("post policy cascade failed",
			zap.String("group_id", group.ID.String()),
			zap.Error(err),
		)
		return nil, domain.ErrCascadeFailure
	}

	s.log.Info("post policy updated",
		zap.String("group_id", group.ID.String()),
		zap.Bool("must_approve_posts", mustApprovePosts),
		zap.Int64("auto_approved_count", resp.AutoApprovedCount),
	)
	return resp, nil
}

func (s *ServiceImpl) find(ctx context.Context, id string) (*domain.Group, error) {
	groupID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrInvalidGroup
	}
	group, err := s.repo.FindByID(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrNotFound
	}
	return group, nil
}

func (s *ServiceImpl) authorize(ctx context.Context, group *domain.Group, userID snowflake.ID, action membershipdomain.Action) error {
	member, err := s.membershipRepo.Find(ctx, s.db, group.ID, userID)
	if err != nil {
		return err
	}
	role, status := "", ""
	if member != nil {
		role, status = member.Role, member.Status
	}
	if err := membershipdomain.Authorize(role, status, action, group.Visibility); err != nil {
		log.L(ctx).Warn("group action denied",
			zap.String("group_id", group.ID.String()),
			zap.String("user_id", userID.String()),
			zap.String("action", string(action)),
		)
		return err
	}
	return nil
}

func toResponse(g *domain.Group) *domain.GroupResponse {
	return &domain.GroupResponse{
		ID:                 g.ID.String(),
		Name:               g.Name,
		Slug:               g.Slug,
		Description:        g.Description,
		Visibility:         g.Visibility,
		MustApprovePosts:   g.MustApprovePosts,
		AllowMemberInvites: g.AllowMemberInvites,
		OwnerID:            g.OwnerID.String(),
		CreatedAt:          g.CreatedAt,
	}
}
