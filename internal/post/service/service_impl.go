package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/authorization"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/config"
	groupdomain "github.com/smallbiznis/pasar/internal/group/domain"
	membershipdomain "github.com/smallbiznis/pasar/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/pasar/internal/notification/domain"
	"github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	ModerationCfg   *config.ModerationConfigHolder
	Repo            domain.Repository
	GroupRepo       groupdomain.Repository
	MembershipRepo  membershipdomain.Repository
	NotificationSvc notificationdomain.Service
	AuthzSvc        authorization.Service
}

type ServiceImpl struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	moderationCfg   *config.ModerationConfigHolder
	repo            domain.Repository
	groupRepo       groupdomain.Repository
	membershipRepo  membershipdomain.Repository
	notificationSvc notificationdomain.Service
	authzSvc        authorization.Service
}

func New(p Params) domain.Service {
	return &ServiceImpl{
		db:              p.DB,
		log:             p.Log.Named("post.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		moderationCfg:   p.ModerationCfg,
		repo:            p.Repo,
		groupRepo:       p.GroupRepo,
		membershipRepo:  p.MembershipRepo,
		notificationSvc: p.NotificationSvc,
		authzSvc:        p.AuthzSvc,
	}
}

// Create submits a listing. A group's moderation flag is read once,
// here; flipping the flag later never re-gates posts that already went
// live. A post created in no group has no moderation gate and starts
// approved.
func (s *ServiceImpl) Create(ctx context.Context, authorID snowflake.ID, groupID string, req domain.CreatePostRequest) (*domain.PostResponse, error) {
	var group *groupdomain.Group
	if strings.TrimSpace(groupID) != "" {
		var err error
		group, err = s.findGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, group, authorID, membershipdomain.ActionCreatePost); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || req.PriceCent < 0 {
		return nil, domain.ErrInvalidPost
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IDR"
	}

	now := s.clock.Now()
	status := domain.StatusApproved
	if group != nil && group.MustApprovePosts {
		status = domain.StatusPending
	}
	ttl := time.Duration(s.moderationCfg.Get().PostTTLDays) * 24 * time.Hour
	expiresAt := now.Add(ttl)

	post := &domain.Post{
		ID:        s.genID.Generate(),
		AuthorID:  authorID,
		Title:     title,
		Body:      strings.TrimSpace(req.Body),
		PriceCent: req.PriceCent,
		Currency:  currency,
		Status:    status,
		Metadata:  datatypes.JSONMap{},
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if group != nil {
		gid := group.ID
		post.GroupID = &gid
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, post); err != nil {
			return err
		}
		if status == domain.StatusPending {
			return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
				RecipientID: group.OwnerID,
				ActorID:     &authorID,
				GroupID:     post.GroupID,
				Kind:        notificationdomain.ActionKindAdminNewPost,
				SubjectType: "post",
				SubjectID:   &post.ID,
				Payload:     map[string]any{"title": post.Title, "group_name": group.Name},
			})
		}
		return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
			RecipientID: authorID,
			GroupID:     post.GroupID,
			Kind:        notificationdomain.ActionKindPostSuccess,
			SubjectType: "post",
			SubjectID:   &post.ID,
			Payload:     map[string]any{"title": post.Title},
		})
	})
	if err != nil {
		return nil, err
	}

	if status == domain.StatusPending {
		s.notificationSvc.PushUnreadHint(ctx, group.OwnerID)
	} else {
		s.notificationSvc.PushUnreadHint(ctx, authorID)
	}
	fields := []zap.Field{
		zap.String("post_id", post.ID.String()),
		zap.String("status", status),
	}
	if group != nil {
		fields = append(fields, zap.String("group_id", group.ID.String()))
	}
	s.log.Info("post created", fields...)
	return toResponse(post), nil
}

func (s *ServiceImpl) GetByID(ctx context.Context, actorID snowflake.ID, postID string) (*domain.PostResponse, error) {
	post, group, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, group, post, actorID); err != nil {
		return nil, err
	}
	return toResponse(post), nil
}

func (s *ServiceImpl) List(ctx context.Context, actorID snowflake.ID, req domain.ListPostRequest) (domain.ListPostResponse, error) {
	resp := domain.ListPostResponse{Posts: []domain.PostResponse{}}

	var group *groupdomain.Group
	filter := domain.ListPostFilter{}
	if req.GroupID != "" {
		var err error
		group, err = s.findGroup(ctx, req.GroupID)
		if err != nil {
			return resp, err
		}
		if err := s.authorize(ctx, group, actorID, membershipdomain.ActionViewPosts); err != nil {
			return resp, err
		}
		filter.GroupID = group.ID
	} else {
		filter.GroupLess = true
	}
	if req.AuthorID != "" {
		authorID, err := snowflake.ParseString(req.AuthorID)
		if err != nil {
			return resp, domain.ErrInvalidPost
		}
		filter.AuthorID = authorID
	}
	if req.Status != "" {
		if !validStatus(req.Status) {
			return resp, domain.ErrInvalidStatus
		}
		filter.Status = req.Status
	}

	// Hidden and moderation states are only listable by the moderator
	// or by the author browsing their own posts. Free-standing posts
	// have no moderator.
	if !visibleStatusFilter(filter.Status) && filter.AuthorID != actorID {
		if group == nil {
			return resp, membershipdomain.ErrUnauthorized
		}
		if err := s.authorize(ctx, group, actorID, membershipdomain.ActionModeratePost); err != nil {
			return resp, err
		}
	}
	if filter.Status == "" && filter.AuthorID != actorID {
		if group == nil {
			filter.VisibleOnly = true
		} else if err := s.authorize(ctx, group, actorID, membershipdomain.ActionModeratePost); err != nil {
			filter.VisibleOnly = true
		}
	}

	size := int(req.PageSize)
	if size <= 0 || size > 100 {
		size = 50
	}
	posts, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return resp, err
	}

	pageInfo := pagination.BuildCursorPageInfo(posts, int32(size), func(p *domain.Post) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(posts) > size {
		posts = posts[:size]
	}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, *toResponse(p))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *ServiceImpl) Update(ctx context.Context, actorID snowflake.ID, postID string, req domain.UpdatePostRequest) (*domain.PostResponse, error) {
	post, _, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, membershipdomain.ErrUnauthorized
	}
	if post.Status != domain.StatusPending && post.Status != domain.StatusApproved {
		return nil, domain.ErrInvalidTransition
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.ErrInvalidPost
		}
		post.Title = title
	}
	if req.Body != nil {
		post.Body = strings.TrimSpace(*req.Body)
	}
	if req.PriceCent != nil {
		if *req.PriceCent < 0 {
			return nil, domain.ErrInvalidPost
		}
		post.PriceCent = *req.PriceCent
	}
	post.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, post); err != nil {
		return nil, err
	}
	return toResponse(post), nil
}

// SetApproval decides a pending post. The move is one conditional
// update: a second identical decision is a no-op success, a conflicting
// one an invalid transition.
func (s *ServiceImpl) SetApproval(ctx context.Context, actorID snowflake.ID, postID string, approve bool) (*domain.PostResponse, error) {
	post, group, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		// Free-standing posts have no moderation queue.
		return nil, membershipdomain.ErrUnauthorized
	}
	if err := s.authorize(ctx, group, actorID, membershipdomain.ActionModeratePost); err != nil {
		return nil, err
	}

	target := domain.StatusRejected
	kind := notificationdomain.ActionKindPostRejected
	if approve {
		target = domain.StatusApproved
		kind = notificationdomain.ActionKindPostApproved
	}

	var decided bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.UpdateStatusWhere(ctx, tx, post.ID, domain.StatusPending, target, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		decided = true
		return s.notificationSvc.Emit(ctx, tx, notificationdomain.EmitRequest{
			RecipientID: post.AuthorID,
			ActorID:     &actorID,
			GroupID:     post.GroupID,
			Kind:        kind,
			SubjectType: "post",
			SubjectID:   &post.ID,
			Payload:     map[string]any{"title": post.Title},
		})
	})
	if err != nil {
		return nil, err
	}

	if !decided {
		current, err := s.repo.FindByID(ctx, s.db, post.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrNotFound
		}
		if current.Status != target {
			return nil, domain.ErrInvalidTransition
		}
		return toResponse(current), nil
	}

	post.Status = target
	s.notificationSvc.PushUnreadHint(ctx, post.AuthorID)
	s.log.Info("post moderated",
		zap.String("post_id", post.ID.String()),
		zap.String("status", target),
		zap.String("actor_id", actorID.String()),
	)
	return toResponse(post), nil
}

// Hide soft-deletes the author's own listing. Hiding an already hidden
// post is a no-op success.
func (s *ServiceImpl) Hide(ctx context.Context, actorID snowflake.ID, postID string) error {
	post, _, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actorID {
		return membershipdomain.ErrUnauthorized
	}
	if post.Status == domain.StatusHidden {
		return nil
	}
	rows, err := s.repo.UpdateStatusWhere(ctx, s.db, post.ID, post.Status, domain.StatusHidden, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		// Raced another status change; hiding still wins unless the
		// post vanished.
		current, err := s.repo.FindByID(ctx, s.db, post.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status == domain.StatusHidden {
			return nil
		}
		_, err = s.repo.UpdateStatusWhere(ctx, s.db, post.ID, current.Status, domain.StatusHidden, s.clock.Now())
		return err
	}
	return nil
}

// Republish reverses a Hide. Only the author may do it, and only from
// hidden back to approved; a post that was never live stays gated.
func (s *ServiceImpl) Republish(ctx context.Context, actorID snowflake.ID, postID string) (*domain.PostResponse, error) {
	post, _, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, membershipdomain.ErrUnauthorized
	}
	if post.Status == domain.StatusApproved {
		return toResponse(post), nil
	}
	rows, err := s.repo.UpdateStatusWhere(ctx, s.db, post.ID, domain.StatusHidden, domain.StatusApproved, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidTransition
	}
	post.Status = domain.StatusApproved
	return toResponse(post), nil
}

func (s *ServiceImpl) MarkSold(ctx context.Context, actorID snowflake.ID, postID string) (*domain.PostResponse, error) {
	post, _, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, membershipdomain.ErrUnauthorized
	}
	if post.Status == domain.StatusSold {
		return toResponse(post), nil
	}
	rows, err := s.repo.UpdateStatusWhere(ctx, s.db, post.ID, domain.StatusApproved, domain.StatusSold, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidTransition
	}
	post.Status = domain.StatusSold
	return toResponse(post), nil
}

// AdminSetStatus lets a platform moderator force any status, bypassing
// the group-level state machine. Every use lands in the audit log.
func (s *ServiceImpl) AdminSetStatus(ctx context.Context, actorID snowflake.ID, postID string, status string) (*domain.PostResponse, error) {
	if err := s.authzSvc.Authorize(ctx, actorID, authorization.ObjectPost, authorization.ActionPostOverride); err != nil {
		return nil, err
	}
	if !validStatus(status) {
		return nil, domain.ErrInvalidStatus
	}
	post, _, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == status {
		return toResponse(post), nil
	}
	rows, err := s.repo.UpdateStatusWhere(ctx, s.db, post.ID, post.Status, status, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidTransition
	}

	post.Status = status
	s.log.Warn("post status overridden",
		zap.String("post_id", post.ID.String()),
		zap.String("status", status),
		zap.String("actor_id", actorID.String()),
	)
	return toResponse(post), nil
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

// findPost resolves a post and, when it belongs to one, its group. The
// group is nil for free-standing posts.
func (s *ServiceImpl) findPost(ctx context.Context, id string) (*domain.Post, *groupdomain.Group, error) {
	postID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, nil, domain.ErrNotFound
	}
	post, err := s.repo.FindByID(ctx, s.db, postID)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, domain.ErrNotFound
	}
	if post.GroupID == nil {
		return post, nil, nil
	}
	group, err := s.groupRepo.FindByID(ctx, s.db, *post.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return nil, nil, domain.ErrGroupNotFound
	}
	return post, group, nil
}

func (s *ServiceImpl) authorize(ctx context.Context, group *groupdomain.Group, userID snowflake.ID, action membershipdomain.Action) error {
	membership, err := s.membershipRepo.Find(ctx, s.db, group.ID, userID)
	if err != nil {
		return err
	}
	role, status := "", ""
	if membership != nil {
		role, status = membership.Role, membership.Status
	}
	return membershipdomain.Authorize(role, status, action, group.Visibility)
}

func (s *ServiceImpl) authorizeView(ctx context.Context, group *groupdomain.Group, post *domain.Post, actorID snowflake.ID) error {
	if post.AuthorID == actorID {
		return nil
	}
	switch post.Status {
	case domain.StatusApproved, domain.StatusSold, domain.StatusExpired:
		if group == nil {
			// Free-standing listings are visible to any signed-in user.
			return nil
		}
		return s.authorize(ctx, group, actorID, membershipdomain.ActionViewPosts)
	default:
		if group == nil {
			return membershipdomain.ErrUnauthorized
		}
		return s.authorize(ctx, group, actorID, membershipdomain.ActionModeratePost)
	}
}

func validStatus(status string) bool {
	switch status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected,
		domain.StatusHidden, domain.StatusExpired, domain.StatusSold:
		return true
	}
	return false
}

func visibleStatusFilter(status string) bool {
	switch status {
	case "", domain.StatusApproved, domain.StatusSold, domain.StatusExpired:
		return true
	}
	return false
}

func toResponse(p *domain.Post) *domain.PostResponse {
	groupID := ""
	if p.GroupID != nil {
		groupID = p.GroupID.String()
	}
	return &domain.PostResponse{
		ID:        p.ID.String(),
		GroupID:   groupID,
		AuthorID:  p.AuthorID.String(),
		Title:     p.Title,
		Body:      p.Body,
		PriceCent: p.PriceCent,
		Currency:  p.Currency,
		Status:    p.Status,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}
}
