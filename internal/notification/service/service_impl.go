package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/notification/domain"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	obsmetrics "github.com/smallbiznis/pasar/internal/observability/metrics"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Hub   *stream.Hub
}

type ServiceImpl struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	hub   *stream.Hub
}

func New(p Params) domain.Service {
	return &ServiceImpl{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		hub:   p.Hub,
	}
}

// Emit writes one ledger row on tx. Callers pass the transaction of the
// state change that produced the notification, so the two commit or
// roll back together.
func (s *ServiceImpl) Emit(ctx context.Context, tx *gorm.DB, req domain.EmitRequest) error {
	if req.RecipientID == 0 {
		return domain.ErrInvalidInput
	}
	kind := domain.ParseActionKind(string(req.Kind))

	payload := datatypes.JSONMap{}
	for k, v := range req.Payload {
		payload[k] = v
	}

	notification := &domain.Notification{
		ID:          s.genID.Generate(),
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		GroupID:     req.GroupID,
		Kind:        string(kind),
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Payload:     payload,
		Read:        false,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, tx, notification); err != nil {
		return err
	}
	obsmetrics.NotificationsEmitted.WithLabelValues(string(kind)).Inc()
	return nil
}

// PushUnreadHint recomputes the recipient's unread count from the
// ledger and publishes it. Failure only costs the hint; readers always
// see correct counts on their next fetch.
func (s *ServiceImpl) PushUnreadHint(ctx context.Context, recipientID snowflake.ID) {
	if recipientID == 0 {
		return
	}
	count, err := s.repo.CountUnread(ctx, s.db, recipientID)
	if err != nil {
		s.log.Warn("unread hint skipped",
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err),
		)
		return
	}
	s.hub.Publish(recipientID, stream.Event{
		Kind:        stream.EventKindUnreadCount,
		UnreadCount: count,
	})
	obsmetrics.NotificationsPushed.Inc()
}

func (s *ServiceImpl) List(ctx context.Context, userID snowflake.ID, req domain.ListNotificationRequest) (domain.ListNotificationResponse, error) {
	resp := domain.ListNotificationResponse{Notifications: []domain.NotificationResponse{}}

	size := int(req.PageSize)
	if size <= 0 || size > 100 {
		size = 50
	}
	notifications, err := s.repo.List(ctx, s.db, domain.ListNotificationFilter{
		RecipientID: userID,
		UnreadOnly:  req.UnreadOnly,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return resp, err
	}

	pageInfo := pagination.BuildCursorPageInfo(notifications, int32(size), func(n *domain.Notification) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        n.ID.String(),
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(notifications) > size {
		notifications = notifications[:size]
	}
	for _, n := range notifications {
		resp.Notifications = append(resp.Notifications, *toResponse(n))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	unread, err := s.repo.CountUnread(ctx, s.db, userID)
	if err != nil {
		return resp, err
	}
	resp.UnreadCount = unread
	return resp, nil
}

func (s *ServiceImpl) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	return s.repo.CountUnread(ctx, s.db, userID)
}

// MarkRead flips one notification. Reading something already read is
// success, not conflict.
func (s *ServiceImpl) MarkRead(ctx context.Context, userID snowflake.ID, notificationID string) error {
	id, err := snowflake.ParseString(notificationID)
	if err != nil {
		return domain.ErrNotFound
	}
	rows, err := s.repo.MarkReadWhereUnread(ctx, s.db, userID, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		notification, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if notification == nil || notification.RecipientID != userID {
			return domain.ErrNotFound
		}
		return nil
	}
	s.PushUnreadHint(ctx, userID)
	return nil
}

func (s *ServiceImpl) MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error) {
	rows, err := s.repo.MarkAllRead(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.PushUnreadHint(ctx, userID)
	}
	return rows, nil
}

func (s *ServiceImpl) DeleteAll(ctx context.Context, userID snowflake.ID) error {
	if err := s.repo.DeleteByRecipient(ctx, s.db, userID); err != nil {
		return err
	}
	s.PushUnreadHint(ctx, userID)
	return nil
}

func toResponse(n *domain.Notification) *domain.NotificationResponse {
	resp := &domain.NotificationResponse{
		ID:        n.ID.String(),
		Kind:      domain.ParseActionKind(n.Kind),
		Payload:   map[string]any(n.Payload),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	if n.ActorID != nil {
		resp.ActorID = n.ActorID.String()
	}
	if n.GroupID != nil {
		resp.GroupID = n.GroupID.String()
	}
	if n.SubjectID != nil {
		resp.SubjectID = n.SubjectID.String()
	}
	return resp
}
