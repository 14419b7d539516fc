package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/notification/domain"
	"github.com/smallbiznis/pasar/internal/notification/repository"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupNotificationService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node, *stream.Hub) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&domain.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	hub := stream.NewHub()

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
		Hub:   hub,
	})
	return svc, db, node, hub
}

func emit(t *testing.T, svc domain.Service, db *gorm.DB, recipientID snowflake.ID, kind domain.ActionKind) {
	t.Helper()
	if err := svc.Emit(context.Background(), db, domain.EmitRequest{
		RecipientID: recipientID,
		Kind:        kind,
		SubjectType: "test",
	}); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestUnreadCountDerivedFromLedger(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		emit(t, svc, db, recipient, domain.ActionKindJoinRequest)
	}
	emit(t, svc, db, node.Generate(), domain.ActionKindJoinRequest)

	count, err := svc.UnreadCount(ctx, recipient)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 unread, got %d", count)
	}
}

func TestEmitNormalizesUnknownKind(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()

	emit(t, svc, db, recipient, domain.ActionKind("retired_kind"))

	var stored domain.Notification
	if err := db.First(&stored, "recipient_id = ?", recipient).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Kind != string(domain.ActionKindUnknown) {
		t.Fatalf("expected unknown kind fallback, got %s", stored.Kind)
	}
}

func TestEmitRequiresRecipient(t *testing.T) {
	svc, db, _, _ := setupNotificationService(t)

	err := svc.Emit(context.Background(), db, domain.EmitRequest{Kind: domain.ActionKindJoinRequest})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	emit(t, svc, db, recipient, domain.ActionKindPostApproved)

	var stored domain.Notification
	if err := db.First(&stored, "recipient_id = ?", recipient).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := svc.MarkRead(ctx, recipient, stored.ID.String()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, recipient, stored.ID.String()); err != nil {
		t.Fatalf("repeat mark read should succeed, got %v", err)
	}

	count, err := svc.UnreadCount(ctx, recipient)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}
}

func TestMarkReadForeignRowIsNotFound(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	stranger := node.Generate()
	ctx := context.Background()

	emit(t, svc, db, recipient, domain.ActionKindPostApproved)

	var stored domain.Notification
	if err := db.First(&stored, "recipient_id = ?", recipient).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := svc.MarkRead(ctx, stranger, stored.ID.String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not_found for someone else's notification, got %v", err)
	}
}

func TestMarkAllReadZeroesCounter(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		emit(t, svc, db, recipient, domain.ActionKindJoinApproved)
	}

	updated, err := svc.MarkAllRead(ctx, recipient)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if updated != 4 {
		t.Fatalf("expected 4 rows flipped, got %d", updated)
	}

	count, err := svc.UnreadCount(ctx, recipient)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}

	again, err := svc.MarkAllRead(ctx, recipient)
	if err != nil {
		t.Fatalf("repeat mark all read: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected 0 rows on repeat, got %d", again)
	}
}

func TestListReportsUnreadCount(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		emit(t, svc, db, recipient, domain.ActionKindPostSuccess)
	}

	resp, err := svc.List(ctx, recipient, domain.ListNotificationRequest{PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(resp.Notifications))
	}
	if resp.UnreadCount != 2 {
		t.Fatalf("expected unread count 2, got %d", resp.UnreadCount)
	}
}

func TestPushUnreadHintPublishesCurrentCount(t *testing.T) {
	svc, db, node, hub := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	sub, _, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	emit(t, svc, db, recipient, domain.ActionKindJoinRequest)
	svc.PushUnreadHint(ctx, recipient)

	select {
	case event := <-sub.Events():
		if event.Kind != stream.EventKindUnreadCount {
			t.Fatalf("expected unread_count event, got %s", event.Kind)
		}
		if event.UnreadCount != 1 {
			t.Fatalf("expected count 1, got %d", event.UnreadCount)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an unread hint on the stream")
	}
}

func TestDeleteAllClearsLedger(t *testing.T) {
	svc, db, node, _ := setupNotificationService(t)
	recipient := node.Generate()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		emit(t, svc, db, recipient, domain.ActionKindJoinRequest)
	}
	if err := svc.DeleteAll(ctx, recipient); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	count, err := svc.UnreadCount(ctx, recipient)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty ledger, got %d", count)
	}
}
