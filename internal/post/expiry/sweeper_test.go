package expiry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pasar/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pasar/internal/audit/repository"
	auditservice "github.com/smallbiznis/pasar/internal/audit/service"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/config"
	"github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/internal/post/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSweeper(t *testing.T, batchSize int) (*Sweeper, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
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

	if err := db.AutoMigrate(&domain.Post{}, &auditdomain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	sweeper := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		ModerationCfg: config.NewStaticModerationConfigHolder(config.ModerationConfig{
			PostTTLDays:          30,
			ExpirySweepInterval:  time.Hour,
			ExpirySweepBatchSize: batchSize,
		}),
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	})
	return sweeper, db, node, fakeClock
}

func seedPost(t *testing.T, db *gorm.DB, node *snowflake.Node, status string, createdAt time.Time) snowflake.ID {
	t.Helper()
	groupID := node.Generate()
	expiresAt := createdAt.Add(30 * 24 * time.Hour)
	post := &domain.Post{
		ID:        node.Generate(),
		GroupID:   &groupID,
		AuthorID:  node.Generate(),
		Title:     "listing",
		Currency:  "IDR",
		Status:    status,
		Metadata:  datatypes.JSONMap{},
		ExpiresAt: &expiresAt,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post.ID
}

func TestRunOnceExpiresDuePosts(t *testing.T) {
	sweeper, db, node, fakeClock := setupSweeper(t, 100)

	stale := fakeClock.Now().Add(-40 * 24 * time.Hour)
	fresh := fakeClock.Now().Add(-10 * 24 * time.Hour)

	staleID := seedPost(t, db, node, domain.StatusApproved, stale)
	pendingID := seedPost(t, db, node, domain.StatusPending, stale)
	freshID := seedPost(t, db, node, domain.StatusApproved, fresh)
	soldID := seedPost(t, db, node, domain.StatusSold, stale)

	// Age alone does not expire a post; only a due expires_at does.
	extendedFuture := fakeClock.Now().Add(15 * 24 * time.Hour)
	extendedID := seedPost(t, db, node, domain.StatusApproved, stale)
	if err := db.Model(&domain.Post{}).
		Where("id = ?", extendedID).
		Update("expires_at", extendedFuture).Error; err != nil {
		t.Fatalf("extend expiry: %v", err)
	}

	total, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 expired posts, got %d", total)
	}

	assertStatus(t, db, staleID, domain.StatusExpired)
	// Pending posts are not terminal; a stale queue entry expires too.
	assertStatus(t, db, pendingID, domain.StatusExpired)
	assertStatus(t, db, freshID, domain.StatusApproved)
	assertStatus(t, db, soldID, domain.StatusSold)
	assertStatus(t, db, extendedID, domain.StatusApproved)

	var entries int64
	if err := db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "post.expired").
		Count(&entries).Error; err != nil {
		t.Fatalf("count audit entries: %v", err)
	}
	if entries != 1 {
		t.Fatalf("expected 1 audit entry, got %d", entries)
	}
}

func TestRunOnceDrainsInBatches(t *testing.T) {
	sweeper, db, node, fakeClock := setupSweeper(t, 2)

	stale := fakeClock.Now().Add(-60 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		seedPost(t, db, node, domain.StatusApproved, stale.Add(time.Duration(i)*time.Minute))
	}

	total, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected all 5 posts expired in one pass, got %d", total)
	}

	var remaining int64
	if err := db.Model(&domain.Post{}).
		Where("status = ?", domain.StatusApproved).
		Count(&remaining).Error; err != nil {
		t.Fatalf("count approved: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected no approved posts left, got %d", remaining)
	}
}

func TestRunOnceNothingToExpire(t *testing.T) {
	sweeper, db, node, fakeClock := setupSweeper(t, 100)
	seedPost(t, db, node, domain.StatusApproved, fakeClock.Now().Add(-time.Hour))

	total, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected nothing expired, got %d", total)
	}

	var entries int64
	if err := db.Model(&auditdomain.AuditLog{}).Count(&entries).Error; err != nil {
		t.Fatalf("count audit entries: %v", err)
	}
	if entries != 0 {
		t.Fatalf("an idle sweep must not write audit entries, got %d", entries)
	}
}

func assertStatus(t *testing.T, db *gorm.DB, id snowflake.ID, want string) {
	t.Helper()
	var post domain.Post
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if post.Status != want {
		t.Fatalf("post %s: expected status %s, got %s", id, want, post.Status)
	}
}
