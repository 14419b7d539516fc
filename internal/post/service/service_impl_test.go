package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/authorization"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/config"
	groupdomain "github.com/smallbiznis/pasar/internal/group/domain"
	grouprepository "github.com/smallbiznis/pasar/internal/group/repository"
	membershipdomain "github.com/smallbiznis/pasar/internal/membership/domain"
	membershiprepository "github.com/smallbiznis/pasar/internal/membership/repository"
	notificationdomain "github.com/smallbiznis/pasar/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/pasar/internal/notification/repository"
	notificationservice "github.com/smallbiznis/pasar/internal/notification/service"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	"github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/internal/post/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type authzStub struct {
	err error
}

func (a *authzStub) Authorize(ctx context.Context, userID snowflake.ID, object string, action string) error {
	return a.err
}

type postFixture struct {
	svc   domain.Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	authz *authzStub
}

func setupPostService(t *testing.T) *postFixture {
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

	if err := db.AutoMigrate(
		&groupdomain.Group{},
		&membershipdomain.Membership{},
		&domain.Post{},
		&notificationdomain.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	authz := &authzStub{err: authorization.ErrForbidden}

	notificationSvc := notificationservice.New(notificationservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  notificationrepository.Provide(),
		Hub:   stream.NewHub(),
	})

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		ModerationCfg: config.NewStaticModerationConfigHolder(config.ModerationConfig{
			PostTTLDays:          30,
			ExpirySweepInterval:  time.Hour,
			ExpirySweepBatchSize: 100,
		}),
		Repo:            repository.Provide(),
		GroupRepo:       grouprepository.Provide(),
		MembershipRepo:  membershiprepository.Provide(),
		NotificationSvc: notificationSvc,
		AuthzSvc:        authz,
	})

	return &postFixture{svc: svc, db: db, node: node, clock: fakeClock, authz: authz}
}

func (f *postFixture) seedGroup(t *testing.T, ownerID snowflake.ID, mustApprove bool) *groupdomain.Group {
	t.Helper()
	now := f.clock.Now()
	group := &groupdomain.Group{
		ID:               f.node.Generate(),
		Name:             fmt.Sprintf("group-%s", f.node.Generate()),
		Slug:             fmt.Sprintf("slug-%s", f.node.Generate()),
		Visibility:       groupdomain.VisibilityPublic,
		MustApprovePosts: mustApprove,
		OwnerID:          ownerID,
		Metadata:         datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := f.db.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	f.seedMember(t, group.ID, ownerID, membershipdomain.RoleLeader)
	return group
}

func (f *postFixture) seedMember(t *testing.T, groupID, userID snowflake.ID, role string) {
	t.Helper()
	now := f.clock.Now()
	member := &membershipdomain.Membership{
		ID:          f.node.Generate(),
		GroupID:     groupID,
		UserID:      userID,
		Role:        role,
		Status:      membershipdomain.StatusActive,
		RequestedAt: now,
		JoinedAt:    &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.db.Create(member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func TestCreateReadsModerationFlagOnce(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	gated, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{
		Title:     "Sepeda bekas",
		PriceCent: 150_000_00,
	})
	if err != nil {
		t.Fatalf("create gated post: %v", err)
	}
	if gated.Status != domain.StatusPending {
		t.Fatalf("expected pending under moderation, got %s", gated.Status)
	}

	// Relax the flag. Posts already pending stay pending until a
	// moderator decides them; only new posts skip the gate.
	if err := f.db.Model(&groupdomain.Group{}).
		Where("id = ?", group.ID).
		Update("must_approve_posts", false).Error; err != nil {
		t.Fatalf("flip flag: %v", err)
	}

	open, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{
		Title:     "Meja lipat",
		PriceCent: 50_000_00,
	})
	if err != nil {
		t.Fatalf("create open post: %v", err)
	}
	if open.Status != domain.StatusApproved {
		t.Fatalf("expected approved without moderation, got %s", open.Status)
	}

	var current domain.Post
	if err := f.db.First(&current, "title = ?", "Sepeda bekas").Error; err != nil {
		t.Fatalf("reload gated post: %v", err)
	}
	if current.Status != domain.StatusPending {
		t.Fatalf("existing pending post must not be re-gated, got %s", current.Status)
	}
}

func TestCreateNotifiesPerOutcome(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)

	if _, err := f.svc.Create(context.Background(), author, group.ID.String(), domain.CreatePostRequest{
		Title: "Kursi kayu",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var toLeader int64
	if err := f.db.Model(&notificationdomain.Notification{}).
		Where("recipient_id = ? AND kind = ?", owner, string(notificationdomain.ActionKindAdminNewPost)).
		Count(&toLeader).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if toLeader != 1 {
		t.Fatalf("expected admin_new_post notification for the leader, got %d", toLeader)
	}
}

func TestCreateWithoutGroupStartsApproved(t *testing.T) {
	f := setupPostService(t)
	author := f.node.Generate()
	viewer := f.node.Generate()
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, "", domain.CreatePostRequest{
		Title:     "Sepeda lipat",
		PriceCent: 75_000_00,
	})
	if err != nil {
		t.Fatalf("create free-standing post: %v", err)
	}
	if post.Status != domain.StatusApproved {
		t.Fatalf("expected approved without a moderation gate, got %s", post.Status)
	}
	if post.GroupID != "" {
		t.Fatalf("expected no group, got %s", post.GroupID)
	}

	var success int64
	if err := f.db.Model(&notificationdomain.Notification{}).
		Where("recipient_id = ? AND kind = ?", author, string(notificationdomain.ActionKindPostSuccess)).
		Count(&success).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if success != 1 {
		t.Fatalf("expected a post_success notification, got %d", success)
	}

	// Approved free-standing listings are visible to any signed-in user.
	seen, err := f.svc.GetByID(ctx, viewer, post.ID)
	if err != nil {
		t.Fatalf("viewer get: %v", err)
	}
	if seen.ID != post.ID {
		t.Fatalf("expected post %s, got %s", post.ID, seen.ID)
	}

	listed, err := f.svc.List(ctx, viewer, domain.ListPostRequest{})
	if err != nil {
		t.Fatalf("list free-standing posts: %v", err)
	}
	if len(listed.Posts) != 1 || listed.Posts[0].ID != post.ID {
		t.Fatalf("expected the free-standing post in the list, got %+v", listed.Posts)
	}
}

func TestHiddenFreeStandingPostIsAuthorOnly(t *testing.T) {
	f := setupPostService(t)
	author := f.node.Generate()
	other := f.node.Generate()
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, "", domain.CreatePostRequest{Title: "Helm"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Hide(ctx, author, post.ID); err != nil {
		t.Fatalf("hide: %v", err)
	}

	if _, err := f.svc.GetByID(ctx, other, post.ID); !errors.Is(err, membershipdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized viewing a hidden listing, got %v", err)
	}
	if _, err := f.svc.GetByID(ctx, author, post.ID); err != nil {
		t.Fatalf("author get: %v", err)
	}

	// There is no moderation queue outside a group.
	if _, err := f.svc.SetApproval(ctx, other, post.ID, true); !errors.Is(err, membershipdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized moderating a free-standing post, got %v", err)
	}
}

func TestSetApprovalIdempotentAndConflict(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Lemari"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := f.svc.SetApproval(ctx, owner, post.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if first.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", first.Status)
	}

	second, err := f.svc.SetApproval(ctx, owner, post.ID, true)
	if err != nil {
		t.Fatalf("repeat approve should be a no-op success, got %v", err)
	}
	if second.Status != domain.StatusApproved {
		t.Fatalf("expected approved after repeat, got %s", second.Status)
	}

	if _, err := f.svc.SetApproval(ctx, owner, post.ID, false); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition flipping a decision, got %v", err)
	}

	var count int64
	if err := f.db.Model(&notificationdomain.Notification{}).
		Where("recipient_id = ? AND kind = ?", author, string(notificationdomain.ActionKindPostApproved)).
		Count(&count).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single post_approved notification, got %d", count)
	}
}

func TestSetApprovalRequiresModerator(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Rak buku"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.SetApproval(ctx, author, post.ID, true); !errors.Is(err, membershipdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestMarkSoldRequiresApproved(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Kompor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.MarkSold(ctx, author, post.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition selling a pending post, got %v", err)
	}

	if _, err := f.svc.SetApproval(ctx, owner, post.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	sold, err := f.svc.MarkSold(ctx, author, post.ID)
	if err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	if sold.Status != domain.StatusSold {
		t.Fatalf("expected sold, got %s", sold.Status)
	}

	// Selling twice stays sold.
	again, err := f.svc.MarkSold(ctx, author, post.ID)
	if err != nil {
		t.Fatalf("repeat mark sold: %v", err)
	}
	if again.Status != domain.StatusSold {
		t.Fatalf("expected sold after repeat, got %s", again.Status)
	}
}

func TestHideOwnPostOnly(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	other := f.node.Generate()
	group := f.seedGroup(t, owner, false)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	f.seedMember(t, group.ID, other, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Gitar"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.Hide(ctx, other, post.ID); !errors.Is(err, membershipdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized hiding someone else's post, got %v", err)
	}
	if err := f.svc.Hide(ctx, author, post.ID); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := f.svc.Hide(ctx, author, post.ID); err != nil {
		t.Fatalf("repeat hide should be a no-op, got %v", err)
	}
}

func TestRepublishReversesHide(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	other := f.node.Generate()
	group := f.seedGroup(t, owner, false)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	f.seedMember(t, group.ID, other, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Sofa"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Hide(ctx, author, post.ID); err != nil {
		t.Fatalf("hide: %v", err)
	}

	if _, err := f.svc.Republish(ctx, other, post.ID); !errors.Is(err, membershipdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized republishing someone else's post, got %v", err)
	}

	back, err := f.svc.Republish(ctx, author, post.ID)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if back.Status != domain.StatusApproved {
		t.Fatalf("expected approved after republish, got %s", back.Status)
	}

	again, err := f.svc.Republish(ctx, author, post.ID)
	if err != nil {
		t.Fatalf("repeat republish should be a no-op, got %v", err)
	}
	if again.Status != domain.StatusApproved {
		t.Fatalf("expected approved after repeat, got %s", again.Status)
	}
}

func TestRepublishRequiresHidden(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	group := f.seedGroup(t, owner, true)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Sepatu"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A pending post never went live; it cannot skip moderation.
	if _, err := f.svc.Republish(ctx, author, post.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

func TestAdminSetStatusGatedByPlatformRole(t *testing.T) {
	f := setupPostService(t)
	owner := f.node.Generate()
	author := f.node.Generate()
	moderator := f.node.Generate()
	group := f.seedGroup(t, owner, false)
	f.seedMember(t, group.ID, author, membershipdomain.RoleMember)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, author, group.ID.String(), domain.CreatePostRequest{Title: "Laptop"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.AdminSetStatus(ctx, moderator, post.ID, domain.StatusHidden); !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("expected forbidden without platform role, got %v", err)
	}

	f.authz.err = nil
	forced, err := f.svc.AdminSetStatus(ctx, moderator, post.ID, domain.StatusHidden)
	if err != nil {
		t.Fatalf("admin set status: %v", err)
	}
	if forced.Status != domain.StatusHidden {
		t.Fatalf("expected hidden, got %s", forced.Status)
	}

	if _, err := f.svc.AdminSetStatus(ctx, moderator, post.ID, "lost"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid_status, got %v", err)
	}
}
