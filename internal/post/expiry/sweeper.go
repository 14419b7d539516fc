// Package expiry retires listings past their expiry in the background.
package expiry

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/pasar/internal/audit/domain"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/config"
	obsmetrics "github.com/smallbiznis/pasar/internal/observability/metrics"
	"github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	ModerationCfg *config.ModerationConfigHolder
	Repo          domain.Repository
	AuditSvc      auditdomain.Service
	JoinLimiter   *ratelimit.JoinLimiter `optional:"true"`
}

// Sweeper periodically marks posts past their expires_at as expired;
// sold and already expired posts stay put. With redis configured,
// replicas coordinate through a sweep lock so only one instance runs a
// given pass.
type Sweeper struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         *config.ModerationConfigHolder
	repo        domain.Repository
	auditSvc    auditdomain.Service
	joinLimiter *ratelimit.JoinLimiter
}

func New(p Params) *Sweeper {
	return &Sweeper{
		db:          p.DB,
		log:         p.Log.Named("post.expiry"),
		clock:       p.Clock,
		cfg:         p.ModerationCfg,
		repo:        p.Repo,
		auditSvc:    p.AuditSvc,
		joinLimiter: p.JoinLimiter,
	}
}

// RunOnce performs a single sweep pass and reports how many posts were
// expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	token, owned, err := s.joinLimiter.TryLockSweep(ctx)
	if err != nil {
		s.log.Warn("sweep lock unavailable", zap.Error(err))
		return 0, nil
	}
	if !owned {
		return 0, nil
	}
	defer func() {
		if err := s.joinLimiter.ReleaseSweep(ctx, token); err != nil {
			s.log.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	modCfg := s.cfg.Get()
	now := s.clock.Now()

	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		expired, err := s.repo.ExpireDue(ctx, s.db, now, modCfg.ExpirySweepBatchSize)
		if err != nil {
			return total, err
		}
		total += expired
		if expired < int64(modCfg.ExpirySweepBatchSize) {
			break
		}
	}

	if total > 0 {
		obsmetrics.PostsExpired.Add(float64(total))
		s.log.Info("expired stale posts",
			zap.Int64("count", total),
			zap.Time("swept_at", now),
		)
		targetID := "sweep"
		if err := s.auditSvc.AuditLog(ctx, nil, "system", nil, "post.expired", "post", &targetID, map[string]any{
			"count":    total,
			"swept_at": now.Format(time.RFC3339),
		}); err != nil {
			s.log.Warn("audit entry failed", zap.Error(err))
		}
	}
	return total, nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Get().ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}
		// Interval is hot-reloadable; pick up changes between passes.
		ticker.Reset(s.cfg.Get().ExpirySweepInterval)
	}
}

var Module = fx.Module("post.expiry",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, sweeper *Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sweeper.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
