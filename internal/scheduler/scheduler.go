// Package scheduler runs the periodic sweeps: promoting deferred
// downgrades whose effective time arrived and resetting daily build
// counters.
package scheduler

import (
	"context"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/distlock"
	"github.com/appforge/appforge/internal/metrics"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKey         = "appforge:scheduler:sweep"
	resetBatchLimit = 500
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Cfg             config.Config
	SubscriptionSvc subscriptiondomain.Service
	WalletRepo      walletdomain.Repository
	Clock           clock.Clock
	Locker          *distlock.Locker `optional:"true"`
	Metrics         *metrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	interval        time.Duration
	subscriptionSvc subscriptiondomain.Service
	walletRepo      walletdomain.Repository
	clock           clock.Clock
	locker          *distlock.Locker
	metrics         *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

func New(p Params) *Scheduler {
	interval := p.Cfg.SchedulerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler"),
		interval:        interval,
		subscriptionSvc: p.SubscriptionSvc,
		walletRepo:      p.WalletRepo,
		clock:           p.Clock,
		locker:          p.Locker,
		metrics:         p.Metrics,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, lockKey, 2*s.interval)
		if err != nil {
			s.log.Warn("scheduler lock attempt failed", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.locker.Release(ctx, lockKey, token); err != nil {
				s.log.Warn("scheduler lock release failed", zap.Error(err))
			}
		}()
	}

	s.Sweep(ctx)
}

// Sweep runs one pass of both jobs. Exported so tests drive it without
// the ticker.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock.Now()

	applied, err := s.subscriptionSvc.ActivateDuePending(ctx, now)
	if err != nil {
		s.log.Error("pending downgrade sweep failed", zap.Error(err))
	} else if applied > 0 {
		s.metrics.RecordPendingApplied(applied)
		s.log.Info("pending downgrades applied", zap.Int("count", applied))
	}

	if err := s.resetDailyCounters(ctx, now); err != nil {
		s.log.Error("daily counter sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) resetDailyCounters(ctx context.Context, now time.Time) error {
	due, err := s.walletRepo.ListDueForReset(ctx, s.db, now, resetBatchLimit)
	if err != nil {
		return err
	}

	for _, wallet := range due {
		if err := s.walletRepo.ResetDaily(ctx, s.db, wallet.UserID, nextMidnight(now)); err != nil {
			s.log.Warn("daily counter reset failed",
				zap.String("user_id", wallet.UserID),
				zap.Error(err))
		}
	}
	if len(due) > 0 {
		s.log.Info("daily counters reset", zap.Int("count", len(due)))
	}
	return nil
}

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
