// Package service runs the venue's market loop: every tick it first ends any
// event whose deadline has passed, then applies price decay when the
// operator's auto-market toggle is on.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/decay"
	"barborsa/internal/market"
	"barborsa/internal/scheduler"
	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

// AdvisoryLocker is implemented by stores that can keep the market loop
// single-writer across replicas.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Service orchestrates the recurring market tick for one venue.
type Service struct {
	scheduler *scheduler.Scheduler
	store     store.Store
	scope     tenant.Scope
	events    *market.Controller
	decay     *decay.Ticker
	logger    zerolog.Logger

	locker  AdvisoryLocker
	lockKey int64
}

// New constructs the market loop service. A zero lock key disables advisory
// locking (single-instance deployments, memory store).
func New(sched *scheduler.Scheduler, st store.Store, scope tenant.Scope, events *market.Controller, decayTicker *decay.Ticker, lockKey int64, logger zerolog.Logger) *Service {
	var locker AdvisoryLocker
	if l, ok := st.(AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		store:     st,
		scope:     scope,
		events:    events,
		decay:     decayTicker,
		logger:    logger.With().Str("component", "service").Str("venue", scope.Venue()).Logger(),
		locker:    locker,
		lockKey:   lockKey,
	}
}

// Run begins the market tick loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单个市场周期: 先清理到期事件, 再跑价格衰减。
func (s *Service) ProcessTick(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", now).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, now)
}

func (s *Service) executeTick(ctx context.Context, now time.Time) error {
	if err := s.events.Sweep(ctx); err != nil {
		return fmt.Errorf("sweep market events: %w", err)
	}

	enabled, err := decay.AutoMarketEnabled(ctx, s.store, s.scope)
	if err != nil {
		return err
	}
	if !enabled {
		s.logger.Debug().Time("tick", now).Msg("auto market disabled, skipping decay")
		return nil
	}

	updated, err := s.decay.RunTick(ctx)
	if err != nil {
		return fmt.Errorf("decay tick: %w", err)
	}

	s.logger.Info().Time("tick", now).
		Int("updated", updated).
		Msg("tick processed")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
