// Package stats maintains the monotonically increasing global and per-day
// usage counters. All state lives in the store; the aggregator itself is
// stateless and safe for concurrent use.
package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"domain-check-gateway/internal/db"
)

type Store interface {
	GetGlobalStats(ctx context.Context) (*db.GlobalStats, error)
	EnsureGlobalStats(ctx context.Context, nowMs int64) error
	ResetGlobalStats(ctx context.Context, uniqueUsers, nowMs int64) error
	UpdateUniqueUsers(ctx context.Context, count int64) error
	IncrementGlobalStats(ctx context.Context, delta db.StatsDelta) error
	UpsertDailyStats(ctx context.Context, date string, delta db.StatsDelta) error
	GetDailyStats(ctx context.Context, days int) ([]db.DailyStats, error)
	CountUniqueClients(ctx context.Context) (int64, error)
}

type Aggregator struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Increment adds one event's worth of accounting to the global row and to
// today's daily row. The two writes are not atomic: a daily failure after a
// successful global update leaves the global counters reading ahead, which
// is accepted and not retried. Errors propagate so callers can log them;
// stats failure never fails the originating request.
func (a *Aggregator) Increment(ctx context.Context, delta db.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}

	now := a.now()

	if err := a.store.EnsureGlobalStats(ctx, now.UnixMilli()); err != nil {
		return fmt.Errorf("ensure global stats: %w", err)
	}
	if err := a.store.IncrementGlobalStats(ctx, delta); err != nil {
		return fmt.Errorf("increment global stats: %w", err)
	}

	date := now.UTC().Format("2006-01-02")
	if err := a.store.UpsertDailyStats(ctx, date, delta); err != nil {
		return fmt.Errorf("upsert daily stats for %s: %w", date, err)
	}
	return nil
}

// Get returns the global counters with uniqueUsers freshly recomputed from
// the distinct client set. A missing global row is recreated with zeroed
// counters seeded from the observed unique count, so the dashboard never
// reads stale or absent data.
func (a *Aggregator) Get(ctx context.Context) (*db.GlobalStats, error) {
	uniqueUsers, err := a.store.CountUniqueClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unique clients: %w", err)
	}

	stats, err := a.store.GetGlobalStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get global stats: %w", err)
	}

	if stats == nil {
		nowMs := a.now().UnixMilli()
		a.logger.Warn("global stats row missing, reinitializing",
			zap.Int64("unique_users", uniqueUsers))

		if err := a.store.ResetGlobalStats(ctx, uniqueUsers, nowMs); err != nil {
			return nil, fmt.Errorf("reset global stats: %w", err)
		}
		return &db.GlobalStats{
			ID:          "global",
			LastReset:   nowMs,
			UniqueUsers: uniqueUsers,
		}, nil
	}

	// Keep the advisory column roughly current for anyone reading the
	// table directly; the returned value is the recomputed one regardless.
	if err := a.store.UpdateUniqueUsers(ctx, uniqueUsers); err != nil {
		a.logger.Warn("failed to persist unique user count", zap.Error(err))
	}

	stats.UniqueUsers = uniqueUsers
	return stats, nil
}

// Daily returns the per-day rows for the last N days, oldest first. Days
// without traffic are absent.
func (a *Aggregator) Daily(ctx context.Context, days int) ([]db.DailyStats, error) {
	rows, err := a.store.GetDailyStats(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("get daily stats: %w", err)
	}
	return rows, nil
}
