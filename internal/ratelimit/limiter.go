// Package ratelimit enforces a per-client fixed-window quota backed by the
// persistent store, so admission decisions are shared across all handler
// instances without in-process state.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"domain-check-gateway/internal/db"
)

// Store is the slice of the repository the limiter needs.
type Store interface {
	GetRateLimit(ctx context.Context, clientID string) (*db.RateLimitEntry, error)
	InsertRateLimit(ctx context.Context, entry *db.RateLimitEntry) error
	UpdateRateLimit(ctx context.Context, entry *db.RateLimitEntry) error
}

type Config struct {
	Quota  int64
	Window time.Duration
	// FailOpen admits requests when the store is unreachable. The strict
	// variant (false) denies instead.
	FailOpen bool
}

// Decision is the admission outcome. ResetTime is unix ms.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetTime int64 `json:"resetTime"`
}

type Limiter struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, cfg Config, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Admit decides whether clientID may consume units of quota in the current
// window and persists the new count when it may.
//
// The read-then-write is intentionally not serialized: two concurrent
// requests from one client can both observe the pre-update count and
// overshoot the quota by at most one request's worth. The single UPDATE with
// the computed total keeps that window narrow.
func (l *Limiter) Admit(ctx context.Context, clientID string, units int64) Decision {
	now := l.now().UnixMilli()
	windowMs := l.cfg.Window.Milliseconds()

	entry, err := l.store.GetRateLimit(ctx, clientID)
	if err != nil {
		return l.storeFailure(clientID, units, now, windowMs, err)
	}

	// First request from this client, or a window that has elapsed: the
	// window starts fresh either way, only the write differs.
	if entry == nil || now-entry.WindowStart >= windowMs {
		if units > l.cfg.Quota {
			// This request can never succeed; the untouched window is
			// reported in full.
			return Decision{Allowed: false, Remaining: l.cfg.Quota, ResetTime: now + windowMs}
		}

		fresh := &db.RateLimitEntry{ClientID: clientID, Count: units, WindowStart: now}
		if entry == nil {
			err = l.store.InsertRateLimit(ctx, fresh)
		} else {
			err = l.store.UpdateRateLimit(ctx, fresh)
		}
		if err != nil {
			return l.storeFailure(clientID, units, now, windowMs, err)
		}

		return Decision{Allowed: true, Remaining: l.cfg.Quota - units, ResetTime: now + windowMs}
	}

	newTotal := entry.Count + units
	if newTotal > l.cfg.Quota {
		return Decision{
			Allowed:   false,
			Remaining: l.cfg.Quota - entry.Count,
			ResetTime: entry.WindowStart + windowMs,
		}
	}

	updated := &db.RateLimitEntry{ClientID: clientID, Count: newTotal, WindowStart: entry.WindowStart}
	if err := l.store.UpdateRateLimit(ctx, updated); err != nil {
		return l.storeFailure(clientID, units, now, windowMs, err)
	}

	return Decision{Allowed: true, Remaining: l.cfg.Quota - newTotal, ResetTime: now + windowMs}
}

// storeFailure applies the configured failure policy: availability of the
// check endpoint outranks strict quota enforcement, so the default is to
// admit with a conservative remaining estimate.
func (l *Limiter) storeFailure(clientID string, units, now, windowMs int64, err error) Decision {
	l.logger.Error("rate limit store unavailable",
		zap.String("client_id", clientID),
		zap.Bool("fail_open", l.cfg.FailOpen),
		zap.Error(err),
	)

	return Decision{
		Allowed:   l.cfg.FailOpen,
		Remaining: l.cfg.Quota - units,
		ResetTime: now + windowMs,
	}
}
