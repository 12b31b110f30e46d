package handlers

import (
	"context"

	"go.uber.org/zap"

	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/ratelimit"
)

type Admitter interface {
	Admit(ctx context.Context, clientID string, units int64) ratelimit.Decision
}

type Checker interface {
	Check(ctx context.Context, domains []string) []checker.Result
}

type Stats interface {
	Increment(ctx context.Context, delta db.StatsDelta) error
	Get(ctx context.Context) (*db.GlobalStats, error)
	Daily(ctx context.Context, days int) ([]db.DailyStats, error)
}

type Recorder interface {
	Record(ctx context.Context, clientID string, results []checker.Result) error
}

type Pinger interface {
	Ping() error
}

type Handler struct {
	limiter Admitter
	checker Checker
	stats   Stats
	outbox  Recorder
	db      Pinger
	metrics *metrics.Collector
	logger  *zap.Logger

	maxPerRequest int
}

func New(limiter Admitter, chk Checker, stats Stats, outbox Recorder, db Pinger,
	collector *metrics.Collector, maxPerRequest int, logger *zap.Logger) *Handler {
	return &Handler{
		limiter:       limiter,
		checker:       chk,
		stats:         stats,
		outbox:        outbox,
		db:            db,
		metrics:       collector,
		logger:        logger,
		maxPerRequest: maxPerRequest,
	}
}
