// Package dispatcher periodically drains the notification outbox into a
// single webhook message. Delivery is at-least-once: rows are marked
// delivered only after a successful send, so a crash or webhook failure
// replays the whole set on the next cycle.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/notify"
	"domain-check-gateway/internal/outbox"
)

type Store interface {
	ListUndelivered(ctx context.Context) ([]db.PendingNotification, error)
	MarkDelivered(ctx context.Context, ids []string) error
}

type Sender interface {
	SendDigest(ctx context.Context, d notify.Digest) error
}

type Dispatcher struct {
	store    Store
	sender   Sender
	metrics  *metrics.Collector
	logger   *zap.Logger
	interval time.Duration
}

func New(store Store, sender Sender, collector *metrics.Collector, interval time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sender:   sender,
		metrics:  collector,
		logger:   logger,
		interval: interval,
	}
}

// Run drives Flush on a fixed schedule until the context is cancelled.
// Cycles run strictly one at a time.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.Flush(ctx); err != nil {
				d.logger.Error("flush cycle failed", zap.Error(err))
			}
		}
	}
}

// Flush reads every undelivered row oldest-first, merges them into one
// digest, sends it, and marks the rows delivered. A send failure leaves all
// rows pending for the next cycle. A marking failure after a successful send
// means the same content is resent next time; that duplicate is the accepted
// cost of at-least-once delivery.
func (d *Dispatcher) Flush(ctx context.Context) error {
	rows, err := d.store.ListUndelivered(ctx)
	if err != nil {
		d.metrics.RecordFlush("failed")
		return fmt.Errorf("list undelivered notifications: %w", err)
	}
	if len(rows) == 0 {
		d.metrics.RecordFlush("empty")
		return nil
	}

	digest := notify.Digest{Batches: len(rows)}
	ids := make([]string, 0, len(rows))

	for _, row := range rows {
		ids = append(ids, row.ID)

		var payload outbox.Payload
		if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
			// Drain malformed rows instead of wedging every future
			// flush on them.
			d.logger.Warn("skipping undecodable notification",
				zap.String("id", row.ID), zap.Error(err))
			continue
		}

		digest.Domains += payload.Summary.Total
		digest.Blocked += payload.Summary.Blocked
		digest.NotBlocked += payload.Summary.NotBlocked
		digest.Errors += payload.Summary.Errors

		for _, r := range payload.Results {
			digest.Lines = append(digest.Lines, notify.Line{
				Timestamp: row.CreatedAt,
				ClientID:  row.ClientID,
				Domain:    r.Domain,
				Status:    r.Status,
				Flag:      flagFor(r),
			})
		}
	}

	if err := d.sender.SendDigest(ctx, digest); err != nil {
		d.metrics.RecordFlush("failed")
		return fmt.Errorf("send digest of %d batches: %w", len(rows), err)
	}

	if err := d.store.MarkDelivered(ctx, ids); err != nil {
		// Already sent; the next cycle will resend these rows.
		d.metrics.RecordFlush("sent")
		d.logger.Error("failed to mark notifications delivered, duplicates expected",
			zap.Int("count", len(ids)), zap.Error(err))
		return nil
	}

	d.metrics.RecordFlush("sent")
	d.logger.Info("flushed pending notifications",
		zap.Int("batches", len(rows)),
		zap.Int("domains", digest.Domains),
	)
	return nil
}

// flagFor derives the digest line flag. A result is never both blocked and
// errored, so the branch order is immaterial.
func flagFor(r checker.Result) string {
	switch {
	case r.Blocked:
		return notify.FlagBlocked
	case r.Error:
		return notify.FlagError
	default:
		return notify.FlagNotBlocked
	}
}
