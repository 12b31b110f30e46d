// Package outbox durably records completed check batches as pending
// notification events, decoupling the request path from webhook delivery.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/db"
)

type Store interface {
	InsertPendingNotification(ctx context.Context, n *db.PendingNotification) error
}

// BatchSummary is the per-batch outcome tally carried in the payload.
type BatchSummary struct {
	Total      int `json:"total"`
	Blocked    int `json:"blocked"`
	NotBlocked int `json:"notBlocked"`
	Errors     int `json:"errors"`
}

// Payload is the serialized form of one batch: its summary plus every
// per-domain result.
type Payload struct {
	Summary BatchSummary     `json:"summary"`
	Results []checker.Result `json:"results"`
}

type Outbox struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, logger *zap.Logger) *Outbox {
	return &Outbox{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one undelivered notification event for the batch. The
// returned error is for logging only; the originating check request must
// succeed regardless.
func (o *Outbox) Record(ctx context.Context, clientID string, results []checker.Result) error {
	payload := Payload{
		Summary: Summarize(results),
		Results: results,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	n := &db.PendingNotification{
		ID:        uuid.New().String(),
		CreatedAt: o.now().UnixMilli(),
		ClientID:  clientID,
		Payload:   string(data),
		Delivered: false,
	}

	if err := o.store.InsertPendingNotification(ctx, n); err != nil {
		return fmt.Errorf("insert pending notification: %w", err)
	}

	o.logger.Debug("recorded notification batch",
		zap.String("id", n.ID),
		zap.String("client_id", clientID),
		zap.Int("results", len(results)),
	)
	return nil
}

// Summarize tallies batch outcomes. Error results count as errors even when
// a blocked flag slipped through, since a result is never legitimately both.
func Summarize(results []checker.Result) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Error:
			s.Errors++
		case r.Blocked:
			s.Blocked++
		default:
			s.NotBlocked++
		}
	}
	return s
}
