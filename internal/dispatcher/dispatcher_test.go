package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/notify"
	"domain-check-gateway/internal/outbox"
)

type fakeStore struct {
	rows    []db.PendingNotification
	listErr error
	markErr error
}

func (s *fakeStore) ListUndelivered(context.Context) ([]db.PendingNotification, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	pending := []db.PendingNotification{}
	for _, row := range s.rows {
		if !row.Delivered {
			pending = append(pending, row)
		}
	}
	return pending, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, ids []string) error {
	if s.markErr != nil {
		return s.markErr
	}
	for _, id := range ids {
		for i := range s.rows {
			if s.rows[i].ID == id {
				s.rows[i].Delivered = true
			}
		}
	}
	return nil
}

type fakeSender struct {
	digests []notify.Digest
	err     error
}

func (f *fakeSender) SendDigest(_ context.Context, d notify.Digest) error {
	if f.err != nil {
		return f.err
	}
	f.digests = append(f.digests, d)
	return nil
}

func pendingRow(t *testing.T, id, clientID string, createdAt int64, results []checker.Result) db.PendingNotification {
	t.Helper()
	data, err := json.Marshal(outbox.Payload{Summary: outbox.Summarize(results), Results: results})
	require.NoError(t, err)
	return db.PendingNotification{
		ID:        id,
		CreatedAt: createdAt,
		ClientID:  clientID,
		Payload:   string(data),
	}
}

func newDispatcher(store Store, sender Sender) *Dispatcher {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	return New(store, sender, collector, time.Minute, zap.NewNop())
}

func TestFlushSendsAndMarks(t *testing.T) {
	store := &fakeStore{rows: []db.PendingNotification{
		pendingRow(t, "n1", "1.1.1.1", 100, []checker.Result{
			{Domain: "a.com", Status: checker.StatusBlocked, Blocked: true},
			{Domain: "b.com", Status: checker.StatusNotBlocked},
		}),
		pendingRow(t, "n2", "2.2.2.2", 200, []checker.Result{
			{Domain: "c.com", Status: "Error: API request failed", Error: true},
		}),
	}}
	sender := &fakeSender{}
	d := newDispatcher(store, sender)
	ctx := context.Background()

	require.NoError(t, d.Flush(ctx))
	require.Len(t, sender.digests, 1)

	digest := sender.digests[0]
	require.Equal(t, 2, digest.Batches)
	require.Equal(t, 3, digest.Domains)
	require.Equal(t, 1, digest.Blocked)
	require.Equal(t, 1, digest.NotBlocked)
	require.Equal(t, 1, digest.Errors)

	require.Len(t, digest.Lines, 3)
	require.Equal(t, notify.FlagBlocked, digest.Lines[0].Flag)
	require.Equal(t, notify.FlagNotBlocked, digest.Lines[1].Flag)
	require.Equal(t, notify.FlagError, digest.Lines[2].Flag)
	require.Equal(t, "1.1.1.1", digest.Lines[0].ClientID)
	require.EqualValues(t, 100, digest.Lines[0].Timestamp)

	for _, row := range store.rows {
		require.True(t, row.Delivered)
	}

	// Nothing pending: a second flush sends no second notification.
	require.NoError(t, d.Flush(ctx))
	require.Len(t, sender.digests, 1)
}

func TestFlushEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{}
	d := newDispatcher(store, sender)

	require.NoError(t, d.Flush(context.Background()))
	require.Empty(t, sender.digests)
}

func TestFlushSendFailureKeepsRowsPending(t *testing.T) {
	store := &fakeStore{rows: []db.PendingNotification{
		pendingRow(t, "n1", "a", 1, []checker.Result{{Domain: "a.com", Status: checker.StatusNotBlocked}}),
		pendingRow(t, "n2", "b", 2, []checker.Result{{Domain: "b.com", Status: checker.StatusNotBlocked}}),
	}}
	sender := &fakeSender{err: errors.New("webhook unreachable")}
	d := newDispatcher(store, sender)

	require.Error(t, d.Flush(context.Background()))
	for _, row := range store.rows {
		require.False(t, row.Delivered)
	}

	// Next cycle retries the same rows wholesale.
	sender.err = nil
	require.NoError(t, d.Flush(context.Background()))
	require.Len(t, sender.digests, 1)
	require.Equal(t, 2, sender.digests[0].Batches)
}

func TestFlushMarkFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		rows: []db.PendingNotification{
			pendingRow(t, "n1", "a", 1, []checker.Result{{Domain: "a.com", Status: checker.StatusNotBlocked}}),
		},
		markErr: errors.New("store down"),
	}
	sender := &fakeSender{}
	d := newDispatcher(store, sender)

	// The message went out; the marking failure only risks a duplicate.
	require.NoError(t, d.Flush(context.Background()))
	require.Len(t, sender.digests, 1)
	require.False(t, store.rows[0].Delivered)
}

func TestFlushDrainsMalformedRows(t *testing.T) {
	store := &fakeStore{rows: []db.PendingNotification{
		{ID: "bad", CreatedAt: 1, ClientID: "a", Payload: "{not json"},
		pendingRow(t, "good", "b", 2, []checker.Result{{Domain: "b.com", Status: checker.StatusNotBlocked}}),
	}}
	sender := &fakeSender{}
	d := newDispatcher(store, sender)

	require.NoError(t, d.Flush(context.Background()))
	require.Len(t, sender.digests, 1)
	require.Equal(t, 1, sender.digests[0].Domains)
	for _, row := range store.rows {
		require.True(t, row.Delivered)
	}
}

func TestFlushListFailureAborts(t *testing.T) {
	store := &fakeStore{listErr: errors.New("store down")}
	sender := &fakeSender{}
	d := newDispatcher(store, sender)

	require.Error(t, d.Flush(context.Background()))
	require.Empty(t, sender.digests)
}
