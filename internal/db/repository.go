package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PlaceholderClientID marks requests whose source address could not be
// determined. Such rows still rate-limit but are excluded from the
// unique-user count.
const PlaceholderClientID = "unknown"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping() error {
	return r.db.Ping()
}

// Rate limit rows

// GetRateLimit returns the client's window row, or nil when the client has
// never been seen.
func (r *Repository) GetRateLimit(ctx context.Context, clientID string) (*RateLimitEntry, error) {
	var entry RateLimitEntry
	query := `SELECT client_id, count, window_start FROM rate_limits WHERE client_id = $1`
	err := r.db.GetContext(ctx, &entry, query, clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) InsertRateLimit(ctx context.Context, entry *RateLimitEntry) error {
	query := `
		INSERT INTO rate_limits (client_id, count, window_start)
		VALUES (:client_id, :count, :window_start)`

	_, err := r.db.NamedExecContext(ctx, query, entry)
	return err
}

func (r *Repository) UpdateRateLimit(ctx context.Context, entry *RateLimitEntry) error {
	query := `
		UPDATE rate_limits SET
			count = :count,
			window_start = :window_start
		WHERE client_id = :client_id`

	_, err := r.db.NamedExecContext(ctx, query, entry)
	return err
}

func (r *Repository) CountUniqueClients(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(DISTINCT client_id) FROM rate_limits WHERE client_id <> $1`
	err := r.db.GetContext(ctx, &count, query, PlaceholderClientID)
	return count, err
}

// Stats rows

// GetGlobalStats returns the singleton stats row, or nil when it is missing.
func (r *Repository) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	query := `SELECT * FROM stats WHERE id = 'global'`
	err := r.db.GetContext(ctx, &stats, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// EnsureGlobalStats lazily creates the singleton row with zeroed counters.
func (r *Repository) EnsureGlobalStats(ctx context.Context, nowMs int64) error {
	query := `
		INSERT INTO stats (id, last_reset)
		VALUES ('global', $1)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, nowMs)
	return err
}

// ResetGlobalStats replaces the singleton row with zeroed counters, seeding
// unique_users from the currently observable client count.
func (r *Repository) ResetGlobalStats(ctx context.Context, uniqueUsers, nowMs int64) error {
	query := `
		INSERT INTO stats (id, last_reset, unique_users)
		VALUES ('global', $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			total_requests = 0,
			total_domains_checked = 0,
			blocked_domains = 0,
			not_blocked_domains = 0,
			error_domains = 0,
			last_reset = EXCLUDED.last_reset,
			unique_users = EXCLUDED.unique_users`

	_, err := r.db.ExecContext(ctx, query, nowMs, uniqueUsers)
	return err
}

func (r *Repository) UpdateUniqueUsers(ctx context.Context, count int64) error {
	query := `UPDATE stats SET unique_users = $1 WHERE id = 'global'`
	_, err := r.db.ExecContext(ctx, query, count)
	return err
}

// IncrementGlobalStats adds the delta to the singleton row, touching only
// the columns the delta actually carries.
func (r *Repository) IncrementGlobalStats(ctx context.Context, delta StatsDelta) error {
	var updates []string
	var args []interface{}

	add := func(column string, value int64) {
		args = append(args, value)
		updates = append(updates, fmt.Sprintf("%s = %s + $%d", column, column, len(args)))
	}

	if delta.Requests != 0 {
		add("total_requests", delta.Requests)
	}
	if delta.DomainsChecked != 0 {
		add("total_domains_checked", delta.DomainsChecked)
	}
	if delta.Blocked != 0 {
		add("blocked_domains", delta.Blocked)
	}
	if delta.NotBlocked != 0 {
		add("not_blocked_domains", delta.NotBlocked)
	}
	if delta.Errors != 0 {
		add("error_domains", delta.Errors)
	}

	if len(updates) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE stats SET %s WHERE id = 'global'`, strings.Join(updates, ", "))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertDailyStats accumulates the delta into the row for the given UTC date,
// creating it on the first event of the day.
func (r *Repository) UpsertDailyStats(ctx context.Context, date string, delta StatsDelta) error {
	query := `
		INSERT INTO daily_stats (
			date, total_requests, total_domains_checked,
			blocked_domains, not_blocked_domains, error_domains
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			total_requests = daily_stats.total_requests + EXCLUDED.total_requests,
			total_domains_checked = daily_stats.total_domains_checked + EXCLUDED.total_domains_checked,
			blocked_domains = daily_stats.blocked_domains + EXCLUDED.blocked_domains,
			not_blocked_domains = daily_stats.not_blocked_domains + EXCLUDED.not_blocked_domains,
			error_domains = daily_stats.error_domains + EXCLUDED.error_domains`

	_, err := r.db.ExecContext(ctx, query, date,
		delta.Requests, delta.DomainsChecked, delta.Blocked, delta.NotBlocked, delta.Errors)
	return err
}

// GetDailyStats returns rows with date >= today-days, ascending. Days with
// no traffic have no row.
func (r *Repository) GetDailyStats(ctx context.Context, days int) ([]DailyStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	stats := []DailyStats{}
	query := `SELECT * FROM daily_stats WHERE date >= $1 ORDER BY date ASC`
	err := r.db.SelectContext(ctx, &stats, query, cutoff)
	return stats, err
}

// Outbox rows

func (r *Repository) InsertPendingNotification(ctx context.Context, n *PendingNotification) error {
	query := `
		INSERT INTO pending_notifications (id, created_at, client_id, payload, delivered)
		VALUES (:id, :created_at, :client_id, :payload, :delivered)`

	_, err := r.db.NamedExecContext(ctx, query, n)
	return err
}

func (r *Repository) ListUndelivered(ctx context.Context) ([]PendingNotification, error) {
	rows := []PendingNotification{}
	query := `
		SELECT id, created_at, client_id, payload, delivered
		FROM pending_notifications
		WHERE NOT delivered
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &rows, query)
	return rows, err
}

func (r *Repository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE pending_notifications SET delivered = TRUE WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}
