package db

// RateLimitEntry tracks quota usage for one client within its current
// fixed window. Rows are created on first contact and overwritten when the
// window rolls over; they are never deleted.
type RateLimitEntry struct {
	ClientID    string `db:"client_id"`
	Count       int64  `db:"count"`
	WindowStart int64  `db:"window_start"` // unix ms
}

// GlobalStats is the singleton accounting row (id = "global").
// UniqueUsers is advisory: the authoritative value is recomputed from the
// rate_limits table on every read.
type GlobalStats struct {
	ID                  string `db:"id" json:"-"`
	TotalRequests       int64  `db:"total_requests" json:"totalRequests"`
	TotalDomainsChecked int64  `db:"total_domains_checked" json:"totalDomainsChecked"`
	BlockedDomains      int64  `db:"blocked_domains" json:"blockedDomains"`
	NotBlockedDomains   int64  `db:"not_blocked_domains" json:"notBlockedDomains"`
	ErrorDomains        int64  `db:"error_domains" json:"errorDomains"`
	LastReset           int64  `db:"last_reset" json:"lastReset"`
	UniqueUsers         int64  `db:"unique_users" json:"uniqueUsers"`
}

// DailyStats holds one UTC calendar day of counters, accumulated additively.
type DailyStats struct {
	Date                string `db:"date" json:"date"`
	TotalRequests       int64  `db:"total_requests" json:"totalRequests"`
	TotalDomainsChecked int64  `db:"total_domains_checked" json:"totalDomainsChecked"`
	BlockedDomains      int64  `db:"blocked_domains" json:"blockedDomains"`
	NotBlockedDomains   int64  `db:"not_blocked_domains" json:"notBlockedDomains"`
	ErrorDomains        int64  `db:"error_domains" json:"errorDomains"`
}

// StatsDelta is one event's worth of accounting. Zero fields are skipped
// when the additive update is built.
type StatsDelta struct {
	Requests       int64
	DomainsChecked int64
	Blocked        int64
	NotBlocked     int64
	Errors         int64
}

// IsZero reports whether the delta carries nothing to record.
func (d StatsDelta) IsZero() bool {
	return d.Requests == 0 && d.DomainsChecked == 0 && d.Blocked == 0 &&
		d.NotBlocked == 0 && d.Errors == 0
}

// PendingNotification is one durable outbox row: a completed check batch
// waiting to be relayed to the webhook. Written by the request path, drained
// by the dispatcher, flipped to delivered only after a successful send.
type PendingNotification struct {
	ID        string `db:"id"`
	CreatedAt int64  `db:"created_at"` // unix ms
	ClientID  string `db:"client_id"`
	Payload   string `db:"payload"`
	Delivered bool   `db:"delivered"`
}
