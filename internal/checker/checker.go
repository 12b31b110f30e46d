// Package checker wraps the upstream domain-reputation API. A call never
// fails as a whole: unreachable or malformed responses degrade to per-domain
// error results so the gateway can always answer.
package checker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	StatusBlocked    = "Blocked"
	StatusNotBlocked = "Not Blocked"

	statusErrRequest  = "Error: API request failed"
	statusErrResponse = "Error: Invalid response"
)

// Result is the outcome for a single domain. Blocked and Error are mutually
// exclusive.
type Result struct {
	Domain  string `json:"domain"`
	Status  string `json:"status"`
	Blocked bool   `json:"blocked"`
	Error   bool   `json:"error"`
}

// Cache stores per-domain results between requests. Implementations may fail;
// cache errors are treated as misses.
type Cache interface {
	GetResult(ctx context.Context, domain string) (*Result, error)
	SetResult(ctx context.Context, domain string, r Result) error
}

type Config struct {
	Endpoint      string
	Timeout       time.Duration
	BatchSize     int
	RatePerSecond float64
	Burst         int
}

type Client struct {
	endpoint  string
	batchSize int
	client    *http.Client
	limiter   *rate.Limiter
	cache     Cache
	logger    *zap.Logger
}

// New builds a reputation client. cache may be nil to disable caching.
func New(cfg Config, cache Cache, logger *zap.Logger) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 30
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		batchSize: batchSize,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		cache:     cache,
		logger:    logger,
	}
}

// Check resolves every domain to a Result, in input order. Cached results are
// served directly; the rest go upstream in batches.
func (c *Client) Check(ctx context.Context, domains []string) []Result {
	found := make(map[string]Result, len(domains))
	seen := make(map[string]bool, len(domains))

	var misses []string
	for _, domain := range domains {
		if seen[domain] {
			continue
		}
		seen[domain] = true
		if cached := c.fromCache(ctx, domain); cached != nil {
			found[domain] = *cached
			continue
		}
		misses = append(misses, domain)
	}

	for start := 0; start < len(misses); start += c.batchSize {
		end := start + c.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		for _, r := range c.checkBatch(ctx, batch) {
			found[r.Domain] = r
			if !r.Error {
				c.toCache(ctx, r)
			}
		}
	}

	results := make([]Result, len(domains))
	for i, domain := range domains {
		r, ok := found[domain]
		if !ok {
			r = errorResult(domain, statusErrResponse)
		}
		results[i] = r
	}
	return results
}

func (c *Client) checkBatch(ctx context.Context, domains []string) []Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return errorResults(domains, statusErrRequest)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return errorResults(domains, statusErrRequest)
	}
	q := u.Query()
	q.Set("domains", strings.Join(domains, ","))
	q.Set("json", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errorResults(domains, statusErrRequest)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("upstream check failed", zap.Int("domains", len(domains)), zap.Error(err))
		return errorResults(domains, statusErrRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("upstream check failed",
			zap.Int("domains", len(domains)),
			zap.String("status", resp.Status),
		)
		return errorResults(domains, statusErrRequest)
	}

	var data map[string]struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.logger.Warn("upstream response malformed", zap.Error(err))
		return errorResults(domains, statusErrRequest)
	}

	results := make([]Result, 0, len(domains))
	for _, domain := range domains {
		entry, ok := data[domain]
		if !ok {
			results = append(results, errorResult(domain, statusErrResponse))
			continue
		}
		status := StatusNotBlocked
		if entry.Blocked {
			status = StatusBlocked
		}
		results = append(results, Result{
			Domain:  domain,
			Status:  status,
			Blocked: entry.Blocked,
		})
	}
	return results
}

func (c *Client) fromCache(ctx context.Context, domain string) *Result {
	if c.cache == nil {
		return nil
	}
	r, err := c.cache.GetResult(ctx, domain)
	if err != nil {
		return nil
	}
	return r
}

func (c *Client) toCache(ctx context.Context, r Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetResult(ctx, r.Domain, r); err != nil {
		c.logger.Debug("result cache write failed", zap.String("domain", r.Domain), zap.Error(err))
	}
}

func errorResult(domain, status string) Result {
	return Result{Domain: domain, Status: status, Error: true}
}

func errorResults(domains []string, status string) []Result {
	results := make([]Result, len(domains))
	for i, domain := range domains {
		results[i] = errorResult(domain, status)
	}
	return results
}
