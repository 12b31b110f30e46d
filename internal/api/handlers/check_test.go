package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domain-check-gateway/internal/api"
	"domain-check-gateway/internal/api/handlers"
	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/ratelimit"
)

type fakeAdmitter struct {
	decision ratelimit.Decision
	clientID string
	units    int64
}

func (f *fakeAdmitter) Admit(_ context.Context, clientID string, units int64) ratelimit.Decision {
	f.clientID = clientID
	f.units = units
	return f.decision
}

type fakeChecker struct {
	results []checker.Result
}

func (f *fakeChecker) Check(context.Context, []string) []checker.Result {
	return f.results
}

type fakeStats struct {
	deltas []db.StatsDelta
	incErr error
	global *db.GlobalStats
	daily  []db.DailyStats
}

func (f *fakeStats) Increment(_ context.Context, delta db.StatsDelta) error {
	if f.incErr != nil {
		return f.incErr
	}
	f.deltas = append(f.deltas, delta)
	return nil
}

func (f *fakeStats) Get(context.Context) (*db.GlobalStats, error) {
	return f.global, nil
}

func (f *fakeStats) Daily(context.Context, int) ([]db.DailyStats, error) {
	return f.daily, nil
}

type fakeRecorder struct {
	clientIDs []string
	err       error
}

func (f *fakeRecorder) Record(_ context.Context, clientID string, _ []checker.Result) error {
	if f.err != nil {
		return f.err
	}
	f.clientIDs = append(f.clientIDs, clientID)
	return nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping() error { return f.err }

type testEnv struct {
	admitter *fakeAdmitter
	checker  *fakeChecker
	stats    *fakeStats
	recorder *fakeRecorder
	router   *gin.Engine
}

func newEnv() *testEnv {
	env := &testEnv{
		admitter: &fakeAdmitter{decision: ratelimit.Decision{Allowed: true, Remaining: 990, ResetTime: 123}},
		checker:  &fakeChecker{},
		stats:    &fakeStats{global: &db.GlobalStats{ID: "global"}},
		recorder: &fakeRecorder{},
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	h := handlers.New(env.admitter, env.checker, env.stats, env.recorder, &fakePinger{},
		collector, 100, zap.NewNop())
	env.router = api.NewRouter(h, gin.TestMode, zap.NewNop())
	return env
}

func postCheck(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCheckSuccess(t *testing.T) {
	env := newEnv()
	env.checker.results = []checker.Result{
		{Domain: "a.com", Status: checker.StatusNotBlocked},
		{Domain: "b.com", Status: checker.StatusBlocked, Blocked: true},
		{Domain: "c.com", Status: "Error: API request failed", Error: true},
	}

	w := postCheck(env.router, `{"domains":["a.com","b.com","c.com"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results   []checker.Result `json:"results"`
		Remaining int64            `json:"remaining"`
		ResetTime int64            `json:"resetTime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	require.EqualValues(t, 990, resp.Remaining)
	require.EqualValues(t, 123, resp.ResetTime)

	require.EqualValues(t, 3, env.admitter.units)

	require.Len(t, env.stats.deltas, 1)
	delta := env.stats.deltas[0]
	require.Equal(t, db.StatsDelta{Requests: 1, DomainsChecked: 3, Blocked: 1, NotBlocked: 1, Errors: 1}, delta)

	require.Len(t, env.recorder.clientIDs, 1)
}

func TestCheckInvalidBody(t *testing.T) {
	env := newEnv()
	w := postCheck(env.router, `{"domains":"not-an-array"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckTooManyDomains(t *testing.T) {
	env := newEnv()

	domains := make([]string, 101)
	for i := range domains {
		domains[i] = "a.com"
	}
	body, _ := json.Marshal(map[string]interface{}{"domains": domains})

	w := postCheck(env.router, string(body))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Maximum 100 domains per request")
}

func TestCheckRateLimited(t *testing.T) {
	env := newEnv()
	env.admitter.decision = ratelimit.Decision{Allowed: false, Remaining: 6, ResetTime: 456}

	w := postCheck(env.router, `{"domains":["a.com"]}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 6, resp["remaining"])
	require.EqualValues(t, 456, resp["resetTime"])

	// Denied requests check nothing and record nothing.
	require.Empty(t, env.stats.deltas)
	require.Empty(t, env.recorder.clientIDs)
}

func TestCheckStatsFailureDoesNotFailRequest(t *testing.T) {
	env := newEnv()
	env.stats.incErr = errors.New("store down")
	env.recorder.err = errors.New("store down")
	env.checker.results = []checker.Result{{Domain: "a.com", Status: checker.StatusNotBlocked}}

	w := postCheck(env.router, `{"domains":["a.com"]}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStatsData(t *testing.T) {
	env := newEnv()
	env.stats.global = &db.GlobalStats{
		ID: "global", TotalRequests: 10, TotalDomainsChecked: 30,
		BlockedDomains: 5, NotBlockedDomains: 20, ErrorDomains: 5, UniqueUsers: 3,
	}
	env.stats.daily = []db.DailyStats{{Date: "2026-08-31", TotalRequests: 4}}

	req := httptest.NewRequest(http.MethodGet, "/stats/data", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 10, resp["totalRequests"])
	require.EqualValues(t, 3, resp["uniqueUsers"])

	daily, ok := resp["dailyStats"].([]interface{})
	require.True(t, ok)
	require.Len(t, daily, 1)
}
