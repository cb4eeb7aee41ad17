package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"budgetagent/internal/core"
	"budgetagent/internal/log"
	"budgetagent/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "s3cret"

type fakeService struct {
	mu      sync.Mutex
	monthly []services.MonthlyRequest
	weekly  []services.WeeklyRequest
	entries []services.EntryCreatedRequest
	err     error
}

func (f *fakeService) envelope(period core.PeriodKind, key string) *core.Envelope {
	return &core.Envelope{Insights: &core.Insights{
		Period:           period,
		PeriodKey:        key,
		TotalsByCategory: map[string]core.Money{},
		TopCategories:    []core.CategoryAmount{},
		Warnings:         []core.Warning{},
		Actions:          []string{},
	}}
}

func (f *fakeService) Monthly(_ context.Context, req services.MonthlyRequest) (*core.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthly = append(f.monthly, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.envelope(core.PeriodMonth, req.Month), nil
}

func (f *fakeService) Weekly(_ context.Context, req services.WeeklyRequest) (*core.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weekly = append(f.weekly, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.envelope(core.PeriodWeek, req.WeekStart), nil
}

func (f *fakeService) OnEntryCreated(_ context.Context, req services.EntryCreatedRequest) (*core.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.envelope(core.PeriodMonth, req.Month), nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Writer = &bytes.Buffer{}
	return log.New(cfg)
}

func newTestServer(t *testing.T, svc InsightsService, opts Options) *Server {
	t.Helper()
	if opts.APIKey == "" {
		opts.APIKey = testKey
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s := NewServer(":0", svc, opts)
	t.Cleanup(func() { s.limiter.Stop() })
	return s
}

func do(s *Server, method, path, body string, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})

	rec := do(s, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name  string
		ready fakePinger
		want  int
	}{
		{"ledger reachable", fakePinger{}, http.StatusOK},
		{"ledger down", fakePinger{err: errors.New("boom")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeService{}, Options{Ready: tt.ready})
			rec := do(s, http.MethodGet, "/readyz", "", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpointNeedsNoKey(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})
	do(s, http.MethodGet, "/health", "", "")

	rec := do(s, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "budgetagent_http_requests_total")
}

func TestAgentRoutesRequireKey(t *testing.T) {
	for _, path := range []string{"/agent/monthly", "/agent/weekly", "/agent/on-entry-created"} {
		for _, key := range []string{"", "wrong", testKey + "x"} {
			t.Run(path+"/"+key, func(t *testing.T) {
				svc := &fakeService{}
				s := newTestServer(t, svc, Options{})

				rec := do(s, http.MethodPost, path, `{"user_id":"u1","month":"2026-01"}`, key)

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, "unauthorized", decodeError(t, rec))
				assert.Empty(t, svc.monthly)
				assert.Empty(t, svc.weekly)
				assert.Empty(t, svc.entries)
			})
		}
	}
}

func TestMonthlyFlags(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantAI      bool
		wantCompare bool
	}{
		{"defaults", `{"user_id":"u1","month":"2026-01"}`, true, true},
		{"booleans", `{"user_id":"u1","month":"2026-01","include_ai":false,"include_compare":false}`, false, false},
		{"truthy strings", `{"user_id":"u1","month":"2026-01","include_ai":"YES","include_compare":"on"}`, true, true},
		{"falsy strings", `{"user_id":"u1","month":"2026-01","include_ai":"0","include_compare":"no"}`, false, false},
		{"unknown string is false", `{"user_id":"u1","month":"2026-01","include_ai":"maybe"}`, false, true},
		{"null keeps default", `{"user_id":"u1","month":"2026-01","include_ai":null}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			s := newTestServer(t, svc, Options{})

			rec := do(s, http.MethodPost, "/agent/monthly", tt.body, testKey)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.Len(t, svc.monthly, 1)
			assert.Equal(t, "u1", svc.monthly[0].UserID)
			assert.Equal(t, "2026-01", svc.monthly[0].Month)
			assert.Equal(t, tt.wantAI, svc.monthly[0].IncludeAI)
			assert.Equal(t, tt.wantCompare, svc.monthly[0].IncludeCompare)
		})
	}
}

func TestMonthlyResponseShape(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})

	rec := do(s, http.MethodPost, "/agent/monthly", `{"user_id":"u1","month":"2026-01","include_ai":false}`, testKey)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "insights")
	assert.Equal(t, "null", string(body["ai"]))
}

func TestWeeklyPassesWeekStart(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, Options{})

	rec := do(s, http.MethodPost, "/agent/weekly", `{"user_id":"u1","week_start":"2026-01-05"}`, testKey)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.weekly, 1)
	assert.Equal(t, "2026-01-05", svc.weekly[0].WeekStart)
	assert.True(t, svc.weekly[0].IncludeAI)
}

func TestOnEntryCreatedDefaultsToNoAI(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, Options{})

	rec := do(s, http.MethodPost, "/agent/on-entry-created", `{"user_id":"u1","month":"2026-01","entry_id":"e1"}`, testKey)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.entries, 1)
	assert.False(t, svc.entries[0].IncludeAI)
	assert.True(t, svc.entries[0].IncludeCompare)
	assert.Equal(t, "e1", svc.entries[0].EntryID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		wantMsg string
	}{
		{"invalid argument", core.InvalidArgument("month must be YYYY-MM"), http.StatusBadRequest, "invalid argument: month must be YYYY-MM"},
		{"not found", core.NotFound("user %s", "u9"), http.StatusNotFound, "not found: user u9"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeService{err: tt.err}, Options{})

			rec := do(s, http.MethodPost, "/agent/monthly", `{"user_id":"u1","month":"2026-01"}`, testKey)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, rec))
		})
	}
}

func TestBodyValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `user_id=u1`, http.StatusBadRequest},
		{"array", `[1,2]`, http.StatusBadRequest},
		{"too large", `{"user_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			s := newTestServer(t, svc, Options{})

			rec := do(s, http.MethodPost, "/agent/monthly", tt.body, testKey)

			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, svc.monthly)
		})
	}
}

func TestWrongMethod(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})

	rec := do(s, http.MethodGet, "/agent/monthly", "", testKey)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitRunsBeforeAuth(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, Options{RateLimitRPM: 2})

	for i := 0; i < 2; i++ {
		rec := do(s, http.MethodPost, "/agent/monthly", `{"user_id":"u1","month":"2026-01"}`, "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(s, http.MethodPost, "/agent/monthly", `{"user_id":"u1","month":"2026-01"}`, testKey)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Empty(t, svc.monthly)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/agent/monthly", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", HeaderAPIKey)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
