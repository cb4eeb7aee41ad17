package augment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"budgetagent/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodReply = `{"headline":"Over budget","summary":"s","bullets":["b"],"actions":["a"],"risk_level":"high"}`

type fakeCompleter struct {
	calls atomic.Int32
	reply string
	err   error
	gate  chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newNarrator(t *testing.T, f Completer, rpm int) (*Narrator, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
	n := NewNarrator(f, Config{MaxRPM: rpm, Timeout: time.Second, CacheTTL: time.Hour, CacheSize: 16, Clock: clk.Now}, nil)
	t.Cleanup(n.Close)
	return n, clk
}

func sampleInsights(spent int64) *core.Insights {
	return &core.Insights{
		Period:       core.PeriodMonth,
		PeriodKey:    "2026-01",
		BudgetAmount: core.NewMoney(10000),
		SpentTotal:   core.NewMoney(spent),
		Warnings:     []core.Warning{core.WarningOverBudget},
		TopCategories: []core.CategoryAmount{
			{Category: "Groceries", Amount: core.NewMoney(spent)},
		},
	}
}

var scope = Scope{UserID: "u1", Period: core.PeriodMonth, Key: "2026-01"}

func TestNarratorDisabled(t *testing.T) {
	n, _ := newNarrator(t, nil, 3)
	s, outcome := n.Attempt(context.Background(), scope, sampleInsights(1))
	assert.Nil(t, s)
	assert.Equal(t, OutcomeDisabled, outcome)
	assert.Nil(t, Disabled{}.Summarize(context.Background(), scope, sampleInsights(1)))
}

func TestNarratorCachesByFingerprint(t *testing.T) {
	f := &fakeCompleter{reply: goodReply}
	n, _ := newNarrator(t, f, 3)
	ctx := context.Background()

	s, outcome := n.Attempt(ctx, scope, sampleInsights(15000))
	require.NotNil(t, s)
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, core.RiskHigh, s.RiskLevel)

	s2, outcome := n.Attempt(ctx, scope, sampleInsights(15000))
	require.NotNil(t, s2)
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, int32(1), f.calls.Load())

	// Mutating a returned summary must not leak into the cache.
	s2.Bullets[0] = "changed"
	s3, _ := n.Attempt(ctx, scope, sampleInsights(15000))
	assert.Equal(t, "b", s3.Bullets[0])

	_, outcome = n.Attempt(ctx, scope, sampleInsights(16000))
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestNarratorLocalRateLimit(t *testing.T) {
	f := &fakeCompleter{reply: goodReply}
	n, clk := newNarrator(t, f, 2)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		_, outcome := n.Attempt(ctx, scope, sampleInsights(i))
		require.Equal(t, OutcomeOK, outcome)
	}
	s, outcome := n.Attempt(ctx, scope, sampleInsights(3))
	assert.Nil(t, s)
	assert.Equal(t, OutcomeRateLimited, outcome)
	assert.Equal(t, int32(2), f.calls.Load())

	clk.Advance(time.Minute)
	_, outcome = n.Attempt(ctx, scope, sampleInsights(4))
	assert.Equal(t, OutcomeOK, outcome)
}

func TestNarratorCooldown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		wait time.Duration
	}{
		{"http 429", &APIError{StatusCode: 429, Body: "busy"}, time.Minute},
		{"rate limit text", errors.New("Rate limit exceeded upstream"), time.Minute},
		{"data policy", &APIError{StatusCode: 404, Body: "No endpoints found matching your data policy"}, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCompleter{err: tt.err}
			n, clk := newNarrator(t, f, 100)
			ctx := context.Background()

			_, outcome := n.Attempt(ctx, scope, sampleInsights(1))
			assert.Equal(t, OutcomeFailed, outcome)

			_, outcome = n.Attempt(ctx, scope, sampleInsights(2))
			assert.Equal(t, OutcomeCooldown, outcome)
			assert.Equal(t, int32(1), f.calls.Load())

			clk.Advance(tt.wait)
			f.err, f.reply = nil, goodReply
			_, outcome = n.Attempt(ctx, scope, sampleInsights(3))
			assert.Equal(t, OutcomeOK, outcome)
		})
	}
}

func TestNarratorOtherErrorsDoNotCoolDown(t *testing.T) {
	f := &fakeCompleter{err: &APIError{StatusCode: 401, Body: "bad key"}}
	n, _ := newNarrator(t, f, 100)
	_, outcome := n.Attempt(context.Background(), scope, sampleInsights(1))
	assert.Equal(t, OutcomeFailed, outcome)
	_, outcome = n.Attempt(context.Background(), scope, sampleInsights(2))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestNarratorMalformed(t *testing.T) {
	f := &fakeCompleter{reply: `{"headline":"x","risk_level":"catastrophic"}`}
	n, _ := newNarrator(t, f, 3)
	s, outcome := n.Attempt(context.Background(), scope, sampleInsights(1))
	assert.Nil(t, s)
	assert.Equal(t, OutcomeMalformed, outcome)
}

func TestNarratorDeduplicatesConcurrentCalls(t *testing.T) {
	f := &fakeCompleter{reply: goodReply, gate: make(chan struct{})}
	n, _ := newNarrator(t, f, 100)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*core.AiSummary, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = n.Attempt(context.Background(), scope, sampleInsights(7))
		}(i)
	}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	for _, s := range results {
		require.NotNil(t, s)
	}
	assert.LessOrEqual(t, f.calls.Load(), int32(callers))
}

func TestNarratorHonorsCallerContext(t *testing.T) {
	f := &fakeCompleter{reply: goodReply, gate: make(chan struct{})}
	defer close(f.gate)
	n, _ := newNarrator(t, f, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, outcome := n.Attempt(ctx, scope, sampleInsights(1))
	assert.Nil(t, s)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestCacheKey(t *testing.T) {
	a, err := cacheKey(scope, sampleInsights(1))
	require.NoError(t, err)
	b, _ := cacheKey(scope, sampleInsights(1))
	c, _ := cacheKey(scope, sampleInsights(2))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "u1::month::2026-01::")
}
