package augment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"budgetagent/internal/cache"
	"budgetagent/internal/core"
	"budgetagent/internal/metrics"
	"budgetagent/internal/middleware/ratelimit"

	"golang.org/x/sync/singleflight"
)

const systemPrompt = "You are an AI financial advisor inside an expense tracker.\n" +
	"Use ONLY the numbers provided.\n" +
	"Do NOT invent data.\n" +
	"Focus on overspending, rent burden, discretionary spend, and spikes.\n" +
	"Return STRICT JSON (no markdown, no extra text) with keys:\n" +
	"headline, summary, bullets (array), actions (array), risk_level (low|medium|high).\n"

const (
	providerKey = "openrouter"

	rateLimitCooldown  = time.Minute
	dataPolicyCooldown = 10 * time.Minute
)

// Outcome labels one augmentation attempt.
type Outcome string

const (
	OutcomeDisabled    Outcome = "disabled"
	OutcomeCached      Outcome = "cached"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeCooldown    Outcome = "cooldown"
	OutcomeFailed      Outcome = "failed"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeOK          Outcome = "ok"
)

// Scope identifies whose period is being narrated.
type Scope struct {
	UserID string
	Period core.PeriodKind
	Key    string
}

// Augmenter produces an optional narrative. It never fails: nil means no
// narrative is available.
type Augmenter interface {
	Summarize(ctx context.Context, scope Scope, in *core.Insights) *core.AiSummary
}

// Completer is the provider call. *Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	MaxRPM    int
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
	// Clock overrides time.Now for the limiter and cache.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxRPM:    3,
		Timeout:   8 * time.Second,
		CacheTTL:  30 * time.Minute,
		CacheSize: 512,
	}
}

// Narrator is the Augmenter backed by a Completer, with a result cache,
// request de-duplication, a local per-minute limit and provider cooldowns.
type Narrator struct {
	completer Completer
	timeout   time.Duration
	cache     *cache.LRUCache[*core.AiSummary]
	limiter   *ratelimit.Limiter
	group     singleflight.Group
	logger    *slog.Logger
}

var _ Augmenter = (*Narrator)(nil)

// NewNarrator builds a Narrator. A nil completer yields a Narrator that
// always reports OutcomeDisabled.
func NewNarrator(c Completer, cfg Config, logger *slog.Logger) *Narrator {
	def := DefaultConfig()
	if cfg.MaxRPM <= 0 {
		cfg.MaxRPM = def.MaxRPM
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{
		completer: c,
		timeout:   cfg.Timeout,
		cache:     cache.NewLRUCache[*core.AiSummary](cfg.CacheSize, cfg.CacheTTL).WithClock(cfg.Clock),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.MaxRPM, Clock: cfg.Clock}),
		logger:    logger,
	}
}

// Cache exposes the result cache for periodic cleanup.
func (n *Narrator) Cache() cache.Cleaner { return n.cache }

// Close stops the limiter's background cleanup.
func (n *Narrator) Close() { n.limiter.Stop() }

// Summarize implements Augmenter and records the outcome.
func (n *Narrator) Summarize(ctx context.Context, scope Scope, in *core.Insights) *core.AiSummary {
	s, outcome := n.Attempt(ctx, scope, in)
	metrics.Augmentations.WithLabelValues(string(outcome)).Inc()
	return s
}

type flightResult struct {
	summary *core.AiSummary
	outcome Outcome
}

// Attempt is Summarize with the outcome exposed.
func (n *Narrator) Attempt(ctx context.Context, scope Scope, in *core.Insights) (*core.AiSummary, Outcome) {
	if n == nil || n.completer == nil || in == nil {
		return nil, OutcomeDisabled
	}

	key, err := cacheKey(scope, in)
	if err != nil {
		n.logger.WarnContext(ctx, "Narrative cache key failed", "error", err)
		return nil, OutcomeFailed
	}
	if s, ok := n.cache.Get(key); ok {
		return clone(s), OutcomeCached
	}

	ch := n.group.DoChan(key, func() (interface{}, error) {
		return n.call(ctx, key, in), nil
	})
	select {
	case res := <-ch:
		fr := res.Val.(flightResult)
		return clone(fr.summary), fr.outcome
	case <-ctx.Done():
		return nil, OutcomeFailed
	}
}

// call performs at most one provider request. Runs once per in-flight key.
func (n *Narrator) call(ctx context.Context, key string, in *core.Insights) flightResult {
	if d := n.limiter.BlockedFor(providerKey); d > 0 {
		n.logger.DebugContext(ctx, "Narrative skipped, provider cooling down", "remaining", d)
		return flightResult{outcome: OutcomeCooldown}
	}
	if !n.limiter.Allow(providerKey) {
		n.logger.InfoContext(ctx, "Narrative skipped, local rate limit reached")
		return flightResult{outcome: OutcomeRateLimited}
	}

	payload, err := json.Marshal(struct {
		Task     string         `json:"task"`
		Insights *core.Insights `json:"insights"`
	}{Task: "monthly_or_weekly_summary", Insights: in})
	if err != nil {
		return flightResult{outcome: OutcomeFailed}
	}

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text, err := n.completer.Complete(callCtx, systemPrompt, string(payload))
	if err != nil {
		d := cooldownFor(err)
		if d > 0 {
			n.limiter.Block(providerKey, d)
		}
		n.logger.WarnContext(ctx, "Narrative request failed", "cooldown", d, "error", err)
		return flightResult{outcome: OutcomeFailed}
	}

	s, err := parseSummary(text)
	if err != nil {
		n.logger.WarnContext(ctx, "Narrative reply rejected", "error", err)
		return flightResult{outcome: OutcomeMalformed}
	}
	n.cache.Set(key, s)
	return flightResult{summary: s, outcome: OutcomeOK}
}

// cooldownFor maps provider errors to a cooldown; zero means none.
func cooldownFor(err error) time.Duration {
	msg := strings.ToLower(err.Error())
	var apiErr *APIError
	switch {
	case strings.Contains(msg, "no endpoints found matching your data policy"):
		return dataPolicyCooldown
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests,
		strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"):
		return rateLimitCooldown
	}
	return 0
}

// fingerprint covers the fields the narrative depends on.
type fingerprint struct {
	Budget   core.Money            `json:"budget"`
	Spent    core.Money            `json:"spent"`
	Warnings []core.Warning        `json:"warnings"`
	Top      []core.CategoryAmount `json:"top"`
}

func cacheKey(scope Scope, in *core.Insights) (string, error) {
	b, err := json.Marshal(fingerprint{
		Budget:   in.BudgetAmount,
		Spent:    in.SpentTotal,
		Warnings: in.Warnings,
		Top:      in.TopCategories,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return strings.Join([]string{scope.UserID, string(scope.Period), scope.Key, hex.EncodeToString(sum[:])}, "::"), nil
}

func clone(s *core.AiSummary) *core.AiSummary {
	if s == nil {
		return nil
	}
	c := *s
	c.Bullets = append([]string{}, s.Bullets...)
	c.Actions = append([]string{}, s.Actions...)
	return &c
}

// Disabled is an Augmenter that never produces a narrative.
type Disabled struct{}

func (Disabled) Summarize(context.Context, Scope, *core.Insights) *core.AiSummary {
	metrics.Augmentations.WithLabelValues(string(OutcomeDisabled)).Inc()
	return nil
}
