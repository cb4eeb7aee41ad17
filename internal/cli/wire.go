package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetagent/internal/augment"
	"budgetagent/internal/backend"
	"budgetagent/internal/cache"
	"budgetagent/internal/config"
	"budgetagent/internal/insights"
	"budgetagent/internal/log"
	"budgetagent/internal/services"
)

// cacheSweepInterval is how often registered caches drop expired entries.
const cacheSweepInterval = 5 * time.Minute

// Stack is the insights pipeline shared by the server and the worker.
type Stack struct {
	Service *services.InsightService
	Ledger  backend.Ledger

	caches    *cache.Manager
	narrator  *augment.Narrator
	closeData backend.CleanupFunc
}

// BuildStack creates the ledger backend, the augmenter and the insights
// service from cfg, and starts periodic cache cleanup.
func BuildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	caches := cache.NewManager(logger.With(log.FieldComponent, log.ComponentCache))

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.With(log.FieldComponent, log.ComponentBackend), caches).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", backendCfg.Type, err)
	}

	st := &Stack{Ledger: result.Ledger, caches: caches, closeData: result.Cleanup}

	var aug augment.Augmenter = augment.Disabled{}
	if cfg.LLMEnabled() {
		client := augment.NewClient(augment.ClientConfig{
			APIKey:   cfg.OpenRouterAPIKey,
			BaseURL:  cfg.OpenRouterBaseURL,
			Model:    cfg.OpenRouterModel,
			SiteURL:  cfg.OpenRouterSiteURL,
			SiteName: cfg.OpenRouterSiteName,
			Timeout:  cfg.AugmentTimeout,
		})
		st.narrator = augment.NewNarrator(client, augment.Config{
			MaxRPM:    cfg.OpenRouterMaxRPM,
			Timeout:   cfg.AugmentTimeout,
			CacheTTL:  cfg.AugmentCacheTTL,
			CacheSize: cfg.AugmentCacheSize,
		}, logger.With(log.FieldComponent, log.ComponentAugment))
		caches.Register("augment_summaries", st.narrator.Cache())
		aug = st.narrator
		logger.Info("Narrative augmentation enabled", "model", cfg.OpenRouterModel, "max_rpm", cfg.OpenRouterMaxRPM)
	} else {
		logger.Info("Narrative augmentation disabled", "provider", cfg.LLMProvider)
	}

	st.Service = services.NewInsightService(result.Ledger, insights.New(insights.DefaultThresholds()), aug, cfg.Anchor(), logger)
	caches.StartCleanup(cacheSweepInterval)

	logger.Info("Ledger backend ready", log.FieldBackend, backendCfg.Type.String())
	return st, nil
}

// Close releases the backend and stops background goroutines.
func (s *Stack) Close(logger *slog.Logger) {
	s.caches.Stop()
	if s.narrator != nil {
		s.narrator.Close()
	}
	if s.closeData != nil {
		if err := s.closeData(); err != nil {
			logger.Error("Failed to close ledger backend", log.FieldError, err)
		}
	}
}
