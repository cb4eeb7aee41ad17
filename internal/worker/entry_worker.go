// Package worker turns entry.created events into recomputed monthly
// insights and publishes an alert when the month carries warnings.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetagent/internal/amqp"
	"budgetagent/internal/core"
	"budgetagent/internal/log"
	"budgetagent/internal/metrics"
	"budgetagent/internal/services"
)

// Event results recorded in budgetagent_entry_events_total.
const (
	ResultOK           = "ok"
	ResultAlerted      = "alerted"
	ResultDiscarded    = "discarded"
	ResultError        = "error"
	ResultPublishError = "publish_error"
)

// InsightsRunner recomputes a month for a new entry.
type InsightsRunner interface {
	OnEntryCreated(ctx context.Context, req services.EntryCreatedRequest) (*core.Envelope, error)
}

// AlertPublisher sends insights alerts.
type AlertPublisher interface {
	PublishInsightsAlert(ctx context.Context, msg *amqp.InsightsAlertMessage) error
}

type EntryWorker struct {
	insights  InsightsRunner
	publisher AlertPublisher
	includeAI bool
	logger    *slog.Logger
}

// NewEntryWorker creates a worker. includeAI applies to messages that do
// not set include_ai themselves.
func NewEntryWorker(insights InsightsRunner, publisher AlertPublisher, includeAI bool, logger *slog.Logger) *EntryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryWorker{
		insights:  insights,
		publisher: publisher,
		includeAI: includeAI,
		logger:    logger.With(log.FieldComponent, log.ComponentWorker),
	}
}

// HandleEntryCreated processes one entry.created message. Unknown users or
// entries and malformed fields are permanent and wrap amqp.ErrDiscard.
func (w *EntryWorker) HandleEntryCreated(ctx context.Context, msg *amqp.EntryCreatedMessage) error {
	includeAI := w.includeAI
	if msg.IncludeAI != nil {
		includeAI = *msg.IncludeAI
	}

	env, err := w.insights.OnEntryCreated(ctx, services.EntryCreatedRequest{
		EntryID:        msg.EntryID,
		UserID:         msg.UserID,
		Month:          msg.Month,
		IncludeAI:      includeAI,
		IncludeCompare: true,
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalidArgument) {
			metrics.EntryEvents.WithLabelValues(ResultDiscarded).Inc()
			return fmt.Errorf("%w: %w", amqp.ErrDiscard, err)
		}
		metrics.EntryEvents.WithLabelValues(ResultError).Inc()
		return fmt.Errorf("recompute month: %w", err)
	}

	ins := env.Insights
	if len(ins.Warnings) == 0 {
		metrics.EntryEvents.WithLabelValues(ResultOK).Inc()
		w.logger.DebugContext(ctx, "Entry processed, no warnings",
			log.FieldEntryID, msg.EntryID, log.FieldPeriodKey, ins.PeriodKey)
		return nil
	}

	userID := env.UserID
	if userID == "" {
		userID = msg.UserID
	}
	alert := amqp.NewInsightsAlertMessage(userID, ins, env.AI)
	if err := w.publisher.PublishInsightsAlert(ctx, alert); err != nil {
		metrics.EntryEvents.WithLabelValues(ResultPublishError).Inc()
		return fmt.Errorf("publish alert: %w", err)
	}

	metrics.EntryEvents.WithLabelValues(ResultAlerted).Inc()
	w.logger.InfoContext(ctx, "Insights alert raised",
		log.NewFields().
			WithOperation(log.OpOnEntryCreated).
			WithInsights(userID, ins).
			ToSlice()...)
	return nil
}
