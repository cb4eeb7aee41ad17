package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budgetagent/internal/augment"
	"budgetagent/internal/core"
	"budgetagent/internal/insights"
	"budgetagent/internal/ledger"
	"budgetagent/internal/log"
	"budgetagent/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// MonthlyRequest asks for one calendar month.
type MonthlyRequest struct {
	UserID         string
	Month          string
	IncludeAI      bool
	IncludeCompare bool
}

// WeeklyRequest asks for the week starting at WeekStart.
type WeeklyRequest struct {
	UserID    string
	WeekStart string
	IncludeAI bool
}

// EntryCreatedRequest recomputes the month of a new entry. When EntryID is
// set, a missing UserID or Month is resolved from the stored entry.
type EntryCreatedRequest struct {
	EntryID        string
	UserID         string
	Month          string
	IncludeAI      bool
	IncludeCompare bool
}

// InsightService composes ledger reads, aggregation and the optional
// narrative into a response envelope.
type InsightService struct {
	ledger    ledger.Reader
	agg       *insights.Aggregator
	augmenter augment.Augmenter
	anchor    time.Weekday
	logger    *slog.Logger
}

// NewInsightService wires the service. A nil augmenter disables narratives.
func NewInsightService(l ledger.Reader, agg *insights.Aggregator, aug augment.Augmenter, anchor time.Weekday, logger *slog.Logger) *InsightService {
	if agg == nil {
		agg = insights.New(insights.DefaultThresholds())
	}
	if aug == nil {
		aug = augment.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightService{
		ledger:    l,
		agg:       agg,
		augmenter: aug,
		anchor:    anchor,
		logger:    logger.With(log.FieldComponent, log.ComponentInsights),
	}
}

// Monthly computes a month's insights, the previous-month comparison when
// requested, and the narrative when requested.
func (s *InsightService) Monthly(ctx context.Context, req MonthlyRequest) (*core.Envelope, error) {
	userID := strings.TrimSpace(req.UserID)
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	period, err := core.ParseMonth(req.Month)
	if err != nil {
		return nil, err
	}

	var (
		cur  monthData
		prev monthData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, err = s.loadMonth(gctx, userID, period)
		return err
	})
	if req.IncludeCompare {
		g.Go(func() error {
			var err error
			prev, err = s.loadMonth(gctx, userID, period.Previous())
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ins := s.agg.Compute(insights.Input{
		Period:   period,
		Budget:   cur.budget.Amount,
		HomeCity: cur.homeCity(),
		Entries:  cur.entries,
	})
	if req.IncludeCompare && prev.found {
		prevIns := s.agg.Compute(insights.Input{
			Period:   period.Previous(),
			Budget:   prev.budget.Amount,
			HomeCity: prev.homeCity(),
			Entries:  prev.entries,
		})
		ins.ComparePrev = insights.Compare(ins, prevIns)
	}

	return s.envelope(ctx, log.OpMonthly, userID, ins, req.IncludeAI), nil
}

// Weekly computes a week's insights against the prorated monthly budgets.
func (s *InsightService) Weekly(ctx context.Context, req WeeklyRequest) (*core.Envelope, error) {
	userID := strings.TrimSpace(req.UserID)
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	period, err := core.ParseWeek(req.WeekStart, s.anchor)
	if err != nil {
		return nil, err
	}

	months := period.Months()
	budgets := make([]core.Budget, len(months))
	found := make([]bool, len(months))
	var (
		user    core.User
		entries []core.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.ledger.User(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.ledger.Entries(gctx, userID, period)
		return err
	})
	for i, m := range months {
		g.Go(func() error {
			b, ok, err := s.ledger.MonthBudget(gctx, userID, m.Key)
			if err != nil {
				return err
			}
			if ok {
				if err := b.Validate(); err != nil {
					return err
				}
			}
			budgets[i], found[i] = b, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	monthly := make(map[string]core.Money, len(months))
	homeCity := ""
	for i, m := range months {
		if !found[i] {
			continue
		}
		monthly[m.Key] = budgets[i].Amount
		if homeCity == "" {
			homeCity = budgets[i].HomeCity
		}
	}
	if homeCity == "" {
		homeCity = user.HomeCity
	}

	ins := s.agg.Compute(insights.Input{
		Period:   period,
		Budget:   insights.ProrateBudget(period, monthly),
		HomeCity: homeCity,
		Entries:  entries,
	})
	return s.envelope(ctx, log.OpWeekly, userID, ins, req.IncludeAI), nil
}

// OnEntryCreated runs the monthly computation for the month of a newly
// recorded entry.
func (s *InsightService) OnEntryCreated(ctx context.Context, req EntryCreatedRequest) (*core.Envelope, error) {
	userID, month := strings.TrimSpace(req.UserID), strings.TrimSpace(req.Month)
	if entryID := strings.TrimSpace(req.EntryID); entryID != "" && (userID == "" || month == "") {
		tx, err := s.ledger.Entry(ctx, entryID)
		if err != nil {
			return nil, fmt.Errorf("resolve entry: %w", err)
		}
		if userID == "" {
			userID = tx.UserID
		} else if userID != tx.UserID {
			return nil, core.InvalidArgument("entry %s does not belong to user %s", entryID, userID)
		}
		if month == "" {
			month = core.MonthOf(tx.CreatedAt).Key
		}
	}

	s.logger.DebugContext(ctx, "Entry created, recomputing month",
		log.FieldEntryID, req.EntryID, log.FieldUserID, userID, log.FieldPeriodKey, month)

	return s.Monthly(ctx, MonthlyRequest{
		UserID:         userID,
		Month:          month,
		IncludeAI:      req.IncludeAI,
		IncludeCompare: req.IncludeCompare,
	})
}

func (s *InsightService) envelope(ctx context.Context, op, userID string, ins *core.Insights, includeAI bool) *core.Envelope {
	metrics.InsightsComputed.WithLabelValues(string(ins.Period)).Inc()

	env := &core.Envelope{Insights: ins, UserID: userID}
	if includeAI {
		env.AI = s.augmenter.Summarize(ctx, augment.Scope{UserID: userID, Period: ins.Period, Key: ins.PeriodKey}, ins)
	}

	s.logger.InfoContext(ctx, "Insights computed",
		log.NewFields().
			WithOperation(op).
			WithInsights(userID, ins).
			ToSlice()...)
	return env
}

type monthData struct {
	user    core.User
	budget  core.Budget
	found   bool
	entries []core.Transaction
}

// homeCity prefers the budget row's city over the profile's.
func (m monthData) homeCity() string {
	if m.found && m.budget.HomeCity != "" {
		return m.budget.HomeCity
	}
	return m.user.HomeCity
}

// loadMonth reads the user, the month's budget row and its entries. A
// missing budget row leaves a zero budget.
func (s *InsightService) loadMonth(ctx context.Context, userID string, p core.Period) (monthData, error) {
	var d monthData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.user, err = s.ledger.User(gctx, userID)
		return err
	})
	g.Go(func() error {
		b, ok, err := s.ledger.MonthBudget(gctx, userID, p.Key)
		if err != nil {
			return err
		}
		if ok {
			if err := b.Validate(); err != nil {
				return err
			}
		}
		d.budget, d.found = b, ok
		return nil
	})
	g.Go(func() error {
		var err error
		d.entries, err = s.ledger.Entries(gctx, userID, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return monthData{}, err
	}
	return d, nil
}
