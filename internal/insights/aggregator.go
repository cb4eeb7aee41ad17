// Package insights computes deterministic spending summaries from ledger entries.
//
// Nothing in this package performs I/O. The same Input always yields the same
// Insights value.
package insights

import (
	"fmt"
	"sort"

	"budgetagent/internal/core"

	"github.com/shopspring/decimal"
)

// Thresholds is the warning table applied by the Aggregator.
//
//	over budget           budget > 0 and spent > budget
//	approaching budget    budget > 0 and spent >= ApproachingRatio*budget and spent <= budget
//	rent high             budget > 0 and rent >= RentRatio*budget
//	discretionary high    discretionary >= DiscretionaryRatio*spent and >= DiscretionaryMin
//	restaurant food high  restaurant >= RestaurantRatio*spent and >= RestaurantMin
//	spending spike        busiest day >= SpikeFactor*average day and >= SpikeMin
type Thresholds struct {
	ApproachingRatio   decimal.Decimal
	RentRatio          decimal.Decimal
	DiscretionaryRatio decimal.Decimal
	DiscretionaryMin   core.Money
	RestaurantRatio    decimal.Decimal
	RestaurantMin      core.Money
	SpikeFactor        decimal.Decimal
	SpikeMin           core.Money
	ExpensiveFood      core.Money
	TopCategories      int
}

// DefaultThresholds returns the production warning table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ApproachingRatio:   decimal.RequireFromString("0.90"),
		RentRatio:          decimal.RequireFromString("0.45"),
		DiscretionaryRatio: decimal.RequireFromString("0.35"),
		DiscretionaryMin:   core.NewMoney(10000_00),
		RestaurantRatio:    decimal.RequireFromString("0.15"),
		RestaurantMin:      core.NewMoney(8000_00),
		SpikeFactor:        decimal.RequireFromString("2.5"),
		SpikeMin:           core.NewMoney(5000_00),
		ExpensiveFood:      core.NewMoney(1800_00),
		TopCategories:      5,
	}
}

// Input is everything the Aggregator needs for one period.
type Input struct {
	Period   core.Period
	Budget   core.Money
	HomeCity string
	Entries  []core.Transaction
}

// Aggregator turns ledger entries into Insights. It holds no mutable state
// and is safe for concurrent use.
type Aggregator struct {
	t Thresholds
}

func New(t Thresholds) *Aggregator {
	if t.TopCategories <= 0 {
		t.TopCategories = DefaultThresholds().TopCategories
	}
	return &Aggregator{t: t}
}

type tally struct {
	spent         core.Money
	byLabel       map[string]core.Money
	byBucket      map[string]core.Money
	byDay         map[string]core.Money
	discretionary core.Money
	restaurant    core.Money
}

// Compute builds the Insights for in. Slices and maps in the result are never nil.
func (a *Aggregator) Compute(in Input) *core.Insights {
	t := a.tally(in.Entries)

	out := &core.Insights{
		Period:              in.Period.Kind,
		PeriodKey:           in.Period.Key,
		HomeCity:            in.HomeCity,
		BudgetAmount:        in.Budget,
		SpentTotal:          t.spent,
		TotalsByCategory:    t.byLabel,
		DiscretionaryTotal:  t.discretionary,
		RestaurantFoodTotal: t.restaurant,
	}
	if in.Budget.IsPositive() {
		out.Remaining = in.Budget.Sub(t.spent)
	}

	ranked := Rank(t.byLabel)
	if len(ranked) > a.t.TopCategories {
		ranked = ranked[:a.t.TopCategories]
	}
	out.TopCategories = ranked
	out.Warnings = a.warnings(in.Budget, t)
	out.Actions = actions(out)
	return out
}

func (a *Aggregator) tally(entries []core.Transaction) tally {
	t := tally{
		byLabel:  make(map[string]core.Money),
		byBucket: make(map[string]core.Money),
		byDay:    make(map[string]core.Money),
	}
	for _, tx := range entries {
		if !tx.IsOutflow() {
			continue
		}
		bucket := Normalize(tx)
		if excluded[bucket] {
			continue
		}

		t.spent = t.spent.Add(tx.Amount)
		label := Label(tx)
		t.byLabel[label] = t.byLabel[label].Add(tx.Amount)
		t.byBucket[bucket] = t.byBucket[bucket].Add(tx.Amount)
		if !tx.CreatedAt.IsZero() {
			day := tx.CreatedAt.UTC().Format(core.DayLayout)
			t.byDay[day] = t.byDay[day].Add(tx.Amount)
		}

		if IsDiscretionary(bucket) {
			t.discretionary = t.discretionary.Add(tx.Amount)
		}
		if bucket == catFood {
			if rest, _ := IsRestaurantFood(tx, a.t.ExpensiveFood); rest {
				t.restaurant = t.restaurant.Add(tx.Amount)
				t.discretionary = t.discretionary.Add(tx.Amount)
			}
		}
	}
	return t
}

func (a *Aggregator) warnings(budget core.Money, t tally) []core.Warning {
	out := []core.Warning{}
	spent := t.spent.Decimal()

	if budget.IsPositive() {
		b := budget.Decimal()
		switch {
		case t.spent.Cents > budget.Cents:
			out = append(out, core.WarningOverBudget)
		case spent.GreaterThanOrEqual(b.Mul(a.t.ApproachingRatio)):
			out = append(out, core.WarningApproachingBudget)
		}
		if rent := t.byBucket[catRent]; rent.Decimal().GreaterThanOrEqual(b.Mul(a.t.RentRatio)) && rent.IsPositive() {
			out = append(out, core.WarningRentHigh)
		}
	}

	if t.spent.IsPositive() {
		if atLeast(t.discretionary, spent.Mul(a.t.DiscretionaryRatio), a.t.DiscretionaryMin) {
			out = append(out, core.WarningDiscretionaryHigh)
		}
		if atLeast(t.restaurant, spent.Mul(a.t.RestaurantRatio), a.t.RestaurantMin) {
			out = append(out, core.WarningRestaurantFoodHigh)
		}
	}

	if a.spike(t.byDay) {
		out = append(out, core.WarningSpendingSpike)
	}
	return out
}

// spike compares the busiest day against the mean of active days without
// dividing: peak*n >= factor*sum.
func (a *Aggregator) spike(byDay map[string]core.Money) bool {
	if len(byDay) == 0 {
		return false
	}
	var sum, peak core.Money
	for _, v := range byDay {
		sum = sum.Add(v)
		if v.Cents > peak.Cents {
			peak = v
		}
	}
	if !sum.IsPositive() || peak.Cents < a.t.SpikeMin.Cents {
		return false
	}
	n := decimal.NewFromInt(int64(len(byDay)))
	return peak.Decimal().Mul(n).GreaterThanOrEqual(sum.Decimal().Mul(a.t.SpikeFactor))
}

func atLeast(v core.Money, share decimal.Decimal, floor core.Money) bool {
	return v.Cents >= floor.Cents && v.Decimal().GreaterThanOrEqual(share)
}

func actions(in *core.Insights) []string {
	out := []string{}
	for _, w := range in.Warnings {
		switch w {
		case core.WarningOverBudget:
			out = append(out, fmt.Sprintf("You are over budget by %s. Cut discretionary categories first.",
				in.SpentTotal.Sub(in.BudgetAmount)))
		case core.WarningApproachingBudget:
			out = append(out, fmt.Sprintf("Only %s of your budget is left. Hold non-essential purchases until the period ends.",
				in.Remaining))
		case core.WarningRentHigh:
			out = append(out, "Rent is taking a very large share of your budget. Consider negotiating rent, sharing accommodation, or relocating.")
		case core.WarningDiscretionaryHigh:
			out = append(out, "Discretionary spending is high. Set a weekly cap and review non-essential transactions.")
		case core.WarningRestaurantFoodHigh:
			out = append(out, "Restaurant and delivery food is high. Eat out less often or switch to home meals for savings.")
		case core.WarningSpendingSpike:
			out = append(out, "A spending spike was detected on one day. Review that day's transactions and tag the cause.")
		}
	}
	return out
}

// Rank orders categories by total descending, then by name ascending.
func Rank(totals map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(totals))
	for k, v := range totals {
		out = append(out, core.CategoryAmount{Category: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}
