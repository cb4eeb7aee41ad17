package insights

import (
	"budgetagent/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compare relates cur to the previous period's spend. SpentChangePct stays nil
// when the previous spend is not positive.
func Compare(cur, prev *core.Insights) *core.Comparison {
	c := &core.Comparison{
		PrevMonth: prev.PeriodKey,
		SpentPrev: prev.SpentTotal,
	}
	if !prev.SpentTotal.IsPositive() {
		return c
	}
	pct, _ := cur.SpentTotal.Sub(prev.SpentTotal).Decimal().
		Div(prev.SpentTotal.Decimal()).
		Mul(hundred).
		Round(2).
		Float64()
	c.SpentChangePct = &pct
	return c
}

// ProrateBudget spreads monthly budgets over the days of p. Each overlapping
// month contributes budget/days_in_month per shared day; the sum is rounded
// to cents once.
func ProrateBudget(p core.Period, monthly map[string]core.Money) core.Money {
	total := decimal.Zero
	for _, m := range p.Months() {
		b, ok := monthly[m.Key]
		if !ok || !b.IsPositive() {
			continue
		}
		overlap := p.Overlap(m)
		if overlap == 0 {
			continue
		}
		share := b.Decimal().Mul(decimal.NewFromInt(int64(overlap))).Div(decimal.NewFromInt(int64(m.Days())))
		total = total.Add(share)
	}
	return core.MoneyFromDecimal(total)
}
