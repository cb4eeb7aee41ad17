package core

import "strings"

// Warning is a member of the closed warning vocabulary, listed in output order.
type Warning string

const (
	WarningOverBudget         Warning = "over budget"
	WarningApproachingBudget  Warning = "approaching budget"
	WarningRentHigh           Warning = "rent high"
	WarningDiscretionaryHigh  Warning = "discretionary high"
	WarningRestaurantFoodHigh Warning = "restaurant food high"
	WarningSpendingSpike      Warning = "spending spike"
)

// Warnings is the full vocabulary in emission order.
var Warnings = []Warning{
	WarningOverBudget,
	WarningApproachingBudget,
	WarningRentHigh,
	WarningDiscretionaryHigh,
	WarningRestaurantFoodHigh,
	WarningSpendingSpike,
}

func (w Warning) Valid() bool {
	for _, v := range Warnings {
		if v == w {
			return true
		}
	}
	return false
}

// RiskLevel grades an AI narrative.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel is case-insensitive and rejects anything outside the enum.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch r := RiskLevel(strings.ToLower(strings.TrimSpace(s))); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, true
	default:
		return "", false
	}
}

// CategoryAmount is one row of the category ranking.
type CategoryAmount struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// Comparison relates a month's spend to the previous month.
type Comparison struct {
	PrevMonth      string   `json:"prev_month"`
	SpentPrev      Money    `json:"spent_prev"`
	SpentChangePct *float64 `json:"spent_change_pct"`
}

// Insights is the deterministic summary of one user's period.
type Insights struct {
	Period              PeriodKind       `json:"period"`
	PeriodKey           string           `json:"period_key"`
	HomeCity            string           `json:"home_city"`
	BudgetAmount        Money            `json:"budget_amount"`
	SpentTotal          Money            `json:"spent_total"`
	Remaining           Money            `json:"remaining"`
	TotalsByCategory    map[string]Money `json:"totals_by_category"`
	TopCategories       []CategoryAmount `json:"top_categories"`
	DiscretionaryTotal  Money            `json:"discretionary_total"`
	RestaurantFoodTotal Money            `json:"restaurant_food_total"`
	Warnings            []Warning        `json:"warnings"`
	Actions             []string         `json:"actions"`
	ComparePrev         *Comparison      `json:"compare_prev"`
}

// HasWarning reports whether w was raised.
func (i *Insights) HasWarning(w Warning) bool {
	for _, v := range i.Warnings {
		if v == w {
			return true
		}
	}
	return false
}

// AiSummary is the optional narrative produced by the text provider.
type AiSummary struct {
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary,omitempty"`
	RiskLevel RiskLevel `json:"risk_level"`
	Bullets   []string  `json:"bullets"`
	Actions   []string  `json:"actions"`
}

// Envelope is the response body of every insights operation.
type Envelope struct {
	Insights *Insights  `json:"insights"`
	AI       *AiSummary `json:"ai"`
	// UserID is the resolved owner of the period; not part of the body.
	UserID string `json:"-"`
}
