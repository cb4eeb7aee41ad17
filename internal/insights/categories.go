package insights

import (
	"strings"

	"budgetagent/internal/core"
)

const (
	catUtility       = "utility"
	catFundsTransfer = "funds_transfer"
	catGrocery       = "grocery"
	catShopping      = "shopping"
	catFuel          = "fuel"
	catFood          = "food"
	catRent          = "rent"
	catOther         = "other"

	// UncategorizedLabel replaces blank category labels in the output.
	UncategorizedLabel = "Uncategorized"
)

var (
	excluded = map[string]bool{catFundsTransfer: true}

	discretionary = map[string]bool{
		"shopping":      true,
		"entertainment": true,
		"charity":       true,
		"subscriptions": true,
		"travel":        true,
	}

	restaurantKeywords = []string{
		"kfc", "mcdonald", "mc donald", "dominos", "domino", "pizza", "burger", "shawarma",
		"restaurant", "cafe", "coffee", "bistro", "foodpanda", "food panda", "careem food",
		"delivery", "dine", "bbq", "karahi", "nihari",
	}

	homeFoodKeywords = []string{
		"grocery", "super", "mart", "store", "cash&carry", "cash and carry", "imtiyaz", "metro",
		"utility store", "ration", "kirana",
	}

	// keywordBuckets is evaluated in order; the first match wins.
	keywordBuckets = []struct {
		bucket   string
		keywords []string
	}{
		{catUtility, []string{"utility"}},
		{catFundsTransfer, []string{"fund", "transfer"}},
		{catGrocery, []string{"groc"}},
		{catShopping, []string{"shop"}},
		{catFuel, []string{"fuel", "petrol"}},
		{catFood, []string{"food"}},
		{catRent, []string{"rent"}},
	}
)

// Normalize maps an entry to its classification bucket. The recorded
// normalized category wins when present.
func Normalize(tx core.Transaction) string {
	if cn := strings.ToLower(strings.TrimSpace(tx.CategoryNormalized)); cn != "" {
		return cn
	}
	c := strings.ToLower(strings.TrimSpace(tx.Category))
	for _, b := range keywordBuckets {
		if containsAny(c, b.keywords) {
			return b.bucket
		}
	}
	if c == "" {
		return catOther
	}
	return c
}

// Label is the category key used in totals_by_category.
func Label(tx core.Transaction) string {
	if l := strings.TrimSpace(tx.Category); l != "" {
		return l
	}
	return UncategorizedLabel
}

// IsDiscretionary reports whether a normalized bucket is non-essential.
func IsDiscretionary(bucket string) bool {
	return discretionary[bucket]
}

// IsRestaurantFood classifies a food entry as eating out. The reason string
// names the rule that decided.
func IsRestaurantFood(tx core.Transaction, expensive core.Money) (bool, string) {
	blob := textBlob(tx)
	switch {
	case containsAny(blob, homeFoodKeywords):
		return false, "home_food_keyword"
	case containsAny(blob, restaurantKeywords):
		return true, "restaurant_keyword"
	case tx.Amount.Cents >= expensive.Cents:
		return true, "expensive_food_amount"
	default:
		return false, "unknown_food_type"
	}
}

func textBlob(tx core.Transaction) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{tx.Title, tx.Beneficiary, tx.RawText, tx.Category, tx.CategoryNormalized} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
