package google

import (
	"fmt"
	"strings"
	"time"

	"budgetagent/internal/core"
)

// Column headers, matched case-insensitively in the first row of each tab.
const (
	colID                 = "id"
	colUserID             = "user_id"
	colHomeCity           = "home_city"
	colMonth              = "month"
	colAmount             = "amount"
	colType               = "entry_type"
	colCategory           = "category"
	colCategoryNormalized = "category_normalized"
	colTitle              = "title"
	colBeneficiary        = "beneficiary_name"
	colRawText            = "raw_text"
	colLocation           = "location_name"
	colCreatedAt          = "created_at"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	core.DayLayout,
}

// header maps column names to indexes.
type header map[string]int

func parseHeader(row []interface{}) header {
	h := header{}
	for i, v := range toStrings(row) {
		name := strings.ToLower(strings.TrimSpace(v))
		if _, dup := h[name]; name != "" && !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) get(cols []string, name string) string {
	idx, ok := h[name]
	if !ok || idx >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[idx])
}

func (h header) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseUsers reads the Users tab.
func parseUsers(values [][]interface{}) (map[string]core.User, error) {
	out := map[string]core.User{}
	if len(values) == 0 {
		return out, nil
	}
	h := parseHeader(values[0])
	if err := h.require(colID); err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	for _, row := range values[1:] {
		cols := toStrings(row)
		id := h.get(cols, colID)
		if id == "" {
			continue
		}
		out[id] = core.User{ID: id, HomeCity: h.get(cols, colHomeCity)}
	}
	return out, nil
}

// parseBudgets reads the Budgets tab rows of one user. Rows with an invalid
// month or amount are skipped. The last row for a month wins.
func parseBudgets(values [][]interface{}, userID string) (map[string]core.Budget, error) {
	out := map[string]core.Budget{}
	if len(values) == 0 {
		return out, nil
	}
	h := parseHeader(values[0])
	if err := h.require(colUserID, colMonth, colAmount); err != nil {
		return nil, fmt.Errorf("budgets: %w", err)
	}
	for _, row := range values[1:] {
		cols := toStrings(row)
		if h.get(cols, colUserID) != userID {
			continue
		}
		p, err := core.ParseMonth(h.get(cols, colMonth))
		if err != nil {
			continue
		}
		amount, err := core.ParseMoney(h.get(cols, colAmount))
		if err != nil {
			continue
		}
		out[p.Key] = core.Budget{UserID: userID, Month: p.Key, Amount: amount, HomeCity: h.get(cols, colHomeCity)}
	}
	return out, nil
}

// parseEntries reads the Entries tab and keeps the rows accepted by keep.
// Rows with an unparseable amount or timestamp are skipped.
func parseEntries(values [][]interface{}, keep func(core.Transaction) bool) ([]core.Transaction, error) {
	out := []core.Transaction{}
	if len(values) == 0 {
		return out, nil
	}
	h := parseHeader(values[0])
	if err := h.require(colID, colUserID, colAmount, colCreatedAt); err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	for _, row := range values[1:] {
		cols := toStrings(row)
		id := h.get(cols, colID)
		if id == "" {
			continue
		}
		amount, err := core.ParseMoney(h.get(cols, colAmount))
		if err != nil {
			continue
		}
		created, ok := parseTime(h.get(cols, colCreatedAt))
		if !ok {
			continue
		}
		tx := core.Transaction{
			ID:                 id,
			UserID:             h.get(cols, colUserID),
			Type:               core.ParseEntryType(h.get(cols, colType)),
			Category:           h.get(cols, colCategory),
			CategoryNormalized: h.get(cols, colCategoryNormalized),
			Title:              h.get(cols, colTitle),
			Beneficiary:        h.get(cols, colBeneficiary),
			RawText:            h.get(cols, colRawText),
			Location:           h.get(cols, colLocation),
			Amount:             amount,
			CreatedAt:          created,
		}
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// parseTime accepts RFC3339 and a few spreadsheet-style layouts; zone-less
// values are taken as UTC.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}
