package augment

import (
	"encoding/json"
	"errors"
	"strings"

	"budgetagent/internal/core"
)

var (
	errNoJSON       = errors.New("reply holds no JSON object")
	errNoHeadline   = errors.New("reply has no headline")
	errBadRiskLevel = errors.New("reply has an invalid risk_level")
)

type reply struct {
	Headline  string          `json:"headline"`
	Summary   string          `json:"summary"`
	RiskLevel string          `json:"risk_level"`
	Bullets   json.RawMessage `json:"bullets"`
	Actions   json.RawMessage `json:"actions"`
}

// extractFirstJSON parses text as a JSON object, falling back to the span
// from the first '{' to the last '}'.
func extractFirstJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if isObject([]byte(text)) {
		return json.RawMessage(text), true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	inner := []byte(text[start : end+1])
	if isObject(inner) {
		return json.RawMessage(inner), true
	}
	return nil, false
}

func isObject(b []byte) bool {
	var v map[string]json.RawMessage
	return json.Unmarshal(b, &v) == nil && v != nil
}

// parseSummary validates a provider reply into an AiSummary.
func parseSummary(text string) (*core.AiSummary, error) {
	raw, ok := extractFirstJSON(text)
	if !ok {
		return nil, errNoJSON
	}
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	headline := strings.TrimSpace(r.Headline)
	if headline == "" {
		return nil, errNoHeadline
	}
	risk, ok := core.ParseRiskLevel(r.RiskLevel)
	if !ok {
		return nil, errBadRiskLevel
	}
	return &core.AiSummary{
		Headline:  headline,
		Summary:   strings.TrimSpace(r.Summary),
		RiskLevel: risk,
		Bullets:   stringList(r.Bullets),
		Actions:   stringList(r.Actions),
	}, nil
}

// stringList accepts an array of strings or a single string. Blank items
// and non-string values are dropped.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var one string
	if json.Unmarshal(raw, &one) == nil {
		if s := strings.TrimSpace(one); s != "" {
			out = append(out, s)
		}
		return out
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
