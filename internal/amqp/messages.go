package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"budgetagent/internal/core"
)

// Routing keys on the direct exchange.
const (
	RoutingKeyEntryCreated  = "entry.created"
	RoutingKeyInsightsAlert = "insights.alert"
)

// EntryCreatedMessage announces a new ledger entry. UserID and Month may be
// omitted when EntryID is set; the worker resolves them from the ledger.
type EntryCreatedMessage struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id,omitempty"`
	Month     string    `json:"month,omitempty"`
	IncludeAI *bool     `json:"include_ai,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntryCreatedMessage creates a message stamped with the current time.
func NewEntryCreatedMessage(entryID, userID, month string) *EntryCreatedMessage {
	return &EntryCreatedMessage{
		EntryID:   entryID,
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

// Validate requires either an entry id or both user and month.
func (m *EntryCreatedMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) != "" {
		return nil
	}
	if strings.TrimSpace(m.UserID) == "" || strings.TrimSpace(m.Month) == "" {
		return errors.New("entry_id or user_id and month are required")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *EntryCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryCreatedMessageFromJSON decodes and validates a message body.
func EntryCreatedMessageFromJSON(data []byte) (*EntryCreatedMessage, error) {
	var msg EntryCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsightsAlertMessage is published when a recomputed month carries warnings.
type InsightsAlertMessage struct {
	UserID       string         `json:"user_id"`
	PeriodKey    string         `json:"period_key"`
	SpentTotal   core.Money     `json:"spent_total"`
	BudgetAmount core.Money     `json:"budget_amount"`
	Warnings     []core.Warning `json:"warnings"`
	Headline     string         `json:"headline,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewInsightsAlertMessage builds an alert from computed insights; ai may be nil.
func NewInsightsAlertMessage(userID string, ins *core.Insights, ai *core.AiSummary) *InsightsAlertMessage {
	msg := &InsightsAlertMessage{
		UserID:       userID,
		PeriodKey:    ins.PeriodKey,
		SpentTotal:   ins.SpentTotal,
		BudgetAmount: ins.BudgetAmount,
		Warnings:     append([]core.Warning{}, ins.Warnings...),
		Timestamp:    time.Now().UTC(),
	}
	if ai != nil {
		msg.Headline = ai.Headline
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *InsightsAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
