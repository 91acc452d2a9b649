package models

import (
	"time"

	"github.com/google/uuid"
)

// Automation action types
const (
	ActionSendEmail      = "send_email"
	ActionSyncQuickBooks = "sync_quickbooks"
)

// EmailTemplate is rendered with text/template against the event payload.
type EmailTemplate struct {
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}

// AutomationAction describes what a rule does when it fires.
type AutomationAction struct {
	Type     string        `json:"type" yaml:"type"`
	Template EmailTemplate `json:"template" yaml:"template"`
}

// AutomationRule runs an action when an event matching Trigger occurs and
// Condition (an expr boolean expression, empty means always) holds.
type AutomationRule struct {
	RuleID    uuid.UUID        `json:"rule_id"`
	OrgID     uuid.UUID        `json:"org_id"`
	Name      string           `json:"name"`
	Trigger   string           `json:"trigger"`
	Condition string           `json:"condition"`
	Action    AutomationAction `json:"action"`
	Enabled   bool             `json:"enabled"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
