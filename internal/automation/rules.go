package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

var (
	ErrNameRequired   = errors.New("rule name is required")
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrUnknownAction  = errors.New("unknown action")
	ErrActionTrigger  = errors.New("action is not available for this trigger")
)

// RuleInput is the editable part of a rule.
type RuleInput struct {
	Name      string                  `json:"name" yaml:"name"`
	Trigger   string                  `json:"trigger" yaml:"trigger"`
	Condition string                  `json:"condition" yaml:"condition"`
	Action    models.AutomationAction `json:"action" yaml:"action"`
	Enabled   bool                    `json:"enabled" yaml:"enabled"`
}

// Rules manages an organization's automation rules.
type Rules struct {
	store      store.AutomationStore
	conditions *Conditions
	now        func() time.Time
}

func NewRules(rules store.AutomationStore, conditions *Conditions) *Rules {
	return &Rules{
		store:      rules,
		conditions: conditions,
		now:        time.Now,
	}
}

// Validate checks a rule before it is saved.
func (r *Rules) Validate(in *RuleInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Trigger = strings.TrimSpace(in.Trigger)
	in.Condition = strings.TrimSpace(in.Condition)
	if in.Name == "" {
		return ErrNameRequired
	}
	if !events.Known(in.Trigger) {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, in.Trigger)
	}
	if err := r.conditions.Validate(in.Condition, in.Trigger); err != nil {
		return err
	}

	switch in.Action.Type {
	case models.ActionSendEmail:
		return ValidateTemplate(in.Action.Template)
	case models.ActionSyncQuickBooks:
		if !strings.HasPrefix(in.Trigger, "invoice.") {
			return fmt.Errorf("%w: %s on %s", ErrActionTrigger, in.Action.Type, in.Trigger)
		}
		in.Action.Template = models.EmailTemplate{}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, in.Action.Type)
	}
}

func (r *Rules) Create(ctx context.Context, orgID uuid.UUID, in RuleInput) (*models.AutomationRule, error) {
	if err := r.Validate(&in); err != nil {
		return nil, err
	}

	now := r.now()
	rule := &models.AutomationRule{
		RuleID:    uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		Name:      in.Name,
		Trigger:   in.Trigger,
		Condition: in.Condition,
		Action:    in.Action,
		Enabled:   in.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

func (r *Rules) Update(ctx context.Context, orgID, ruleID uuid.UUID, in RuleInput) (*models.AutomationRule, error) {
	if err := r.Validate(&in); err != nil {
		return nil, err
	}

	rule, err := r.store.Get(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	rule.Name = in.Name
	rule.Trigger = in.Trigger
	rule.Condition = in.Condition
	rule.Action = in.Action
	rule.Enabled = in.Enabled
	rule.UpdatedAt = r.now()
	if err := r.store.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

func (r *Rules) Get(ctx context.Context, orgID, ruleID uuid.UUID) (*models.AutomationRule, error) {
	return r.store.Get(ctx, orgID, ruleID)
}

func (r *Rules) List(ctx context.Context, orgID uuid.UUID) ([]*models.AutomationRule, error) {
	return r.store.List(ctx, orgID)
}

func (r *Rules) Delete(ctx context.Context, orgID, ruleID uuid.UUID) error {
	return r.store.Delete(ctx, orgID, ruleID)
}

// Seed creates the default rules for a new organization.
func (r *Rules) Seed(ctx context.Context, orgID uuid.UUID) ([]*models.AutomationRule, error) {
	defaults, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	created := make([]*models.AutomationRule, 0, len(defaults))
	for _, in := range defaults {
		rule, err := r.Create(ctx, orgID, in)
		if err != nil {
			return created, fmt.Errorf("failed to seed rule %q: %w", in.Name, err)
		}
		created = append(created, rule)
	}
	return created, nil
}
