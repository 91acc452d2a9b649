package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrRuleNotFound = errors.New("automation rule not found")

// AutomationStore persists automation rules.
type AutomationStore interface {
	Create(ctx context.Context, rule *models.AutomationRule) error
	Get(ctx context.Context, orgID, ruleID uuid.UUID) (*models.AutomationRule, error)
	Update(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, orgID, ruleID uuid.UUID) error
	List(ctx context.Context, orgID uuid.UUID) ([]*models.AutomationRule, error)

	// ListEnabled returns the enabled rules for an organization and trigger.
	ListEnabled(ctx context.Context, orgID uuid.UUID, trigger string) ([]*models.AutomationRule, error)
}
