package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// AutomationStore implements store.AutomationStore using PostgreSQL.
// The action is stored as JSONB.
type AutomationStore struct {
	db
}

const ruleColumns = `rule_id, org_id, name, trigger, condition, action, enabled, created_at, updated_at`

func (s *AutomationStore) Create(ctx context.Context, r *models.AutomationRule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	action, err := json.Marshal(r.Action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO automation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.RuleID, r.OrgID, r.Name, r.Trigger, r.Condition, action, r.Enabled, r.CreatedAt, r.UpdatedAt)
	return mapPostgresError(err, store.ErrOrganizationNotFound)
}

func (s *AutomationStore) Get(ctx context.Context, orgID, ruleID uuid.UUID) (*models.AutomationRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE org_id = $1 AND rule_id = $2`, orgID, ruleID)
	r, err := scanRule(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrRuleNotFound)
	}
	return r, nil
}

func (s *AutomationStore) Update(ctx context.Context, r *models.AutomationRule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	action, err := json.Marshal(r.Action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	r.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE automation_rules SET
			name = $3,
			trigger = $4,
			condition = $5,
			action = $6,
			enabled = $7,
			updated_at = $8
		WHERE org_id = $1 AND rule_id = $2
	`, r.OrgID, r.RuleID, r.Name, r.Trigger, r.Condition, action, r.Enabled, r.UpdatedAt)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrRuleNotFound
	}
	return nil
}

func (s *AutomationStore) Delete(ctx context.Context, orgID, ruleID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM automation_rules WHERE org_id = $1 AND rule_id = $2`, orgID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrRuleNotFound
	}
	return nil
}

func (s *AutomationStore) List(ctx context.Context, orgID uuid.UUID) ([]*models.AutomationRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return collectRules(rows)
}

func (s *AutomationStore) ListEnabled(ctx context.Context, orgID uuid.UUID, trigger string) ([]*models.AutomationRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE org_id = $1 AND trigger = $2 AND enabled
		ORDER BY created_at
	`, orgID, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]*models.AutomationRule, error) {
	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.AutomationRule, error) {
		return scanRule(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rules: %w", err)
	}
	return rules, nil
}

func scanRule(row pgx.Row) (*models.AutomationRule, error) {
	var (
		r      models.AutomationRule
		action []byte
	)
	err := row.Scan(&r.RuleID, &r.OrgID, &r.Name, &r.Trigger, &r.Condition, &action, &r.Enabled, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(action, &r.Action); err != nil {
		return nil, fmt.Errorf("rule %s has malformed action: %w", r.RuleID, err)
	}
	return &r, nil
}
