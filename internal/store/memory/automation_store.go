package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// AutomationStore implements store.AutomationStore using in-memory storage.
type AutomationStore struct {
	mu sync.RWMutex

	rules map[uuid.UUID]*models.AutomationRule
}

// NewAutomationStore creates a new in-memory automation store.
func NewAutomationStore() *AutomationStore {
	return &AutomationStore{
		rules: make(map[uuid.UUID]*models.AutomationRule),
	}
}

func (s *AutomationStore) Create(ctx context.Context, rule *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rule
	s.rules[rule.RuleID] = &clone

	return nil
}

func (s *AutomationStore) Get(ctx context.Context, orgID, ruleID uuid.UUID) (*models.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ruleID]
	if !ok || r.OrgID != orgID {
		return nil, store.ErrRuleNotFound
	}

	clone := *r
	return &clone, nil
}

func (s *AutomationStore) Update(ctx context.Context, rule *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[rule.RuleID]
	if !ok || existing.OrgID != rule.OrgID {
		return store.ErrRuleNotFound
	}

	rule.UpdatedAt = time.Now()

	clone := *rule
	s.rules[rule.RuleID] = &clone

	return nil
}

func (s *AutomationStore) Delete(ctx context.Context, orgID, ruleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok || r.OrgID != orgID {
		return store.ErrRuleNotFound
	}
	delete(s.rules, ruleID)

	return nil
}

func (s *AutomationStore) List(ctx context.Context, orgID uuid.UUID) ([]*models.AutomationRule, error) {
	return s.list(orgID, func(*models.AutomationRule) bool { return true }), nil
}

func (s *AutomationStore) ListEnabled(ctx context.Context, orgID uuid.UUID, trigger string) ([]*models.AutomationRule, error) {
	return s.list(orgID, func(r *models.AutomationRule) bool {
		return r.Enabled && r.Trigger == trigger
	}), nil
}

func (s *AutomationStore) list(orgID uuid.UUID, keep func(*models.AutomationRule) bool) []*models.AutomationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AutomationRule
	for _, r := range s.rules {
		if r.OrgID == orgID && keep(r) {
			clone := *r
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}
