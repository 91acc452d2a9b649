package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// IntegrationStore implements store.IntegrationStore using in-memory storage.
type IntegrationStore struct {
	mu sync.RWMutex

	quickbooks map[uuid.UUID]*models.QuickBooksIntegration
	dropbox    map[uuid.UUID]*models.DropboxConfig
}

// NewIntegrationStore creates a new in-memory integration store.
func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{
		quickbooks: make(map[uuid.UUID]*models.QuickBooksIntegration),
		dropbox:    make(map[uuid.UUID]*models.DropboxConfig),
	}
}

func (s *IntegrationStore) UpsertQuickBooks(ctx context.Context, integration *models.QuickBooksIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.quickbooks[integration.OrgID]; ok && integration.ConnectedAt.IsZero() {
		integration.ConnectedAt = existing.ConnectedAt
	}
	if integration.ConnectedAt.IsZero() {
		integration.ConnectedAt = now
	}
	integration.UpdatedAt = now

	clone := *integration
	s.quickbooks[integration.OrgID] = &clone

	return nil
}

func (s *IntegrationStore) GetQuickBooks(ctx context.Context, orgID uuid.UUID) (*models.QuickBooksIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qb, ok := s.quickbooks[orgID]
	if !ok {
		return nil, store.ErrIntegrationNotFound
	}

	clone := *qb
	return &clone, nil
}

func (s *IntegrationStore) DeleteQuickBooks(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quickbooks[orgID]; !ok {
		return store.ErrIntegrationNotFound
	}
	delete(s.quickbooks, orgID)

	return nil
}

func (s *IntegrationStore) UpsertDropbox(ctx context.Context, cfg *models.DropboxConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.dropbox[cfg.OrgID]; ok && cfg.ConnectedAt.IsZero() {
		cfg.ConnectedAt = existing.ConnectedAt
	}
	if cfg.ConnectedAt.IsZero() {
		cfg.ConnectedAt = now
	}
	cfg.UpdatedAt = now

	clone := *cfg
	s.dropbox[cfg.OrgID] = &clone

	return nil
}

func (s *IntegrationStore) GetDropbox(ctx context.Context, orgID uuid.UUID) (*models.DropboxConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.dropbox[orgID]
	if !ok {
		return nil, store.ErrIntegrationNotFound
	}

	clone := *cfg
	return &clone, nil
}

func (s *IntegrationStore) DeleteDropbox(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dropbox[orgID]; !ok {
		return store.ErrIntegrationNotFound
	}
	delete(s.dropbox, orgID)

	return nil
}
