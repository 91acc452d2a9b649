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

// ContractStore implements store.ContractStore using in-memory storage.
type ContractStore struct {
	mu sync.RWMutex

	contracts map[uuid.UUID]*models.Contract
}

// NewContractStore creates a new in-memory contract store.
func NewContractStore() *ContractStore {
	return &ContractStore{
		contracts: make(map[uuid.UUID]*models.Contract),
	}
}

func (s *ContractStore) Create(ctx context.Context, contract *models.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contracts[contract.ContractID] = cloneContract(contract)

	return nil
}

func (s *ContractStore) Get(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.contracts[contractID]
	if !exists || c.OrgID != orgID {
		return nil, store.ErrContractNotFound
	}

	return cloneContract(c), nil
}

func (s *ContractStore) Update(ctx context.Context, contract *models.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.contracts[contract.ContractID]
	if !exists || existing.OrgID != contract.OrgID {
		return store.ErrContractNotFound
	}

	contract.UpdatedAt = time.Now()
	s.contracts[contract.ContractID] = cloneContract(contract)

	return nil
}

func (s *ContractStore) List(ctx context.Context, orgID uuid.UUID, clientID *uuid.UUID) ([]*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Contract
	for _, c := range s.contracts {
		if c.OrgID != orgID {
			continue
		}
		if clientID != nil && c.ClientID != *clientID {
			continue
		}
		result = append(result, cloneContract(c))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func cloneContract(c *models.Contract) *models.Contract {
	clone := *c
	for _, p := range []**time.Time{&clone.SentAt, &clone.ViewedAt, &clone.SignedAt} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	if c.BookingID != nil {
		id := *c.BookingID
		clone.BookingID = &id
	}
	return &clone
}
