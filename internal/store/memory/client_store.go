package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// ClientStore implements store.ClientStore using in-memory storage.
type ClientStore struct {
	mu sync.RWMutex

	clients map[uuid.UUID]*models.Client // client_id -> Client
}

// NewClientStore creates a new in-memory client store.
func NewClientStore() *ClientStore {
	return &ClientStore{
		clients: make(map[uuid.UUID]*models.Client),
	}
}

func (s *ClientStore) Create(ctx context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTaken(client.OrgID, client.ClientID, client.Email) {
		return store.ErrClientAlreadyExists
	}

	clone := *client
	s.clients[client.ClientID] = &clone

	return nil
}

func (s *ClientStore) Get(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.clients[clientID]
	if !exists || c.OrgID != orgID {
		return nil, store.ErrClientNotFound
	}

	clone := *c
	return &clone, nil
}

func (s *ClientStore) Update(ctx context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.clients[client.ClientID]
	if !exists || existing.OrgID != client.OrgID {
		return store.ErrClientNotFound
	}

	if s.emailTaken(client.OrgID, client.ClientID, client.Email) {
		return store.ErrClientAlreadyExists
	}

	client.UpdatedAt = time.Now()

	clone := *client
	s.clients[client.ClientID] = &clone

	return nil
}

func (s *ClientStore) Delete(ctx context.Context, orgID, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clients[clientID]
	if !exists || c.OrgID != orgID {
		return store.ErrClientNotFound
	}

	delete(s.clients, clientID)

	return nil
}

func (s *ClientStore) List(ctx context.Context, orgID uuid.UUID, search string) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))

	var result []*models.Client
	for _, c := range s.clients {
		if c.OrgID != orgID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) {
			continue
		}
		clone := *c
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})

	return result, nil
}

// emailTaken must be called with the lock held.
func (s *ClientStore) emailTaken(orgID, clientID uuid.UUID, email string) bool {
	for _, c := range s.clients {
		if c.OrgID == orgID && c.ClientID != clientID && c.Email == email {
			return true
		}
	}
	return false
}
