package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// MemberStore implements store.MemberStore using in-memory storage.
type MemberStore struct {
	mu sync.RWMutex

	members     map[uuid.UUID]*models.Member // member_id -> Member
	clerkUserID map[string]uuid.UUID         // clerk_user_id -> member_id
}

// NewMemberStore creates a new in-memory member store.
func NewMemberStore() *MemberStore {
	return &MemberStore{
		members:     make(map[uuid.UUID]*models.Member),
		clerkUserID: make(map[string]uuid.UUID),
	}
}

func (s *MemberStore) Create(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[member.MemberID]; exists {
		return store.ErrMemberAlreadyExists
	}
	if _, exists := s.clerkUserID[member.ClerkUserID]; exists {
		return store.ErrMemberAlreadyExists
	}

	clone := *member
	s.members[member.MemberID] = &clone
	s.clerkUserID[member.ClerkUserID] = member.MemberID

	return nil
}

func (s *MemberStore) GetByClerkUser(ctx context.Context, clerkUserID string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.clerkUserID[clerkUserID]
	if !exists {
		return nil, store.ErrMemberNotFound
	}

	clone := *s.members[id]
	return &clone, nil
}

func (s *MemberStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Member
	for _, m := range s.members {
		if m.OrgID == orgID {
			clone := *m
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemberStore) Delete(ctx context.Context, orgID, memberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.members[memberID]
	if !exists || m.OrgID != orgID {
		return store.ErrMemberNotFound
	}

	delete(s.clerkUserID, m.ClerkUserID)
	delete(s.members, memberID)

	return nil
}
