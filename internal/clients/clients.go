// Package clients manages a studio's customer records.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

var (
	ErrEmailRequired = errors.New("client email is required")
	ErrInvalidEmail  = errors.New("client email is invalid")
	ErrNameRequired  = errors.New("client name is required")
)

// Input holds the editable client fields.
type Input struct {
	Name  string
	Email string
	Phone string
	Notes string
}

type Service struct {
	clients store.ClientStore
}

func NewService(clients store.ClientStore) *Service {
	return &Service{clients: clients}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.Client, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	client := &models.Client{
		ClientID:  uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *Service) Update(ctx context.Context, orgID, clientID uuid.UUID, in Input) (*models.Client, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	client, err := s.clients.Get(ctx, orgID, clientID)
	if err != nil {
		return nil, err
	}
	client.Name = in.Name
	client.Email = in.Email
	client.Phone = in.Phone
	client.Notes = in.Notes

	if err := s.clients.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

func (s *Service) Get(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error) {
	return s.clients.Get(ctx, orgID, clientID)
}

func (s *Service) Delete(ctx context.Context, orgID, clientID uuid.UUID) error {
	return s.clients.Delete(ctx, orgID, clientID)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, search string) ([]*models.Client, error) {
	return s.clients.List(ctx, orgID, strings.TrimSpace(search))
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Email == "" {
		return in, ErrEmailRequired
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return in, fmt.Errorf("%w: %q", ErrInvalidEmail, in.Email)
	}
	if in.Name == "" {
		return in, ErrNameRequired
	}
	return in, nil
}
