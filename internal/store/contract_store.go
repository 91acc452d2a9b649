package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrContractNotFound = errors.New("contract not found")

// ContractStore persists contracts and their signature audit trail.
type ContractStore interface {
	Create(ctx context.Context, contract *models.Contract) error
	Get(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, error)
	Update(ctx context.Context, contract *models.Contract) error
	List(ctx context.Context, orgID uuid.UUID, clientID *uuid.UUID) ([]*models.Contract, error)
}
