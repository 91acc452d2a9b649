package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// ClientStore implements store.ClientStore using PostgreSQL.
type ClientStore struct {
	db
}

const clientColumns = `client_id, org_id, name, email, phone, notes, quickbooks_customer_id, created_at, updated_at`

func (s *ClientStore) Create(ctx context.Context, client *models.Client) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		client.ClientID,
		client.OrgID,
		client.Name,
		client.Email,
		client.Phone,
		client.Notes,
		client.QuickBooksCustomerID,
		client.CreatedAt,
		client.UpdatedAt,
	)
	return mapPostgresError(err, store.ErrOrganizationNotFound)
}

func (s *ClientStore) Get(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE org_id = $1 AND client_id = $2`, orgID, clientID)
	c, err := scanClient(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrClientNotFound)
	}
	return c, nil
}

func (s *ClientStore) Update(ctx context.Context, client *models.Client) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	client.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE clients SET
			name = $3,
			email = $4,
			phone = $5,
			notes = $6,
			quickbooks_customer_id = $7,
			updated_at = $8
		WHERE org_id = $1 AND client_id = $2
	`,
		client.OrgID,
		client.ClientID,
		client.Name,
		client.Email,
		client.Phone,
		client.Notes,
		client.QuickBooksCustomerID,
		client.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrClientNotFound
	}
	return nil
}

func (s *ClientStore) Delete(ctx context.Context, orgID, clientID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE org_id = $1 AND client_id = $2`, orgID, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrClientNotFound
	}
	return nil
}

func (s *ClientStore) List(ctx context.Context, orgID uuid.UUID, search string) ([]*models.Client, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY lower(name)
	`, orgID, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Client, error) {
		return scanClient(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan clients: %w", err)
	}
	return clients, nil
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.ClientID,
		&c.OrgID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Notes,
		&c.QuickBooksCustomerID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
