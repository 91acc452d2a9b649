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

// ContractStore implements store.ContractStore using PostgreSQL.
type ContractStore struct {
	db
}

const contractColumns = `contract_id, org_id, client_id, booking_id, title, body, status,
	sent_at, viewed_at, signed_at, signer_name, signer_ip, signer_user_agent,
	signature_key, signature_checksum, created_at, updated_at`

func (s *ContractStore) Create(ctx context.Context, c *models.Contract) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		c.ContractID,
		c.OrgID,
		c.ClientID,
		c.BookingID,
		c.Title,
		c.Body,
		c.Status,
		c.SentAt,
		c.ViewedAt,
		c.SignedAt,
		c.SignerName,
		c.SignerIP,
		c.SignerUserAgent,
		c.SignatureKey,
		c.SignatureChecksum,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapPostgresError(err, store.ErrClientNotFound)
}

func (s *ContractStore) Get(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE org_id = $1 AND contract_id = $2`, orgID, contractID)
	c, err := scanContract(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrContractNotFound)
	}
	return c, nil
}

func (s *ContractStore) Update(ctx context.Context, c *models.Contract) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE contracts SET
			client_id = $3,
			booking_id = $4,
			title = $5,
			body = $6,
			status = $7,
			sent_at = $8,
			viewed_at = $9,
			signed_at = $10,
			signer_name = $11,
			signer_ip = $12,
			signer_user_agent = $13,
			signature_key = $14,
			signature_checksum = $15,
			updated_at = $16
		WHERE org_id = $1 AND contract_id = $2
	`,
		c.OrgID,
		c.ContractID,
		c.ClientID,
		c.BookingID,
		c.Title,
		c.Body,
		c.Status,
		c.SentAt,
		c.ViewedAt,
		c.SignedAt,
		c.SignerName,
		c.SignerIP,
		c.SignerUserAgent,
		c.SignatureKey,
		c.SignatureChecksum,
		c.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrContractNotFound
	}
	return nil
}

func (s *ContractStore) List(ctx context.Context, orgID uuid.UUID, clientID *uuid.UUID) ([]*models.Contract, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE org_id = $1 AND ($2::uuid IS NULL OR client_id = $2)
		ORDER BY created_at DESC
	`, orgID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	contracts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Contract, error) {
		return scanContract(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan contracts: %w", err)
	}
	return contracts, nil
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(
		&c.ContractID,
		&c.OrgID,
		&c.ClientID,
		&c.BookingID,
		&c.Title,
		&c.Body,
		&c.Status,
		&c.SentAt,
		&c.ViewedAt,
		&c.SignedAt,
		&c.SignerName,
		&c.SignerIP,
		&c.SignerUserAgent,
		&c.SignatureKey,
		&c.SignatureChecksum,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
