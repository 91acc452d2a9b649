package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// IntegrationStore implements store.IntegrationStore using PostgreSQL.
// There is at most one row per organization and provider.
type IntegrationStore struct {
	db
}

// UpsertQuickBooks inserts or replaces the organization's QuickBooks tokens.
// ConnectedAt is preserved across reconnects.
func (s *IntegrationStore) UpsertQuickBooks(ctx context.Context, qb *models.QuickBooksIntegration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now()
	qb.UpdatedAt = now
	if qb.ConnectedAt.IsZero() {
		qb.ConnectedAt = now
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO quickbooks_integrations (
			org_id, realm_id, company_name, access_token, refresh_token,
			token_expires_at, connected_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id) DO UPDATE SET
			realm_id = EXCLUDED.realm_id,
			company_name = EXCLUDED.company_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING connected_at
	`,
		qb.OrgID,
		qb.RealmID,
		qb.CompanyName,
		qb.AccessToken,
		qb.RefreshToken,
		qb.TokenExpiresAt,
		qb.ConnectedAt,
		qb.UpdatedAt,
	).Scan(&qb.ConnectedAt)
	if err != nil {
		return mapPostgresError(err, store.ErrOrganizationNotFound)
	}

	log.Debug().Str("org_id", qb.OrgID.String()).Str("realm_id", qb.RealmID).Msg("Saved QuickBooks integration")
	return nil
}

func (s *IntegrationStore) GetQuickBooks(ctx context.Context, orgID uuid.UUID) (*models.QuickBooksIntegration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var qb models.QuickBooksIntegration
	err := s.pool.QueryRow(ctx, `
		SELECT org_id, realm_id, company_name, access_token, refresh_token,
			token_expires_at, connected_at, updated_at
		FROM quickbooks_integrations
		WHERE org_id = $1
	`, orgID).Scan(
		&qb.OrgID,
		&qb.RealmID,
		&qb.CompanyName,
		&qb.AccessToken,
		&qb.RefreshToken,
		&qb.TokenExpiresAt,
		&qb.ConnectedAt,
		&qb.UpdatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrIntegrationNotFound)
	}
	return &qb, nil
}

func (s *IntegrationStore) DeleteQuickBooks(ctx context.Context, orgID uuid.UUID) error {
	return s.delete(ctx, `DELETE FROM quickbooks_integrations WHERE org_id = $1`, orgID)
}

// UpsertDropbox inserts or replaces the organization's Dropbox tokens.
func (s *IntegrationStore) UpsertDropbox(ctx context.Context, cfg *models.DropboxConfig) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now()
	cfg.UpdatedAt = now
	if cfg.ConnectedAt.IsZero() {
		cfg.ConnectedAt = now
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO dropbox_configs (
			org_id, account_id, access_token, refresh_token, token_expires_at,
			root_folder, connected_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			root_folder = EXCLUDED.root_folder,
			updated_at = EXCLUDED.updated_at
		RETURNING connected_at
	`,
		cfg.OrgID,
		cfg.AccountID,
		cfg.AccessToken,
		cfg.RefreshToken,
		cfg.TokenExpiresAt,
		cfg.RootFolder,
		cfg.ConnectedAt,
		cfg.UpdatedAt,
	).Scan(&cfg.ConnectedAt)
	if err != nil {
		return mapPostgresError(err, store.ErrOrganizationNotFound)
	}
	return nil
}

func (s *IntegrationStore) GetDropbox(ctx context.Context, orgID uuid.UUID) (*models.DropboxConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var cfg models.DropboxConfig
	err := s.pool.QueryRow(ctx, `
		SELECT org_id, account_id, access_token, refresh_token, token_expires_at,
			root_folder, connected_at, updated_at
		FROM dropbox_configs
		WHERE org_id = $1
	`, orgID).Scan(
		&cfg.OrgID,
		&cfg.AccountID,
		&cfg.AccessToken,
		&cfg.RefreshToken,
		&cfg.TokenExpiresAt,
		&cfg.RootFolder,
		&cfg.ConnectedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrIntegrationNotFound)
	}
	return &cfg, nil
}

func (s *IntegrationStore) DeleteDropbox(ctx context.Context, orgID uuid.UUID) error {
	return s.delete(ctx, `DELETE FROM dropbox_configs WHERE org_id = $1`, orgID)
}

func (s *IntegrationStore) delete(ctx context.Context, query string, orgID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrIntegrationNotFound
	}
	return nil
}
