package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	db
}

const organizationColumns = `org_id, name, slug, owner_user_id, currency, timezone,
	stripe_account_id, platform_fee_percent, created_at, updated_at`

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO organizations (` + organizationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.OwnerUserID,
		org.Currency,
		org.Timezone,
		org.StripeAccountID,
		numeric(org.PlatformFeePercent),
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE org_id = $1`, orgID)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrOrganizationNotFound)
	}

	return org, nil
}

// GetBySlug retrieves an organization by its slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrOrganizationNotFound)
	}

	return org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			slug = $3,
			owner_user_id = $4,
			currency = $5,
			timezone = $6,
			stripe_account_id = $7,
			platform_fee_percent = $8,
			updated_at = $9
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.OwnerUserID,
		org.Currency,
		org.Timezone,
		org.StripeAccountID,
		numeric(org.PlatformFeePercent),
		org.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Msg("Updated organization")

	return nil
}

// Delete deletes an organization by ID.
// This cascade-deletes all tenant data via FK constraints.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization (and cascade-deleted all tenant data)")

	return nil
}

// ListByOwner returns all organizations owned by a Clerk user.
func (s *OrganizationStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org models.Organization
		fee pgtype.Numeric
	)
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.OwnerUserID,
		&org.Currency,
		&org.Timezone,
		&org.StripeAccountID,
		&fee,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.PlatformFeePercent = decimalFrom(fee)
	return &org, nil
}

// MemberStore implements store.MemberStore using PostgreSQL.
type MemberStore struct {
	db
}

const memberColumns = `member_id, org_id, clerk_user_id, email, name, role, created_at`

func (s *MemberStore) Create(ctx context.Context, member *models.Member) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		member.MemberID,
		member.OrgID,
		member.ClerkUserID,
		member.Email,
		member.Name,
		member.Role,
		member.CreatedAt,
	)
	return mapPostgresError(err, store.ErrOrganizationNotFound)
}

func (s *MemberStore) GetByClerkUser(ctx context.Context, clerkUserID string) (*models.Member, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var m models.Member
	err := s.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE clerk_user_id = $1`, clerkUserID).Scan(
		&m.MemberID, &m.OrgID, &m.ClerkUserID, &m.Email, &m.Name, &m.Role, &m.CreatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrMemberNotFound)
	}
	return &m, nil
}

func (s *MemberStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+memberColumns+` FROM members WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Member, error) {
		var m models.Member
		err := row.Scan(&m.MemberID, &m.OrgID, &m.ClerkUserID, &m.Email, &m.Name, &m.Role, &m.CreatedAt)
		return &m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	return members, nil
}

func (s *MemberStore) Delete(ctx context.Context, orgID, memberID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM members WHERE org_id = $1 AND member_id = $2`, orgID, memberID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrMemberNotFound
	}
	return nil
}
