// Package tenancy provisions studios and manages their settings and staff.
package tenancy

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/money"
	"github.com/wolfeidau/studioos/internal/store"
)

var (
	ErrInvalidStripeAccount = errors.New("stripe account id must start with acct_")
	ErrInvalidCurrency      = errors.New("currency must be a three letter ISO 4217 code")
	ErrInvalidTimezone      = errors.New("unknown timezone")
	ErrInvalidRole          = errors.New("invalid member role")
	ErrCannotRemoveOwner    = errors.New("the organization owner cannot be removed")
	ErrNameRequired         = errors.New("name is required")
)

const slugAttempts = 5

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	currencyCode = regexp.MustCompile(`^[a-z]{3}$`)
)

// Config holds defaults applied to new organizations.
type Config struct {
	DefaultCurrency   string
	DefaultTimezone   string
	DefaultFeePercent decimal.Decimal
}

// Service provisions organizations and their members.
type Service struct {
	orgs    store.OrganizationStore
	members store.MemberStore
	cfg     Config
}

func NewService(orgs store.OrganizationStore, members store.MemberStore, cfg Config) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return &Service{orgs: orgs, members: members, cfg: cfg}
}

// ProvisionInput describes the Clerk user creating a studio.
type ProvisionInput struct {
	ClerkUserID string
	Email       string
	Name        string
	OrgName     string
}

// Provision creates an organization and its owner membership.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*models.Organization, *models.Member, error) {
	orgName := strings.TrimSpace(in.OrgName)
	if orgName == "" {
		return nil, nil, ErrNameRequired
	}
	if in.ClerkUserID == "" {
		return nil, nil, fmt.Errorf("clerk user id is required")
	}

	if _, err := s.members.GetByClerkUser(ctx, in.ClerkUserID); err == nil {
		return nil, nil, store.ErrMemberAlreadyExists
	} else if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, nil, fmt.Errorf("failed to check membership: %w", err)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:              uuid.Must(uuid.NewV7()),
		Name:               orgName,
		OwnerUserID:        in.ClerkUserID,
		Currency:           s.cfg.DefaultCurrency,
		Timezone:           s.cfg.DefaultTimezone,
		PlatformFeePercent: s.cfg.DefaultFeePercent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	base := Slugify(orgName)
	for attempt := 0; ; attempt++ {
		org.Slug = base
		if attempt > 0 {
			org.Slug = base + "-" + randomSuffix()
		}

		err := s.orgs.Create(ctx, org)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrSlugTaken) || attempt+1 >= slugAttempts {
			return nil, nil, fmt.Errorf("failed to create organization: %w", err)
		}
	}

	member := &models.Member{
		MemberID:    uuid.Must(uuid.NewV7()),
		OrgID:       org.OrgID,
		ClerkUserID: in.ClerkUserID,
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Name:        strings.TrimSpace(in.Name),
		Role:        models.RoleOwner,
		CreatedAt:   now,
	}
	if err := s.members.Create(ctx, member); err != nil {
		if delErr := s.orgs.Delete(ctx, org.OrgID); delErr != nil {
			zerolog.Ctx(ctx).Error().Err(delErr).Str("org_id", org.OrgID.String()).Msg("Failed to roll back organization")
		}
		return nil, nil, fmt.Errorf("failed to create owner member: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Msg("Organization provisioned")

	return org, member, nil
}

// ConnectStripe records the studio's Stripe Connect account.
func (s *Service) ConnectStripe(ctx context.Context, orgID uuid.UUID, accountID string) (*models.Organization, error) {
	accountID = strings.TrimSpace(accountID)
	if !strings.HasPrefix(accountID, "acct_") || len(accountID) == len("acct_") {
		return nil, ErrInvalidStripeAccount
	}

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	org.StripeAccountID = accountID
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to save stripe account: %w", err)
	}
	return org, nil
}

// SettingsUpdate carries the organization fields a PATCH may change. Nil fields are unchanged.
type SettingsUpdate struct {
	Name               *string
	Currency           *string
	Timezone           *string
	PlatformFeePercent *decimal.Decimal
}

func (s *Service) UpdateSettings(ctx context.Context, orgID uuid.UUID, upd SettingsUpdate) (*models.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		org.Name = name
	}
	if upd.Currency != nil {
		currency := strings.ToLower(strings.TrimSpace(*upd.Currency))
		if !currencyCode.MatchString(currency) {
			return nil, ErrInvalidCurrency
		}
		org.Currency = currency
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil || *upd.Timezone == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, *upd.Timezone)
		}
		org.Timezone = *upd.Timezone
	}
	if upd.PlatformFeePercent != nil {
		if err := money.ValidateFeePercent(*upd.PlatformFeePercent); err != nil {
			return nil, err
		}
		org.PlatformFeePercent = *upd.PlatformFeePercent
	}

	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	return org, nil
}

// AddMember adds a Clerk user to the organization as admin or staff.
func (s *Service) AddMember(ctx context.Context, orgID uuid.UUID, clerkUserID, email, name, role string) (*models.Member, error) {
	if role != models.RoleAdmin && role != models.RoleStaff {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if clerkUserID == "" {
		return nil, fmt.Errorf("clerk user id is required")
	}
	if _, err := s.orgs.Get(ctx, orgID); err != nil {
		return nil, err
	}

	member := &models.Member{
		MemberID:    uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		ClerkUserID: clerkUserID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Name:        strings.TrimSpace(name),
		Role:        role,
		CreatedAt:   time.Now(),
	}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) RemoveMember(ctx context.Context, orgID, memberID uuid.UUID) error {
	members, err := s.members.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.MemberID == memberID {
			if m.Role == models.RoleOwner {
				return ErrCannotRemoveOwner
			}
			return s.members.Delete(ctx, orgID, memberID)
		}
	}
	return store.ErrMemberNotFound
}

func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.orgs.Get(ctx, orgID)
}

func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	return s.members.ListByOrg(ctx, orgID)
}

// Slugify lowercases name and joins its alphanumeric runs with hyphens.
func Slugify(name string) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return "studio"
	}
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	return slug
}

func randomSuffix() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return strings.ToLower(base58.Encode(b))
}
