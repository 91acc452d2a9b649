// Package contracts sends agreements to clients and records their electronic signatures.
package contracts

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/notify"
	"github.com/wolfeidau/studioos/internal/objectstore"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

var (
	ErrInvalidTransition = errors.New("invalid contract status transition")
	ErrNotDraft          = errors.New("only draft contracts can be edited")
	ErrAlreadySigned     = errors.New("contract is already signed")
	ErrNotSignable       = errors.New("contract is not open for signing")
	ErrContractVoid      = errors.New("contract has been voided")
	ErrSignerRequired    = errors.New("signer name is required")
	ErrInvalidSignature  = errors.New("signature must be a PNG data URL")
	ErrSignatureTooLarge = errors.New("signature image is too large")
	ErrTitleRequired     = errors.New("contract title is required")
	ErrNoSignatureOnFile = errors.New("contract has no signature")
	ErrBookingMismatch   = errors.New("booking belongs to another client")
)

const (
	// MaxSignatureBytes bounds the decoded PNG.
	MaxSignatureBytes = 512 << 10

	signaturePrefix = "data:image/png;base64,"

	DefaultLinkTTL = 30 * 24 * time.Hour
)

// Config holds service options.
type Config struct {
	BaseURL string
	LinkTTL time.Duration
}

type Service struct {
	contracts store.ContractStore
	clients   store.ClientStore
	bookings  store.BookingStore
	orgs      store.OrganizationStore
	objects   objectstore.Store
	signer    *links.Signer
	sender    notify.Sender
	events    events.Publisher
	cfg       Config
	now       func() time.Time

	// signing serializes the signable check with the signed write.
	signing sync.Mutex
}

func NewService(stores *store.Stores, objects objectstore.Store, signer *links.Signer, sender notify.Sender, publisher events.Publisher, cfg Config) *Service {
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}
	return &Service{
		contracts: stores.Contracts,
		clients:   stores.Clients,
		bookings:  stores.Bookings,
		orgs:      stores.Organizations,
		objects:   objects,
		signer:    signer,
		sender:    sender,
		events:    publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Input holds the editable contract fields.
type Input struct {
	ClientID  uuid.UUID
	BookingID *uuid.UUID
	Title     string
	Body      string
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.Contract, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Contract{
		ContractID: uuid.Must(uuid.NewV7()),
		OrgID:      orgID,
		ClientID:   in.ClientID,
		BookingID:  in.BookingID,
		Title:      in.Title,
		Body:       in.Body,
		Status:     models.ContractStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, orgID, contractID uuid.UUID, in Input) (*models.Contract, error) {
	c, err := s.contracts.Get(ctx, orgID, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ContractStatusDraft {
		return nil, ErrNotDraft
	}
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, err
	}

	c.ClientID = in.ClientID
	c.BookingID = in.BookingID
	c.Title = in.Title
	c.Body = in.Body
	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, error) {
	return s.contracts.Get(ctx, orgID, contractID)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, clientID *uuid.UUID) ([]*models.Contract, error) {
	return s.contracts.List(ctx, orgID, clientID)
}

// Send moves a draft to sent, emails the client the signing link and returns it.
func (s *Service) Send(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, string, error) {
	c, err := s.contracts.Get(ctx, orgID, contractID)
	if err != nil {
		return nil, "", err
	}
	if c.Status != models.ContractStatusDraft {
		return nil, "", fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.Status, models.ContractStatusSent)
	}
	client, err := s.clients.Get(ctx, orgID, c.ClientID)
	if err != nil {
		return nil, "", err
	}

	token, err := s.signer.Sign(links.KindContract, orgID, contractID, s.cfg.LinkTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign contract link: %w", err)
	}
	link := strings.TrimRight(s.cfg.BaseURL, "/") + "/p/contracts/" + token

	now := s.now()
	c.Status = models.ContractStatusSent
	c.SentAt = &now
	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, "", fmt.Errorf("failed to update contract: %w", err)
	}

	studio := "Your photographer"
	if org, err := s.orgs.Get(ctx, orgID); err == nil {
		studio = org.Name
	}
	err = s.sender.Send(ctx, notify.Message{
		To:      client.Email,
		ToName:  client.Name,
		Subject: fmt.Sprintf("Please review and sign: %s", c.Title),
		Text:    fmt.Sprintf("Hi %s,\n\n%s has sent you %q to review and sign:\n\n%s\n", client.Name, studio, c.Title, link),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("contract_id", c.ContractID.String()).Msg("Failed to email contract link")
	}

	s.events.Publish(ctx, events.New(events.ContractSent, orgID, map[string]any{
		"contract": events.ContractPayload(c),
		"client":   events.ClientPayload(client),
		"link":     link,
	}))
	return c, link, nil
}

// View resolves a signing link, marking the contract viewed on first open.
func (s *Service) View(ctx context.Context, token string) (*models.Contract, error) {
	c, err := s.open(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ContractStatusSent {
		now := s.now()
		c.Status = models.ContractStatusViewed
		c.ViewedAt = &now
		if err := s.contracts.Update(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to mark contract viewed: %w", err)
		}
	}
	return c, nil
}

// SignInput is what the signing page submits.
type SignInput struct {
	Token            string
	SignerName       string
	SignatureDataURL string
	IP               string
	UserAgent        string
}

// Sign validates and stores the signature image and marks the contract signed.
func (s *Service) Sign(ctx context.Context, in SignInput) (*models.Contract, error) {
	signerName := strings.TrimSpace(in.SignerName)
	if signerName == "" {
		return nil, ErrSignerRequired
	}
	image, err := DecodeSignature(in.SignatureDataURL)
	if err != nil {
		return nil, err
	}

	s.signing.Lock()
	defer s.signing.Unlock()

	c, err := s.open(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ContractStatusSigned {
		return nil, ErrAlreadySigned
	}
	if !c.IsSignable() {
		return nil, fmt.Errorf("%w: contract is %s", ErrNotSignable, c.Status)
	}

	key := fmt.Sprintf("signatures/%s/%s.png", c.OrgID, c.ContractID)
	obj, err := s.objects.Put(ctx, key, "image/png", image)
	if err != nil {
		return nil, fmt.Errorf("failed to store signature: %w", err)
	}

	now := s.now()
	c.Status = models.ContractStatusSigned
	c.SignedAt = &now
	c.SignerName = signerName
	c.SignerIP = in.IP
	c.SignerUserAgent = in.UserAgent
	c.SignatureKey = obj.Key
	c.SignatureChecksum = obj.Checksum
	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save signed contract: %w", err)
	}

	telemetry.GetMetrics().ContractsSignedTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Info().
		Str("contract_id", c.ContractID.String()).
		Str("org_id", c.OrgID.String()).
		Str("checksum", obj.Checksum).
		Msg("Contract signed")

	payload := map[string]any{"contract": events.ContractPayload(c)}
	if client, err := s.clients.Get(ctx, c.OrgID, c.ClientID); err == nil {
		payload["client"] = events.ClientPayload(client)
	}
	s.events.Publish(ctx, events.New(events.ContractSigned, c.OrgID, payload))

	return c, nil
}

// Void withdraws a contract that has not been signed.
func (s *Service) Void(ctx context.Context, orgID, contractID uuid.UUID) (*models.Contract, error) {
	s.signing.Lock()
	defer s.signing.Unlock()

	c, err := s.contracts.Get(ctx, orgID, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ContractStatusSigned || c.Status == models.ContractStatusVoid {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.Status, models.ContractStatusVoid)
	}
	c.Status = models.ContractStatusVoid
	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to void contract: %w", err)
	}
	return c, nil
}

// Signature returns the stored signature PNG, verifying its checksum.
func (s *Service) Signature(ctx context.Context, orgID, contractID uuid.UUID) ([]byte, error) {
	c, err := s.contracts.Get(ctx, orgID, contractID)
	if err != nil {
		return nil, err
	}
	if c.SignatureKey == "" {
		return nil, ErrNoSignatureOnFile
	}
	data, obj, err := s.objects.Get(ctx, c.SignatureKey)
	if err != nil {
		return nil, err
	}
	if obj.Checksum != c.SignatureChecksum {
		return nil, fmt.Errorf("signature checksum mismatch for contract %s", contractID)
	}
	return data, nil
}

// DecodeSignature parses a data:image/png;base64 URL into PNG bytes.
func DecodeSignature(dataURL string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(strings.TrimSpace(dataURL), signaturePrefix)
	if !ok || encoded == "" {
		return nil, ErrInvalidSignature
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxSignatureBytes+2 {
		return nil, ErrSignatureTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(data) > MaxSignatureBytes {
		return nil, ErrSignatureTooLarge
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return data, nil
}

// open resolves a contract link. Drafts look like they do not exist.
func (s *Service) open(ctx context.Context, token string) (*models.Contract, error) {
	claims, err := s.signer.Verify(token, links.KindContract)
	if err != nil {
		return nil, err
	}
	c, err := s.contracts.Get(ctx, claims.OrgID, claims.ID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case models.ContractStatusDraft:
		return nil, store.ErrContractNotFound
	case models.ContractStatusVoid:
		return nil, ErrContractVoid
	}
	return c, nil
}

func (s *Service) validate(ctx context.Context, orgID uuid.UUID, in *Input) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrTitleRequired
	}
	if _, err := s.clients.Get(ctx, orgID, in.ClientID); err != nil {
		return err
	}
	if in.BookingID != nil {
		b, err := s.bookings.Get(ctx, orgID, *in.BookingID)
		if err != nil {
			return err
		}
		if b.ClientID != in.ClientID {
			return fmt.Errorf("%w: %s", ErrBookingMismatch, b.BookingID)
		}
	}
	return nil
}
