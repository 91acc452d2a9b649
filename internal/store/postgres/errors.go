package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/studioos/internal/store"
)

// uniqueConstraints maps unique constraint names to the sentinel error callers expect.
var uniqueConstraints = map[string]error{
	"organizations_pkey":        store.ErrOrganizationAlreadyExists,
	"organizations_slug_key":    store.ErrSlugTaken,
	"members_pkey":              store.ErrMemberAlreadyExists,
	"members_clerk_user_id_key": store.ErrMemberAlreadyExists,
	"clients_pkey":              store.ErrClientAlreadyExists,
	"clients_org_email_key":     store.ErrClientAlreadyExists,
	"galleries_pkey":            store.ErrGalleryAlreadyExists,
	"galleries_slug_key":        store.ErrGalleryAlreadyExists,
	"invoices_pkey":             store.ErrInvoiceAlreadyExists,
	"invoices_org_number_key":   store.ErrInvoiceAlreadyExists,
	"payments_pkey":             store.ErrPaymentAlreadyExists,
	"payments_provider_ref_key": store.ErrPaymentAlreadyExists,
}

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// notFound is returned for missing rows and foreign key violations.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if sentinel, ok := uniqueConstraints[pgErr.ConstraintName]; ok {
			return sentinel
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		if notFound != nil {
			return fmt.Errorf("%w: %s", notFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		// Context cancellation or timeout
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
