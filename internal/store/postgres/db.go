package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/studioos/internal/store"
)

// db is embedded by every store so they share one pool and query timeout.
type db struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func newDB(pool *pgxpool.Pool, cfg *PoolConfig) db {
	d := db{pool: pool, timeout: 10 * time.Second}
	if cfg != nil && cfg.QueryTimeout > 0 {
		d.timeout = time.Duration(cfg.QueryTimeout) * time.Second
	}
	return d
}

func (d db) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// NewStores returns a full set of PostgreSQL-backed stores sharing pool.
func NewStores(pool *pgxpool.Pool, cfg *PoolConfig) *store.Stores {
	d := newDB(pool, cfg)
	return &store.Stores{
		Organizations: &OrganizationStore{db: d},
		Members:       &MemberStore{db: d},
		Clients:       &ClientStore{db: d},
		Galleries:     &GalleryStore{db: d},
		Bookings:      &BookingStore{db: d},
		Invoices:      &InvoiceStore{db: d},
		Contracts:     &ContractStore{db: d},
		Integrations:  &IntegrationStore{db: d},
		Automations:   &AutomationStore{db: d},
	}
}
