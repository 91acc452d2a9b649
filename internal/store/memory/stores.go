package memory

import "github.com/wolfeidau/studioos/internal/store"

// NewStores returns a full set of in-memory stores.
func NewStores() *store.Stores {
	return &store.Stores{
		Organizations: NewOrganizationStore(),
		Members:       NewMemberStore(),
		Clients:       NewClientStore(),
		Galleries:     NewGalleryStore(),
		Bookings:      NewBookingStore(),
		Invoices:      NewInvoiceStore(),
		Contracts:     NewContractStore(),
		Integrations:  NewIntegrationStore(),
		Automations:   NewAutomationStore(),
	}
}
