package store

// Stores bundles every store implementation so a backend can be swapped as a unit.
type Stores struct {
	Organizations OrganizationStore
	Members       MemberStore
	Clients       ClientStore
	Galleries     GalleryStore
	Bookings      BookingStore
	Invoices      InvoiceStore
	Contracts     ContractStore
	Integrations  IntegrationStore
	Automations   AutomationStore
}
