package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/apiclient"
	"github.com/wolfeidau/studioos/internal/automation"
	"github.com/wolfeidau/studioos/internal/billing"
	"github.com/wolfeidau/studioos/internal/bookings"
	"github.com/wolfeidau/studioos/internal/checkout"
	"github.com/wolfeidau/studioos/internal/clients"
	"github.com/wolfeidau/studioos/internal/contracts"
	"github.com/wolfeidau/studioos/internal/dropbox"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/money"
	"github.com/wolfeidau/studioos/internal/quickbooks"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/tenancy"
)

// errorResponse is the body of every failed API request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errorStatuses = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{
		store.ErrOrganizationNotFound,
		store.ErrMemberNotFound,
		store.ErrClientNotFound,
		store.ErrGalleryNotFound,
		store.ErrPhotoNotFound,
		store.ErrBookingNotFound,
		store.ErrInvoiceNotFound,
		store.ErrPaymentNotFound,
		store.ErrContractNotFound,
		store.ErrRuleNotFound,
		links.ErrInvalidLink,
		contracts.ErrNoSignatureOnFile,
		galleries.ErrNoWebRendition,
	}},
	{http.StatusGone, []error{
		links.ErrExpiredLink,
		galleries.ErrGalleryExpired,
	}},
	{http.StatusUnauthorized, []error{
		galleries.ErrPasswordRequired,
		galleries.ErrInvalidPassword,
	}},
	{http.StatusForbidden, []error{
		galleries.ErrDownloadsDisabled,
	}},
	{http.StatusConflict, []error{
		store.ErrOrganizationAlreadyExists,
		store.ErrSlugTaken,
		store.ErrMemberAlreadyExists,
		store.ErrClientAlreadyExists,
		store.ErrGalleryAlreadyExists,
		store.ErrInvoiceAlreadyExists,
		store.ErrPaymentAlreadyExists,
		store.ErrInvoiceStatusChanged,
		tenancy.ErrCannotRemoveOwner,
		galleries.ErrInvalidTransition,
		galleries.ErrGalleryArchived,
		bookings.ErrInvalidTransition,
		bookings.ErrBookingConflict,
		billing.ErrInvalidTransition,
		billing.ErrNotDraft,
		billing.ErrInvoiceNotPayable,
		contracts.ErrInvalidTransition,
		contracts.ErrNotDraft,
		contracts.ErrAlreadySigned,
		contracts.ErrNotSignable,
		contracts.ErrContractVoid,
		checkout.ErrNothingDue,
		checkout.ErrStripeNotConnected,
		quickbooks.ErrInvoiceNotSyncable,
		integrations.ErrNotConnected,
	}},
	{http.StatusServiceUnavailable, []error{
		errIntegrationDisabled,
	}},
	{http.StatusBadRequest, []error{
		errBadRequest,
		checkout.ErrInvalidSignature,
		tenancy.ErrInvalidStripeAccount,
		tenancy.ErrInvalidCurrency,
		tenancy.ErrInvalidTimezone,
		tenancy.ErrInvalidRole,
		tenancy.ErrNameRequired,
		money.ErrNegativeAmount,
		money.ErrInvalidFeePercent,
		clients.ErrEmailRequired,
		clients.ErrInvalidEmail,
		clients.ErrNameRequired,
		galleries.ErrTitleRequired,
		galleries.ErrInvalidResolution,
		galleries.ErrInvalidPrice,
		galleries.ErrUnsupportedPhoto,
		galleries.ErrPhotoIncomplete,
		bookings.ErrInvalidTimeRange,
		bookings.ErrTitleRequired,
		billing.ErrInvalidPayment,
		billing.ErrUnknownProvider,
		billing.ErrReferenceRequired,
		billing.ErrCurrencyMismatch,
		billing.ErrDueDateRequired,
		billing.ErrNoItems,
		billing.ErrInvalidQuantity,
		billing.ErrInvalidUnitPrice,
		billing.ErrInvalidTaxRate,
		billing.ErrDiscountTooLarge,
		billing.ErrNegativeDiscount,
		billing.ErrDescriptionNeeded,
		contracts.ErrSignerRequired,
		contracts.ErrInvalidSignature,
		contracts.ErrSignatureTooLarge,
		contracts.ErrTitleRequired,
		contracts.ErrBookingMismatch,
		automation.ErrNameRequired,
		automation.ErrUnknownTrigger,
		automation.ErrUnknownAction,
		automation.ErrActionTrigger,
		automation.ErrInvalidCondition,
		automation.ErrInvalidTemplate,
		dropbox.ErrFolderRequired,
	}},
}

// statusFor maps a service error to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	var vendor *apiclient.StatusError
	if errors.As(err, &vendor) || errors.Is(err, apiclient.ErrBodyTooLarge) {
		return http.StatusBadGateway
	}
	for _, group := range errorStatuses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// writeError writes err as JSON. Internal and vendor errors are logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorCode(w, r, err, "")
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, err error, code string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, r, status, errorResponse{Error: msg, Code: code})
}
