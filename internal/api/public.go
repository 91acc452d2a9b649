package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/checkout"
	"github.com/wolfeidau/studioos/internal/contracts"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/models"
)

// Redirect codes read by the client payment page.
const (
	ErrorPaymentNotCompleted = "payment_not_completed"
	ErrorCheckoutFailed      = "checkout_failed"
	SuccessPaymentReceived   = "payment_received"
)

// GalleryPasswordHeader carries the password for protected galleries.
const GalleryPasswordHeader = "X-Gallery-Password"

const maxWebhookBytes = 64 << 10

func (s *Server) registerPublic(mux *http.ServeMux) {
	mux.HandleFunc("GET /p/contracts/{token}", s.viewContract)
	mux.HandleFunc("POST /p/contracts/{token}/sign", s.signContract)

	mux.HandleFunc("GET /p/invoices/{token}", s.viewInvoice)
	mux.HandleFunc("POST /p/invoices/{token}/checkout", s.startCheckout)
	mux.HandleFunc("GET /pay/return", s.paymentReturn)

	mux.HandleFunc("GET /p/galleries/{slug}", s.openGallery)
	mux.HandleFunc("POST /p/galleries/{slug}", s.openGallery)
	mux.HandleFunc("PUT /p/galleries/{slug}/photos/{photoID}/favorite", s.favoritePhoto)
	mux.HandleFunc("GET /p/galleries/{slug}/photos/{photoID}/download", s.downloadPhoto)

	mux.HandleFunc("POST /webhooks/stripe", s.stripeWebhook)
}

// publicContract is the signing page view of a contract.
type publicContract struct {
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	SignerName string     `json:"signer_name,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
}

func newPublicContract(c *models.Contract) publicContract {
	return publicContract{
		Title:      c.Title,
		Body:       c.Body,
		Status:     c.Status,
		SignerName: c.SignerName,
		SignedAt:   c.SignedAt,
	}
}

func (s *Server) viewContract(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Contracts.View(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPublicContract(c))
}

type signRequest struct {
	SignerName string `json:"signer_name"`
	Signature  string `json:"signature"` // data:image/png;base64,...
}

func (s *Server) signContract(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.Contracts.Sign(r.Context(), contracts.SignInput{
		Token:            r.PathValue("token"),
		SignerName:       req.SignerName,
		SignatureDataURL: req.Signature,
		IP:               s.cfg.ClientIP(r),
		UserAgent:        r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPublicContract(c))
}

// publicInvoice is the payment page view of an invoice.
type publicInvoice struct {
	Number       string            `json:"number"`
	Status       string            `json:"status"`
	Currency     string            `json:"currency"`
	Items        []models.LineItem `json:"items"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	Discount     decimal.Decimal   `json:"discount"`
	Tax          decimal.Decimal   `json:"tax"`
	Total        decimal.Decimal   `json:"total"`
	AmountPaid   decimal.Decimal   `json:"amount_paid"`
	Balance      decimal.Decimal   `json:"balance"`
	DueDate      time.Time         `json:"due_date"`
	ClientName   string            `json:"client_name"`
	Organization string            `json:"organization"`
	Payable      bool              `json:"payable"`
}

func (s *Server) viewInvoice(w http.ResponseWriter, r *http.Request) {
	pub, err := s.svc.Billing.OpenPublic(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv := pub.Invoice
	writeJSON(w, r, http.StatusOK, publicInvoice{
		Number:       inv.Number,
		Status:       inv.Status,
		Currency:     inv.Currency,
		Items:        inv.Items,
		Subtotal:     inv.Subtotal,
		Discount:     inv.Discount,
		Tax:          inv.Tax,
		Total:        inv.Total,
		AmountPaid:   inv.AmountPaid,
		Balance:      inv.Balance(),
		DueDate:      inv.DueDate,
		ClientName:   pub.Client.Name,
		Organization: pub.Organization.Name,
		Payable:      inv.IsOpen() && inv.Balance().IsPositive() && pub.Organization.HasStripe(),
	})
}

func (s *Server) startCheckout(w http.ResponseWriter, r *http.Request) {
	if s.svc.Checkout == nil {
		writeError(w, r, errIntegrationDisabled)
		return
	}

	sessionURL, err := s.svc.Checkout.CreateSession(r.Context(), r.PathValue("token"))
	if err != nil {
		code := ""
		if statusFor(err) == http.StatusInternalServerError {
			code = ErrorCheckoutFailed
		}
		writeErrorCode(w, r, err, code)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"url": sessionURL})
}

// paymentReturn is where Stripe sends the client after checkout. The client
// always lands back on the payment page with a success or error code.
func (s *Server) paymentReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" || s.svc.Checkout == nil {
		s.redirectPayPage(w, r, token, "error", ErrorCheckoutFailed)
		return
	}

	payment, err := s.svc.Checkout.CompleteReturn(r.Context(), q.Get("session_id"))
	if err != nil {
		code := ErrorCheckoutFailed
		if errors.Is(err, checkout.ErrPaymentNotCompleted) {
			code = ErrorPaymentNotCompleted
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("code", code).Msg("Checkout return failed")
		s.redirectPayPage(w, r, token, "error", code)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("payment_id", payment.PaymentID.String()).
		Str("invoice_id", payment.InvoiceID.String()).
		Msg("Checkout return recorded")
	s.redirectPayPage(w, r, token, "success", SuccessPaymentReceived)
}

func (s *Server) redirectPayPage(w http.ResponseWriter, r *http.Request, token, key, code string) {
	target := s.cfg.AppURL + "/pay/" + url.PathEscape(token) + "?" + url.Values{key: {code}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// publicGallery is what a client sees of a gallery.
type publicGallery struct {
	Title            string          `json:"title"`
	Status           string          `json:"status"`
	PricePerPhoto    decimal.Decimal `json:"price_per_photo"`
	PackagePrice     decimal.Decimal `json:"package_price"`
	WatermarkEnabled bool            `json:"watermark_enabled"`
	CanDownload      bool            `json:"can_download"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Photos           []publicPhoto   `json:"photos"`
}

type publicPhoto struct {
	PhotoID  string `json:"photo_id"`
	Filename string `json:"filename"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Favorite bool   `json:"favorite"`
}

// galleryPassword reads the password from the header, or from a JSON body on POST.
func galleryPassword(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Method != http.MethodPost {
		return r.Header.Get(GalleryPasswordHeader), nil
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.Password, nil
}

func (s *Server) openGallery(w http.ResponseWriter, r *http.Request) {
	password, err := galleryPassword(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pg, err := s.svc.Galleries.OpenPublic(r.Context(), r.PathValue("slug"), password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	g := pg.Gallery
	view := publicGallery{
		Title:            g.Title,
		Status:           g.Status,
		PricePerPhoto:    g.PricePerPhoto,
		PackagePrice:     g.PackagePrice,
		WatermarkEnabled: g.WatermarkEnabled,
		CanDownload:      pg.CanDownload(),
		ExpiresAt:        g.ExpiresAt,
		Photos:           make([]publicPhoto, 0, len(pg.Photos)),
	}
	for _, p := range pg.Photos {
		view.Photos = append(view.Photos, publicPhoto{
			PhotoID:  p.PhotoID.String(),
			Filename: p.Filename,
			Width:    p.Width,
			Height:   p.Height,
			Favorite: p.Favorite,
		})
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) favoritePhoto(w http.ResponseWriter, r *http.Request) {
	photoID, err := pathID(r, "photoID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	err = s.svc.Galleries.SetFavorite(r.Context(), r.PathValue("slug"), r.Header.Get(GalleryPasswordHeader), photoID, req.Favorite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadPhoto(w http.ResponseWriter, r *http.Request) {
	photoID, err := pathID(r, "photoID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	photo, data, err := s.svc.Galleries.Download(r.Context(), r.PathValue("slug"), r.Header.Get(GalleryPasswordHeader), photoID)
	if err != nil {
		if errors.Is(err, galleries.ErrRemotePhotoMissing) {
			err = errIntegrationDisabled
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": photo.Filename}))
	_, _ = w.Write(data)
}

func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.svc.Checkout == nil {
		writeError(w, r, errIntegrationDisabled)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, badRequest("failed to read webhook body: %v", err))
		return
	}

	if err := s.svc.Checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
