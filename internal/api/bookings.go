package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/bookings"
	"github.com/wolfeidau/studioos/internal/models"
)

// defaultCalendarWindow is listed when no range is given.
const defaultCalendarWindow = 90 * 24 * time.Hour

func (s *Server) registerBookings(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/bookings", auth.PermRead, s.listBookings)
	s.staff(mux, "POST /api/v1/bookings", auth.PermBookingsWrite, s.createBooking)
	s.staff(mux, "GET /api/v1/bookings/{bookingID}", auth.PermRead, s.getBooking)
	s.staff(mux, "PUT /api/v1/bookings/{bookingID}", auth.PermBookingsWrite, s.rescheduleBooking)
	s.staff(mux, "POST /api/v1/bookings/{bookingID}/confirm", auth.PermBookingsWrite, s.bookingTransition((*bookings.Service).Confirm))
	s.staff(mux, "POST /api/v1/bookings/{bookingID}/cancel", auth.PermBookingsWrite, s.bookingTransition((*bookings.Service).Cancel))
	s.staff(mux, "POST /api/v1/bookings/{bookingID}/complete", auth.PermBookingsWrite, s.bookingTransition((*bookings.Service).Complete))
}

type bookingRequest struct {
	ClientID string    `json:"client_id"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Notes    string    `json:"notes"`
}

func (b bookingRequest) input() (bookings.Input, error) {
	clientID, err := parseID(b.ClientID, "client_id")
	if err != nil {
		return bookings.Input{}, err
	}
	return bookings.Input{
		ClientID: clientID,
		Title:    b.Title,
		Location: b.Location,
		StartsAt: b.StartsAt,
		EndsAt:   b.EndsAt,
		Notes:    b.Notes,
	}, nil
}

// listBookings returns bookings between the RFC 3339 from and to query
// parameters, defaulting to the next 90 days.
func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	from := time.Now()
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, badRequest("invalid from"))
			return
		}
		from = t
	}
	to := from.Add(defaultCalendarWindow)
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, badRequest("invalid to"))
			return
		}
		to = t
	}

	list, err := s.svc.Bookings.List(r.Context(), principal(r).OrgID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Create(r.Context(), principal(r).OrgID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, b)
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Get(r.Context(), principal(r).OrgID, bookingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

func (s *Server) rescheduleBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Reschedule(r.Context(), principal(r).OrgID, bookingID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

type bookingTransitionFunc func(*bookings.Service, context.Context, uuid.UUID, uuid.UUID) (*models.Booking, error)

func (s *Server) bookingTransition(transition bookingTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := pathID(r, "bookingID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		b, err := transition(s.svc.Bookings, r.Context(), principal(r).OrgID, bookingID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, b)
	}
}
