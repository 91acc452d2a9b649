package api

import (
	"net/http"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/contracts"
	"github.com/wolfeidau/studioos/internal/models"
)

func (s *Server) registerContracts(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/contracts", auth.PermRead, s.listContracts)
	s.staff(mux, "POST /api/v1/contracts", auth.PermContractsWrite, s.createContract)
	s.staff(mux, "GET /api/v1/contracts/{contractID}", auth.PermRead, s.getContract)
	s.staff(mux, "PUT /api/v1/contracts/{contractID}", auth.PermContractsWrite, s.updateContract)
	s.staff(mux, "POST /api/v1/contracts/{contractID}/send", auth.PermContractsWrite, s.sendContract)
	s.staff(mux, "POST /api/v1/contracts/{contractID}/void", auth.PermContractsWrite, s.voidContract)
	s.staff(mux, "GET /api/v1/contracts/{contractID}/signature", auth.PermRead, s.contractSignature)
}

type contractRequest struct {
	ClientID  string  `json:"client_id"`
	BookingID *string `json:"booking_id"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
}

func (c contractRequest) input() (contracts.Input, error) {
	clientID, err := parseID(c.ClientID, "client_id")
	if err != nil {
		return contracts.Input{}, err
	}
	in := contracts.Input{ClientID: clientID, Title: c.Title, Body: c.Body}
	if c.BookingID != nil && *c.BookingID != "" {
		bookingID, err := parseID(*c.BookingID, "booking_id")
		if err != nil {
			return contracts.Input{}, err
		}
		in.BookingID = &bookingID
	}
	return in, nil
}

func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryID(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.svc.Contracts.List(r.Context(), principal(r).OrgID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) createContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Contracts.Create(r.Context(), principal(r).OrgID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (s *Server) getContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Contracts.Get(r.Context(), principal(r).OrgID, contractID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) updateContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Contracts.Update(r.Context(), principal(r).OrgID, contractID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

type sentContract struct {
	Contract *models.Contract `json:"contract"`
	Link     string           `json:"link"`
}

func (s *Server) sendContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, link, err := s.svc.Contracts.Send(r.Context(), principal(r).OrgID, contractID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sentContract{Contract: c, Link: link})
}

func (s *Server) voidContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Contracts.Void(r.Context(), principal(r).OrgID, contractID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) contractSignature(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := s.svc.Contracts.Signature(r.Context(), principal(r).OrgID, contractID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
