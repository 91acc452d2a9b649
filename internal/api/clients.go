package api

import (
	"net/http"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/clients"
)

func (s *Server) registerClients(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/clients", auth.PermRead, s.listClients)
	s.staff(mux, "POST /api/v1/clients", auth.PermClientsWrite, s.createClient)
	s.staff(mux, "GET /api/v1/clients/{clientID}", auth.PermRead, s.getClient)
	s.staff(mux, "PUT /api/v1/clients/{clientID}", auth.PermClientsWrite, s.updateClient)
	s.staff(mux, "DELETE /api/v1/clients/{clientID}", auth.PermClientsWrite, s.deleteClient)
}

type clientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func (c clientRequest) input() clients.Input {
	return clients.Input{Name: c.Name, Email: c.Email, Phone: c.Phone, Notes: c.Notes}
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Clients.List(r.Context(), principal(r).OrgID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	client, err := s.svc.Clients.Create(r.Context(), principal(r).OrgID, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, client)
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	client, err := s.svc.Clients.Get(r.Context(), principal(r).OrgID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, client)
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	client, err := s.svc.Clients.Update(r.Context(), principal(r).OrgID, clientID, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, client)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Clients.Delete(r.Context(), principal(r).OrgID, clientID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
