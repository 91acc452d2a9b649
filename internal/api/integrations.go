package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/integrations"
)

func (s *Server) registerIntegrations(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/integrations", auth.PermRead, s.integrationStatus)

	if s.svc.QuickBooks != nil {
		s.staff(mux, "POST /api/v1/integrations/quickbooks/connect", auth.PermIntegrationsManage, s.connectURL(s.svc.QuickBooks.ConnectURL))
		s.staff(mux, "DELETE /api/v1/integrations/quickbooks", auth.PermIntegrationsManage, s.disconnect(s.svc.QuickBooks.Disconnect))
		mux.HandleFunc("GET /integrations/quickbooks/callback", s.svc.QuickBooks.CallbackHandler)
	}
	if s.svc.Dropbox != nil {
		s.staff(mux, "POST /api/v1/integrations/dropbox/connect", auth.PermIntegrationsManage, s.connectURL(s.svc.Dropbox.ConnectURL))
		s.staff(mux, "DELETE /api/v1/integrations/dropbox", auth.PermIntegrationsManage, s.disconnect(s.svc.Dropbox.Disconnect))
		mux.HandleFunc("GET /integrations/dropbox/callback", s.svc.Dropbox.CallbackHandler)
	}
}

func (s *Server) integrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := integrations.GetStatus(r.Context(), s.svc.Stores, principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// connectURL returns the vendor authorize URL the dashboard navigates to.
func (s *Server) connectURL(build func(uuid.UUID) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := build(principal(r).OrgID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"url": url})
	}
}

func (s *Server) disconnect(remove func(context.Context, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := remove(r.Context(), principal(r).OrgID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
