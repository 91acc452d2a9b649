package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/tenancy"
)

func (s *Server) registerOrganization(mux *http.ServeMux) {
	// Provisioning runs before the caller belongs to an organization.
	mux.Handle("POST /api/v1/org", s.authenticate(http.HandlerFunc(s.provisionOrganization)))

	s.staff(mux, "GET /api/v1/org", auth.PermRead, s.getOrganization)
	s.staff(mux, "PATCH /api/v1/org", auth.PermOrgManage, s.updateOrganization)
	s.staff(mux, "POST /api/v1/org/stripe", auth.PermOrgManage, s.connectStripe)

	s.staff(mux, "GET /api/v1/members", auth.PermRead, s.listMembers)
	s.staff(mux, "POST /api/v1/members", auth.PermMembersManage, s.addMember)
	s.staff(mux, "DELETE /api/v1/members/{memberID}", auth.PermMembersManage, s.removeMember)
}

type provisionRequest struct {
	Name      string `json:"name"`
	OwnerName string `json:"owner_name"`
	Email     string `json:"email"`
	Seed      bool   `json:"seed_automations"`
}

type provisionResponse struct {
	Organization *models.Organization     `json:"organization"`
	Member       *models.Member           `json:"member"`
	Automations  []*models.AutomationRule `json:"automations,omitempty"`
}

func (s *Server) provisionOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := auth.IdentityFromContext(ctx)
	if identity == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req provisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	org, member, err := s.svc.Tenancy.Provision(ctx, tenancy.ProvisionInput{
		ClerkUserID: identity.ClerkUserID,
		Email:       req.Email,
		Name:        req.OwnerName,
		OrgName:     req.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := provisionResponse{Organization: org, Member: member}
	if req.Seed {
		rules, err := s.svc.Rules.Seed(ctx, org.OrgID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Automations = rules
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.svc.Tenancy.Get(r.Context(), principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, org)
}

type organizationUpdate struct {
	Name               *string          `json:"name"`
	Currency           *string          `json:"currency"`
	Timezone           *string          `json:"timezone"`
	PlatformFeePercent *decimal.Decimal `json:"platform_fee_percent"`
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	org, err := s.svc.Tenancy.UpdateSettings(r.Context(), principal(r).OrgID, tenancy.SettingsUpdate{
		Name:               req.Name,
		Currency:           req.Currency,
		Timezone:           req.Timezone,
		PlatformFeePercent: req.PlatformFeePercent,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, org)
}

func (s *Server) connectStripe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	org, err := s.svc.Tenancy.ConnectStripe(r.Context(), principal(r).OrgID, req.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, org)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Tenancy.ListMembers(r.Context(), principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, members)
}

type memberRequest struct {
	ClerkUserID string `json:"clerk_user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ClerkUserID) == "" {
		writeError(w, r, badRequest("clerk_user_id is required"))
		return
	}

	member, err := s.svc.Tenancy.AddMember(r.Context(), principal(r).OrgID, strings.TrimSpace(req.ClerkUserID), req.Email, req.Name, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, member)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Tenancy.RemoveMember(r.Context(), principal(r).OrgID, memberID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
