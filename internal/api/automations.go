package api

import (
	"net/http"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/automation"
)

func (s *Server) registerAutomations(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/automations", auth.PermRead, s.listRules)
	s.staff(mux, "POST /api/v1/automations", auth.PermAutomationsWrite, s.createRule)
	s.staff(mux, "POST /api/v1/automations/seed", auth.PermAutomationsWrite, s.seedRules)
	s.staff(mux, "GET /api/v1/automations/{ruleID}", auth.PermRead, s.getRule)
	s.staff(mux, "PUT /api/v1/automations/{ruleID}", auth.PermAutomationsWrite, s.updateRule)
	s.staff(mux, "DELETE /api/v1/automations/{ruleID}", auth.PermAutomationsWrite, s.deleteRule)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules.List(r.Context(), principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rules)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req automation.RuleInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.Rules.Create(r.Context(), principal(r).OrgID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rule)
}

func (s *Server) seedRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules.Seed(r.Context(), principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rules)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.Rules.Get(r.Context(), principal(r).OrgID, ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rule)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req automation.RuleInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.Rules.Update(r.Context(), principal(r).OrgID, ruleID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rule)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Rules.Delete(r.Context(), principal(r).OrgID, ruleID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
