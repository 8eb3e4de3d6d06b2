package api

import (
	"net/http"

	"salonsched/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req model.CommissionPolicy
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, version, err := s.store.CreatePolicy(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	list := s.store.Policies()
	if list == nil {
		list = []model.CommissionPolicy{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) deletePolicy(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DeletePolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Version: version})
}

type resolveRequest struct {
	Scope   model.CommissionScope `json:"scope"`
	StaffID string                `json:"staff_id"`
	Amount  decimal.Decimal       `json:"amount"`
}

func (s *Server) resolveCommission(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.StaffID == "" {
		s.writeError(w, r, model.Invalid("staff_id", "is required"))
		return
	}
	res, err := s.store.ResolveCommission(req.Scope, req.StaffID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
