package api

import (
	"net/http"

	"salonsched/internal/model"

	"github.com/go-chi/chi/v5"
)

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var req model.Resource
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, version, err := s.store.CreateResource(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	list := s.store.Resources(r.URL.Query().Get("branch_id"))
	if list == nil {
		list = []model.Resource{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

type assignRequest struct {
	ServiceIDs      []string `json:"service_ids"`
	ExpectedVersion int64    `json:"expected_version"`
}

func (s *Server) assignServices(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, version, err := s.store.AssignServices(r.Context(), chi.URLParam(r, "id"), req.ServiceIDs, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: updated, Version: version})
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DeleteResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Version: version})
}
