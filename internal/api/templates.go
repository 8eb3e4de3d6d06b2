package api

import (
	"net/http"

	"salonsched/internal/model"

	"github.com/go-chi/chi/v5"
)

type templateRequest struct {
	ID              string                    `json:"id"`
	BusinessID      string                    `json:"business_id"`
	BranchID        string                    `json:"branch_id"`
	ActiveFrom      string                    `json:"active_from"`
	ActiveUntil     string                    `json:"active_until"`
	State           model.TemplateState       `json:"state"`
	Patterns        []model.WeeklySlotPattern `json:"weekly_pattern"`
	ExpectedVersion int64                     `json:"expected_version"`
}

func (s *Server) toTemplate(req templateRequest) (model.ScheduleTemplate, error) {
	tpl := model.ScheduleTemplate{
		ID:         req.ID,
		BusinessID: req.BusinessID,
		BranchID:   req.BranchID,
		State:      req.State,
		Patterns:   req.Patterns,
	}
	if req.ActiveFrom == "" {
		return tpl, model.Invalid("active_from", "is required")
	}
	from, err := s.parseDate("active_from", req.ActiveFrom)
	if err != nil {
		return tpl, err
	}
	tpl.ActiveFrom = from
	if req.ActiveUntil != "" {
		until, err := s.parseDate("active_until", req.ActiveUntil)
		if err != nil {
			return tpl, err
		}
		tpl.ActiveUntil = &until
	}
	return tpl, nil
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tpl, err := s.toTemplate(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, version, err := s.store.CreateTemplate(r.Context(), tpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.store.Templates(r.URL.Query().Get("branch_id"), queryBool(r, "include_deleted"))
	if list == nil {
		list = []model.ScheduleTemplate{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.store.Template(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tpl)
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	tpl, err := s.toTemplate(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, version, err := s.store.UpdateTemplate(r.Context(), tpl, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: updated, Version: version})
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	s.transitionTemplate(w, r, model.TemplateDeleted)
}

func (s *Server) activateTemplate(w http.ResponseWriter, r *http.Request) {
	s.transitionTemplate(w, r, model.TemplateActive)
}

func (s *Server) deactivateTemplate(w http.ResponseWriter, r *http.Request) {
	s.transitionTemplate(w, r, model.TemplateInactive)
}

func (s *Server) transitionTemplate(w http.ResponseWriter, r *http.Request, to model.TemplateState) {
	expected, err := expectedVersion(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tpl, version, err := s.store.TransitionTemplate(r.Context(), chi.URLParam(r, "id"), to, expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: tpl, Version: version})
}

type generateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Regenerate drops unbooked generated slots in the range before generating.
	Regenerate bool `json:"regenerate"`
}

type generateResponse struct {
	Created    []model.StaticServiceSlot `json:"created"`
	Skipped    int                       `json:"skipped"`
	Overridden int                       `json:"overridden"`
	Version    int64                     `json:"version"`
}

func (s *Server) generateSlots(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := s.parseDate("from", req.From)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := s.parseDate("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	generate := s.store.GenerateSlots
	if req.Regenerate {
		generate = s.store.RegenerateSlots
	}
	res, version, err := generate(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created := res.Created
	if created == nil {
		created = []model.StaticServiceSlot{}
	}
	writeJSON(w, r, http.StatusOK, generateResponse{
		Created:    created,
		Skipped:    res.Skipped,
		Overridden: res.Overridden,
		Version:    version,
	})
}
