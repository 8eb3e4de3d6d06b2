package api

import (
	"net/http"
	"time"

	"salonsched/internal/model"

	"github.com/go-chi/chi/v5"
)

// local moves a decoded instant into the scheduling timezone.
func (s *Server) local(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(s.loc)
}

func (s *Server) createTimeOff(w http.ResponseWriter, r *http.Request) {
	var req model.TimeOffRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Start, req.End = s.local(req.Start), s.local(req.End)
	created, version, err := s.store.CreateTimeOff(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listTimeOff(w http.ResponseWriter, r *http.Request) {
	list := s.store.TimeOff(r.URL.Query().Get("staff_id"))
	if list == nil {
		list = []model.TimeOffRequest{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) approveTimeOff(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	approved, version, err := s.store.ApproveTimeOff(r.Context(), chi.URLParam(r, "id"), expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: approved, Version: version})
}

func (s *Server) deleteTimeOff(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DeleteTimeOff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Version: version})
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var req model.TimeReservation
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Start, req.End = s.local(req.Start), s.local(req.End)
	created, version, err := s.store.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := s.store.Reservations(from, endOfDay(to))
	if list == nil {
		list = []model.TimeReservation{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) deleteReservation(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DeleteReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Version: version})
}
