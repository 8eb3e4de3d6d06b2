package api

import (
	"net/http"

	"salonsched/internal/model"
	"salonsched/internal/store"
	"salonsched/internal/timeutil"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// slotRequest is an ad hoc or override slot. Date is YYYY-MM-DD; without a date the
// slot repeats weekly on day_of_week.
type slotRequest struct {
	ID                string             `json:"id"`
	RoomID            string             `json:"room_id"`
	BranchID          string             `json:"branch_id"`
	Date              string             `json:"date"`
	DayOfWeek         timeutil.DayOfWeek `json:"day_of_week"`
	Start             timeutil.TimeOfDay `json:"start_time"`
	End               timeutil.TimeOfDay `json:"end_time"`
	ServiceID         string             `json:"service_id"`
	Capacity          int                `json:"capacity"`
	InstructorStaffID string             `json:"instructor_staff_id"`
	Price             decimal.Decimal    `json:"price"`
}

func (s *Server) toSlot(req slotRequest) (model.StaticServiceSlot, error) {
	sl := model.StaticServiceSlot{
		ID:                req.ID,
		RoomID:            req.RoomID,
		BranchID:          req.BranchID,
		DayOfWeek:         req.DayOfWeek,
		Start:             req.Start,
		End:               req.End,
		ServiceID:         req.ServiceID,
		Capacity:          req.Capacity,
		InstructorStaffID: req.InstructorStaffID,
		Price:             req.Price,
	}
	if req.Date != "" {
		d, err := s.parseDate("date", req.Date)
		if err != nil {
			return sl, err
		}
		sl.Date = d
	}
	return sl, nil
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if queryBool(r, "free") {
		s.listFreeSlots(w, r)
		return
	}
	from, to, err := s.dateRange(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := s.store.Slots(store.SlotFilter{
		TemplateID:       q.Get("template_id"),
		ServiceID:        q.Get("service_id"),
		RoomID:           q.Get("room_id"),
		BranchID:         q.Get("branch_id"),
		From:             from,
		To:               to,
		IncludeCancelled: queryBool(r, "include_cancelled"),
	})
	if list == nil {
		list = []model.StaticServiceSlot{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) listFreeSlots(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	free, err := s.store.FreeSlots(r.Context(), r.URL.Query().Get("service_id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if free == nil {
		free = []store.FreeSlot{}
	}
	writeJSON(w, r, http.StatusOK, free)
}

func (s *Server) createSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sl, err := s.toSlot(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, version, err := s.store.CreateSlot(r.Context(), sl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

type overrideRequest struct {
	TemplateID string `json:"template_id"`
	Date       string `json:"date"`
	// Slots replace the day's occurrences; empty cancels the day.
	Slots []slotRequest `json:"slots"`
}

func (s *Server) overrideDay(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TemplateID == "" {
		s.writeError(w, r, model.Invalid("template_id", "is required"))
		return
	}
	day, err := s.parseDate("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	replacements := make([]model.StaticServiceSlot, 0, len(req.Slots))
	for _, sr := range req.Slots {
		sl, err := s.toSlot(sr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		replacements = append(replacements, sl)
	}

	stored, version, err := s.store.OverrideDay(r.Context(), req.TemplateID, day, replacements)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: stored, Version: version})
}

func (s *Server) deleteSlot(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DeleteSlot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Version: version})
}
