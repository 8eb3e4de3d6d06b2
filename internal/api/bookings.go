package api

import (
	"net/http"
	"time"

	"salonsched/internal/availability"
	"salonsched/internal/model"
	"salonsched/internal/store"

	"github.com/go-chi/chi/v5"
)

type availabilityRequest struct {
	StaffID   string    `json:"staff_id"`
	RoomID    string    `json:"room_id"`
	SlotID    string    `json:"slot_id"`
	BranchID  string    `json:"branch_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	PartySize int       `json:"party_size"`
	// IgnoreBookingID re-checks an existing booking against everything else.
	IgnoreBookingID string `json:"ignore_booking_id"`
}

func (s *Server) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	res, err := s.store.CheckAvailability(r.Context(), availability.Request{
		StaffID:         req.StaffID,
		RoomID:          req.RoomID,
		SlotID:          req.SlotID,
		BranchID:        req.BranchID,
		Start:           s.local(req.Start),
		End:             s.local(req.End),
		PartySize:       req.PartySize,
		IgnoreBookingID: req.IgnoreBookingID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var req model.Booking
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Start, req.End = s.local(req.Start), s.local(req.End)
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	created, version, err := s.store.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, Versioned{Data: created, Version: version})
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.dateRange(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list := s.store.Bookings(store.BookingFilter{
		StaffID:          q.Get("staff_id"),
		RoomID:           q.Get("room_id"),
		From:             from,
		To:               endOfDay(to),
		IncludeCancelled: queryBool(r, "include_cancelled"),
	})
	if list == nil {
		list = []model.Booking{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.Booking(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, version, err := s.store.CancelBooking(r.Context(), chi.URLParam(r, "id"), expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: b, Version: version})
}

type statusRequest struct {
	Status          model.BookingStatus `json:"status"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	ExpectedVersion int64               `json:"expected_version"`
}

func (s *Server) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, version, err := s.store.UpdateBookingStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.PaymentStatus, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, Versioned{Data: b, Version: version})
}
