package model

import (
	"time"

	"salonsched/internal/timeutil"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a calendar event.
type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusPending     BookingStatus = "pending"
	StatusCompleted   BookingStatus = "completed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusNeedConfirm BookingStatus = "need_confirm"
	StatusNoShow      BookingStatus = "no_show"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusCompleted, StatusCancelled, StatusNeedConfirm, StatusNoShow:
		return true
	}
	return false
}

// Occupies reports whether a booking in this status holds its interval.
func (s BookingStatus) Occupies() bool {
	return s != StatusCancelled
}

// PaymentStatus of a booking.
type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPaid || s == PaymentUnpaid
}

// Booking is a calendar event for a customer on a staff member and/or a room.
type Booking struct {
	ID            string          `json:"id"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	StaffID       string          `json:"staff_id,omitempty"`
	RoomID        string          `json:"room_id,omitempty"`
	SlotID        string          `json:"slot_id,omitempty"`
	ServiceID     string          `json:"service_id"`
	CustomerName  string          `json:"customer_name"`
	ServiceName   string          `json:"service_name,omitempty"`
	StaffName     string          `json:"staff_name,omitempty"`
	RoomName      string          `json:"room_name,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Status        BookingStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Price         decimal.Decimal `json:"price"`
	PartySize     int             `json:"party_size"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b Booking) Interval() timeutil.Interval {
	return timeutil.Interval{Start: b.Start, End: b.End}
}

func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// OverlapsWith reports whether both bookings hold time and their ranges intersect.
func (b Booking) OverlapsWith(other Booking) bool {
	return b.Status.Occupies() && other.Status.Occupies() && b.Interval().Overlaps(other.Interval())
}

// Validate checks the request shape; availability is a separate concern.
func (b Booking) Validate() error {
	v := NewValidationError()
	if b.Start.IsZero() || b.End.IsZero() {
		v.Add("range", "start and end are required")
	} else if !b.Start.Before(b.End) {
		v.Add("range", "start must be before end")
	}
	if b.StaffID == "" && b.RoomID == "" {
		v.Add("target", "staff_id or room_id is required")
	}
	if b.ServiceID == "" {
		v.Add("service_id", "is required")
	}
	if b.PartySize < 1 {
		v.Add("party_size", "must be at least 1")
	}
	if b.Status != "" && !b.Status.Valid() {
		v.Add("status", "unknown status "+string(b.Status))
	}
	if b.PaymentStatus != "" && !b.PaymentStatus.Valid() {
		v.Add("payment_status", "unknown payment status "+string(b.PaymentStatus))
	}
	if b.Price.IsNegative() {
		v.Add("price", "cannot be negative")
	}
	return v.Err()
}
