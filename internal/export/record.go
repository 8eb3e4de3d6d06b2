// Package export turns bookings into CalendarEvent records for spreadsheets and sinks.
package export

import (
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"

	"github.com/shopspring/decimal"
)

// RecordVersion is the contract version stamped on every record.
const RecordVersion = "v1"

// CalendarEvent is one booking as seen by export consumers. Times are wall clock in
// the configured timezone.
type CalendarEvent struct {
	BookingID       string          `json:"booking_id"`
	Date            string          `json:"date"`
	Start           string          `json:"start"`
	End             string          `json:"end"`
	DurationMinutes int             `json:"duration_minutes"`
	Customer        string          `json:"customer"`
	Service         string          `json:"service"`
	Staff           string          `json:"staff"`
	Room            string          `json:"room"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Price           decimal.Decimal `json:"price"`
	Notes           string          `json:"notes"`
	Version         string          `json:"version"`
}

// Columns is the header row matching Values.
var Columns = []string{
	"Booking ID", "Date", "Start", "End", "Duration (min)", "Customer", "Service",
	"Staff", "Room", "Status", "Payment", "Price", "Notes", "Version",
}

// FromBooking builds the record of b in loc. Display names fall back to ids.
func FromBooking(b model.Booking, loc *time.Location) CalendarEvent {
	if loc == nil {
		loc = time.UTC
	}
	start, end := b.Start.In(loc), b.End.In(loc)
	return CalendarEvent{
		BookingID:       b.ID,
		Date:            timeutil.DateKey(start),
		Start:           timeutil.TimeOfDayOf(start).String(),
		End:             timeutil.TimeOfDayOf(end).String(),
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Customer:        b.CustomerName,
		Service:         firstNonEmpty(b.ServiceName, b.ServiceID),
		Staff:           firstNonEmpty(b.StaffName, b.StaffID),
		Room:            firstNonEmpty(b.RoomName, b.RoomID),
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		Price:           b.Price,
		Notes:           b.Notes,
		Version:         RecordVersion,
	}
}

// FromBookings maps a listing in order.
func FromBookings(bookings []model.Booking, loc *time.Location) []CalendarEvent {
	out := make([]CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, FromBooking(b, loc))
	}
	return out
}

// Values returns the row cells in Columns order.
func (e CalendarEvent) Values() []interface{} {
	return []interface{}{
		e.BookingID,
		e.Date,
		e.Start,
		e.End,
		e.DurationMinutes,
		e.Customer,
		e.Service,
		e.Staff,
		e.Room,
		e.Status,
		e.PaymentStatus,
		e.Price.InexactFloat64(),
		e.Notes,
		e.Version,
	}
}

// Active reports whether the booking still holds its time.
func (e CalendarEvent) Active() bool {
	return model.BookingStatus(e.Status).Occupies()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
