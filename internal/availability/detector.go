package availability

import (
	"fmt"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"
)

// Request is a candidate booking.
type Request struct {
	StaffID   string
	RoomID    string
	SlotID    string
	BranchID  string
	Start     time.Time
	End       time.Time
	PartySize int
	// IgnoreBookingID excludes a booking from the check, used when re-validating an existing booking.
	IgnoreBookingID string
}

func (r Request) interval() timeutil.Interval {
	return timeutil.Interval{Start: r.Start, End: r.End}
}

// Validate rejects malformed requests before any rule runs.
func (r Request) Validate() error {
	v := model.NewValidationError()
	if r.Start.IsZero() || r.End.IsZero() {
		v.Add("range", "start and end are required")
	} else if !r.Start.Before(r.End) {
		v.Add("range", "start must be before end")
	}
	if r.StaffID == "" && r.RoomID == "" {
		v.Add("target", "staff_id or room_id is required")
	}
	if r.PartySize < 1 {
		v.Add("party_size", "must be at least 1")
	}
	return v.Err()
}

// Result is the outcome of a check; Conflict is nil when Valid.
type Result struct {
	Valid    bool                 `json:"valid"`
	Conflict *model.ConflictError `json:"conflict,omitempty"`
}

// Rule inspects a request against the index and returns the first blocking record, if any.
type Rule struct {
	Name  string
	Check func(x *Index, req Request) *model.ConflictError
}

// DefaultRules returns the rules in evaluation order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: string(model.ConflictTimeOff), Check: checkTimeOff},
		{Name: string(model.ConflictReservation), Check: checkReservations},
		{Name: "BOOKINGS", Check: checkBookings},
		{Name: string(model.ConflictOutsideHours), Check: checkHours},
	}
}

// Detector runs an ordered rule list over an Index.
type Detector struct {
	index *Index
	rules []Rule
}

// NewDetector uses DefaultRules when rules is empty.
func NewDetector(index *Index, rules ...Rule) *Detector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Detector{index: index, rules: rules}
}

// Index exposes the index the detector reads.
func (d *Detector) Index() *Index {
	return d.index
}

// Check validates req and evaluates every rule in order.
func (d *Detector) Check(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	for _, rule := range d.rules {
		if c := rule.Check(d.index, req); c != nil {
			return Result{Valid: false, Conflict: c}, nil
		}
	}
	return Result{Valid: true}, nil
}

// Err is Check folded into a single error: nil, a ValidationError or a ConflictError.
func (d *Detector) Err(req Request) error {
	res, err := d.Check(req)
	if err != nil {
		return err
	}
	if !res.Valid {
		return res.Conflict
	}
	return nil
}

func checkTimeOff(x *Index, req Request) *model.ConflictError {
	blocking := x.TimeOff(req.StaffID, req.interval())
	if len(blocking) == 0 {
		return nil
	}
	r := blocking[0]
	iv := r.Interval()
	return &model.ConflictError{
		Kind:       model.ConflictTimeOff,
		Detail:     fmt.Sprintf("staff %s has approved time off %s - %s (%s)", req.StaffID, formatTime(iv.Start), formatTime(iv.End), r.Reason),
		BlockingID: r.ID,
	}
}

func checkReservations(x *Index, req Request) *model.ConflictError {
	blocking := x.Reservations(req.StaffID, req.RoomID, req.interval())
	if len(blocking) == 0 {
		return nil
	}
	r := blocking[0]
	target := "room " + req.RoomID
	if r.HasStaff(req.StaffID) {
		target = "staff " + req.StaffID
	}
	return &model.ConflictError{
		Kind:       model.ConflictReservation,
		Detail:     fmt.Sprintf("%s is reserved %s - %s (%s)", target, formatTime(r.Start), formatTime(r.End), r.Reason),
		BlockingID: r.ID,
	}
}

// checkBookings enforces staff exclusivity and unit capacity. Overlapping bookings of the
// same staff member are only allowed when they share the requested room or slot and that
// unit has capacity > 1; then the party sizes of every overlapping booking on the unit plus
// the new party must fit the capacity.
func checkBookings(x *Index, req Request) *model.ConflictError {
	byStaff, byRoom, bySlot := x.Bookings(req.StaffID, req.RoomID, req.SlotID, req.interval(), req.IgnoreBookingID)
	capacity := x.Capacity(req.RoomID, req.SlotID)

	for _, b := range byStaff {
		if capacity <= 1 || !sharesUnit(b, req) {
			return doubleBook(b, "staff "+req.StaffID)
		}
	}

	unit := mergeBookings(byRoom, bySlot)
	if len(unit) == 0 {
		if req.PartySize > capacity {
			return &model.ConflictError{
				Kind:   model.ConflictCapacity,
				Detail: fmt.Sprintf("party of %d exceeds capacity %d", req.PartySize, capacity),
			}
		}
		return nil
	}
	if capacity <= 1 {
		return doubleBook(unit[0], unitName(req))
	}

	total := req.PartySize
	for _, b := range unit {
		total += b.PartySize
	}
	if total > capacity {
		return &model.ConflictError{
			Kind:       model.ConflictCapacity,
			Detail:     fmt.Sprintf("%s would hold %d of capacity %d", unitName(req), total, capacity),
			BlockingID: unit[len(unit)-1].ID,
		}
	}
	return nil
}

func checkHours(x *Index, req Request) *model.ConflictError {
	windows, configured := x.WorkingWindows(req.StaffID, req.RoomID, req.BranchID, req.Start)
	if !configured {
		return nil
	}
	iv := req.interval()
	for _, w := range windows {
		if w.Contains(iv) {
			return nil
		}
	}
	subject := unitName(req)
	if req.StaffID != "" {
		subject = "staff " + req.StaffID
	}
	return &model.ConflictError{
		Kind:   model.ConflictOutsideHours,
		Detail: fmt.Sprintf("%s is not working for the whole of %s - %s", subject, formatTime(req.Start), formatTime(req.End)),
	}
}

func sharesUnit(b model.Booking, req Request) bool {
	if req.SlotID != "" && b.SlotID == req.SlotID {
		return true
	}
	return req.RoomID != "" && b.RoomID == req.RoomID
}

func mergeBookings(lists ...[]model.Booking) []model.Booking {
	seen := make(map[string]bool)
	var out []model.Booking
	for _, list := range lists {
		for _, b := range list {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b)
		}
	}
	return out
}

func doubleBook(b model.Booking, subject string) *model.ConflictError {
	return &model.ConflictError{
		Kind:       model.ConflictDoubleBook,
		Detail:     fmt.Sprintf("%s already booked %s - %s", subject, formatTime(b.Start), formatTime(b.End)),
		BlockingID: b.ID,
	}
}

func unitName(req Request) string {
	if req.SlotID != "" && req.RoomID == "" {
		return "slot " + req.SlotID
	}
	return "room " + req.RoomID
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
