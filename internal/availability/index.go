// Package availability keeps the committed intervals of staff, rooms and resources
// and decides whether a requested interval is free.
package availability

import (
	"sort"
	"sync"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"
)

// Index holds, per staff member and per room, everything that occupies time:
// bookings, approved time off, reservations and working hours.
type Index struct {
	mu sync.RWMutex

	bookings      map[string]model.Booking
	staffBookings map[string]map[string]struct{}
	roomBookings  map[string]map[string]struct{}
	slotBookings  map[string]map[string]struct{}

	timeOff      map[string]model.TimeOffRequest
	staffTimeOff map[string]map[string]struct{}

	reservations map[string]model.TimeReservation

	resources map[string]model.Resource
	slots     map[string]model.StaticServiceSlot
	hours     map[string]model.BusinessHours
	shifts    map[string]model.StaffShift
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		bookings:      make(map[string]model.Booking),
		staffBookings: make(map[string]map[string]struct{}),
		roomBookings:  make(map[string]map[string]struct{}),
		slotBookings:  make(map[string]map[string]struct{}),
		timeOff:       make(map[string]model.TimeOffRequest),
		staffTimeOff:  make(map[string]map[string]struct{}),
		reservations:  make(map[string]model.TimeReservation),
		resources:     make(map[string]model.Resource),
		slots:         make(map[string]model.StaticServiceSlot),
		hours:         make(map[string]model.BusinessHours),
		shifts:        make(map[string]model.StaffShift),
	}
}

// PutBooking inserts or replaces a booking. Cancelled bookings are dropped from the index.
func (x *Index) PutBooking(b model.Booking) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeBooking(b.ID)
	if !b.Status.Occupies() {
		return
	}
	x.bookings[b.ID] = b
	addRef(x.staffBookings, b.StaffID, b.ID)
	addRef(x.roomBookings, b.RoomID, b.ID)
	addRef(x.slotBookings, b.SlotID, b.ID)
}

func (x *Index) RemoveBooking(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeBooking(id)
}

func (x *Index) removeBooking(id string) {
	old, ok := x.bookings[id]
	if !ok {
		return
	}
	delete(x.bookings, id)
	dropRef(x.staffBookings, old.StaffID, id)
	dropRef(x.roomBookings, old.RoomID, id)
	dropRef(x.slotBookings, old.SlotID, id)
}

// PutTimeOff inserts or replaces a request. Only approved requests are kept.
func (x *Index) PutTimeOff(r model.TimeOffRequest) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeTimeOff(r.ID)
	if !r.Approved {
		return
	}
	x.timeOff[r.ID] = r
	addRef(x.staffTimeOff, r.StaffID, r.ID)
}

func (x *Index) RemoveTimeOff(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeTimeOff(id)
}

func (x *Index) removeTimeOff(id string) {
	old, ok := x.timeOff[id]
	if !ok {
		return
	}
	delete(x.timeOff, id)
	dropRef(x.staffTimeOff, old.StaffID, id)
}

func (x *Index) PutReservation(r model.TimeReservation) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.reservations[r.ID] = r
}

func (x *Index) RemoveReservation(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.reservations, id)
}

func (x *Index) PutResource(r model.Resource) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resources[r.ID] = r
}

func (x *Index) RemoveResource(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.resources, id)
}

func (x *Index) PutSlot(s model.StaticServiceSlot) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.slots[s.ID] = s
}

func (x *Index) RemoveSlot(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.slots, id)
}

func (x *Index) SetBusinessHours(h model.BusinessHours) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.hours[h.BranchID] = h
}

func (x *Index) RemoveBusinessHours(branchID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.hours, branchID)
}

func (x *Index) SetStaffShift(s model.StaffShift) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.shifts[s.StaffID] = s
}

func (x *Index) RemoveStaffShift(staffID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.shifts, staffID)
}

// TimeOff returns approved time off of a staff member overlapping iv, earliest first.
func (x *Index) TimeOff(staffID string, iv timeutil.Interval) []model.TimeOffRequest {
	if staffID == "" {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []model.TimeOffRequest
	for id := range x.staffTimeOff[staffID] {
		r := x.timeOff[id]
		if r.Interval().Overlaps(iv) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Interval().Start, out[j].Interval().Start, out[i].ID, out[j].ID) })
	return out
}

// Reservations returns reservations listing the staff member or the room and overlapping iv.
func (x *Index) Reservations(staffID, roomID string, iv timeutil.Interval) []model.TimeReservation {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []model.TimeReservation
	for _, r := range x.reservations {
		if !(r.HasStaff(staffID) || r.HasRoom(roomID)) {
			continue
		}
		if r.Interval().Overlaps(iv) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Start, out[j].Start, out[i].ID, out[j].ID) })
	return out
}

// Bookings returns the occupying bookings overlapping iv, keyed by the dimension they share.
// A booking matching several dimensions appears in each list. exclude skips one booking id.
func (x *Index) Bookings(staffID, roomID, slotID string, iv timeutil.Interval, exclude string) (byStaff, byRoom, bySlot []model.Booking) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	byStaff = x.overlapping(x.staffBookings[staffID], staffID, iv, exclude)
	byRoom = x.overlapping(x.roomBookings[roomID], roomID, iv, exclude)
	bySlot = x.overlapping(x.slotBookings[slotID], slotID, iv, exclude)
	return byStaff, byRoom, bySlot
}

func (x *Index) overlapping(ids map[string]struct{}, key string, iv timeutil.Interval, exclude string) []model.Booking {
	if key == "" {
		return nil
	}
	var out []model.Booking
	for id := range ids {
		if id == exclude {
			continue
		}
		b := x.bookings[id]
		if b.Interval().Overlaps(iv) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Start, out[j].Start, out[i].ID, out[j].ID) })
	return out
}

// Committed lists every interval held by a staff member or room on the calendar day of day.
func (x *Index) Committed(staffID, roomID string, day time.Time) []timeutil.Interval {
	iv := timeutil.DayRange(day)
	var out []timeutil.Interval
	for _, r := range x.TimeOff(staffID, iv) {
		out = append(out, r.Interval())
	}
	for _, r := range x.Reservations(staffID, roomID, iv) {
		out = append(out, r.Interval())
	}
	byStaff, byRoom, _ := x.Bookings(staffID, roomID, "", iv, "")
	seen := make(map[string]bool)
	for _, b := range append(byStaff, byRoom...) {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b.Interval())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Capacity of the unit a request lands on: the slot when given, else the room, else 1.
func (x *Index) Capacity(roomID, slotID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if s, ok := x.slots[slotID]; ok && s.Capacity > 0 {
		return s.Capacity
	}
	if r, ok := x.resources[roomID]; ok && r.Capacity > 0 {
		return r.Capacity
	}
	return 1
}

// Resource looks up a resource or room.
func (x *Index) Resource(id string) (model.Resource, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.resources[id]
	return r, ok
}

// WorkingWindows returns the open intervals on the calendar day of day. A staff shift
// wins over branch business hours. configured is false when neither is known, in which
// case hours do not restrict bookings.
func (x *Index) WorkingWindows(staffID, roomID, branchID string, day time.Time) (windows []timeutil.Interval, configured bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	date := timeutil.DateOf(day)
	weekday := timeutil.DayOf(date)

	if shift, ok := x.shifts[staffID]; ok && staffID != "" {
		d, ok := shift.For(weekday)
		if !ok || d.Off {
			return nil, true
		}
		window := timeutil.Interval{Start: d.Start.On(date), End: d.End.On(date)}
		parts := []timeutil.Interval{window}
		for _, b := range d.Breaks {
			cut := timeutil.Interval{Start: b.Start.On(date), End: b.End.On(date)}
			var next []timeutil.Interval
			for _, p := range parts {
				next = append(next, p.Subtract(cut)...)
			}
			parts = next
		}
		return parts, true
	}

	if branchID == "" {
		if r, ok := x.resources[roomID]; ok {
			branchID = r.BranchID
		}
	}
	hours, ok := x.hours[branchID]
	if !ok || branchID == "" {
		return nil, false
	}
	d, open := hours.For(weekday)
	if !open {
		return nil, true
	}
	return []timeutil.Interval{{Start: d.Open.On(date), End: d.Close.On(date)}}, true
}

func addRef(m map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func dropRef(m map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	set := m[key]
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func earlier(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}
