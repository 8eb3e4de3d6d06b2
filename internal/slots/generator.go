// Package slots expands weekly schedule templates into dated service slots.
package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"

	"github.com/google/uuid"
)

// DefaultMaxRangeDays bounds one generation batch.
const DefaultMaxRangeDays = 366

// Existing answers which occurrences are already materialised or explicitly overridden.
type Existing interface {
	HasSlot(key model.SlotKey) bool
	HasOverride(key model.OverrideKey) bool
}

// Result summarises one generation batch.
type Result struct {
	Created    []model.StaticServiceSlot
	Skipped    int // occurrences already materialised
	Overridden int // occurrences replaced by an explicit override or cancellation
}

// Generator materialises template occurrences.
type Generator struct {
	maxRangeDays int
	newID        func() string
	now          func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithMaxRangeDays caps the number of days one call may cover.
func WithMaxRangeDays(days int) Option {
	return func(g *Generator) {
		if days > 0 {
			g.maxRangeDays = days
		}
	}
}

// WithIDFunc replaces the slot id source.
func WithIDFunc(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a new slot generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		maxRangeDays: DefaultMaxRangeDays,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate creates one slot per matching pattern for each day of [rangeStart, rangeEnd]
// inside the template's active window. Occurrences already present in existing are skipped,
// and days carrying an explicit override produce nothing.
func (g *Generator) Generate(ctx context.Context, tpl *model.ScheduleTemplate, existing Existing, rangeStart, rangeEnd time.Time) (Result, error) {
	if err := g.validateRange(rangeStart, rangeEnd); err != nil {
		return Result{}, err
	}
	if !tpl.IsActive() {
		return Result{}, model.Invalid("template", fmt.Sprintf("template %s is %s, only active templates generate slots", tpl.ID, tpl.State))
	}
	if existing == nil {
		existing = NewSlotSet(nil)
	}

	var (
		res    Result
		ctxErr error
	)
	now := g.now()

	timeutil.EachDate(rangeStart, rangeEnd, func(day time.Time) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		if !tpl.ActiveOn(day) {
			return true
		}

		patterns := tpl.PatternsFor(timeutil.DayOf(day))
		if len(patterns) == 0 {
			return true
		}

		dateKey := timeutil.DateKey(day)
		if existing.HasOverride(model.OverrideKey{TemplateID: tpl.ID, Date: dateKey}) {
			res.Overridden += len(patterns)
			return true
		}

		for _, p := range patterns {
			if existing.HasSlot(model.SlotKey{TemplateID: tpl.ID, Date: dateKey, PatternID: p.ID}) {
				res.Skipped++
				continue
			}
			res.Created = append(res.Created, g.materialize(tpl, p, day, now))
		}
		return true
	})
	if ctxErr != nil {
		return Result{}, fmt.Errorf("generate slots: %w", ctxErr)
	}

	return res, nil
}

// Occurrences lists the virtual occurrences of a template on one day without
// consulting stored slots. The returned slots carry no id.
func Occurrences(tpl *model.ScheduleTemplate, day time.Time) []model.StaticServiceSlot {
	if !tpl.ActiveOn(day) {
		return nil
	}
	patterns := tpl.PatternsFor(timeutil.DayOf(day))
	out := make([]model.StaticServiceSlot, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, occurrence(tpl, p, timeutil.DateOf(day)))
	}
	return out
}

func (g *Generator) validateRange(rangeStart, rangeEnd time.Time) error {
	v := model.NewValidationError()
	if rangeStart.IsZero() || rangeEnd.IsZero() {
		v.Add("range", "start and end dates are required")
		return v
	}
	if timeutil.CompareDates(rangeStart, rangeEnd) > 0 {
		v.Add("range", "start date must not be after end date")
		return v
	}
	days := int((timeutil.DateOf(rangeEnd).Sub(timeutil.DateOf(rangeStart))+12*time.Hour)/(24*time.Hour)) + 1
	if days > g.maxRangeDays {
		v.Add("range", fmt.Sprintf("range of %d days exceeds maximum of %d", days, g.maxRangeDays))
	}
	return v.Err()
}

func (g *Generator) materialize(tpl *model.ScheduleTemplate, p model.WeeklySlotPattern, day, now time.Time) model.StaticServiceSlot {
	slot := occurrence(tpl, p, day)
	slot.ID = g.newID()
	slot.CreatedAt = now
	return slot
}

func occurrence(tpl *model.ScheduleTemplate, p model.WeeklySlotPattern, day time.Time) model.StaticServiceSlot {
	return model.StaticServiceSlot{
		TemplateID:        tpl.ID,
		PatternID:         p.ID,
		RoomID:            p.RoomID,
		BranchID:          tpl.BranchID,
		Date:              day,
		DayOfWeek:         p.DayOfWeek,
		Start:             p.Start,
		End:               p.End,
		ServiceID:         p.ServiceID,
		Capacity:          p.Capacity,
		InstructorStaffID: p.InstructorStaffID,
		Price:             p.Price,
	}
}

// SlotSet is an in-memory Existing built from stored slots.
type SlotSet struct {
	slots     map[model.SlotKey]bool
	overrides map[model.OverrideKey]bool
}

// NewSlotSet indexes slots by occurrence key and override key.
func NewSlotSet(slots []model.StaticServiceSlot) *SlotSet {
	s := &SlotSet{
		slots:     make(map[model.SlotKey]bool, len(slots)),
		overrides: make(map[model.OverrideKey]bool),
	}
	for _, slot := range slots {
		s.Add(slot)
	}
	return s
}

// Add indexes one slot.
func (s *SlotSet) Add(slot model.StaticServiceSlot) {
	if slot.TemplateID == "" {
		return
	}
	if slot.IsExplicit() {
		s.overrides[slot.OverrideKey()] = true
		return
	}
	s.slots[slot.Key()] = true
}

func (s *SlotSet) HasSlot(key model.SlotKey) bool         { return s.slots[key] }
func (s *SlotSet) HasOverride(key model.OverrideKey) bool { return s.overrides[key] }

// SortSlots orders slots by date, start time, then pattern id.
func SortSlots(slots []model.StaticServiceSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if c := timeutil.CompareDates(a.Date, b.Date); c != 0 {
			return c < 0
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.PatternID < b.PatternID
	})
}
