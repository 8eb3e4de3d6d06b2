package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/store"
	"salonsched/internal/timeutil"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const versionKey = "store_version"

// bookingRow maps the bookings table.
type bookingRow struct {
	ID            string `db:"id"`
	StartTime     string `db:"start_time"`
	EndTime       string `db:"end_time"`
	StaffID       string `db:"staff_id"`
	RoomID        string `db:"room_id"`
	SlotID        string `db:"slot_id"`
	ServiceID     string `db:"service_id"`
	CustomerName  string `db:"customer_name"`
	ServiceName   string `db:"service_name"`
	StaffName     string `db:"staff_name"`
	RoomName      string `db:"room_name"`
	Notes         string `db:"notes"`
	Status        string `db:"status"`
	PaymentStatus string `db:"payment_status"`
	Price         string `db:"price"`
	PartySize     int    `db:"party_size"`
	Version       int64  `db:"version"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

func toBookingRow(b model.Booking) bookingRow {
	return bookingRow{
		ID:            b.ID,
		StartTime:     formatTime(b.Start),
		EndTime:       formatTime(b.End),
		StaffID:       b.StaffID,
		RoomID:        b.RoomID,
		SlotID:        b.SlotID,
		ServiceID:     b.ServiceID,
		CustomerName:  b.CustomerName,
		ServiceName:   b.ServiceName,
		StaffName:     b.StaffName,
		RoomName:      b.RoomName,
		Notes:         b.Notes,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Price:         b.Price.String(),
		PartySize:     b.PartySize,
		Version:       b.Version,
		CreatedAt:     formatTime(b.CreatedAt),
		UpdatedAt:     formatTime(b.UpdatedAt),
	}
}

func (r bookingRow) toModel(loc *time.Location) (model.Booking, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %s price: %w", r.ID, err)
	}
	b := model.Booking{
		ID:            r.ID,
		StaffID:       r.StaffID,
		RoomID:        r.RoomID,
		SlotID:        r.SlotID,
		ServiceID:     r.ServiceID,
		CustomerName:  r.CustomerName,
		ServiceName:   r.ServiceName,
		StaffName:     r.StaffName,
		RoomName:      r.RoomName,
		Notes:         r.Notes,
		Status:        model.BookingStatus(r.Status),
		PaymentStatus: model.PaymentStatus(r.PaymentStatus),
		Price:         price,
		PartySize:     r.PartySize,
		Version:       r.Version,
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&b.Start, r.StartTime}, {&b.End, r.EndTime}, {&b.CreatedAt, r.CreatedAt}, {&b.UpdatedAt, r.UpdatedAt}} {
		t, err := parseTime(f.src, loc)
		if err != nil {
			return model.Booking{}, fmt.Errorf("booking %s: %w", r.ID, err)
		}
		*f.dst = t
	}
	return b, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.In(loc), nil
}

// Apply writes one committed store change in a single transaction bound to ctx.
func (db *DB) Apply(ctx context.Context, c store.Change) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyChange(ctx, tx, c); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`, versionKey, c.Version); err != nil {
		return fmt.Errorf("save version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func applyChange(ctx context.Context, tx *sqlx.Tx, c store.Change) error {
	for _, t := range c.Templates {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO schedule_templates (id, branch_id, state, version, updated_at, payload) VALUES (?, ?, ?, ?, ?, ?)`,
			t, t.ID, t.BranchID, string(t.State), t.Version, formatTime(t.UpdatedAt)); err != nil {
			return fmt.Errorf("save template %s: %w", t.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "service_slots", "id", c.DeletedSlots); err != nil {
		return err
	}
	for _, s := range c.Slots {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO service_slots (id, template_id, slot_date, payload) VALUES (?, ?, ?, ?)`,
			s, s.ID, s.TemplateID, dateKey(s.Date)); err != nil {
			return fmt.Errorf("save slot %s: %w", s.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "time_off", "id", c.DeletedTimeOff); err != nil {
		return err
	}
	for _, r := range c.TimeOff {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO time_off (id, staff_id, approved, payload) VALUES (?, ?, ?, ?)`,
			r, r.ID, r.StaffID, r.Approved); err != nil {
			return fmt.Errorf("save time off %s: %w", r.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "reservations", "id", c.DeletedReservations); err != nil {
		return err
	}
	for _, r := range c.Reservations {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO reservations (id, payload) VALUES (?, ?)`, r, r.ID); err != nil {
			return fmt.Errorf("save reservation %s: %w", r.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "resources", "id", c.DeletedResources); err != nil {
		return err
	}
	for _, r := range c.Resources {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO resources (id, branch_id, payload) VALUES (?, ?, ?)`, r, r.ID, r.BranchID); err != nil {
			return fmt.Errorf("save resource %s: %w", r.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "commission_policies", "id", c.DeletedPolicies); err != nil {
		return err
	}
	for _, p := range c.Policies {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO commission_policies (id, scope, payload) VALUES (?, ?, ?)`, p, p.ID, string(p.Scope)); err != nil {
			return fmt.Errorf("save policy %s: %w", p.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "business_hours", "branch_id", c.DeletedHours); err != nil {
		return err
	}
	for _, h := range c.Hours {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO business_hours (branch_id, payload) VALUES (?, ?)`, h, h.BranchID); err != nil {
			return fmt.Errorf("save business hours %s: %w", h.BranchID, err)
		}
	}
	if err := deleteIDs(ctx, tx, "staff_shifts", "staff_id", c.DeletedShifts); err != nil {
		return err
	}
	for _, s := range c.Shifts {
		if err := upsertDoc(ctx, tx,
			`INSERT OR REPLACE INTO staff_shifts (staff_id, payload) VALUES (?, ?)`, s, s.StaffID); err != nil {
			return fmt.Errorf("save staff shift %s: %w", s.StaffID, err)
		}
	}
	for _, b := range c.Bookings {
		if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO bookings (
				id, start_time, end_time, staff_id, room_id, slot_id, service_id, customer_name,
				service_name, staff_name, room_name, notes, status, payment_status, price, party_size,
				version, created_at, updated_at)
			VALUES (
				:id, :start_time, :end_time, :staff_id, :room_id, :slot_id, :service_id, :customer_name,
				:service_name, :staff_name, :room_name, :notes, :status, :payment_status, :price, :party_size,
				:version, :created_at, :updated_at)`, toBookingRow(b)); err != nil {
			return fmt.Errorf("save booking %s: %w", b.ID, err)
		}
	}
	return nil
}

// upsertDoc runs query with the key columns followed by the JSON payload.
func upsertDoc(ctx context.Context, tx *sqlx.Tx, query string, doc any, keys ...any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, append(keys, string(payload))...)
	return err
}

func deleteIDs(ctx context.Context, tx *sqlx.Tx, table, column string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", table, column), ids)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timeutil.DateKey(t)
}

// LoadState reads every collection. Times are returned in loc.
func (db *DB) LoadState(ctx context.Context, loc *time.Location) (store.State, error) {
	if loc == nil {
		loc = time.UTC
	}
	st := store.NewState()

	var version int64
	err := db.GetContext(ctx, &version, `SELECT value FROM store_meta WHERE key = ?`, versionKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return store.State{}, fmt.Errorf("load version: %w", err)
	}
	st.Version = version

	if err := loadDocs(ctx, db, `SELECT payload FROM schedule_templates`, func(t model.ScheduleTemplate) {
		t.ActiveFrom = t.ActiveFrom.In(loc)
		if t.ActiveUntil != nil {
			until := t.ActiveUntil.In(loc)
			t.ActiveUntil = &until
		}
		t.CreatedAt, t.UpdatedAt = t.CreatedAt.In(loc), t.UpdatedAt.In(loc)
		st.Templates[t.ID] = t
	}); err != nil {
		return store.State{}, fmt.Errorf("load templates: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM service_slots`, func(s model.StaticServiceSlot) {
		if !s.Date.IsZero() {
			s.Date = s.Date.In(loc)
		}
		if s.OverrideDate != nil {
			d := s.OverrideDate.In(loc)
			s.OverrideDate = &d
		}
		s.CreatedAt = s.CreatedAt.In(loc)
		st.Slots[s.ID] = s
	}); err != nil {
		return store.State{}, fmt.Errorf("load slots: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM time_off`, func(r model.TimeOffRequest) {
		r.Start, r.End, r.CreatedAt = r.Start.In(loc), r.End.In(loc), r.CreatedAt.In(loc)
		st.TimeOff[r.ID] = r
	}); err != nil {
		return store.State{}, fmt.Errorf("load time off: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM reservations`, func(r model.TimeReservation) {
		r.Start, r.End, r.CreatedAt = r.Start.In(loc), r.End.In(loc), r.CreatedAt.In(loc)
		st.Reservations[r.ID] = r
	}); err != nil {
		return store.State{}, fmt.Errorf("load reservations: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM resources`, func(r model.Resource) {
		r.CreatedAt = r.CreatedAt.In(loc)
		st.Resources[r.ID] = r
	}); err != nil {
		return store.State{}, fmt.Errorf("load resources: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM commission_policies`, func(p model.CommissionPolicy) {
		p.CreatedAt = p.CreatedAt.In(loc)
		st.Policies[p.ID] = p
	}); err != nil {
		return store.State{}, fmt.Errorf("load policies: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM business_hours`, func(h model.BusinessHours) {
		st.Hours[h.BranchID] = h
	}); err != nil {
		return store.State{}, fmt.Errorf("load business hours: %w", err)
	}
	if err := loadDocs(ctx, db, `SELECT payload FROM staff_shifts`, func(s model.StaffShift) {
		st.Shifts[s.StaffID] = s
	}); err != nil {
		return store.State{}, fmt.Errorf("load staff shifts: %w", err)
	}

	var rows []bookingRow
	if err := db.SelectContext(ctx, &rows, `SELECT * FROM bookings`); err != nil {
		return store.State{}, fmt.Errorf("load bookings: %w", err)
	}
	for _, r := range rows {
		b, err := r.toModel(loc)
		if err != nil {
			return store.State{}, fmt.Errorf("load bookings: %w", err)
		}
		st.Bookings[b.ID] = b
	}
	return st, nil
}

func loadDocs[T any](ctx context.Context, db *DB, query string, fn func(T)) error {
	var payloads []string
	if err := db.SelectContext(ctx, &payloads, query); err != nil {
		return err
	}
	for _, p := range payloads {
		var doc T
		if err := json.Unmarshal([]byte(p), &doc); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		fn(doc)
	}
	return nil
}

var _ store.Persister = (*DB)(nil)
