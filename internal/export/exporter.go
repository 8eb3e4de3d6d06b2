package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/store"
	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts json or xlsx; empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", model.Invalid("format", fmt.Sprintf("unsupported format %q, expected json or xlsx", s))
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Filename is the download name for a range export, e.g. bookings_2025-10-01_2025-10-31.xlsx.
func Filename(from, to time.Time, f Format) string {
	return fmt.Sprintf("bookings_%s_%s.%s", timeutil.DateKey(from), timeutil.DateKey(to), f)
}

// BookingSource lists bookings; *store.Store satisfies it.
type BookingSource interface {
	Bookings(f store.BookingFilter) []model.Booking
}

// Exporter renders bookings in a range as CalendarEvent records.
type Exporter struct {
	source    BookingSource
	newWriter func() ExcelWriter
	sheetName string
	loc       *time.Location
	logger    zerolog.Logger
}

// NewExporter builds an exporter writing XLSX through excelize.
func NewExporter(source BookingSource, sheetName string, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	if loc == nil {
		loc = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "export").Logger()
	}
	return &Exporter{
		source:    source,
		newWriter: NewExcelizeWriter,
		sheetName: sheetName,
		loc:       loc,
		logger:    l,
	}
}

// Records returns every booking overlapping [from, to), cancelled ones included, by start.
func (e *Exporter) Records(from, to time.Time) []CalendarEvent {
	return FromBookings(e.source.Bookings(store.BookingFilter{
		From:             from,
		To:               to,
		IncludeCancelled: true,
	}), e.loc)
}

// Write renders the range to w and returns the number of records written.
func (e *Exporter) Write(ctx context.Context, w io.Writer, f Format, from, to time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	records := e.Records(from, to)

	var err error
	switch f {
	case FormatXLSX:
		err = e.writeXLSX(w, records)
	case FormatJSON, "":
		err = json.NewEncoder(w).Encode(records)
	default:
		return 0, model.Invalid("format", "unsupported format "+string(f))
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", f, err)
	}

	e.logger.Info().
		Str("format", string(f)).
		Int("records", len(records)).
		Str("from", timeutil.DateKey(from)).
		Str("to", timeutil.DateKey(to)).
		Msg("bookings exported")
	return len(records), nil
}

func (e *Exporter) writeXLSX(w io.Writer, records []CalendarEvent) error {
	excel := e.newWriter()
	defer func() { _ = excel.Close() }()

	if err := excel.AddSheet(e.sheetName); err != nil {
		return err
	}
	if err := excel.WriteHeader(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := excel.WriteRow(r.Values()); err != nil {
			return fmt.Errorf("write row %s: %w", r.BookingID, err)
		}
	}
	return excel.Save(w)
}
