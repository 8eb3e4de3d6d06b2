// Package google pushes calendar event records into a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"sync"

	"salonsched/internal/export"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const lastColumn = "N"

// SheetsService keeps one row per booking, located through a booking id to row cache.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	mu       sync.RWMutex
	rowCache map[string]int
}

// NewSheetsService authenticates with a service account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return NewSheetsServiceWithOptions(ctx, spreadsheetID, sheetName, logger, option.WithCredentials(creds))
}

// NewSheetsServiceWithOptions builds the client from explicit options (endpoint, http client).
func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID, sheetName string, logger *zerolog.Logger, opts ...option.ClientOption) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	if sheetName == "" {
		sheetName = "Bookings"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sheets").Logger()
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        l,
		rowCache:      make(map[string]int),
	}, nil
}

func (s *SheetsService) Name() string { return "google_sheets" }

// EnsureHeader writes the column header when the first row is empty.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf(1)).Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("read header: %w", err))
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(1), &sheets.ValueRange{
		Values: [][]interface{}{headerValues()},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("write header: %w", err))
	}
	return nil
}

// WarmUpCache reads the id column and rebuilds the row cache.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("read id column: %w", err))
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		// header
		if i == 0 || len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			cache[id] = i + 1
		}
	}

	s.mu.Lock()
	s.rowCache = cache
	s.mu.Unlock()
	s.logger.Debug().Int("rows", len(cache)).Msg("row cache warmed up")
	return nil
}

// Upsert rewrites the booking's row in place or appends a new one.
func (s *SheetsService) Upsert(ctx context.Context, rec export.CalendarEvent) error {
	values := [][]interface{}{recordRowValues(rec)}

	if row, ok := s.getCachedRow(rec.BookingID); ok {
		_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(row), &sheets.ValueRange{
			Values: values,
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err == nil {
			return nil
		}
		err = classify(fmt.Errorf("update row %d: %w", row, err))
		if !export.IsPermanent(err) {
			return err
		}
		// The row is gone or out of range; append a fresh one.
		s.logger.Warn().Err(err).Str("booking_id", rec.BookingID).Msg("cached row rejected")
		s.deleteCacheRow(rec.BookingID)
	}

	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("append row: %w", err))
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(rec.BookingID, row)
		}
	}
	return nil
}

// ReplaceAll clears the sheet and writes the header plus every active record.
func (s *SheetsService) ReplaceAll(ctx context.Context, records []export.CalendarEvent) error {
	active := s.filterActive(records)

	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return classify(fmt.Errorf("clear sheet: %w", err))
	}

	values := make([][]interface{}, 0, len(active)+1)
	values = append(values, headerValues())
	for _, r := range active {
		values = append(values, recordRowValues(r))
	}
	if _, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return classify(fmt.Errorf("write records: %w", err))
	}

	cache := make(map[string]int, len(active))
	for i, r := range active {
		cache[r.BookingID] = i + 2
	}
	s.mu.Lock()
	s.rowCache = cache
	s.mu.Unlock()

	s.logger.Info().Int("records", len(active)).Msg("sheet replaced")
	return nil
}

func (s *SheetsService) filterActive(records []export.CalendarEvent) []export.CalendarEvent {
	var active []export.CalendarEvent
	for _, r := range records {
		if r.Active() {
			active = append(active, r)
		}
	}
	return active
}

func (s *SheetsService) rangeOf(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.sheetName, row, lastColumn, row)
}

func (s *SheetsService) getCachedRow(bookingID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

func (s *SheetsService) setCachedRow(bookingID string, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[bookingID] = row
}

func (s *SheetsService) deleteCacheRow(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, bookingID)
}

// ClearCache forgets all known rows.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}

func headerValues() []interface{} {
	out := make([]interface{}, len(export.Columns))
	for i, c := range export.Columns {
		out[i] = c
	}
	return out
}

// recordRowValues renders a record for the sheet; price stays a decimal string.
func recordRowValues(rec export.CalendarEvent) []interface{} {
	values := rec.Values()
	values[11] = rec.Price.StringFixed(2)
	return values
}

var updatedRangeRE = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number of an A1 range like "Bookings!A7:N7".
func rowFromRange(a1 string) (int, bool) {
	m := updatedRangeRE.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) &&
		apiErr.Code >= http.StatusBadRequest && apiErr.Code < http.StatusInternalServerError &&
		apiErr.Code != http.StatusTooManyRequests {
		return export.Permanent(err)
	}
	return err
}

var _ export.Sink = (*SheetsService)(nil)
