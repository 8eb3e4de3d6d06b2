package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"salonsched/internal/export"
	"salonsched/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *store.Store) {
	t.Helper()
	var seq atomic.Int64
	st := store.New(
		store.WithIDFunc(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		store.WithClock(func() time.Time { return time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC) }),
	)
	exp := export.NewExporter(st, "Bookings", time.UTC, nil)
	srv := httptest.NewServer(NewServer(st, exp, time.UTC, opts, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorCode(t *testing.T, data []byte) ErrorBody {
	t.Helper()
	var res Response
	require.NoError(t, json.Unmarshal(data, &res), string(data))
	require.NotNil(t, res.Error, string(data))
	return *res.Error
}

const yogaTemplate = `{
	"id": "tpl-1",
	"business_id": "biz",
	"branch_id": "br-1",
	"active_from": "2025-10-01",
	"state": "active",
	"weekly_pattern": [{
		"day_of_week": "mon",
		"start_time": "09:00",
		"end_time": "10:00",
		"service_id": "yoga",
		"room_id": "R",
		"capacity": 2,
		"price": "20.00"
	}]
}`

func TestAPI_TemplateToBookingFlow(t *testing.T) {
	srv, st := newTestServer(t, Options{})

	resp, data := do(t, srv, http.MethodPost, "/api/v1/resources", `{"id":"R","branch_id":"br-1","kind":"room","name":"Studio","capacity":2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = do(t, srv, http.MethodPost, "/api/v1/templates", yogaTemplate)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = do(t, srv, http.MethodPost, "/api/v1/templates/tpl-1/generate", `{"from":"2025-10-01","to":"2025-10-31"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var gen generateResponse
	require.NoError(t, json.Unmarshal(data, &gen))
	assert.Len(t, gen.Created, 4, "four Mondays in October 2025")
	assert.Equal(t, st.Version(), gen.Version)

	resp, data = do(t, srv, http.MethodGet, "/api/v1/slots?free=true&service_id=yoga&from=2025-10-06&to=2025-10-06", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var free []store.FreeSlot
	require.NoError(t, json.Unmarshal(data, &free))
	require.Len(t, free, 1)
	assert.Equal(t, 2, free[0].Remaining)
	slotID := free[0].Slot.ID

	booking := fmt.Sprintf(`{"slot_id":%q,"customer_name":"Alice","party_size":2}`, slotID)
	resp, data = do(t, srv, http.MethodPost, "/api/v1/bookings", booking)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created struct {
		Data struct {
			ID    string `json:"id"`
			Start time.Time
		} `json:"data"`
		Version int64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC), created.Data.Start.UTC())

	resp, data = do(t, srv, http.MethodPost, "/api/v1/bookings", fmt.Sprintf(`{"slot_id":%q,"customer_name":"Bob"}`, slotID))
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(data))
	assert.Equal(t, "CAPACITY", errorCode(t, data).Code)

	resp, data = do(t, srv, http.MethodGet, "/api/v1/bookings?from=2025-10-06&to=2025-10-06", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "Alice")

	resp, data = do(t, srv, http.MethodPost, "/api/v1/bookings/"+created.Data.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	resp, data = do(t, srv, http.MethodPost, "/api/v1/bookings/"+created.Data.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, data).Code)

	resp, data = do(t, srv, http.MethodGet, "/api/v1/export/events?from=2025-10-01&to=2025-10-31", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var records []export.CalendarEvent
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "cancelled", records[0].Status)
	assert.Equal(t, "Studio", records[0].Room)
	assert.Equal(t, "v1", records[0].Version)

	resp, data = do(t, srv, http.MethodGet, "/api/v1/export/events?from=2025-10-01&to=2025-10-31&format=xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "bookings_2025-10-01_2025-10-31.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAPI_TemplateLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/templates", yogaTemplate)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := do(t, srv, http.MethodPost, "/api/v1/templates/tpl-1/deactivate?expected_version=99", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONCURRENT_MODIFICATION", errorCode(t, data).Code)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/templates/tpl-1/deactivate?expected_version=1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/templates/tpl-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = do(t, srv, http.MethodPost, "/api/v1/templates/tpl-1/activate", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, data).Code)

	resp, data = do(t, srv, http.MethodGet, "/api/v1/templates", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	resp, data = do(t, srv, http.MethodGet, "/api/v1/templates?include_deleted=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"state":"deleted"`)
}

func TestAPI_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{MaxRangeDays: 31})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"malformed body", http.MethodPost, "/api/v1/templates", `{"id":`, http.StatusBadRequest, "VALIDATION", "body"},
		{"bad date", http.MethodPost, "/api/v1/templates", `{"branch_id":"b","active_from":"01.10.2025"}`, http.StatusBadRequest, "VALIDATION", "active_from"},
		{"unknown template", http.MethodGet, "/api/v1/templates/nope", "", http.StatusNotFound, "NOT_FOUND", ""},
		{"range too long", http.MethodGet, "/api/v1/bookings?from=2025-01-01&to=2025-03-01", "", http.StatusBadRequest, "VALIDATION", "range"},
		{"inverted range", http.MethodGet, "/api/v1/slots?from=2025-03-01&to=2025-01-01", "", http.StatusBadRequest, "VALIDATION", "range"},
		{"export needs range", http.MethodGet, "/api/v1/export/events", "", http.StatusBadRequest, "VALIDATION", "from"},
		{"export format", http.MethodGet, "/api/v1/export/events?from=2025-01-01&to=2025-01-02&format=csv", "", http.StatusBadRequest, "VALIDATION", "format"},
		{"bad expected version", http.MethodPost, "/api/v1/bookings/x/cancel?expected_version=abc", "", http.StatusBadRequest, "VALIDATION", "expected_version"},
		{"no policy", http.MethodPost, "/api/v1/commission/resolve", `{"scope":"service","staff_id":"X","amount":"100"}`, http.StatusNotFound, "NO_POLICY", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
			body := errorCode(t, data)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantField != "" {
				assert.Contains(t, body.Fields, tt.wantField)
			}
		})
	}
}

func TestAPI_AvailabilityAndConflicts(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, data := do(t, srv, http.MethodPost, "/api/v1/time-off", `{"id":"off-1","staff_id":"X","start":"2025-10-20T09:00:00Z","end":"2025-10-20T17:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	check := `{"staff_id":"X","start":"2025-10-20T10:00:00Z","end":"2025-10-20T11:00:00Z"}`
	resp, data = do(t, srv, http.MethodPost, "/api/v1/availability/check", check)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.JSONEq(t, `{"valid":true}`, string(data), "pending time off does not block")

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/time-off/off-1/approve", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = do(t, srv, http.MethodPost, "/api/v1/availability/check", check)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		Valid    bool `json:"valid"`
		Conflict struct {
			Kind       string `json:"kind"`
			BlockingID string `json:"blocking_id"`
		} `json:"conflict"`
	}
	require.NoError(t, json.Unmarshal(data, &res))
	assert.False(t, res.Valid)
	assert.Equal(t, "TIME_OFF", res.Conflict.Kind)
	assert.Equal(t, "off-1", res.Conflict.BlockingID)

	resp, data = do(t, srv, http.MethodPost, "/api/v1/bookings", `{"staff_id":"X","service_id":"cut","customer_name":"Bob","start":"2025-10-20T10:00:00Z","end":"2025-10-20T11:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := errorCode(t, data)
	assert.Equal(t, "TIME_OFF", body.Code)
	assert.Equal(t, "off-1", body.BlockingID)
}

func TestAPI_ResourcesAndCommission(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/resources", `{"id":"A","branch_id":"br","service_ids":["svc-1"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPost, "/api/v1/resources", `{"id":"B","branch_id":"br"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := do(t, srv, http.MethodPut, "/api/v1/resources/B/services", `{"service_ids":["svc-1","svc-2"]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := errorCode(t, data)
	assert.Equal(t, "ASSIGNMENT_CONFLICT", body.Code)
	assert.Equal(t, []string{"svc-1"}, body.Conflicts)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/resources/A", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPut, "/api/v1/resources/B/services", `{"service_ids":["svc-1","svc-2"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	policy := `{"id":"P1","scope":"service","type":"percent","value":"10","applies_to":"service_provider","staff_scope":{"staff_ids":["X"]}}`
	resp, data = do(t, srv, http.MethodPost, "/api/v1/commission/policies", policy)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	resp, data = do(t, srv, http.MethodPost, "/api/v1/commission/policies", strings.Replace(policy, "P1", "P2", 1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_POLICY", errorCode(t, data).Code)

	resp, data = do(t, srv, http.MethodPost, "/api/v1/commission/resolve", `{"scope":"service","staff_id":"X","amount":"100"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var res struct {
		Amount   string `json:"amount"`
		PolicyID string `json:"policy_id"`
	}
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, "10", res.Amount)
	assert.Equal(t, "P1", res.PolicyID)
}

func TestAPI_RateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})

	resp, _ := do(t, srv, http.MethodGet, "/api/v1/resources", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := do(t, srv, http.MethodGet, "/api/v1/resources", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, data).Code)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}
