package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expenditures/internal/calendar"
	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/middleware/ratelimit"
	"expenditures/internal/view"
)

type fakeSync struct {
	snap   livesync.Snapshot
	status livesync.Status
}

func (f *fakeSync) Snapshot() livesync.Snapshot { return f.snap }
func (f *fakeSync) Status() livesync.Status     { return f.status }

type fakeMutator struct {
	mu      sync.Mutex
	created []core.NewRecord
	updated map[string]core.Patch
	deleted []string
	err     error
}

func (f *fakeMutator) Create(_ context.Context, n core.NewRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, n)
	return fmt.Sprintf("id-%d", len(f.created)), nil
}

func (f *fakeMutator) Update(_ context.Context, id string, p core.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = make(map[string]core.Patch)
	}
	f.updated[id] = p
	return nil
}

func (f *fakeMutator) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func fixtureSync() *fakeSync {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	return &fakeSync{
		snap: livesync.NewSnapshot(4, day(15), []core.Record{
			{ID: "1", Item: "Paper", Vendor: "ABC", Amount: decimal.NewFromInt(500), CreatedAt: day(5)},
			{ID: "2", Item: "Ink", Vendor: "XYZ", Amount: decimal.NewFromInt(200), CreatedAt: day(10)},
			{ID: "3", Item: "Pending", Amount: decimal.NewFromInt(50)},
		}),
		status: livesync.Status{State: livesync.StateLive, Version: 4},
	}
}

func newTestServer(t *testing.T, src *fakeSync, m *fakeMutator) *Server {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	session := view.NewSession(src, view.Options{
		Location: time.UTC,
		Picker:   []calendar.Option{calendar.WithClock(now)},
	})
	deps := Deps{Session: session, Sync: src}
	if m != nil {
		deps.Mutator = m
	}
	return NewServer(":0", deps)
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	src := fixtureSync()
	srv := newTestServer(t, src, nil)

	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[readyDTO](t, rr); got.State != "live" || got.Version != 4 {
		t.Fatalf("readyz body = %+v", got)
	}

	src.status = livesync.Status{State: livesync.StateFailed, Err: &core.ConnectionError{Op: "listen", Err: errors.New("boom")}}
	rr = do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("failed sync readyz status=%d", rr.Code)
	}
	if got := decode[readyDTO](t, rr); !strings.Contains(got.Error, "boom") {
		t.Fatalf("readyz error = %q", got.Error)
	}
}

func TestReady_BackendCheck(t *testing.T) {
	src := fixtureSync()
	session := view.NewSession(src, view.Options{Location: time.UTC})
	srv := NewServer(":0", Deps{
		Session: session,
		Sync:    src,
		Ready:   func(context.Context) error { return errors.New("broker down") },
	})

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestProjection(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	tests := []struct {
		name   string
		target string
		status int
		count  int
		total  string
	}{
		{"unfiltered", "/api/expenditures", 200, 3, "750.00"},
		{"search", "/api/expenditures?q=abc", 200, 1, "500.00"},
		{"range drops pending", "/api/expenditures?start=2025-03-01&end=2025-03-31", 200, 2, "700.00"},
		{"open start", "/api/expenditures?start=2025-03-06", 200, 1, "200.00"},
		{"crossed range", "/api/expenditures?start=2025-03-20&end=2025-03-01", 422, 0, ""},
		{"malformed date", "/api/expenditures?start=2025-02-30", 400, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.target, "")
			if rr.Code != tt.status {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
			}
			if tt.status != 200 {
				return
			}
			got := decode[projectionDTO](t, rr)
			if got.Count != tt.count || got.Total != tt.total || len(got.Records) != tt.count {
				t.Fatalf("count=%d total=%s records=%d", got.Count, got.Total, len(got.Records))
			}
			if got.Version != 4 {
				t.Fatalf("version=%d", got.Version)
			}
		})
	}
}

func TestProjection_PendingCreatedAtIsNull(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	rr := do(t, srv, http.MethodGet, "/api/expenditures?q=pending", "")
	if !strings.Contains(rr.Body.String(), `"createdAt":null`) {
		t.Fatalf("body = %s", rr.Body)
	}
}

func TestFilterLifecycle(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	rr := do(t, srv, http.MethodPut, "/api/filter", `{"search":"ink","start":"2025-03-01","end":"2025-03-31"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[filterDTO](t, rr); got.Search != "ink" || got.Start != "2025-03-01" || got.End != "2025-03-31" {
		t.Fatalf("filter = %+v", got)
	}

	got := decode[projectionDTO](t, do(t, srv, http.MethodGet, "/api/expenditures", ""))
	if got.Count != 1 || got.Records[0].ID != "2" {
		t.Fatalf("filtered projection = %+v", got)
	}

	// A crossed range is rejected and the stored filter is kept.
	rr = do(t, srv, http.MethodPut, "/api/filter", `{"start":"2025-04-01","end":"2025-03-01"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("crossed put status=%d", rr.Code)
	}
	if e := decode[errorDTO](t, rr); e.Reason == "" {
		t.Fatalf("missing reason in %+v", e)
	}
	if f := decode[filterDTO](t, do(t, srv, http.MethodGet, "/api/filter", "")); f.Search != "ink" || f.Start != "2025-03-01" {
		t.Fatalf("filter after rejection = %+v", f)
	}

	rr = do(t, srv, http.MethodDelete, "/api/filter", "")
	if f := decode[filterDTO](t, rr); f != (filterDTO{}) {
		t.Fatalf("cleared filter = %+v", f)
	}
	if got := decode[projectionDTO](t, do(t, srv, http.MethodGet, "/api/expenditures", "")); got.Count != 3 {
		t.Fatalf("count after clear = %d", got.Count)
	}
}

func TestFilter_RejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	rr := do(t, srv, http.MethodPut, "/api/filter", `{"serach":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRecordWrites(t *testing.T) {
	m := &fakeMutator{}
	srv := newTestServer(t, fixtureSync(), m)

	rr := do(t, srv, http.MethodPost, "/api/expenditures", `{"item":" Paper ","amount":"12,50","vendor":"ABC"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[map[string]string](t, rr); got["id"] != "id-1" {
		t.Fatalf("create body = %v", got)
	}
	if n := m.created[0]; n.Item != "Paper" || !n.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("created = %+v", n)
	}

	rr = do(t, srv, http.MethodPatch, "/api/expenditures/id-1", `{"amount":7}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("patch status=%d body=%s", rr.Code, rr.Body)
	}
	if p := m.updated["id-1"]; p.Amount == nil || !p.Amount.Equal(decimal.NewFromInt(7)) || p.Item != nil {
		t.Fatalf("patch = %+v", p)
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenditures/id-1", "")
	if rr.Code != http.StatusNoContent || len(m.deleted) != 1 || m.deleted[0] != "id-1" {
		t.Fatalf("delete status=%d deleted=%v", rr.Code, m.deleted)
	}
}

func TestRecordWrites_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mut    *fakeMutator
		method string
		target string
		body   string
		status int
	}{
		{"negative amount", &fakeMutator{}, http.MethodPost, "/api/expenditures", `{"item":"x","amount":"-3"}`, 422},
		{"missing amount", &fakeMutator{}, http.MethodPost, "/api/expenditures", `{"item":"x"}`, 422},
		{"bad json", &fakeMutator{}, http.MethodPost, "/api/expenditures", `{"item":`, 400},
		{"unknown record", &fakeMutator{err: core.ErrNotFound}, http.MethodDelete, "/api/expenditures/nope", "", 404},
		{"store failure", &fakeMutator{err: errors.New("disk full")}, http.MethodPost, "/api/expenditures", `{"item":"x","amount":"1"}`, 500},
		{"read-only create", nil, http.MethodPost, "/api/expenditures", `{"item":"x","amount":"1"}`, 501},
		{"read-only delete", nil, http.MethodDelete, "/api/expenditures/1", "", 501},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, fixtureSync(), tt.mut)
			rr := do(t, srv, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
			}
			if tt.status == 500 && strings.Contains(rr.Body.String(), "disk full") {
				t.Fatalf("internal error leaked: %s", rr.Body)
			}
		})
	}
}

func TestCalendarFlow(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	cal := decode[calendarDTO](t, do(t, srv, http.MethodGet, "/api/calendar", ""))
	if cal.Open || cal.Grid != nil {
		t.Fatalf("initial calendar = %+v", cal)
	}

	// Selecting while closed is a conflict.
	if rr := do(t, srv, http.MethodPost, "/api/calendar/select", `{"date":"2025-03-02"}`); rr.Code != http.StatusConflict {
		t.Fatalf("closed select status=%d", rr.Code)
	}

	cal = decode[calendarDTO](t, do(t, srv, http.MethodPost, "/api/calendar/open", `{"mode":"start"}`))
	if !cal.Open || cal.Mode != "start" || cal.Month != "2025-03" || cal.WeekStart != "Sunday" {
		t.Fatalf("opened calendar = %+v", cal)
	}
	// March 2025 starts on a Saturday: six rows, day 1 in the last column.
	if len(cal.Grid) != 6 || cal.Grid[0][6] != "2025-03-01" || cal.Grid[0][0] != "" {
		t.Fatalf("grid = %v", cal.Grid)
	}

	cal = decode[calendarDTO](t, do(t, srv, http.MethodPost, "/api/calendar/navigate", `{"direction":"next"}`))
	if cal.Month != "2025-04" {
		t.Fatalf("month after next = %s", cal.Month)
	}

	cal = decode[calendarDTO](t, do(t, srv, http.MethodPost, "/api/calendar/select", `{"date":"2025-04-10"}`))
	if cal.Open || cal.Range.Start != "2025-04-10" {
		t.Fatalf("after select = %+v", cal)
	}

	// An end before the start is refused and the picker stays open.
	do(t, srv, http.MethodPost, "/api/calendar/open", `{"mode":"end"}`)
	rr := do(t, srv, http.MethodPost, "/api/calendar/select", `{"date":"2025-04-01"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("crossing select status=%d", rr.Code)
	}
	cal = decode[calendarDTO](t, do(t, srv, http.MethodGet, "/api/calendar", ""))
	if !cal.Open || cal.Mode != "end" || cal.Range.End != "" {
		t.Fatalf("after rejected select = %+v", cal)
	}

	cal = decode[calendarDTO](t, do(t, srv, http.MethodPost, "/api/calendar/cancel", ""))
	if cal.Open || cal.Range.Start != "2025-04-10" {
		t.Fatalf("after cancel = %+v", cal)
	}
}

func TestCalendar_BadInput(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	tests := []struct {
		target, body string
		status       int
	}{
		{"/api/calendar/open", `{"mode":"middle"}`, 400},
		{"/api/calendar/navigate", `{"direction":"sideways"}`, 400},
		{"/api/calendar/navigate", `{"direction":"next"}`, 409},
		{"/api/calendar/select", `{"date":"2025-13-01"}`, 400},
	}
	for _, tt := range tests {
		if rr := do(t, srv, http.MethodPost, tt.target, tt.body); rr.Code != tt.status {
			t.Errorf("%s %s status=%d want %d", tt.target, tt.body, rr.Code, tt.status)
		}
	}
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, fixtureSync(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/expenditures", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header = %q", got)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("content type = %q", got)
	}
	if srv.Metrics().TotalRequests != 1 {
		t.Fatalf("metrics = %+v", srv.Metrics())
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	src := fixtureSync()
	srv := NewServer(":0", Deps{
		Session: view.NewSession(src, view.Options{Location: time.UTC}),
		Sync:    src,
		Mutator: &fakeMutator{},
		Limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1}),
	})

	body := `{"item":"x","amount":"1"}`
	if rr := do(t, srv, http.MethodPost, "/api/expenditures", body); rr.Code != http.StatusCreated {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/expenditures", body)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second write status=%d", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/expenditures", ""); rr.Code != http.StatusOK {
			t.Fatalf("read %d status=%d", i, rr.Code)
		}
	}
}
