package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/health"
	"github.com/ErlanBelekov/longrun-driver/internal/repository"
	"github.com/ErlanBelekov/longrun-driver/internal/scheduler"
	"github.com/ErlanBelekov/longrun-driver/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- fakes ----

type fakeChecker struct {
	readiness health.HealthResult
}

func (f *fakeChecker) Liveness(context.Context) health.HealthResult {
	return health.HealthResult{Status: "up"}
}

func (f *fakeChecker) Readiness(context.Context) health.HealthResult { return f.readiness }

type fakeScheduler struct {
	snap scheduler.Snapshot
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot { return f.snap }

type fakeEvents struct {
	evs []domain.Event
}

func (f *fakeEvents) RunID() string { return "20260301_080000_ab12cd34" }

func (f *fakeEvents) Events() []domain.Event { return f.Since(0) }

func (f *fakeEvents) Since(n int) []domain.Event {
	if n > len(f.evs) {
		n = len(f.evs)
	}
	return append([]domain.Event(nil), f.evs[n:]...)
}

type fakeRepo struct {
	listByRun func(ctx context.Context, runID string, limit int) ([]domain.Event, error)
}

func (f *fakeRepo) Append(context.Context, domain.Event) error { return nil }

func (f *fakeRepo) ListByRun(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	return f.listByRun(ctx, runID, limit)
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(os.Stderr, nil)) }

func sampleEvents() []domain.Event {
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return []domain.Event{
		{ID: "1", Time: ts, Name: domain.EventRunStart, Data: map[string]any{}},
		{ID: "2", Time: ts, Name: domain.EventSchedulerStarted, Data: map[string]any{"mode": "interval"}},
		{ID: "3", Time: ts, Name: domain.EventJobFailed, Data: map[string]any{"error": "<button> missing"}},
	}
}

func newRunEngine(repo *fakeRepo) *gin.Engine {
	var r repository.EventRepository
	if repo != nil {
		r = repo
	}
	h := handler.NewRunHandler("overnight", "output/run", &fakeScheduler{snap: scheduler.Snapshot{Running: true, Mode: "interval", Step: 2, Dispatched: 2}},
		&fakeEvents{evs: sampleEvents()}, r, testLogger())

	e := gin.New()
	e.GET("/api/status", h.Status)
	e.GET("/api/events", h.Events)
	e.GET("/api/runs/:id/events", h.RunEvents)
	e.GET("/summary", h.Summary)
	return e
}

func get(e *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ---- health ----

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		result health.HealthResult
		want   int
	}{
		{"up", health.HealthResult{Status: "up"}, http.StatusOK},
		{"down", health.HealthResult{Status: "down", Checks: map[string]health.CheckResult{"appium": {Status: "down", Error: "refused"}}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(&fakeChecker{readiness: tt.result})
			e := gin.New()
			e.GET("/readyz", h.Readiness)
			e.GET("/healthz", h.Liveness)

			if w := get(e, "/readyz"); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w := get(e, "/healthz"); w.Code != http.StatusOK {
				t.Errorf("liveness status = %d, want 200", w.Code)
			}
		})
	}
}

// ---- status & events ----

func TestStatus(t *testing.T) {
	w := get(newRunEngine(nil), "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		RunID     string             `json:"run_id"`
		Name      string             `json:"name"`
		Events    int                `json:"events"`
		Scheduler scheduler.Snapshot `json:"scheduler"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RunID != "20260301_080000_ab12cd34" || body.Name != "overnight" || body.Events != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
	if !body.Scheduler.Running || body.Scheduler.Step != 2 {
		t.Fatalf("unexpected snapshot %+v", body.Scheduler)
	}
}

func TestEvents_Since(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantCount int
		wantNext  int
	}{
		{"", http.StatusOK, 3, 3},
		{"?since=1", http.StatusOK, 2, 3},
		{"?since=3", http.StatusOK, 0, 3},
		{"?since=-1", http.StatusBadRequest, 0, 0},
		{"?since=abc", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(newRunEngine(nil), "/api/events"+tt.query)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Events []domain.Event `json:"events"`
				Next   int            `json:"next"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Events) != tt.wantCount || body.Next != tt.wantNext {
				t.Fatalf("got %d events next=%d, want %d next=%d", len(body.Events), body.Next, tt.wantCount, tt.wantNext)
			}
		})
	}
}

func TestEvents_EmptyIsArray(t *testing.T) {
	w := get(newRunEngine(nil), "/api/events?since=3")
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Fatalf("expected an empty array, got %s", w.Body.String())
	}
}

// ---- run events ----

func TestRunEvents_NoStore(t *testing.T) {
	w := get(newRunEngine(nil), "/api/runs/abc/events")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestRunEvents(t *testing.T) {
	var gotRun string
	var gotLimit int
	repo := &fakeRepo{listByRun: func(_ context.Context, runID string, limit int) ([]domain.Event, error) {
		gotRun, gotLimit = runID, limit
		return sampleEvents()[:1], nil
	}}

	w := get(newRunEngine(repo), "/api/runs/20260228_220000_ffffffff/events?limit=50")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotRun != "20260228_220000_ffffffff" || gotLimit != 50 {
		t.Fatalf("unexpected query run=%s limit=%d", gotRun, gotLimit)
	}
}

func TestRunEvents_Errors(t *testing.T) {
	repo := &fakeRepo{listByRun: func(context.Context, string, int) ([]domain.Event, error) {
		return nil, errors.New("connection reset")
	}}

	if w := get(newRunEngine(repo), "/api/runs/x/events?limit=0"); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
	w := get(newRunEngine(repo), "/api/runs/x/events")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection reset") {
		t.Fatal("internal errors must not leak to the client")
	}
}

// ---- summary ----

func TestSummary(t *testing.T) {
	w := get(newRunEngine(nil), "/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, domain.EventJobFailed) || strings.Contains(body, "<button>") {
		t.Fatalf("expected escaped event rows, got %s", body)
	}
}
