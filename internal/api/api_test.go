package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/vidar_signage/internal/catalog"
	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/logbuffer"
	"github.com/friendsincode/vidar_signage/internal/models"
	"github.com/friendsincode/vidar_signage/internal/player"
)

type noopMedia struct{}

func (noopMedia) Load(ctx context.Context, location string) error { return nil }
func (noopMedia) SetLevel(level int) error                        { return nil }
func (noopMedia) Stop() error                                     { return nil }
func (noopMedia) IsActive() bool                                  { return false }

type noopPage struct{}

func (noopPage) Navigate(ctx context.Context, url string) error { return nil }
func (noopPage) Close() error                                   { return nil }

func newTestAPI(t *testing.T) (*API, *catalog.Catalog, chi.Router) {
	t.Helper()
	logger := zerolog.Nop()
	bus := events.NewBus()
	clk := clock.NewFake(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	cat := catalog.New(bus, clk, logger)
	session := player.NewSession(noopMedia{}, noopPage{}, clk, player.FadeConfig{}, logger)

	a := New(cat, session, bus, logbuffer.New(100), logger)
	r := chi.NewRouter()
	a.Routes(r)
	return a, cat, r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] == "" {
		t.Errorf("health response = %v", resp)
	}
}

func TestContentCRUD(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/content/", contentRequest{
		Name:     "lobby loop",
		Kind:     "video",
		Location: "/media/lobby.mp4",
		Duration: 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Content
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned content id")
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/content/"+created.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/content/", nil)
	var list []models.Content
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d", len(list))
	}

	rec = doJSON(t, r, http.MethodPatch, "/api/v1/content/"+created.ID+"/duration", durationRequest{Duration: 45})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch duration status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/content/"+created.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodDelete, "/api/v1/content/"+created.ID+"/", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestContentCreateValidation(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/content/", contentRequest{
		Name: "no location",
		Kind: "video",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing location status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/content/", contentRequest{
		Name:     "bad kind",
		Kind:     "hologram",
		Location: "/media/x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid kind status = %d", rec.Code)
	}
}

func TestPlaylistRoundTrip(t *testing.T) {
	_, cat, r := newTestAPI(t)

	a, err := cat.AddContent(models.Content{Name: "a", Kind: models.KindImage, Location: "/media/a.png"})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}
	b, err := cat.AddContent(models.Content{Name: "b", Kind: models.KindImage, Location: "/media/b.png"})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}

	rec := doJSON(t, r, http.MethodPut, "/api/v1/playlist/", playlistRequest{ContentIDs: []string{b.ID, a.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("put playlist status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/playlist/", nil)
	var resp struct {
		ContentIDs []string `json:"content_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.ContentIDs) != 2 || resp.ContentIDs[0] != b.ID || resp.ContentIDs[1] != a.ID {
		t.Errorf("playlist = %v, want [%s %s]", resp.ContentIDs, b.ID, a.ID)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/schedules/", scheduleRequest{
		Name:      "mornings",
		StartRule: "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0",
		EndRule:   "FREQ=DAILY;BYHOUR=17;BYMINUTE=0;BYSECOND=0",
		Enabled:   true,
		Priority:  5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, r, http.MethodPut, "/api/v1/schedules/"+created.ID+"/", scheduleRequest{
		Name:      "mornings",
		StartRule: "FREQ=DAILY;BYHOUR=8;BYMINUTE=0;BYSECOND=0",
		Enabled:   true,
		Priority:  7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/schedules/", scheduleRequest{
		Name:      "broken",
		StartRule: "FREQ=NONSENSE",
		Enabled:   true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid rule status = %d", rec.Code)
	}
	var errResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp["error"] != "invalid_rule" {
		t.Errorf("error code = %q", errResp["error"])
	}

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/schedules/"+created.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodDelete, "/api/v1/schedules/missing/", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d", rec.Code)
	}
}

func TestScheduleWithoutRulesIsAccepted(t *testing.T) {
	_, cat, r := newTestAPI(t)

	// No start/end rules: always active while enabled.
	rec := doJSON(t, r, http.MethodPost, "/api/v1/schedules/", scheduleRequest{
		Name:     "always",
		Enabled:  true,
		Priority: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned schedule id")
	}
	if got := len(cat.ListSchedules()); got != 1 {
		t.Fatalf("stored schedules = %d, want 1", got)
	}

	// An end rule without a start rule is still rejected.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/schedules/", scheduleRequest{
		Name:    "broken",
		EndRule: "FREQ=DAILY;BYHOUR=17;BYMINUTE=0;BYSECOND=0",
		Enabled: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("end-only rule status = %d, want 400", rec.Code)
	}
}

func TestStatusReportsIdleSession(t *testing.T) {
	_, cat, r := newTestAPI(t)
	if _, err := cat.AddContent(models.Content{Name: "a", Kind: models.KindImage, Location: "/media/a.png"}); err != nil {
		t.Fatalf("add content: %v", err)
	}

	rec := doJSON(t, r, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["state"] != "idle" {
		t.Errorf("state = %v", resp["state"])
	}
	if resp["content_count"] != float64(1) {
		t.Errorf("content_count = %v", resp["content_count"])
	}
	if _, ok := resp["now_playing"]; ok {
		t.Error("idle session should have no now_playing entry")
	}
}

// droppedStream hands out subscriptions the bus has already closed, the
// state a slow observer is left in after a prune.
type droppedStream struct{}

func (droppedStream) Subscribe(eventType events.EventType) events.Subscriber {
	ch := make(events.Subscriber)
	close(ch)
	return ch
}

func (droppedStream) Unsubscribe(eventType events.EventType, sub events.Subscriber) {}

func TestEventStreamClosesWhenSubscriptionDropped(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus()
	clk := clock.NewFake(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	cat := catalog.New(bus, clk, logger)
	session := player.NewSession(noopMedia{}, noopPage{}, clk, player.FadeConfig{}, logger)
	a := New(cat, session, droppedStream{}, logbuffer.New(100), logger)

	r := chi.NewRouter()
	a.Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, srv.URL+"/api/v1/events?types=now_playing_changed", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The server must close the stream instead of spinning out frames
	// drained from the closed subscription.
	if _, data, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected stream to close, got frame %s", data)
	}
}

func TestLogEndpoints(t *testing.T) {
	a, _, r := newTestAPI(t)
	a.logBuffer.Add(logbuffer.LogEntry{
		Timestamp: time.Now(),
		Level:     "error",
		Message:   "load failed",
		Component: "session",
	})
	a.logBuffer.Add(logbuffer.LogEntry{
		Timestamp: time.Now(),
		Level:     "info",
		Message:   "now playing",
		Component: "driver",
	})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/logs/?level=error", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logs status = %d", rec.Code)
	}
	var resp struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].Message != "load failed" {
		t.Errorf("filtered logs = %+v", resp)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/logs/components", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("components status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/logs/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodGet, "/api/v1/logs/stats", nil)
	var stats logbuffer.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("count after clear = %d", stats.Count)
	}
}
