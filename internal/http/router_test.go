package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/incidentd/internal/repository/memory"
	"github.com/statuspulse/incidentd/internal/service/incidents"
	"github.com/statuspulse/incidentd/internal/ws"
	"github.com/statuspulse/incidentd/pkg/incident"
)

func newTestServer(t *testing.T) (*httptest.Server, incidents.Service, *ws.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	hub := ws.NewHub()
	svc := incidents.New(repo, hub, incidents.NewGenerator(99), logger)
	router := NewRouter(logger, svc, hub, nil, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		router.Close()
	})
	return srv, svc, hub
}

func seedSeverities(t *testing.T, svc incidents.Service, sevs ...incident.Severity) {
	t.Helper()
	open := incident.StatusOpen
	for _, sev := range sevs {
		s := sev
		if _, err := svc.Create(context.Background(), incident.Draft{Severity: &s, Status: &open}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func decodeResult(t *testing.T, resp *http.Response) incident.QueryResult {
	t.Helper()
	defer resp.Body.Close()
	var result incident.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode query result: %v", err)
	}
	return result
}

func TestQueryEndpointFiltersAndAggregates(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	seedSeverities(t, svc,
		incident.SeverityCritical, incident.SeverityLow,
		incident.SeverityCritical, incident.SeverityHigh,
	)

	resp, err := http.Get(srv.URL + "/incidents?severity=critical&page=1&limit=10")
	if err != nil {
		t.Fatalf("GET /incidents: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	result := decodeResult(t, resp)
	if result.Total != 2 || len(result.Data) != 2 {
		t.Fatalf("expected 2 critical incidents, got total=%d len=%d", result.Total, len(result.Data))
	}
	for _, inc := range result.Data {
		if inc.Severity != incident.SeverityCritical {
			t.Fatalf("leaked severity %q", inc.Severity)
		}
	}
	if result.CountsBySeverity.Critical != 2 || result.CountsBySeverity.Total != 2 {
		t.Fatalf("aggregates over full filtered set expected, got %+v", result.CountsBySeverity)
	}
	if result.CountsByStatus.Open != 2 {
		t.Fatalf("status counts wrong: %+v", result.CountsByStatus)
	}
}

func TestQueryEndpointClampsPage(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	seedSeverities(t, svc, incident.SeverityLow, incident.SeverityLow, incident.SeverityLow)

	resp, err := http.Get(srv.URL + "/incidents?page=999&limit=2")
	if err != nil {
		t.Fatalf("GET /incidents: %v", err)
	}
	result := decodeResult(t, resp)
	if result.Page != 2 || result.TotalPages != 2 {
		t.Fatalf("expected clamp to last page 2, got page=%d totalPages=%d", result.Page, result.TotalPages)
	}
	if len(result.Data) != 1 {
		t.Fatalf("last page should hold the remainder, got %d items", len(result.Data))
	}
}

func TestGetMissingIncidentReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/incidents/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Incident not found" {
		t.Fatalf("error message = %q", body["error"])
	}
}

func TestCreateUpdateResolveDeleteLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := srv.Client()

	body := bytes.NewBufferString(`{"title":"Checkout degraded","severity":"high","status":"open"}`)
	resp, err := client.Post(srv.URL+"/incidents", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created incident.Incident
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	resp.Body.Close()
	if created.Title != "Checkout degraded" || created.Severity != incident.SeverityHigh {
		t.Fatalf("body fields not applied: %+v", created)
	}

	patch := bytes.NewBufferString(`{"status":"investigating"}`)
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/incidents/"+created.ID, patch)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	var updated incident.Incident
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	resp.Body.Close()
	if updated.Status != incident.StatusInvestigating {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Title != created.Title {
		t.Fatal("partial patch must leave other fields intact")
	}

	req, _ = http.NewRequest(http.MethodPatch, srv.URL+"/incidents/"+created.ID+"/resolve", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var resolved incident.Incident
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	resp.Body.Close()
	if resolved.Status != incident.StatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("resolve did not stamp: %+v", resolved)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/incidents/"+created.ID, nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/incidents/"+created.ID, nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestPatchRejectsUnknownEnumValues(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	client := srv.Client()

	open := incident.StatusOpen
	high := incident.SeverityHigh
	created, err := svc.Create(context.Background(), incident.Draft{Status: &open, Severity: &high})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/incidents/"+created.ID,
		strings.NewReader(`{"severity":"catastrophic"}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown severity", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body["error"], "invalid severity") {
		t.Fatalf("error message = %q", body["error"])
	}

	stored, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Severity != incident.SeverityHigh {
		t.Fatalf("rejected patch mutated the store: severity = %q", stored.Severity)
	}
}

func TestCreateRejectsUnknownEnumValues(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/incidents", "application/json",
		strings.NewReader(`{"status":"monitoring"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown status", resp.StatusCode)
	}

	snapshot, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 0 {
		t.Fatalf("rejected create reached the store: %d records", len(snapshot))
	}
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/incidents", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestHealthEndpointReportsDegradedBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	hub := ws.NewHub()
	svc := incidents.New(repo, hub, incidents.NewGenerator(1), logger)
	router := NewRouter(logger, svc, hub, nil, func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		router.Close()
	})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/incidents", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readEnvelope(t *testing.T, conn *websocket.Conn) incident.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env incident.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not an envelope: %v", err)
	}
	return env
}

func TestStreamGreetsAndPushesChanges(t *testing.T) {
	srv, svc, hub := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	greeting := readEnvelope(t, conn)
	if greeting.Type != incident.EventConnectionEstablished {
		t.Fatalf("first frame type = %q", greeting.Type)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Count())
	}

	created, err := svc.Create(context.Background(), incident.Draft{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != incident.EventIncidentCreated {
		t.Fatalf("pushed frame type = %q", env.Type)
	}
	pushed, err := env.Incident()
	if err != nil {
		t.Fatalf("decode pushed incident: %v", err)
	}
	if pushed.ID != created.ID {
		t.Fatalf("pushed id %q, created %q", pushed.ID, created.ID)
	}

	status := incident.StatusInvestigating
	if _, err := svc.Update(context.Background(), created.ID, incident.Patch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.Type != incident.EventIncidentUpdated {
		t.Fatalf("pushed frame type = %q", env.Type)
	}

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("deletion must not be pushed on the stream")
	}
}

func TestStreamDisconnectEvictsSubscriber(t *testing.T) {
	srv, _, hub := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readEnvelope(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not evicted, count = %d", hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
