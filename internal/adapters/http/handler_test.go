package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/adapters/memory"
	"github.com/mnbf9rca/family-foqos-sub001/internal/application"
	"github.com/mnbf9rca/family-foqos-sub001/internal/contracts"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

type testEnv struct {
	router  http.Handler
	records *memory.RecordStore
	legacy  *memory.LegacyStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := memory.NewRecordStore()
	legacy := memory.NewLegacyStore()
	state := memory.NewDeviceStateStore()

	svc := application.NewSyncService(application.Dependencies{
		Config:   application.Config{ServiceName: "session-sync", Version: "test"},
		DeviceID: "device-test",
		Store:    records,
		Logger:   logger,
	})
	coord := application.NewCoordinator(svc, nil, logger)
	migration := application.NewMigrationRunner(legacy, records, state, logger, 10)

	handler := NewHandler(svc, coord, migration)
	return &testEnv{router: NewRouter(handler), records: records, legacy: legacy}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rr.Body.String())
	}
	if envelope.Status != "success" {
		t.Fatalf("expected success envelope, got %s", rr.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rr := env.do(t, http.MethodGet, "/v1/profiles/p1/session", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rr.Code)
	}
	var fetch contracts.FetchSessionResponse
	decodeData(t, rr, &fetch)
	if fetch.Found {
		t.Fatalf("expected no record before first start")
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p1/session/start", contracts.StartSessionRequest{StartedAt: &startedAt})
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d body=%s", rr.Code, rr.Body.String())
	}
	var started contracts.SessionResponse
	decodeData(t, rr, &started)
	if started.Outcome != "started" || started.Record == nil || !started.Record.Active {
		t.Fatalf("unexpected start response: %+v", started)
	}
	if started.Record.SequenceNumber != 1 {
		t.Fatalf("first start should carry sequence 1, got %d", started.Record.SequenceNumber)
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p1/session/start", nil)
	var joined contracts.SessionResponse
	decodeData(t, rr, &joined)
	if joined.Outcome != "already_active" {
		t.Fatalf("second start should join, got %q", joined.Outcome)
	}
	if joined.Record.SequenceNumber != 1 {
		t.Fatalf("joining must not advance the sequence, got %d", joined.Record.SequenceNumber)
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p1/session/stop", nil)
	var stopped contracts.SessionResponse
	decodeData(t, rr, &stopped)
	if stopped.Outcome != "stopped" || stopped.Record.Active {
		t.Fatalf("unexpected stop response: %+v", stopped)
	}
	if stopped.Record.SequenceNumber != 2 {
		t.Fatalf("stop should advance sequence to 2, got %d", stopped.Record.SequenceNumber)
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p1/session/stop", nil)
	var redundant contracts.SessionResponse
	decodeData(t, rr, &redundant)
	if redundant.Outcome != "already_stopped" {
		t.Fatalf("redundant stop should be already_stopped, got %q", redundant.Outcome)
	}
}

func TestBreakEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/v1/profiles/p1/session/start", nil)

	rr := env.do(t, http.MethodPost, "/v1/profiles/p1/session/break/start", nil)
	var breakStart contracts.SessionResponse
	decodeData(t, rr, &breakStart)
	if breakStart.Outcome != "applied" || !breakStart.Record.OnBreak() {
		t.Fatalf("unexpected break start: %+v", breakStart)
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p1/session/break/end", nil)
	var breakEnd contracts.SessionResponse
	decodeData(t, rr, &breakEnd)
	if breakEnd.Outcome != "applied" || breakEnd.Record.OnBreak() {
		t.Fatalf("unexpected break end: %+v", breakEnd)
	}

	rr = env.do(t, http.MethodPost, "/v1/profiles/p2/session/break/start", nil)
	var notActive contracts.SessionResponse
	decodeData(t, rr, &notActive)
	if notActive.Outcome != "not_active" {
		t.Fatalf("break on inactive profile should be not_active, got %q", notActive.Outcome)
	}
}

func TestStopMissingProfileReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/profiles/ghost/session/stop", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	var envelope contracts.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Status != "error" || envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected error payload: %+v", envelope)
	}
}

func TestStartRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/profiles/p1/session/start", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestMigrationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	env.legacy.Put(domain.LegacyEntry{ID: "l1", ProfileID: "p1", Active: true, OriginDevice: "device-old", StartTime: &now, LastModified: now})

	rr := env.do(t, http.MethodPost, "/v1/migration/run", contracts.RunMigrationRequest{AccountID: "acct-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("migration status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Ran    bool   `json:"ran"`
		Status string `json:"status"`
		Report *application.MigrationReport
	}
	decodeData(t, rr, &resp)
	if !resp.Ran || resp.Status != "complete" {
		t.Fatalf("unexpected migration response: %+v", resp)
	}

	rr = env.do(t, http.MethodPost, "/v1/migration/run", contracts.RunMigrationRequest{AccountID: "acct-1"})
	decodeData(t, rr, &resp)
	if resp.Ran {
		t.Fatalf("second run for the same account should be a no-op")
	}

	rr = env.do(t, http.MethodPost, "/v1/migration/run", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing account_id should be 400, got %d", rr.Code)
	}
}

func TestDeviceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/profiles/p1/session/start", nil)

	rr := env.do(t, http.MethodGet, "/v1/device", nil)
	var resp contracts.DeviceResponse
	decodeData(t, rr, &resp)
	if resp.DeviceID != "device-test" {
		t.Fatalf("unexpected device id %q", resp.DeviceID)
	}
	if resp.ActiveProfile != "p1" || resp.RemoteTriggered {
		t.Fatalf("unexpected device state: %+v", resp)
	}
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Simulate another device's write landing in the shared store.
	remote := domain.NewStartedRecord("p1", "device-remote", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if _, err := env.records.Save(context.Background(), remote, ports.CreateOnly); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/v1/profiles/p1/sync", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/device", nil)
	var resp contracts.DeviceResponse
	decodeData(t, rr, &resp)
	if resp.ActiveProfile != "p1" || !resp.RemoteTriggered {
		t.Fatalf("sync should enforce the remote session, got %+v", resp)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/health"} {
		rr := env.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}
