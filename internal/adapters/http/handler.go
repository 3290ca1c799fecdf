package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnbf9rca/family-foqos-sub001/internal/application"
	"github.com/mnbf9rca/family-foqos-sub001/internal/contracts"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

type Handler struct {
	sync        *application.SyncService
	coordinator *application.Coordinator
	migration   *application.MigrationRunner
}

func NewHandler(sync *application.SyncService, coordinator *application.Coordinator, migration *application.MigrationRunner) *Handler {
	return &Handler{sync: sync, coordinator: coordinator, migration: migration}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Fetch(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	resp := contracts.FetchSessionResponse{Found: res.Kind == application.FetchFound}
	if resp.Found {
		rec := res.Record
		resp.Record = &rec
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req contracts.StartSessionRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	at := timeOrNow(req.StartedAt)
	res, err := h.coordinator.Start(r.Context(), chi.URLParam(r, "profileID"), at)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	outcome := "started"
	if res.Kind == application.StartAlreadyActive {
		outcome = "already_active"
	}
	writeSuccess(w, http.StatusOK, sessionResponse(outcome, res.Record))
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	var req contracts.StopSessionRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	at := timeOrNow(req.StoppedAt)
	res, err := h.coordinator.Stop(r.Context(), chi.URLParam(r, "profileID"), at)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	var outcome string
	status := http.StatusOK
	switch res.Kind {
	case application.StopStopped:
		outcome = "stopped"
	case application.StopAlreadyStopped:
		outcome = "already_stopped"
	case application.StopConflict:
		outcome = "conflict"
		status = http.StatusConflict
	}
	writeSuccess(w, status, sessionResponse(outcome, res.Record))
}

func (h *Handler) startBreak(w http.ResponseWriter, r *http.Request) {
	h.applyBreak(w, r, h.sync.StartBreak)
}

func (h *Handler) endBreak(w http.ResponseWriter, r *http.Request) {
	h.applyBreak(w, r, h.sync.EndBreak)
}

func (h *Handler) applyBreak(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, profileID string, at time.Time) (application.BreakResult, error)) {
	var req contracts.BreakRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	res, err := op(r.Context(), chi.URLParam(r, "profileID"), timeOrNow(req.At))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	var outcome string
	status := http.StatusOK
	switch res.Kind {
	case application.BreakApplied:
		outcome = "applied"
	case application.BreakNotActive:
		outcome = "not_active"
	case application.BreakConflict:
		outcome = "conflict"
		status = http.StatusConflict
	}
	writeSuccess(w, status, sessionResponse(outcome, res.Record))
}

func (h *Handler) syncProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if err := h.coordinator.SyncOne(r.Context(), profileID); err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"profile_id": profileID, "status": "synced"})
}

func (h *Handler) runMigration(w http.ResponseWriter, r *http.Request) {
	var req contracts.RunMigrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "account_id is required", requestIDFromContext(r.Context()))
		return
	}
	report, ran, err := h.migration.RunIfNeeded(r.Context(), req.AccountID)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	resp := contracts.RunMigrationResponse{Ran: ran, Status: "complete"}
	if ran {
		resp.Report = report
		if report.Errors > 0 {
			resp.Status = "incomplete"
		}
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	resp := contracts.DeviceResponse{DeviceID: h.coordinator.DeviceID()}
	if profileID, rec, ok := h.coordinator.ActiveProfile(); ok {
		resp.ActiveProfile = profileID
		resp.ActiveRecord = &rec
		resp.RemoteTriggered = h.coordinator.RemoteTriggered(profileID)
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	report := h.sync.GetHealth()
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeSuccess(w, status, report)
}

func sessionResponse(outcome string, rec domain.SessionRecord) contracts.SessionResponse {
	resp := contracts.SessionResponse{Outcome: outcome}
	if rec.ProfileID != "" {
		r := rec
		resp.Record = &r
	}
	return resp
}

// decodeOptionalBody tolerates an empty body; timestamps then default to now.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
