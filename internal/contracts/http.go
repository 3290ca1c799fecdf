package contracts

import (
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type StartSessionRequest struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type StopSessionRequest struct {
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

type BreakRequest struct {
	At *time.Time `json:"at,omitempty"`
}

type SessionResponse struct {
	Outcome string                `json:"outcome"`
	Record  *domain.SessionRecord `json:"record,omitempty"`
}

type FetchSessionResponse struct {
	Found  bool                  `json:"found"`
	Record *domain.SessionRecord `json:"record,omitempty"`
}

type RunMigrationRequest struct {
	AccountID string `json:"account_id"`
}

type RunMigrationResponse struct {
	Ran    bool   `json:"ran"`
	Report any    `json:"report,omitempty"`
	Status string `json:"status"`
}

type DeviceResponse struct {
	DeviceID        string                `json:"device_id"`
	ActiveProfile   string                `json:"active_profile,omitempty"`
	ActiveRecord    *domain.SessionRecord `json:"active_record,omitempty"`
	RemoteTriggered bool                  `json:"remote_triggered"`
}
