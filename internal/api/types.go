package api

import (
	"time"

	"github.com/mattjoyce/scflocal/internal/history"
)

// InvokeResponse is returned by POST /invoke/{namespace}/{function}.
type InvokeResponse struct {
	InvocationID string         `json:"invocation_id"`
	Namespace    string         `json:"namespace"`
	Function     string         `json:"function"`
	Status       history.Status `json:"status"`
	ExitCode     int            `json:"exit_code"`
	DurationMS   int64          `json:"duration_ms"`
	Stdout       string         `json:"stdout"`
	Stderr       string         `json:"stderr"`
	Error        string         `json:"error,omitempty"`
}

// InvocationsResponse is returned by GET /invocations.
type InvocationsResponse struct {
	Invocations []*history.Record `json:"invocations"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Template      string    `json:"template"`
	StartedAt     time.Time `json:"started_at"`
}
