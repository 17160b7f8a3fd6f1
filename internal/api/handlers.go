package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/scflocal/internal/events"
	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/invoke"
	"github.com/mattjoyce/scflocal/internal/template"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Template:      s.config.TemplatePath,
		StartedAt:     s.startedAt.UTC(),
	})
}

// handleInvoke handles POST /invoke/{namespace}/{function}.
// The request body is the event; an empty body is sent as {}.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "event body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read event body")
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		s.writeError(w, http.StatusBadRequest, "event body must be valid JSON")
		return
	}

	var stdout, stderr bytes.Buffer
	opts := invoke.Options{
		TemplatePath: s.config.TemplatePath,
		Selector: template.Selector{
			Namespace: chi.URLParam(r, "namespace"),
			Function:  chi.URLParam(r, "function"),
		},
		Event:   string(body),
		EnvFile: s.config.EnvFile,
		Quiet:   true,
		Stdin:   bytes.NewReader(nil),
		Stdout:  &stdout,
		Stderr:  &stderr,
	}

	s.invokeMu.Lock()
	s.events.Publish(events.TypeInvocationStarted, events.Invocation{
		Namespace: opts.Selector.Namespace,
		Function:  opts.Selector.Function,
	})
	result, err := s.invoker.Invoke(r.Context(), opts)
	s.publishFinished(opts.Selector, result, err)
	s.invokeMu.Unlock()

	if result == nil || result.Outcome == nil {
		s.writeInvokeError(w, err)
		return
	}

	resp := InvokeResponse{
		InvocationID: result.ID,
		Namespace:    result.Namespace,
		Function:     result.Function,
		Status:       invoke.StatusOf(err),
		ExitCode:     result.Outcome.ExitCode,
		DurationMS:   result.Outcome.Duration.Milliseconds(),
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, invokeStatusCode(err), resp)
}

// publishFinished announces the end of an invocation, including ones that
// never started a process.
func (s *Server) publishFinished(sel template.Selector, result *invoke.Result, err error) {
	ev := events.Invocation{
		Namespace: sel.Namespace,
		Function:  sel.Function,
		Status:    string(invoke.StatusOf(err)),
	}
	if result != nil {
		ev.ID = result.ID
		if result.Outcome != nil {
			code := result.Outcome.ExitCode
			ev.ExitCode = &code
			ev.DurationMS = result.Outcome.Duration.Milliseconds()
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.events.Publish(events.TypeInvocationFinished, ev)
}

// writeInvokeError reports an invocation that failed before a process ran.
func (s *Server) writeInvokeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		s.writeError(w, http.StatusInternalServerError, "invocation produced no outcome")
	case errors.Is(err, template.ErrInvalidSelection):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, invoke.ErrCancelled):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("invocation failed before spawn", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// invokeStatusCode maps a finished invocation to an HTTP status. Failures of
// the function itself are upstream failures from the caller's point of view.
func invokeStatusCode(err error) int {
	var (
		spawnErr   *invoke.SpawnError
		timeoutErr *invoke.TimeoutError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, invoke.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.As(err, &spawnErr):
		return http.StatusInternalServerError
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// handleListInvocations handles GET /invocations?function=&limit=.
func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "invocation history is disabled")
		return
	}

	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), r.URL.Query().Get("function"), limit)
	if err != nil {
		s.logger.Error("failed to list invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}
	if records == nil {
		records = []*history.Record{}
	}
	respondJSON(w, http.StatusOK, InvocationsResponse{Invocations: records})
}

// handleGetInvocation handles GET /invocations/{id}.
func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "invocation history is disabled")
		return
	}

	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get invocation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get invocation")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
