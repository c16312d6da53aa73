// Package handlers provides the HTTP handlers of the substitute engine: substitute
// lookup, cache invalidation, composition mutations, audit queries and health.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/tracing"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	finder    interfaces.SubstituteFinder
	manager   interfaces.CompositionManager
	audit     interfaces.AuditLog
	validator interfaces.CompositionValidator
	health    interfaces.HealthChecker
	data      interfaces.DataStatus
	clock     clock.Clock
	startTime time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies.
// data may be nil when the catalogue is not held in memory.
func NewHTTPHandler(finder interfaces.SubstituteFinder, manager interfaces.CompositionManager,
	auditLog interfaces.AuditLog, validator interfaces.CompositionValidator,
	health interfaces.HealthChecker, data interfaces.DataStatus, clk clock.Clock) *HTTPHandlerImpl {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &HTTPHandlerImpl{
		finder:    finder,
		manager:   manager,
		audit:     auditLog,
		validator: validator,
		health:    health,
		data:      data,
		clock:     clk,
		startTime: clk.Now(),
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Message   string             `json:"message"`
	Code      int                `json:"code"`
	ErrorCode string             `json:"errorCode,omitempty"`
	Details   []apperrors.Detail `json:"details,omitempty"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Warn("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// respondWithAppError maps an error to its status and writes it. Internal causes
// are logged, never sent to the client.
func (h *HTTPHandlerImpl) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.StatusCode(err)
	resp := ErrorResponse{
		Error:   http.StatusText(code),
		Message: "internal error",
		Code:    code,
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Message = appErr.Message
		resp.ErrorCode = appErr.Code
		resp.Details = appErr.Details
	}

	if code >= http.StatusInternalServerError {
		logging.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", code,
			"trace_id", tracing.TraceID(r.Context()), "error", err)
	} else {
		logging.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	h.RespondWithJSON(w, code, resp)
}

// actorFrom reads the acting user from the request headers. Absent headers mean
// a system actor.
func (h *HTTPHandlerImpl) actorFrom(r *http.Request) (interfaces.Actor, error) {
	actor := interfaces.Actor{
		UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
		UserName: strings.TrimSpace(r.Header.Get("X-User-Name")),
	}
	if actor.UserID != "" {
		if err := h.validator.ValidateID(actor.UserID); err != nil {
			return interfaces.Actor{}, fmt.Errorf("invalid X-User-ID: %w", err)
		}
	}
	if actor.UserName != "" {
		if err := h.validator.ValidateInput(actor.UserName); err != nil {
			return interfaces.Actor{}, fmt.Errorf("invalid X-User-Name: %w", err)
		}
	}
	return actor, nil
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Checks        map[string]any `json:"checks"`
	Data          map[string]any `json:"data,omitempty"`
	System        map[string]any `json:"system"`
}

// HealthCheck reports dependency status. Unhealthy yields 503.
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, err := h.health.HealthCheck(r.Context())
	if err != nil {
		logging.Warn("Health check reported a failure", "status", status, "error", err)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := h.clock.Now().Sub(h.startTime)

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Checks:        details,
		Data:          h.dataStatus(),
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.RespondWithJSON(w, code, response)
}

func (h *HTTPHandlerImpl) dataStatus() map[string]any {
	if h.data == nil {
		return nil
	}
	out := map[string]any{
		"drugs":    h.data.Len(),
		"updating": h.data.IsUpdating(),
	}
	if last := h.data.GetLastUpdated(); !last.IsZero() {
		out["last_updated"] = last.UTC().Format(time.RFC3339)
		out["data_age_seconds"] = h.clock.Now().Sub(last).Seconds()
	}
	return out
}
