/*
handlers.go - HTTP API handlers for the church/ONG administration service

PURPOSE:
  Exposes the ledger, scheduling and members services via REST API.
  Handles HTTP request/response, JSON serialization, and delegates every
  business rule to the services.

ENDPOINTS:
  Ledger:       see ledger_handlers.go
  Scheduling:   see scheduling_handlers.go
  Members:      see members_handlers.go
  Export:       see export.go
  Scenarios:    see scenarios.go

ARCHITECTURE:
  Handler struct holds the services. It owns no state of its own besides
  the currently loaded demo scenario.

REQUEST FLOW:
  1. Parse HTTP request
  2. Build the service spec
  3. Call the service
  4. Serialize response
  5. Map errors with writeServiceError

ERROR HANDLING:
  Errors are returned as JSON {error, message, details} with status:
  - 400: Validation errors, malformed input
  - 401: Missing or invalid token (auth middleware)
  - 403: Role lacks the permission (auth middleware)
  - 404: Resource not found
  - 409: Inactive department, invalid status transition, slot taken,
         concurrent modification
  - 422: Insufficient balance (details carry the available balance)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/ledger"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/scheduling"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all persisted data. Required by the scenario loader.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *ledger.Service
	Scheduling *scheduling.Service
	Members    *members.Service

	resetter Resetter
	pinger   Pinger
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// Config carries the optional collaborators of a Handler.
type Config struct {
	Resetter Resetter
	Pinger   Pinger
	Location *time.Location
	Logger   *zap.Logger
	Clock    func() time.Time
}

// NewHandler creates a new handler over the given services.
func NewHandler(l *ledger.Service, s *scheduling.Service, m *members.Service, cfg Config) *Handler {
	h := &Handler{
		Ledger:     l,
		Scheduling: s,
		Members:    m,
		resetter:   cfg.Resetter,
		pinger:     cfg.Pinger,
		location:   cfg.Location,
		logger:     cfg.Logger,
		now:        cfg.Clock,
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Health reports liveness and store reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// writeServiceError maps the generic error taxonomy to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *generic.ValidationError
		ibe  *generic.InsufficientBalanceError
		sue  *generic.SlotUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid input", verr.Fields)
	case errors.Is(err, generic.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &ibe):
		writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error(), InsufficientBalanceDetails{
			DepartmentID: ibe.DepartmentID,
			Available:    ibe.Available,
			Requested:    ibe.Requested,
			Shortfall:    ibe.Shortfall(),
		})
	case errors.As(err, &sue):
		writeError(w, http.StatusConflict, "SLOT_UNAVAILABLE", err.Error(), map[string]string{"reason": sue.Reason})
	case errors.Is(err, generic.ErrInactiveDepartment):
		writeError(w, http.StatusConflict, "INACTIVE_DEPARTMENT", err.Error(), nil)
	case errors.Is(err, generic.ErrInvalidState):
		writeError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, generic.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "CONCURRENT_MODIFICATION", "concurrent update, retry the request", nil)
	case errors.Is(err, generic.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return generic.NewValidationError("body", "json", "malformed JSON: "+err.Error())
	}
	return nil
}

// parseTime accepts "2006-01-02" (midnight in the configured location) or
// RFC 3339. Empty input yields the zero time.
func (h *Handler) parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, h.location); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(h.location), nil
	}
	return time.Time{}, generic.NewValidationError(field, "datetime", "must be YYYY-MM-DD or RFC 3339")
}

// parseRange reads the required from/to query parameters.
func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	verr := &generic.ValidationError{}
	from, err := h.parseTime("from", q.Get("from"))
	verr.Merge(err)
	to, err := h.parseTime("to", q.Get("to"))
	verr.Merge(err)
	if q.Get("from") == "" {
		verr.Add("from", "required", "is required")
	}
	if q.Get("to") == "" {
		verr.Add("to", "required", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, generic.NewValidationError(name, "numeric", "must be an integer")
	}
	return n, nil
}

// queryList splits repeated or comma-separated query values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
