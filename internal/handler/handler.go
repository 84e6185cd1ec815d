// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/compevent/registration/internal/model"
)

// Registrations is the registration service surface the handlers consume.
type Registrations interface {
	Register(ctx context.Context, userID, eventID string, role model.Role) (model.Status, error)
	Unregister(ctx context.Context, userID, eventID string) (model.UnregisterResult, error)
	QueryStatus(ctx context.Context, userID, eventID string) (*model.Status, error)
}

// Events is the event projection surface the handlers consume.
type Events interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.EventCapacitySnapshot, error)
	List(ctx context.Context) ([]model.EventCapacitySnapshot, error)
	GetCapacity(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error)
	Delete(ctx context.Context, eventID string) error
}

// Reconciler runs reconciliation passes on demand.
type Reconciler interface {
	Run(ctx context.Context, opts model.ReconcileOptions) (*model.ReconciliationReport, error)
}

// Handler holds all HTTP handlers for the registration API.
type Handler struct {
	registrations Registrations
	events        Events
	reconciler    Reconciler
}

// New constructs a Handler.
func New(registrations Registrations, events Events, reconciler Reconciler) *Handler {
	return &Handler{
		registrations: registrations,
		events:        events,
		reconciler:    reconciler,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeRegistrationError maps the engine's typed failures onto HTTP status
// codes. Integrity failures surface as conflicts, same as losing the race
// to an identical concurrent request.
func writeRegistrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, model.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrRegistrationClosed),
		errors.Is(err, model.ErrAlreadyRegistered),
		errors.Is(err, model.ErrAlreadyWaitlisted),
		errors.Is(err, model.ErrDuplicateActiveRegistration),
		errors.Is(err, model.ErrUnregisterDeadlinePassed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "event name is required")
		return
	}
	if req.MaxCapacity < 0 {
		writeError(w, http.StatusBadRequest, "max_capacity cannot be negative")
		return
	}

	event, err := h.events.Create(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.EventCapacitySnapshot{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.events.GetCapacity(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.events.Delete(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Registration handlers ────────────────────────────────────────────────────

type registerResponse struct {
	Status model.Status `json:"status"`
}

// Register handles POST /events/{id}/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	role := model.Role(req.Role)
	if !model.ValidRole(role) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	status, err := h.registrations.Register(r.Context(), req.UserID, eventID, role)
	if err != nil {
		writeRegistrationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Status: status})
}

// Unregister handles DELETE /events/{id}/register
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	var req model.UnregisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := h.registrations.Unregister(r.Context(), req.UserID, eventID)
	if err != nil {
		writeRegistrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statusResponse struct {
	Status *model.Status `json:"status"`
}

// QueryStatus handles GET /events/{id}/registration?user_id=
func (h *Handler) QueryStatus(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	status, err := h.registrations.QueryStatus(r.Context(), userID, eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status})
}

// ─── Admin handlers ───────────────────────────────────────────────────────────

// Reconcile handles POST /admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var opts model.ReconcileOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.reconciler.Run(r.Context(), opts)
	if err != nil {
		if errors.Is(err, model.ErrConflictingOptions) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
