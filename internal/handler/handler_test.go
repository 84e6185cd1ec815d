package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compevent/registration/internal/model"
)

type stubRegistrations struct {
	registerStatus model.Status
	registerErr    error
	unregResult    model.UnregisterResult
	unregErr       error
	queryStatus    *model.Status
	queryErr       error
}

func (s *stubRegistrations) Register(context.Context, string, string, model.Role) (model.Status, error) {
	return s.registerStatus, s.registerErr
}

func (s *stubRegistrations) Unregister(context.Context, string, string) (model.UnregisterResult, error) {
	return s.unregResult, s.unregErr
}

func (s *stubRegistrations) QueryStatus(context.Context, string, string) (*model.Status, error) {
	return s.queryStatus, s.queryErr
}

type stubEvents struct {
	event *model.EventCapacitySnapshot
	err   error
}

func (s *stubEvents) Create(_ context.Context, req model.CreateEventRequest) (*model.EventCapacitySnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.EventCapacitySnapshot{EventID: "ev-1", Name: req.Name, MaxCapacity: req.MaxCapacity}, nil
}

func (s *stubEvents) List(context.Context) ([]model.EventCapacitySnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.event == nil {
		return nil, nil
	}
	return []model.EventCapacitySnapshot{*s.event}, nil
}

func (s *stubEvents) GetCapacity(context.Context, string) (*model.EventCapacitySnapshot, error) {
	return s.event, s.err
}

func (s *stubEvents) Delete(context.Context, string) error {
	return s.err
}

type stubReconciler struct {
	report *model.ReconciliationReport
}

func (s *stubReconciler) Run(_ context.Context, opts model.ReconcileOptions) (*model.ReconciliationReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.report, nil
}

func newRouter(regs Registrations, events Events, rec Reconciler) http.Handler {
	h := New(regs, events, rec)
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/register", h.Register)
		r.Delete("/{id}/register", h.Unregister)
		r.Get("/{id}/registration", h.QueryStatus)
	})
	r.Post("/admin/reconcile", h.Reconcile)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("admitted", func(t *testing.T) {
		router := newRouter(&stubRegistrations{registerStatus: model.StatusRegistered}, &stubEvents{}, &stubReconciler{})

		rec := doJSON(t, router, http.MethodPost, "/events/ev-1/register",
			model.RegisterRequest{UserID: "alice", Role: "athlete"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"registered"`)
	})

	t.Run("missing user_id", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodPost, "/events/ev-1/register",
			model.RegisterRequest{Role: "athlete"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodPost, "/events/ev-1/register",
			model.RegisterRequest{UserID: "alice", Role: "spectator"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			err  error
			want int
		}{
			{model.ErrPermissionDenied, http.StatusForbidden},
			{model.ErrEventNotFound, http.StatusNotFound},
			{model.ErrRegistrationClosed, http.StatusConflict},
			{model.ErrAlreadyRegistered, http.StatusConflict},
			{model.ErrAlreadyWaitlisted, http.StatusConflict},
			{model.ErrDuplicateActiveRegistration, http.StatusConflict},
			{context.DeadlineExceeded, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.err.Error(), func(t *testing.T) {
				router := newRouter(&stubRegistrations{registerErr: tt.err}, &stubEvents{}, &stubReconciler{})
				rec := doJSON(t, router, http.MethodPost, "/events/ev-1/register",
					model.RegisterRequest{UserID: "alice", Role: "athlete"})
				assert.Equal(t, tt.want, rec.Code)
			})
		}
	})
}

func TestUnregisterEndpoint(t *testing.T) {
	t.Run("returns promotion info", func(t *testing.T) {
		router := newRouter(&stubRegistrations{
			unregResult: model.UnregisterResult{Promoted: true, PromotedUserID: "carol"},
		}, &stubEvents{}, &stubReconciler{})

		rec := doJSON(t, router, http.MethodDelete, "/events/ev-1/register",
			model.UnregisterRequest{UserID: "alice"})

		require.Equal(t, http.StatusOK, rec.Code)
		var result model.UnregisterResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Promoted)
		assert.Equal(t, "carol", result.PromotedUserID)
	})

	t.Run("not registered", func(t *testing.T) {
		router := newRouter(&stubRegistrations{unregErr: model.ErrNotRegistered}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodDelete, "/events/ev-1/register",
			model.UnregisterRequest{UserID: "alice"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deadline lockout", func(t *testing.T) {
		router := newRouter(&stubRegistrations{unregErr: model.ErrUnregisterDeadlinePassed}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodDelete, "/events/ev-1/register",
			model.UnregisterRequest{UserID: "alice"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestQueryStatusEndpoint(t *testing.T) {
	status := model.StatusWaitlisted
	router := newRouter(&stubRegistrations{queryStatus: &status}, &stubEvents{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/events/ev-1/registration?user_id=alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"waitlisted"`)

	// Missing user_id is a bad request.
	req = httptest.NewRequest(http.MethodGet, "/events/ev-1/registration", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	t.Run("returns report", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{
			report: &model.ReconciliationReport{EventsChecked: 4, DiscrepanciesFound: 1},
		})

		rec := doJSON(t, router, http.MethodPost, "/admin/reconcile",
			model.ReconcileOptions{AutoFix: true})

		require.Equal(t, http.StatusOK, rec.Code)
		var report model.ReconciliationReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, 4, report.EventsChecked)
	})

	t.Run("conflicting options rejected", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodPost, "/admin/reconcile",
			model.ReconcileOptions{DryRun: true, AutoFix: true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEventEndpoints(t *testing.T) {
	t.Run("create validates name", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodPost, "/events/", model.CreateEventRequest{Name: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("create ok", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{}, &stubReconciler{})
		rec := doJSON(t, router, http.MethodPost, "/events/", model.CreateEventRequest{Name: "Regionals", MaxCapacity: 50})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("get missing event", func(t *testing.T) {
		router := newRouter(&stubRegistrations{}, &stubEvents{err: model.ErrEventNotFound}, &stubReconciler{})
		req := httptest.NewRequest(http.MethodGet, "/events/ev-missing", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthCheck(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
