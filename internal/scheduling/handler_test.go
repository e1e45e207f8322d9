package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-scheduler/internal/tenancy"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc, logging.NewWithWriter("error", &bytes.Buffer{}))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if uid := req.Header.Get("X-Test-Owner"); uid != "" {
				req = req.WithContext(tenancy.WithOwnerUID(req.Context(), uid))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Owner", owner)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerClientAndAppointmentFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/clients", map[string]string{"name": "Jane Doe"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var client Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))

	rec = doJSON(t, h, http.MethodPost, "/appointments", map[string]any{
		"clientId": client.ID,
		"start":    "2026-10-20T09:00:00Z",
		"duration": 50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 50, created.Appointment.DurationMinutes)

	rec = doJSON(t, h, http.MethodPost, "/appointments", map[string]any{
		"clientId": client.ID,
		"start":    "2026-10-20T09:30:00Z",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflictBody struct {
		Error     string         `json:"error"`
		Conflicts []*Appointment `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflictBody))
	require.Len(t, conflictBody.Conflicts, 1)
	assert.Equal(t, created.Appointment.ID, conflictBody.Conflicts[0].ID)

	rec = doJSON(t, h, http.MethodPost, "/appointments?force=true", map[string]any{
		"clientId": client.ID,
		"start":    "2026-10-20T09:30:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/appointments/conflicts?from=2026-10-20&to=2026-10-21", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", created.Appointment.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = doJSON(t, h, http.MethodGet, "/appointments?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, h, http.MethodDelete, "/clients/"+client.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appointmentsRemoved":2`)
}

func TestHandlerRescheduleAndPatch(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/clients", map[string]string{"name": "Jane"})
	var client Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))
	rec = doJSON(t, h, http.MethodPost, "/appointments", map[string]any{"clientId": client.ID, "start": "2026-10-20T09:00:00Z"})
	var created CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Appointment.ID

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+id+"/reschedule", map[string]any{"start": "2026-10-22T15:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "2026-10-22T16:00:00Z")

	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id, map[string]any{"end": "2026-10-22T14:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id, map[string]any{"notes": "bring intake form", "priority": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bring intake form")

	rec = doJSON(t, h, http.MethodDelete, "/appointments/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/appointments/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader("{"))
	req.Header.Set("X-Test-Owner", owner)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/clients", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/appointments?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/appointments", map[string]any{"clientId": "ghost", "start": "2026-10-20T09:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRequiresOwner(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ConflictError{}, http.StatusConflict},
		{invalid(ErrClientNotFound), http.StatusBadRequest},
		{ErrClientNotFound, http.StatusNotFound},
		{transitionError(StatusCancelled, StatusCompleted), http.StatusBadRequest},
		{ErrMissingOwner, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorStatus(tt.err), tt.err.Error())
	}
}
