package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/practice-scheduler/internal/tenancy"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

// Handler exposes the calendar CRUD API.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a scheduling handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("scheduling: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the client, provider and appointment routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.ListClients)
		r.Post("/", h.CreateClient)
		r.Get("/{clientID}", h.GetClient)
		r.Put("/{clientID}", h.UpdateClient)
		r.Delete("/{clientID}", h.DeleteClient)
	})
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.ListProviders)
		r.Post("/", h.CreateProvider)
		r.Get("/{providerID}", h.GetProvider)
		r.Put("/{providerID}", h.UpdateProvider)
		r.Delete("/{providerID}", h.DeleteProvider)
	})
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.ListAppointments)
		r.Post("/", h.CreateAppointment)
		r.Get("/conflicts", h.ConflictReport)
		r.Get("/{appointmentID}", h.GetAppointment)
		r.Patch("/{appointmentID}", h.UpdateAppointment)
		r.Delete("/{appointmentID}", h.DeleteAppointment)
		r.Post("/{appointmentID}/cancel", h.CancelAppointment)
		r.Post("/{appointmentID}/reschedule", h.RescheduleAppointment)
	})
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var in ClientInput
	if !h.decode(w, r, &in) {
		return
	}
	client, err := h.service.CreateClient(r.Context(), ownerFrom(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, client)
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.GetClient(r.Context(), ownerFrom(r), chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var in ClientInput
	if !h.decode(w, r, &in) {
		return
	}
	client, err := h.service.UpdateClient(r.Context(), ownerFrom(r), chi.URLParam(r, "clientID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.DeleteClient(r.Context(), ownerFrom(r), chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "appointmentsRemoved": removed})
}

func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var in ProviderInput
	if !h.decode(w, r, &in) {
		return
	}
	provider, err := h.service.CreateProvider(r.Context(), ownerFrom(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, provider)
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"providers": providers, "count": len(providers)})
}

func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.service.GetProvider(r.Context(), ownerFrom(r), chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, provider)
}

func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var in ProviderInput
	if !h.decode(w, r, &in) {
		return
	}
	provider, err := h.service.UpdateProvider(r.Context(), ownerFrom(r), chi.URLParam(r, "providerID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, provider)
}

func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	unassigned, err := h.service.DeleteProvider(r.Context(), ownerFrom(r), chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "appointmentsUnassigned": unassigned})
}

// CreateAppointment handles POST /api/appointments. ?force=true stores the
// appointment even when it overlaps others.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var in AppointmentInput
	if !h.decode(w, r, &in) {
		return
	}
	if forced(r) {
		in.AllowConflicts = true
	}
	result, err := h.service.CreateAppointment(r.Context(), ownerFrom(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ListAppointments handles GET /api/appointments?from=&to=&clientId=&providerId=&status=.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := h.parseTimeParam(q.Get("from"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from: " + err.Error()})
		return
	}
	to, err := h.parseTimeParam(q.Get("to"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to: " + err.Error()})
		return
	}
	filter := AppointmentFilter{
		From:       from,
		To:         to,
		ClientID:   q.Get("clientId"),
		ProviderID: q.Get("providerId"),
		Status:     Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}
	appts, err := h.service.ListAppointments(r.Context(), ownerFrom(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.GetAppointment(r.Context(), ownerFrom(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var patch AppointmentPatch
	if !h.decode(w, r, &patch) {
		return
	}
	if forced(r) {
		patch.AllowConflicts = true
	}
	appt, conflicts, err := h.service.UpdateAppointment(r.Context(), ownerFrom(r), chi.URLParam(r, "appointmentID"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointment": appt, "conflicts": conflicts})
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAppointment(r.Context(), ownerFrom(r), chi.URLParam(r, "appointmentID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.CancelAppointment(r.Context(), ownerFrom(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

type rescheduleRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration"`
	AllowConflicts  bool      `json:"allowConflicts"`
}

func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, conflicts, err := h.service.RescheduleAppointment(
		r.Context(),
		ownerFrom(r),
		chi.URLParam(r, "appointmentID"),
		req.Start,
		req.DurationMinutes,
		req.AllowConflicts || forced(r),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointment": appt, "conflicts": conflicts})
}

// ConflictReport handles GET /api/appointments/conflicts?from=&to=. The window
// defaults to the next 30 days.
func (h *Handler) ConflictReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := h.parseTimeParam(q.Get("from"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from: " + err.Error()})
		return
	}
	to, err := h.parseTimeParam(q.Get("to"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to: " + err.Error()})
		return
	}
	if from.IsZero() {
		from = h.service.now().In(h.service.Location())
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 30)
	}
	pairs, err := h.service.ConflictReport(r.Context(), ownerFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "conflicts": pairs, "count": len(pairs)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "path", r.URL.Path, "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// parseTimeParam accepts RFC3339 timestamps or YYYY-MM-DD dates in the practice timezone.
func (h *Handler) parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, h.service.Location())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrorStatus(err)
	body := map[string]any{"error": err.Error()}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		body["conflicts"] = conflictErr.Conflicts
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("scheduling request failed", "path", r.URL.Path, "error", err)
		body["error"] = "internal error"
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// ErrorStatus maps scheduling errors to HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingOwner):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAppointment),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrProviderNotFound),
		errors.Is(err, ErrAppointmentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func ownerFrom(r *http.Request) string {
	owner, _ := tenancy.OwnerUIDFromContext(r.Context())
	return owner
}

func forced(r *http.Request) bool {
	for _, key := range []string{"force", "allow_conflicts"} {
		if v := r.URL.Query().Get(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil && b {
				return true
			}
		}
	}
	return false
}
