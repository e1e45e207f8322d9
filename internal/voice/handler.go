package voice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/practice-scheduler/internal/llm"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/internal/tenancy"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

// maxAudioBytes caps a recorded command upload.
const maxAudioBytes = 10 << 20

// Handler exposes voice command interpretation and confirmation.
type Handler struct {
	service     *Service
	transcriber llm.Transcriber
	logger      *logging.Logger
}

// NewHandler creates a voice handler. transcriber may be nil, in which case
// audio uploads are rejected and only text transcripts are accepted.
func NewHandler(service *Service, transcriber llm.Transcriber, logger *logging.Logger) *Handler {
	if service == nil {
		panic("voice: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, transcriber: transcriber, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/voice/commands", func(r chi.Router) {
		r.Post("/", h.Interpret)
		r.Get("/pending", h.Pending)
		r.Post("/{commandID}/confirm", h.Confirm)
		r.Post("/{commandID}/cancel", h.Cancel)
	})
}

type interpretRequest struct {
	Transcript string `json:"transcript"`
}

// Interpret accepts {"transcript": "..."} or a multipart upload with an
// "audio" file part.
func (h *Handler) Interpret(w http.ResponseWriter, r *http.Request) {
	transcript, ok := h.readTranscript(w, r)
	if !ok {
		return
	}
	res, err := h.service.Interpret(r.Context(), ownerFrom(r), transcript)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) readTranscript(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req interpretRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("failed to decode voice request", "error", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return "", false
		}
		return req.Transcript, true
	}

	if h.transcriber == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "speech transcription is not configured"})
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
		return "", false
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file is required"})
		return "", false
	}
	defer file.Close()

	text, err := h.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return text, true
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	cmd, err := h.service.Pending(r.Context(), ownerFrom(r))
	if errors.Is(err, ErrPendingNotFound) {
		h.writeJSON(w, http.StatusOK, map[string]any{"pending": nil})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"pending": cmd})
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Confirm(r.Context(), ownerFrom(r), chi.URLParam(r, "commandID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Cancel(r.Context(), ownerFrom(r), chi.URLParam(r, "commandID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ErrorStatus maps voice and scheduling errors to HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyTranscript), errors.Is(err, llm.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, ErrPendingNotFound):
		return http.StatusNotFound
	default:
		return scheduling.ErrorStatus(err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrorStatus(err)
	body := map[string]any{"error": err.Error()}
	var conflictErr *scheduling.ConflictError
	if errors.As(err, &conflictErr) {
		body["conflicts"] = conflictErr.Conflicts
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("voice request failed", "path", r.URL.Path, "error", err)
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

func ownerFrom(r *http.Request) string {
	owner, _ := tenancy.OwnerUIDFromContext(r.Context())
	return owner
}
