package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wolfman30/practice-scheduler/internal/tenancy"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

// RequestLogger emits structured logs for every HTTP request.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = r.Header.Get("X-Request-ID")
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// The owner is only known after auth runs further down the chain, so the
			// holder is filled in by the inner handler.
			holder := &ownerHolder{}
			next.ServeHTTP(ww, r.WithContext(withOwnerHolder(r.Context(), holder)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if holder.owner != "" {
				attrs = append(attrs, "owner_uid", holder.owner)
			}
			switch {
			case status >= 500:
				logger.Error("request completed", attrs...)
			case status >= 400:
				logger.Warn("request completed", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}

// RecordOwner copies the authenticated owner into the request logger's holder.
// Mount it after the auth middleware.
func RecordOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if owner, ok := tenancy.OwnerUIDFromContext(r.Context()); ok {
			if holder := ownerHolderFromContext(r.Context()); holder != nil {
				holder.owner = owner
			}
		}
		next.ServeHTTP(w, r)
	})
}
