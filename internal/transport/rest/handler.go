// Package rest provides HTTP handlers for the inventory: auth, products,
// product streams and product photos.
package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/abgdnv/storekeeper/internal/media"
	"github.com/abgdnv/storekeeper/internal/service"
	"github.com/abgdnv/storekeeper/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ImageStore is the part of the image pipeline the handlers use.
type ImageStore interface {
	StageCapture(ctx context.Context) (media.Handle, error)
	LookupStaging(id string) (media.Handle, error)
	WriteStaged(ctx context.Context, h media.Handle, r io.Reader) (int64, error)
	CommitStaged(ctx context.Context, h media.Handle) (string, error)
	Discard(h media.Handle)
	CommitReader(ctx context.Context, r io.Reader) (string, error)
	Open(ref string) (*os.File, error)
}

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth     service.AuthService
	products service.ProductService
	images   ImageStore
	health   Pinger
	logger   *slog.Logger
}

// NewHandler creates a new handler over the given services.
func NewHandler(auth service.AuthService, products service.ProductService, images ImageStore, health Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		auth:     auth,
		products: products,
		images:   images,
		health:   health,
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/login", h.LogIn)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/stream", h.StreamAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Put("/", h.Update)
				r.Delete("/", h.Delete)
				r.Get("/stream", h.Stream)
			})
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/", h.Upload)
			r.Get("/{name}", h.ServeImage)

			r.Post("/staging", h.Stage)
			r.Route("/staging/{handle}", func(r chi.Router) {
				r.Put("/", h.WriteStaged)
				r.Delete("/", h.DiscardStaged)
				r.Post("/commit", h.CommitStaged)
			})
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// HealthCheck reports 200 when the store answers a ping.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.loggerWithReqID(r).ErrorContext(r.Context(), "Health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}

// respondError maps a service error to a status code. Unexpected errors are
// logged and reported as failedMsg.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, failedMsg string) {
	var vErr *serrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		logger.WarnContext(r.Context(), "Validation errors occurred", "errors", vErr.Fields)
		web.RespondValidation(w, logger, vErr.Fields)
	case errors.Is(err, serrors.ErrValidation):
		web.RespondError(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, serrors.ErrNotFound):
		logger.WarnContext(r.Context(), "Not found", "error", err)
		web.RespondError(w, logger, http.StatusNotFound, "Not found")
	case errors.Is(err, serrors.ErrAlreadyExists):
		web.RespondError(w, logger, http.StatusConflict, "User already exists")
	case errors.Is(err, serrors.ErrInvalidCredentials):
		web.RespondError(w, logger, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, serrors.ErrPermissionDenied):
		web.RespondError(w, logger, http.StatusForbidden, "Permission denied")
	case errors.Is(err, serrors.ErrSourceUnavailable):
		logger.WarnContext(r.Context(), "Image source unavailable", "error", err)
		web.RespondError(w, logger, http.StatusUnprocessableEntity, "No image data to commit")
	default:
		logger.ErrorContext(r.Context(), failedMsg, "error", err)
		web.RespondError(w, logger, http.StatusInternalServerError, failedMsg)
	}
}
