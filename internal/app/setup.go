// Package app contains the application setup for storekeeper.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storekeeper/internal/cleanup"
	"github.com/abgdnv/storekeeper/internal/config"
	"github.com/abgdnv/storekeeper/internal/media"
	"github.com/abgdnv/storekeeper/internal/notify"
	"github.com/abgdnv/storekeeper/internal/service"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/abgdnv/storekeeper/internal/transport/rest"
	"github.com/abgdnv/storekeeper/pkg/server"
	"github.com/go-chi/chi/v5"
)

type Dependencies struct {
	Store          store.Store
	Notifier       *notify.Notifier
	Images         *media.Pipeline
	AuthService    service.AuthService
	ProductService service.ProductService
	Cleanup        *cleanup.Worker
	Logger         *slog.Logger
}

// SetupDependencies builds the notifier, the image pipeline, the services and
// the cleanup worker on top of an opened store.
func SetupDependencies(st store.Store, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	images, err := media.NewPipeline(media.Config{
		Dir:        cfg.Media.Dir,
		StagingDir: cfg.Media.StagingDir,
		MaxBytes:   cfg.Media.MaxBytes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up image pipeline: %w", err)
	}
	notifier := notify.NewNotifier(st, logger)

	deps := service.Deps{Users: st, Products: notifier, Images: images}
	auth, err := build[service.AuthService](service.KindAuth, deps)
	if err != nil {
		return nil, err
	}
	products, err := build[service.ProductService](service.KindProduct, deps)
	if err != nil {
		return nil, err
	}

	worker := cleanup.NewWorker(images, cleanup.Config{
		Interval:   cfg.Cleanup.Interval,
		StaleAfter: cfg.Media.StaleAfter,
	}, logger)

	return &Dependencies{
		Store:          st,
		Notifier:       notifier,
		Images:         images,
		AuthService:    auth,
		ProductService: products,
		Cleanup:        worker,
		Logger:         logger,
	}, nil
}

func build[T any](kind service.Kind, deps service.Deps) (T, error) {
	var zero T
	svc, err := service.New(kind, deps)
	if err != nil {
		return zero, fmt.Errorf("failed to build %s service: %w", kind, err)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%s service has unexpected type %T", kind, svc)
	}
	return typed, nil
}

// SetupHttpHandler initializes the router with all routes and middleware.
// Used by tests to exercise the full HTTP surface.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.AuthService, deps.ProductService, deps.Images, deps.Store, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
