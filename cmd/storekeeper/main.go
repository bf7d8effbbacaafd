// Package main runs the storekeeper inventory server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	"github.com/abgdnv/storekeeper/internal/app"
	"github.com/abgdnv/storekeeper/internal/config"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/abgdnv/storekeeper/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storekeeper/pkg/config"
	"github.com/abgdnv/storekeeper/pkg/config/configloader"
	"github.com/abgdnv/storekeeper/pkg/server"
	"golang.org/x/sync/errgroup"
)

const serviceName = "storekeeper"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads configuration, opens the store, starts the cleanup worker and serves HTTP until ctx is done.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.LoadWithOptions[*config.Config](serviceName, configloader.Options{Defaults: config.Defaults()})
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()
	logger.Info("Store ready", "path", cfg.Database.Path)

	deps, err := app.SetupDependencies(st, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Notifier.Close()

	// no capture can be in flight yet, so every staging leftover is abandoned
	deps.Cleanup.ReclaimAll()
	if cfg.Cleanup.Enabled {
		deps.Cleanup.Start()
		defer deps.Cleanup.Stop()
	}

	httpServer := app.SetupHttpServer(deps, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gCtx, httpServer, cfg.Shutdown.Timeout, logger)
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr: cfg.PProf.Addr,
		}
		g.Go(func() error {
			return server.Serve(gCtx, pprofServer, cfg.Shutdown.Timeout, logger)
		})
	}

	// streams end before the server waits for them to drain
	g.Go(func() error {
		<-gCtx.Done()
		deps.Notifier.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// openStore opens the SQLite store and brings its schema up to date. The
// ":memory:" path selects a non-durable in-process store instead.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.Path == pkgconfig.MemoryDatabase {
		return store.NewInMemoryStore(), nil
	}
	db, err := bootstrap.NewDB(ctx, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store.NewSQLiteStore(db), nil
}
