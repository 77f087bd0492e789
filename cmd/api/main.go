package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sketchroom-backend/infrastructure/di"
	"sketchroom-backend/infrastructure/discovery"
	"sketchroom-backend/internal/config"
	"sketchroom-backend/internal/infrastructure/observability"
)

func main() {
	configDir := flag.String("config", "config", "directory holding the YAML configuration files")
	flag.Parse()

	// Load configuration
	loader := config.NewLoader(*configDir, config.EnvironmentFromEnv())
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, level, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Configuration loaded",
		zap.String("environment", string(cfg.Environment)),
		zap.Strings("sources", cfg.LoadedFrom),
	)

	if err := run(loader, cfg, logger, level); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(loader *config.Loader, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.IsDevelopment() {
		if watcher := watchLogLevel(loader, cfg, logger, level); watcher != nil {
			defer watcher.Stop()
		}
	}

	if cfg.Discovery.Enabled {
		advertiser, err := discovery.Advertise(discovery.Config{
			Service:  cfg.Discovery.Service,
			Instance: cfg.Discovery.Instance,
			Domain:   cfg.Discovery.Domain,
			Port:     cfg.Server.Port,
			Path:     "/ws",
		}, logger.Named("mdns"))
		if err != nil {
			logger.Warn("mDNS advertisement disabled", zap.Error(err))
		} else {
			defer advertiser.Shutdown()
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range container.Workers() {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		if err := container.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// watchLogLevel reloads the config directory on change. Only the log level is
// applied; everything else needs a restart.
func watchLogLevel(loader *config.Loader, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) *config.Watcher {
	watcher, err := config.NewWatcher(loader, cfg, logger.Named("config"))
	if err != nil {
		logger.Warn("Configuration hot reload disabled", zap.Error(err))
		return nil
	}
	watcher.OnChange(func(old, updated *config.Config) {
		if old.Logging.Level == updated.Logging.Level {
			return
		}
		if err := observability.SetLevel(level, updated.Logging.Level); err != nil {
			logger.Warn("Ignoring log level change", zap.Error(err))
			return
		}
		logger.Info("Log level changed", zap.String("level", updated.Logging.Level))
	})
	watcher.Start()
	return watcher
}
