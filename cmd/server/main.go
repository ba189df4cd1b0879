package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/bpstage/internal/config"
	"github.com/Skufu/bpstage/internal/logging"
	"github.com/Skufu/bpstage/internal/model"
	"github.com/Skufu/bpstage/internal/server"
	"github.com/Skufu/bpstage/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	logger := logging.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var db server.HealthChecker
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		var err error
		pool, err = store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		db = pool
	}

	clf, err := loadClassifier(ctx, cfg, pool)
	if err != nil {
		return err
	}
	logger.Info("model loaded", "source", cfg.Model.Source)

	router, err := server.NewRouter(server.Deps{
		Predictor: model.NewPredictor(clf, logger.With("component", "predictor")),
		DB:        db,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	return waitForShutdown(srv, errCh, logger)
}

// loadClassifier builds the model once; it is never reloaded while the process runs.
func loadClassifier(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (model.Classifier, error) {
	src := model.Source{
		Kind:         cfg.Model.Source,
		Path:         cfg.Model.Path,
		Name:         cfg.Model.Name,
		InferenceURL: cfg.Model.InferenceURL,
		APIKey:       cfg.Model.APIKey,
		Timeout:      cfg.Model.Timeout,
	}
	if pool != nil {
		src.Artifacts = store.NewModelRepository(pool)
	}

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clf, err := model.Load(loadCtx, src)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return clf, nil
}

func waitForShutdown(srv *http.Server, errCh <-chan error, logger *slog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
