package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/csvanalyst/internal/application"
	appanalysis "github.com/bryanwahyu/csvanalyst/internal/application/analysis"
	"github.com/bryanwahyu/csvanalyst/internal/config"
	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
	mysqlp "github.com/bryanwahyu/csvanalyst/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/csvanalyst/internal/infra/db/postgres"
	"github.com/bryanwahyu/csvanalyst/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/csvanalyst/internal/infra/storage"
	"github.com/bryanwahyu/csvanalyst/internal/middleware"
)

func (a *app) serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API that queues analyses per tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(*configPath)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg)
		},
	}
}

func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	if !cfg.DatabaseEnabled() {
		return errors.New("serve requires database.driver (mysql or postgres)")
	}
	if err := appanalysis.ValidateEnvironment(a.lookupEnv, cfg.Agent.APIKeyEnv); err != nil {
		return err
	}

	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := &appanalysis.Service{
		Agent:   a.newAgent(cfg),
		Repo:    repo,
		Clock:   application.SystemClock{},
		Options: cfg.AgentOptions(),
		Logger:  slog.Default(),
	}

	// init minio, opsional
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init error: %w", err)
		}
		svc.Reports = store
	}

	binary := cfg.Agent.Binary
	if binary == "" {
		binary = "claude"
	}

	rl := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router := httpserver.NewRouter(svc, httpserver.Options{
		APIKeys:     cfg.Server.APIKeys,
		RateLimiter: rl,
		CORSOrigins: cfg.Server.CORSOrigins,
		OutputDir:   cfg.Output.Dir,
		Checkers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"agent":    &middleware.AgentHealthChecker{Binary: binary},
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if rl.Enabled() {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					rl.Cleanup(10 * time.Minute)
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	var serveErr error
	select {
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	// analisa yang masih jalan dibatalkan dan dicatat failed
	runsCtx, cancelRuns := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRuns()
	if err := router.Shutdown(runsCtx); err != nil {
		slog.Error("background analyses did not finish", "error", err)
	}
	return serveErr
}

func openRepository(ctx context.Context, cfg *config.Config) (*sql.DB, domain.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect error: %w", err)
		}
		if err := postgresp.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, postgresp.NewAnalysisRepository(db), nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect error: %w", err)
		}
		if err := mysqlp.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, mysqlp.NewAnalysisRepository(db), nil
	}
}
