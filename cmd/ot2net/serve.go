package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ness-ot/ot2net/internal/audit"
	"github.com/ness-ot/ot2net/internal/auth"
	"github.com/ness-ot/ot2net/internal/platform/config"
	"github.com/ness-ot/ot2net/internal/platform/database"
	"github.com/ness-ot/ot2net/internal/platform/server"
	"github.com/ness-ot/ot2net/internal/platform/telemetry"
	"github.com/ness-ot/ot2net/internal/project"
	"github.com/ness-ot/ot2net/internal/rbac"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	telemetry.SetDefault(telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format))
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := slog.Default()

	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	matrix := rbac.DefaultMatrix()
	if err := matrix.Validate(rbac.Roles()...); err != nil {
		return fmt.Errorf("permission matrix: %w", err)
	}
	labels, err := rbac.NewLabels(cfg.RBAC.Locale)
	if err != nil {
		return fmt.Errorf("rbac labels: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	sqlDB := database.OpenDB(pool)
	defer sqlDB.Close()
	data := database.NewSQLClient(sqlDB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := rbac.NewMetrics(registry)

	engine := rbac.NewEvaluator(matrix,
		rbac.WithLogger(logger),
		rbac.WithEvaluatorMetrics(metrics),
	)

	auditLogger := audit.NewAsyncLogger(audit.NewStore(data), audit.LoggerConfig{})

	rbacOpts := []rbac.MiddlewareOption{
		rbac.WithAuditLogger(audit.RBACLogger{Logger: auditLogger}),
		rbac.WithLabels(labels),
		rbac.WithMiddlewareLogger(logger),
		rbac.WithMetrics(metrics),
		rbac.WithVerboseDenials(cfg.RBAC.VerboseDenials),
	}

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Verifier:           verifier,
		RBAC:               engine,
		RBACHandler:        rbac.NewHandler(engine, labels),
		RBACOptions:        rbacOpts,
		Membership:         project.NewMembershipStore(data),
		Data:               data,
		ProjectHandler:     project.NewHandler(auditLogger),
		AuditHandler:       audit.NewHandler(),
		Gatherer:           registry,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimit:          cfg.Server.RateLimit,
		RateWindow:         time.Duration(cfg.Server.RateWindowSecs) * time.Second,
		Development:        cfg.Server.Development,
	})

	slog.Info("ot2net starting",
		"addr", addr,
		"auth_mode", cfg.Auth.Mode,
		"locale", labels.Locale(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return auditLogger.Close()
	})
	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case "oidc":
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID, cfg.DefaultRole)
		if err != nil {
			return nil, fmt.Errorf("oidc verifier: %w", err)
		}
		return v, nil
	default:
		if cfg.JWT.Secret == "" {
			return nil, errors.New("auth.jwt.secret is required in jwt mode")
		}
		return auth.NewTokenService(
			cfg.JWT.Secret,
			cfg.JWT.Issuer,
			time.Duration(cfg.JWT.ExpiryHours)*time.Hour,
			cfg.DefaultRole,
		), nil
	}
}
