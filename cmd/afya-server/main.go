package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/config"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesslog"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesstoken"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/client"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/auth"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/db"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/middleware"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/notification"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "afya-server",
		Short: "Afya Nyumbani record-sharing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// auditWithMetrics counts every resolved access attempt by outcome on its way
// into the audit trail.
type auditWithMetrics struct {
	inner   *accesslog.Service
	metrics *telemetry.Provider
}

func (a auditWithMetrics) Record(ctx context.Context, e *accesslog.Entry) {
	a.metrics.AccessAttempt(string(e.Outcome))
	a.inner.Record(ctx, e)
}

// notifierWithMetrics counts issued tokens alongside owner notifications.
type notifierWithMetrics struct {
	inner   accesstoken.Notifier
	metrics *telemetry.Provider
}

func (n notifierWithMetrics) AccessGrantCreated(ctx context.Context, t *accesstoken.AccessToken) {
	n.metrics.TokenIssued()
	n.inner.AccessGrantCreated(ctx, t)
}

func (n notifierWithMetrics) AccessGrantRevoked(ctx context.Context, t *accesstoken.AccessToken) {
	n.inner.AccessGrantRevoked(ctx, t)
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewProvider("afya-server")

	// Domain wiring
	clientSvc := client.NewService(client.NewRepoPG(pool))

	logSvc := accesslog.NewService(accesslog.NewRepoPG(pool), logger, metrics)

	var smsSender notification.SMSSender
	if cfg.SMSBaseURL != "" {
		smsSender = notification.NewHTTPSMSSender(notification.SMSConfig{
			BaseURL:  cfg.SMSBaseURL,
			APIKey:   cfg.SMSAPIKey,
			SenderID: cfg.SMSSenderID,
		})
	} else {
		logger.Warn().Msg("SMS_BASE_URL not set; grant notifications will be dropped")
		smsSender = &notification.MockSMSSender{}
	}
	notifyMgr := notification.NewManager(nil, smsSender, notification.NewTemplateEngine())
	grantNotifier := notification.NewGrantNotifier(notifyMgr, clientSvc, logger)

	tokenSvc := accesstoken.NewService(
		accesstoken.NewRepoPG(pool),
		clientSvc,
		auditWithMetrics{inner: logSvc, metrics: metrics},
		notifierWithMetrics{inner: grantNotifier, metrics: metrics},
		logger,
		time.Duration(cfg.TokenDefaultDurationHours)*time.Hour,
		time.Duration(cfg.TokenMaxDurationHours)*time.Hour,
	)

	registry := records.NewRegistry()
	registry.Register(records.TypeVitalSigns, records.NewVitalSignsSourcePG(pool))
	registry.Register(records.TypeVisitRecords, records.NewVisitRecordsSourcePG(pool))
	registry.Register(records.TypeMedicalHistory, records.NewMedicalHistorySourcePG(pool))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Owner management API: bearer-authenticated.
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Grantee-facing API: the presented secret is the credential.
	share := e.Group("/share")
	share.Use(middleware.RateLimit(rateLimitCfg))

	tokenHandler := accesstoken.NewHandler(tokenSvc, logSvc, registry)
	tokenHandler.RegisterRoutes(apiV1, share)

	clientHandler := client.NewHandler(clientSvc)
	clientHandler.RegisterRoutes(apiV1)

	// Operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", func(c echo.Context) error {
		stats := db.GetPoolStats(pool)
		metrics.SetGauge("afya_db_pool_active", int64(stats.AcquiredConns))
		metrics.SetGauge("afya_db_pool_idle", int64(stats.IdleConns))
		return metrics.PrometheusHandler()(c)
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
