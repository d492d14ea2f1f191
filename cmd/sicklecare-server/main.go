package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sicklecare/sicklecare/internal/config"
	"github.com/sicklecare/sicklecare/internal/domain/risk"
	"github.com/sicklecare/sicklecare/internal/domain/tracking"
	"github.com/sicklecare/sicklecare/internal/platform/auth"
	"github.com/sicklecare/sicklecare/internal/platform/db"
	"github.com/sicklecare/sicklecare/internal/platform/ingest"
	"github.com/sicklecare/sicklecare/internal/platform/metrics"
	"github.com/sicklecare/sicklecare/internal/platform/middleware"
	"github.com/sicklecare/sicklecare/internal/platform/scheduler"
	"github.com/sicklecare/sicklecare/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "sicklecare-server",
		Short:        "Sickle cell tracking and risk API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(insightCmd())
	rootCmd.AddCommand(ingestCmd())

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
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
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
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func riskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Compute one subject's daily risk and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			date, _ := cmd.Flags().GetString("date")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			return withServices(func(ctx context.Context, svc *services) error {
				day := svc.risk.Today()
				if date != "" {
					var err error
					if day, err = risk.ParseDay(date); err != nil {
						return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
					}
				}
				result, err := svc.risk.ComputeDailyRisk(ctx, subject, day)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().String("subject", "", "Subject id")
	cmd.Flags().String("date", "", "Day to score, YYYY-MM-DD (default today, UTC)")
	return cmd
}

func insightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insight",
		Short: "Compute insights for one subject and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			kind, _ := cmd.Flags().GetString("kind")
			days, _ := cmd.Flags().GetInt("days")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}

			return withServices(func(ctx context.Context, svc *services) error {
				if kind == "" {
					findings, err := svc.risk.ComputeInsights(ctx, subject, days)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]interface{}{"insights": findings})
				}
				finding, err := svc.risk.ComputeInsight(ctx, subject, kind, days)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), finding)
			})
		},
	}
	cmd.Flags().String("subject", "", "Subject id")
	cmd.Flags().String("kind", "", "hydration_pain or lab_drift (default both)")
	cmd.Flags().Int("days", 0, "Hydration/pain window in days (default 28)")
	return cmd
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-labs",
		Short: "Consume lab results from Kafka until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.KafkaEnabled() {
				return fmt.Errorf("KAFKA_BROKERS is required for ingest-labs")
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(cfg, pool, logger)
			return runIngest(ctx, cfg, svc, logger)
		},
	}
}

// services is the wired domain layer shared by the server and the CLI.
type services struct {
	tracking *tracking.Service
	risk     *risk.Service
	sweeper  *scheduler.Sweeper
	metrics  *metrics.Registry
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *services {
	painRepo := tracking.NewPainEventRepoPG(pool)
	hydrationRepo := tracking.NewHydrationLogRepoPG(pool)
	labRepo := tracking.NewLabResultRepoPG(pool)
	subjectRepo := tracking.NewSubjectRepoPG(pool)

	trackingSvc := tracking.NewService(painRepo, hydrationRepo, labRepo, subjectRepo)
	store := tracking.NewRiskStore(painRepo, hydrationRepo, labRepo, tracking.BreakerConfig{
		MaxFailures: cfg.StoreBreakerMaxFailures,
		Timeout:     cfg.StoreBreakerTimeout,
	}, logger)
	riskSvc := risk.NewService(store, logger.With().Str("component", "risk").Logger())

	sweeper := scheduler.NewSweeper(scheduler.Config{
		Schedule:     cfg.RiskSweepSchedule,
		LookbackDays: cfg.RiskSweepLookbackDays,
	}, trackingSvc, riskSvc, logger)

	reg := metrics.New()
	if pool != nil {
		reg.RegisterPool(pool)
	}
	riskSvc.SetObserver(reg)
	sweeper.SetObserver(reg)

	return &services{
		tracking: trackingSvc,
		risk:     riskSvc,
		sweeper:  sweeper,
		metrics:  reg,
	}
}

// withServices loads config, connects and runs fn with quiet logging so CLI
// output stays machine readable.
func withServices(fn func(ctx context.Context, svc *services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, newServices(cfg, pool, logger))
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development auth enabled: requests without a token run as an admin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc := newServices(cfg, pool, logger)
	e := newEcho(cfg, logger, svc, pool)

	if err := svc.sweeper.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start risk sweep")
	}

	ingestDone := make(chan struct{})
	if cfg.KafkaEnabled() {
		go func() {
			defer close(ingestDone)
			if err := runIngest(ctx, cfg, svc, logger); err != nil {
				logger.Error().Err(err).Msg("lab ingest stopped")
			}
		}()
	} else {
		close(ingestDone)
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Str("version", version).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	svc.sweeper.Stop(shutdownCtx)
	select {
	case <-ingestDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("lab ingest did not stop in time")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the HTTP surface. Split from runServer so the routing and
// middleware stack can be exercised without a database.
func newEcho(cfg *config.Config, logger zerolog.Logger, svc *services, pinger db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(svc.metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevSubjectHeader},
	}))
	e.Use(authMiddleware(cfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", svc.metrics.Handler())

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})
	bodyLimit := middleware.BodyLimit(cfg.BodyLimit)
	// Sweeps iterate every active subject and may outlive a request budget.
	timeout := middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/risk-sweep")

	apiV1 := e.Group("/api/v1", limiter, bodyLimit, timeout)
	fhirGroup := e.Group("/fhir", limiter, timeout)

	tracking.NewHandler(svc.tracking).RegisterRoutes(apiV1)
	risk.NewHandler(svc.risk).RegisterRoutes(apiV1, fhirGroup)
	scheduler.NewHandler(svc.sweeper).RegisterRoutes(apiV1)

	return e
}

// authMiddleware verifies bearer tokens. In development, requests without a
// token fall through to the dev identity and tokens are still checked when a
// verifier is configured.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	configured := cfg.AuthIssuer != "" || cfg.AuthJWKSURL != "" || cfg.AuthSigningKey != ""
	if cfg.IsDev() && !configured {
		return auth.DevAuthMiddleware(nil)
	}
	verifier := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: signingKey(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(verifier)
	}
	return verifier
}

func signingKey(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func runIngest(ctx context.Context, cfg *config.Config, svc *services, logger zerolog.Logger) error {
	reader := ingest.NewReader(ingest.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaLabTopic,
		GroupID: cfg.KafkaGroupID,
	})
	defer reader.Close()

	consumer := ingest.NewConsumer(reader, svc.tracking, logger)
	consumer.SetObserver(svc.metrics)
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaLabTopic).Msg("lab ingest started")
	return consumer.Run(ctx)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: 5 * time.Minute,
	})
}

// migrationFiles returns the embedded migrations unless dir overrides them.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
