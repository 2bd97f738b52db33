package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/domain/guidance"
	"github.com/docbook/docbook/internal/domain/profile"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
	"github.com/docbook/docbook/internal/platform/middleware"
	"github.com/docbook/docbook/internal/platform/sandbox"
	"github.com/docbook/docbook/internal/platform/telemetry"
	"github.com/docbook/docbook/pkg/validation"
)

const version = "0.1.0"

// devUserID acts as the caller in development when no token or
// X-Dev-User header is sent.
var devUserID = uuid.MustParse("00000000-0000-0000-0000-00000000d0c0")

func main() {
	rootCmd := &cobra.Command{
		Use:   "docbook-server",
		Short: "Doctor appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo data",
	}

	doctorsCmd := &cobra.Command{
		Use:   "doctors",
		Short: "Insert a generated doctor directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetInt64("seed")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := sandbox.SeedDoctors(ctx, doctor.NewRepoPG(pool), sandbox.SeedConfig{DoctorCount: count, Seed: seed})
			if err != nil {
				return err
			}
			fmt.Printf("Inserted %d doctor(s) in %dms.\n", res.Doctors, res.DurationMs)
			for _, s := range sandbox.Specialties {
				fmt.Printf("  %-18s %d\n", s, res.BySpecialty[s])
			}
			return nil
		},
	}
	doctorsCmd.Flags().Int("count", sandbox.DefaultSeedConfig().DoctorCount, "Number of doctors to insert")
	doctorsCmd.Flags().Int64("seed", 0, "Random seed (0 picks one from the clock)")
	cmd.AddCommand(doctorsCmd)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			userFlag, _ := cmd.Flags().GetString("user")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			uid, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthJWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET is not set")
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthJWTSecret), cfg.AuthIssuer, uid, email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("user", devUserID.String(), "Subject user id")
	cmd.Flags().String("email", "dev@docbook.local", "Email claim")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

// resolveJWTSecret returns the configured secret or, when none is set,
// a random 32-byte key. The second return value is true when a random key
// was generated.
func resolveJWTSecret(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random JWT secret: %w", err)
	}
	return key, true, nil
}

// app holds what newServer wires into routes.
type app struct {
	profiles     profile.Repository
	doctors      doctor.Repository
	appointments appointment.Repository
	tx           db.TxRunner
	hub          *events.Hub
	publisher    events.Publisher
	completer    guidance.Completer
	metrics      *telemetry.Provider
	dbHealth     echo.HandlerFunc
	jwtSecret    []byte
}

func newServer(cfg *config.Config, logger zerolog.Logger, a app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if a.metrics != nil {
		e.Use(a.metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevUserHeader},
	}))
	// The AI relay waits on a slow upstream and gets AI_TIMEOUT instead.
	e.Use(middleware.RequestTimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: cfg.RequestTimeout,
		Routes: map[string]time.Duration{
			"/api/v1/ai": cfg.AITimeout,
		},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Secret:   a.jwtSecret,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(devUserID, jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.dbHealth != nil {
		e.GET("/health/db", a.dbHealth)
	}
	if a.metrics != nil {
		e.GET("/metrics", a.metrics.PrometheusHandler())
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	publisher := a.publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	// Profiles
	profileSvc := profile.NewService(a.profiles)
	profile.NewHandler(profileSvc).RegisterRoutes(apiV1)

	// Doctor directory
	doctorSvc := doctor.NewService(a.doctors, profileSvc, a.tx)
	doctor.NewHandler(doctorSvc).RegisterRoutes(apiV1)

	// Appointments
	apptSvc := appointment.NewService(a.appointments, doctorSvc, profileSvc, a.tx, publisher, logger)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)

	// AI guidance, with its own tighter per-user limit
	completer := a.completer
	if completer == nil {
		completer = guidance.Disabled{}
	}
	guidance.NewHandler(guidance.NewService(completer), logger).RegisterRoutes(apiV1,
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.AIRateLimitRPS,
			BurstSize:         cfg.AIRateLimitBurst,
		}))

	// Live appointment updates
	if a.hub != nil {
		events.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(apiV1)
	}

	// Demo data, development only
	if cfg.IsDev() {
		sandbox.NewSeedHandler(a.doctors).RegisterRoutes(apiV1)
	}

	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	secret, generated, err := resolveJWTSecret(cfg.AuthJWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
	}
	if generated {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; using a random key, bearer tokens will not survive restarts")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	metrics.SetPoolStats(func() (int64, int64) {
		stat := pool.Stat()
		return int64(stat.AcquiredConns()), int64(stat.IdleConns())
	})

	// Events: websocket hub and metrics always, broker when configured
	hub := events.NewHub(logger)
	publishers := events.MultiPublisher{hub, metrics}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing appointment events to broker")
	}

	var completer guidance.Completer = guidance.Disabled{}
	if cfg.AIEnabled() {
		completer = guidance.NewOpenAICompleter(guidance.OpenAIConfig{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
		})
	} else {
		logger.Warn().Msg("AI_API_KEY not set; /api/v1/ai will answer 503")
	}

	e := newServer(cfg, logger, app{
		profiles:     profile.NewRepoPG(pool),
		doctors:      doctor.NewCachedRepository(doctor.NewRepoPG(pool), cfg.DoctorCacheSize, cfg.DoctorCacheTTL),
		appointments: appointment.NewRepoPG(pool),
		tx:           db.NewTxRunner(pool),
		hub:          hub,
		publisher:    publishers,
		completer:    completer,
		metrics:      metrics,
		dbHealth:     db.HealthHandler(pool),
		jwtSecret:    secret,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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
