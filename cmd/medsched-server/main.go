package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medsched/medsched/internal/config"
	"github.com/medsched/medsched/internal/domain/availability"
	"github.com/medsched/medsched/internal/domain/booking"
	"github.com/medsched/medsched/internal/domain/directory"
	"github.com/medsched/medsched/internal/domain/reminders"
	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/internal/platform/cache"
	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/internal/platform/jobs"
	"github.com/medsched/medsched/internal/platform/middleware"
	"github.com/medsched/medsched/internal/platform/notification"
)

const version = "0.1.0"

const requestTimeout = 30 * time.Second

// reminderAdapter narrows the reminder scheduler to the slice the booking
// service calls: default channels, descriptors dropped.
type reminderAdapter struct {
	scheduler *reminders.Scheduler
}

func (a reminderAdapter) Schedule(ctx context.Context, appointmentID uuid.UUID, start time.Time) error {
	_, err := a.scheduler.Schedule(ctx, appointmentID, start)
	return err
}

func (a reminderAdapter) Cancel(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	return a.scheduler.Cancel(ctx, appointmentID, reason)
}

func (a reminderAdapter) Reschedule(ctx context.Context, appointmentID uuid.UUID, oldStart, newStart time.Time) error {
	return a.scheduler.Reschedule(ctx, appointmentID, oldStart, newStart)
}

// reminderConfig builds the reminder schedule from the application config.
// Unknown channel names fail loudly instead of silently dropping deliveries.
func reminderConfig(cfg *config.Config) (reminders.Config, error) {
	rc := reminders.DefaultConfig()
	if len(cfg.DefaultReminderChannels) == 0 {
		return rc, nil
	}
	channels := make([]notification.Channel, 0, len(cfg.DefaultReminderChannels))
	for _, name := range cfg.DefaultReminderChannels {
		ch, err := notification.ParseChannel(name)
		if err != nil {
			return rc, fmt.Errorf("DEFAULT_REMINDER_CHANNELS: %w", err)
		}
		channels = append(channels, ch)
	}
	rc.Channels = channels
	return rc, nil
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "medsched-server",
		Short: "Doctor appointment booking service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the reminder delivery worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
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
			pool, err := db.NewPool(ctx, db.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
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
			pool, err := db.NewPool(ctx, db.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	redisCache := cache.New(cfg.RedisAddr)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		// The cache and the job queue degrade gracefully, the server still serves.
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
	}

	dispatcher := jobs.NewAsynqDispatcher(cfg.RedisAddr)
	defer dispatcher.Close()

	rc, err := reminderConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid reminder configuration")
	}
	scheduler := reminders.NewScheduler(dispatcher, rc, logger)

	bookingSvc := booking.NewService(booking.NewAppointmentRepoPG(pool), reminderAdapter{scheduler}, logger)
	availabilitySvc := availability.NewService(availability.NewWindowRepoPG(pool), redisCache, cfg.AvailabilityCacheTTL, logger)
	directorySvc := directory.NewService(directory.NewDoctorRepoPG(pool), directory.NewPatientRepoPG(pool))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	booking.NewHandler(bookingSvc).RegisterRoutes(apiV1)
	availability.NewHandler(availabilitySvc).RegisterRoutes(apiV1)
	directory.NewHandler(directorySvc).RegisterRoutes(apiV1)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()
	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func runWorker() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	engine := notification.NewTemplateEngine()
	reminders.RegisterTemplates(engine)

	// Log senders stand in for provider integrations on every channel.
	worker := reminders.NewWorker(
		reminders.NewAppointmentSourcePG(pool),
		engine,
		notification.NewLogManager(logger),
		logger,
	)

	srv := jobs.NewServer(cfg.RedisAddr, cfg.WorkerConcurrency, logger)
	worker.Register(srv)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("shutting down worker")
		srv.Shutdown()
	}()

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Str("redis", cfg.RedisAddr).
		Msg("reminder worker started")
	return srv.Run()
}
