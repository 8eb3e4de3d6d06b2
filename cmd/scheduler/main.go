package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonsched/internal/api"
	"salonsched/internal/config"
	"salonsched/internal/database"
	"salonsched/internal/events"
	"salonsched/internal/export"
	"salonsched/internal/google"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/slots"
	"salonsched/internal/store"
	"salonsched/internal/timeutil"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		fallback := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	state, err := db.LoadState(ctx, cfg.Location())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load state")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	locker, err := newLocker(ctx, cfg, rdb, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create locker")
	}
	lockOpts := lock.DefaultOptions()
	lockOpts.TTL = cfg.LockTTL()
	lockOpts.MaxWait = cfg.LockWait()

	bus := events.NewEventBus(&logger)
	st := store.New(
		store.WithLocker(locker, lockOpts),
		store.WithPersister(db),
		store.WithEventBus(bus),
		store.WithLogger(&logger),
		store.WithGenerator(slots.NewGenerator(slots.WithMaxRangeDays(cfg.Generation.MaxRangeDays))),
	)
	st.Load(state)

	if cfg.Sheets.Enabled {
		if err := startSheetsFeed(ctx, cfg, bus, &logger); err != nil {
			logger.Error().Err(err).Msg("google sheets feed disabled")
		}
	}

	if err := config.WatchHours(ctx, cfg.HoursFile, cfg.HoursInterval(), &logger, func(h *config.HoursConfig) error {
		if _, err := st.ReplaceHours(ctx, h.BusinessHours, h.StaffShifts); err != nil {
			return err
		}
		logger.Info().Str("hours", h.String()).Msg("hours applied")
		return nil
	}); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("path", cfg.HoursFile).Msg("hours file not found, hours rule disabled until hours are set")
		} else {
			logger.Error().Err(err).Msg("failed to apply hours config")
		}
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	if cfg.Generation.HorizonDays > 0 {
		generateHorizon(ctx, st, cfg, &logger)
	}

	exporter := export.NewExporter(st, cfg.Export.SheetName, cfg.Location(), &logger)
	srv := api.NewServer(st, exporter, cfg.Location(), api.Options{
		RateLimit:    cfg.API.RateLimit,
		RateBurst:    cfg.API.RateBurst,
		MaxRangeDays: cfg.API.MaxRangeDays,
	}, &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealthServer(ctx, cfg.Monitoring.GRPCHealthPort, db, &logger)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Address).Str("timezone", cfg.Timezone).Msg("scheduler started")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("scheduler stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newLocker(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) (lock.Locker, error) {
	switch cfg.Locks.Backend {
	case "redis":
		return lock.NewRedisLocker(ctx, rdb, "salonsched:lock:")
	case "failover":
		// Redis may come up after us; the failover locker retries it periodically.
		primary := lock.NewLazyRedisLocker(rdb, "salonsched:lock:")
		return lock.NewFailoverLocker(primary, lock.NewMemoryLocker(), logger), nil
	default:
		return lock.NewMemoryLocker(), nil
	}
}

func startSheetsFeed(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) error {
	sheets, err := google.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
	if err != nil {
		return fmt.Errorf("create sheets service: %w", err)
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		return fmt.Errorf("ensure sheet header: %w", err)
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets row cache not warmed, rows may be appended twice")
	}

	feed := export.NewFeed(cfg.Location(), logger)
	feed.AddSink(sheets)
	feed.Subscribe(bus)
	go feed.Run(ctx)
	logger.Info().Str("spreadsheet", cfg.Sheets.SpreadsheetID).Msg("google sheets feed started")
	return nil
}

// generateHorizon materializes every active template from today up to the configured horizon.
func generateHorizon(ctx context.Context, st *store.Store, cfg *config.Config, logger *zerolog.Logger) {
	from := timeutil.DateOf(time.Now().In(cfg.Location()))
	to := from.AddDate(0, 0, cfg.Generation.HorizonDays)

	for _, tpl := range st.Templates("", false) {
		if !tpl.IsActive() {
			continue
		}
		res, _, err := st.GenerateSlots(ctx, tpl.ID, from, to)
		if err != nil {
			logger.Error().Err(err).Str("template_id", tpl.ID).Msg("startup generation failed")
			continue
		}
		if len(res.Created) > 0 {
			logger.Info().
				Str("template_id", tpl.ID).
				Int("created", len(res.Created)).
				Int("skipped", res.Skipped).
				Msg("slots generated")
		}
	}
}
