package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/therapy-booking/internal/analytics"
	"github.com/p-blackswan/therapy-booking/internal/api"
	"github.com/p-blackswan/therapy-booking/internal/booking"
	"github.com/p-blackswan/therapy-booking/internal/config"
	"github.com/p-blackswan/therapy-booking/internal/health"
	"github.com/p-blackswan/therapy-booking/internal/i18n"
	"github.com/p-blackswan/therapy-booking/internal/metrics"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
	"github.com/p-blackswan/therapy-booking/internal/retry"
	"github.com/p-blackswan/therapy-booking/internal/store"
	"github.com/p-blackswan/therapy-booking/internal/widget"
	"github.com/p-blackswan/therapy-booking/pkg/tokenstore"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("http_addr", cfg.HTTPAddr).
		Str("db_path", cfg.DBPath).
		Bool("analytics_enabled", cfg.AnalyticsEnabled()).
		Bool("sessions_enabled", cfg.SessionsEnabled()).
		Msg("starting therapy booking service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(db))

	var catalog *i18n.Catalog
	if cfg.MessagesDir != "" {
		catalog, err = i18n.LoadDir(cfg.MessagesDir, cfg.DefaultLocale)
	} else {
		catalog, err = i18n.LoadEmbedded(cfg.DefaultLocale)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load translations")
	}
	logger.Info().Strs("locales", catalog.Locales()).Msg("translations loaded")

	m := metrics.New()

	// Analytics: HTTP collector when configured, local log otherwise
	var sink analytics.Sink = analytics.NewLogSink(logger)
	if cfg.AnalyticsEnabled() {
		sink = analytics.NewHTTPSink(analytics.HTTPSinkConfig{
			Endpoint: cfg.AnalyticsEndpoint,
			Timeout:  cfg.AnalyticsTimeout,
			Retry:    retry.DefaultConfig(),
		}, logger)
	}

	events := analytics.NewLogger(sink, analytics.Options{
		Workers:     cfg.AnalyticsWorkers,
		QueueSize:   cfg.AnalyticsQueueSize,
		SendTimeout: 3 * cfg.AnalyticsTimeout,
		DeadLetters: db,
		Recorder:    m,
	}, logger)

	replayer := analytics.NewReplayer(db, sink, analytics.DefaultReplayConfig(), logger)

	sessions := widget.NewSessions(tokenstore.NewMemoryStore(), cfg.WidgetSessionTTL)
	selector := partneraccess.NewSelector(cfg.SelectorCacheSize, cfg.SelectorCacheTTL)

	svc := booking.NewService(
		catalog,
		selector,
		events,
		sessions,
		widget.DefaultSettings(cfg.SimplybookCompany, cfg.SimplybookTheme),
		m,
		logger,
	)

	var userSessions *api.Sessions
	if cfg.SessionsEnabled() {
		userSessions = api.NewSessions(cfg.SessionJWTSecret, cfg.SessionTTL)
	} else {
		logger.Warn().Msg("SESSION_JWT_SECRET not set; booking routes disabled")
	}

	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.HTTPAddr,
		AdminAPIKey: cfg.AdminAPIKey,
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins,
	}, api.Deps{
		Store:    db,
		Booking:  svc,
		Selector: selector,
		Sessions: userSessions,
		Checker:  checker,
		Metrics:  m,
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		replayer.Run(ctx, cfg.AnalyticsReplay)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runMaintenance(ctx, db, sessions, logger)
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	// Flush queued events before the store closes.
	events.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("therapy booking service stopped")
}

// runMaintenance prunes old dead letters and expired widget sessions hourly.
func runMaintenance(ctx context.Context, db *store.Store, sessions *widget.Sessions, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := db.RunRetention(ctx); err != nil {
				logger.Error().Err(err).Msg("dead letter retention failed")
			} else if n > 0 {
				logger.Info().Int64("deleted", n).Msg("dead letter retention")
			}
			if n, err := sessions.Cleanup(ctx); err != nil {
				logger.Error().Err(err).Msg("widget session cleanup failed")
			} else if n > 0 {
				logger.Debug().Int("deleted", n).Msg("widget sessions expired")
			}
		}
	}
}
