package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daimaescape/internal/api"
	"daimaescape/internal/cache"
	"daimaescape/internal/config"
	"daimaescape/internal/database"
	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/notify"
	"daimaescape/internal/reference"
	"daimaescape/internal/service"
	"daimaescape/shared/audit"
	"daimaescape/shared/reminders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("DAIMA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	roomCache := cache.New(rdb, cfg.CacheTTL(), &logger)
	catalog := service.NewCatalog(db, roomCache, &logger)

	watcher := &config.RoomsWatcher{
		Path: cfg.RoomsConfigPath,
		OnUpdate: func(rc *config.RoomsConfig) {
			if err := db.SyncRoomsFromConfig(ctx, rc); err != nil {
				logger.Error().Err(err).Msg("failed to sync rooms")
				return
			}
			catalog.Invalidate(ctx)
			logger.Info().Str("rooms", rc.String()).Msg("room catalog loaded")
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("invalid rooms config, keeping previous catalog")
		},
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load rooms config")
	}

	email, err := notify.NewEmailSender(notify.EmailConfig{
		Host:        cfg.Notifications.SMTP.Host,
		Port:        cfg.Notifications.SMTP.Port,
		Username:    cfg.Notifications.SMTP.Username,
		Password:    cfg.Notifications.SMTP.Password,
		From:        cfg.Notifications.SMTP.From,
		FromName:    cfg.Notifications.SMTP.FromName,
		SiteBaseURL: cfg.Notifications.SiteBaseURL,
		Currency:    cfg.Booking.Currency,
		Timeout:     cfg.SendTimeout(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load email templates")
	}

	var staff *notify.TelegramSender
	if token := cfg.Notifications.Telegram.BotToken; token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		staff = notify.NewTelegramSender(bot, cfg.Notifications.Telegram.StaffChatIDs, cfg.Booking.Currency)
		logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(cfg.Notifications.Telegram.StaffChatIDs)).Msg("staff notifications enabled")
	}

	router := &notify.Router{Guest: email}
	if staff != nil {
		router.Staff = staff
	}
	dispatcher := notify.NewDispatcher(router, notify.DispatcherConfig{
		QueueSize:     cfg.Notifications.QueueSize,
		Workers:       cfg.Notifications.Workers,
		RatePerSecond: cfg.Notifications.RatePerSecond,
		Burst:         cfg.Notifications.Burst,
		SendTimeout:   cfg.SendTimeout(),
	}, &logger)
	dispatcher.Start()

	loc := cfg.Location()
	bookings := service.NewBookingService(db, db, dispatcher,
		reference.NewGenerator(cfg.Booking.MaxReferenceAttempts, loc),
		service.Options{
			TaxRate:        cfg.TaxRate(),
			AutoConfirm:    cfg.AutoConfirm(),
			Location:       loc,
			MinAdults:      cfg.Booking.MinAdults,
			MaxAdults:      cfg.Booking.MaxAdults,
			MaxChildren:    cfg.Booking.MaxChildren,
			MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		}, &logger)

	auditLog := sharedLogger(logger, "audit")
	var docs audit.DocumentSender
	if staff != nil {
		docs = staff
	}
	auditSvc := audit.NewService(&audit.Config{
		Schedule:          cfg.Audit.Schedule,
		ExportDir:         cfg.Audit.ExportDir,
		DataRetentionDays: cfg.Audit.RetentionDays,
		Location:          loc,
	}, db, audit.NewExcelizeWriter, docs, db, auditLog)
	if cfg.Audit.Enabled {
		if err := auditSvc.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start audit service")
		}
		defer auditSvc.Stop()
	}

	if cfg.Reminders.Enabled {
		reminderLog := sharedLogger(logger, "reminders")
		reminderMetrics := reminders.NewMetrics("daimaescape")
		sendReminder := reminders.NotifierFunc(func(ctx context.Context, b models.Booking) error {
			return email.Send(ctx, notify.Message{
				Kind:      notify.KindCheckInReminder,
				Recipient: b.GuestEmail,
				Booking:   b,
			})
		})
		sender := reminders.NewReminderSender(sendReminder, db, reminders.DefaultReminderSenderConfig(), reminderMetrics, reminderLog)
		reminderSvc := reminders.NewService(&reminders.Config{
			CheckInterval: cfg.ReminderPollInterval(),
			Lead:          cfg.ReminderLead(),
			Location:      loc,
		}, db, sender, reminderMetrics, reminderLog)
		reminderSvc.Start()
		defer reminderSvc.Stop()
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup.Path, cfg.Backup.Schedule, cfg.BackupRetention(), &logger)
		if err := backups.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start backup service")
		}
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(api.Config{
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
	}, bookings, catalog, auditSvc, &logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info().Int("port", cfg.Server.Port).Msg("booking service started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown error")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("notifications still queued at shutdown")
	}
	logger.Info().Msg("booking service stopped")
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, "health", port, mux, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, "metrics", port, mux, logger)
}

func serve(ctx context.Context, name string, port int, h http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
