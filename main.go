package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"trendkeys/internal/audit"
	"trendkeys/internal/auth"
	"trendkeys/internal/config"
	"trendkeys/internal/db"
	"trendkeys/internal/gate"
	"trendkeys/internal/http/handlers"
	"trendkeys/internal/logger"
	"trendkeys/internal/metrics"
	"trendkeys/internal/notify"
	"trendkeys/internal/settings"
	"trendkeys/internal/sweep"
	"trendkeys/internal/trend"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	store := db.NewStore(sqlDB)

	if err := db.EnsureBootstrapAdmin(ctx, store, cfg); err != nil {
		log.Fatal("failed to ensure bootstrap admin", zap.Error(err))
	}

	var bus settings.Bus = settings.NewLocalBus()
	if cfg.RedisURL != "" {
		rb, err := settings.NewRedisBus(ctx, cfg.RedisURL, log.Named("settings"))
		if err != nil {
			log.Fatal("failed to connect settings bus", zap.Error(err))
		}
		bus = rb
		log.Info("settings changes shared through redis", zap.String("channel", settings.RedisChannel))
	}
	defer func() { _ = bus.Close() }()

	provider := settings.NewProvider(store, bus, cfg.SettingsCacheTTL, log.Named("settings"))
	defer provider.Close()
	if err := provider.EnsureDefaults(ctx); err != nil {
		log.Fatal("failed to seed settings", zap.Error(err))
	}
	provider.Subscribe(func(key string) {
		log.Info("setting changed", zap.String("key", key))
	})

	metrics.Init()

	client := &fasthttp.Client{
		Name:                "trendkeys",
		MaxConnsPerHost:     256,
		ReadTimeout:         cfg.UpstreamTimeout,
		WriteTimeout:        cfg.UpstreamTimeout,
		MaxIdleConnDuration: time.Minute,
	}

	recorder := audit.NewRecorder(store, log.Named("audit"))
	telegram := notify.NewTelegramClient(client, cfg.TelegramAPIURL, cfg.TelegramTimeout)
	notifier := notify.New(telegram, provider, store, cfg.BulkSendDelay, log.Named("notify"))

	deps := &handlers.Deps{
		Cfg:      cfg,
		Store:    store,
		Settings: provider,
		Sessions: auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL),
		Audit:    recorder,
		Notifier: notifier,
		Gate:     gate.New(store, log.Named("gate")),
		Proxy:    trend.NewProxy(client, provider, cfg.UpstreamTimeout, log.Named("proxy")),
		Log:      log,
	}

	db.StartRetentionWorker(sqlDB, cfg.LogRetentionDays, log.Named("retention"))
	db.StartAggregationWorker(sqlDB, log.Named("aggregation"))
	sweep.New(store, notifier, recorder, cfg.ExpiringWindow, log.Named("sweep")).Start(ctx, cfg.ExpirySweepInterval)

	server := &fasthttp.Server{
		Name:         "trendkeys",
		Handler:      handlers.Routes(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := server.ShutdownWithContext(context.Background()); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("trendkeys listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}

	recorder.Flush()
	notifier.Flush()
}
