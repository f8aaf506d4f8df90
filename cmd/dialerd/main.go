package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/ami"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/rating"
	"dialer-platform/internal/reporting"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Domain services.
	campaigns := campaign.NewRepository(db)
	resolver := rating.NewResolver(rating.NewPostgresRepo(db))
	biller := billing.NewService(db, resolver, campaigns, logger.Component(log, "billing"))

	telegram := notify.NewTelegramSender(cfg.Telegram)
	notifier := notify.NewDispatcher(telegram, cfg.Dialer.NotifyInterval, logger.Component(log, "notify"))

	amiClient := ami.NewClient(cfg.AMI, logger.Component(log, "ami"))
	pressed := dialer.NewRedisPressedStore(rdb)
	slots := dialer.NewRedisSlotGuard(rdb, 5*time.Minute)
	engine := dialer.NewEngine(amiClient, campaigns, slots, logger.Component(log, "dialer"))
	reactor := dialer.NewReactor(engine, campaigns, biller, pressed, notifier, logger.Component(log, "reactor"))
	scheduler := campaign.NewScheduler(campaigns, engine, pressed, notifier, cfg.Dialer.SchedulerTick, logger.Component(log, "scheduler"))

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db, campaigns))

	// Background loops.
	go amiClient.Run(rootCtx)
	go notifier.Run(rootCtx)
	go reactor.Run(rootCtx, amiClient.Events())
	go scheduler.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:      authManager,
		Campaigns: campaigns,
		Scheduler: scheduler,
		Billing:   biller,
		Reporting: reportSvc,
		Audit:     auditSvc,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), amiClient)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
