// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-billing/internal/config"
	"membership-billing/internal/domain/ports/adapter"
	bill "membership-billing/internal/infra/adapters/billing"
	pg "membership-billing/internal/infra/db/postgres"
	"membership-billing/internal/infra/logging"
	"membership-billing/internal/infra/metrics"
	red "membership-billing/internal/infra/redis"
	"membership-billing/internal/infra/sched"
	"membership-billing/internal/infra/web"
	"membership-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if err := pg.RunMigrations(cfg.Database.URL); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	dedupStore := red.NewDedupStore(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	subRepo := pg.NewPostgresSubscriptionRepo(pool)
	profileRepo := pg.NewPostgresMembershipRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Billing gateway ----
	var gateway adapter.BillingGateway
	if cfg.Runtime.Dev && cfg.Billing.SecretKey == "sk_test_noop" {
		gateway = bill.NewNoopGateway(cfg.Billing.TrialPeriod)
	} else {
		gateway = bill.NewStripeGateway(&cfg.Billing, logger)
	}
	logger.Info().Str("gateway", gateway.Name()).Msg("billing gateway ready")

	// ---- Use cases ----
	webhookUC := usecase.NewWebhookUseCase(subRepo, profileRepo, dedupStore, cfg.Redis.DedupWindow, logger, txManager)
	checkoutUC := usecase.NewCheckoutUseCase(profileRepo, gateway, cfg.Billing.TrialPeriod, logger)
	syncUC := usecase.NewSyncUseCase(subRepo, profileRepo, gateway, webhookUC, logger)
	guard := usecase.NewAccessGuard(subRepo, profileRepo, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := web.NewServer(webhookUC, checkoutUC, syncUC, guard, auth, cfg.Billing.WebhookSecret, logger)

	handler := web.Chain(srv.Router(),
		web.TraceID(),
		web.Recover(logger),
		web.RequestLog(logger),
		web.Timeout(cfg.Server.WriteTimeout),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Reconciler ----
	reconciler := sched.NewSubscriptionReconciler(
		syncUC, subRepo, profileRepo, locker,
		cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize,
		logger,
	)
	go reconciler.Start(ctx)

	// ---- Pool stats reporter ----
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
