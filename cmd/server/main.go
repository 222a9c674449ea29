// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/cache"
	"github.com/unclebandit/payout-settlement/internal/config"
	"github.com/unclebandit/payout-settlement/internal/controller"
	"github.com/unclebandit/payout-settlement/internal/db"
	"github.com/unclebandit/payout-settlement/internal/gateway"
	"github.com/unclebandit/payout-settlement/internal/handler"
	"github.com/unclebandit/payout-settlement/internal/logger"
	"github.com/unclebandit/payout-settlement/internal/middleware"
	"github.com/unclebandit/payout-settlement/internal/queue"
	"github.com/unclebandit/payout-settlement/internal/repository"
	"github.com/unclebandit/payout-settlement/internal/scheduler"
	"github.com/unclebandit/payout-settlement/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("connect database", zap.Error(err))
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	payoutRepo := &repository.PayoutRepository{DB: conn}
	donationRepo := &repository.DonationRepository{DB: conn}
	userRepo := &repository.UserRepository{DB: conn}
	auditRepo := &repository.AuditLogRepository{DB: conn}

	detector := &service.RedFlagDetector{CampaignRepo: campaignRepo, Logger: logg.Named("red_flags")}

	// With a broker the worker binary consumes campaign writes; without one
	// the server consumes them in process.
	var q queue.Queue
	if cfg.AMQPURL != "" {
		aq, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.WorkerPoolSize, logg.Named("amqp"))
		if err != nil {
			logg.Fatal("connect broker", zap.Error(err))
		}
		defer aq.Close()
		q = aq
	} else {
		mq, err := queue.NewInMemoryQueue(cfg.WorkerPoolSize, logg.Named("queue"))
		if err != nil {
			logg.Fatal("start in-memory queue", zap.Error(err))
		}
		defer mq.Close(10 * time.Second)
		if err := queue.StartCampaignWriteSubscriber(mq, detector, 30*time.Second, logg); err != nil {
			logg.Fatal("subscribe campaign writes", zap.Error(err))
		}
		q = mq
	}

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Currency, cfg.Gateway.Timeout, logg.Named("paystack"))
	orchestrator := &service.TransferOrchestrator{
		PayoutRepo: payoutRepo,
		Gateway:    gw,
		Networks:   gateway.NewNetworkTable(cfg.Gateway.Networks),
		Logger:     logg.Named("transfers"),
	}
	audit := &service.AuditLogger{Repo: auditRepo, Logger: logg.Named("audit")}

	payoutService := &service.PayoutService{
		PayoutRepo: payoutRepo,
		UserRepo:   userRepo,
		Executor:   orchestrator,
		Audit:      audit,
		Queue:      q,
		Logger:     logg.Named("payouts"),
		MaxRetries: cfg.Payout.MaxRetries,
	}
	reviewService := &service.ReviewService{
		PayoutRepo: payoutRepo,
		Executor:   orchestrator,
		Audit:      audit,
		Logger:     logg.Named("review"),
	}
	reconciler := &service.WebhookReconciler{
		Secret:       cfg.Gateway.SecretKey,
		PayoutRepo:   payoutRepo,
		DonationRepo: donationRepo,
		Gateway:      gw,
		Queue:        q,
		Logger:       logg.Named("webhooks"),
	}
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logg.Warn("redis unavailable, webhook guard disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			reconciler.Guard = cache.NewRedisWebhookGuard(rdb, 24*time.Hour)
		}
	}

	if cfg.AMQPURL == "" {
		jobs, err := scheduler.NewManager(logg.Named("scheduler"))
		if err != nil {
			logg.Fatal("create scheduler", zap.Error(err))
		}
		resumer := &service.PayoutResumer{
			PayoutRepo: payoutRepo,
			Executor:   orchestrator,
			Logger:     logg.Named("resumer"),
			Grace:      cfg.Payout.ResumeGrace,
		}
		if err := jobs.Register(ctx, &scheduler.ResumeJob{Resumer: resumer, Every: cfg.Payout.ResumeInterval, Deadline: cfg.Payout.ResumeInterval}); err != nil {
			logg.Fatal("register resume job", zap.Error(err))
		}
		jobs.Start()
		defer jobs.Stop()
	}

	auth := &middleware.Authenticator{Secret: []byte(cfg.JWTSecret), Logger: logg.Named("auth")}
	payoutController := &controller.PayoutController{Payouts: payoutService, Reviews: reviewService, Logger: logg}
	webhookController := &controller.WebhookController{Reconciler: reconciler, Logger: logg}
	campaignWrites := &handler.CampaignWriteHandler{Queue: q, Logger: logg}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)

	// Webhooks authenticate by signature, not bearer token.
	r.Post("/webhooks/paystack", webhookController.Paystack)
	campaignWrites.Routes(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		payoutController.Routes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown", zap.Error(err))
	}
}
