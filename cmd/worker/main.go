// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/config"
	"github.com/unclebandit/payout-settlement/internal/db"
	"github.com/unclebandit/payout-settlement/internal/gateway"
	"github.com/unclebandit/payout-settlement/internal/logger"
	"github.com/unclebandit/payout-settlement/internal/queue"
	"github.com/unclebandit/payout-settlement/internal/repository"
	"github.com/unclebandit/payout-settlement/internal/scheduler"
	"github.com/unclebandit/payout-settlement/internal/service"
)

const recomputeTimeout = 30 * time.Second

type resumer interface {
	RunOnce(ctx context.Context) int
}

// startWorker consumes campaign writes from q and schedules the payout resume
// sweep. The returned manager is already started.
func startWorker(ctx context.Context, q queue.Queue, detector queue.RedFlagRecomputer, r resumer, every time.Duration, logg *zap.Logger) (*scheduler.Manager, error) {
	if err := queue.StartCampaignWriteSubscriber(q, detector, recomputeTimeout, logg.Named("campaign_writes")); err != nil {
		return nil, err
	}

	jobs, err := scheduler.NewManager(logg.Named("scheduler"))
	if err != nil {
		return nil, err
	}
	if err := jobs.Register(ctx, &scheduler.ResumeJob{Resumer: r, Every: every, Deadline: every}); err != nil {
		return nil, err
	}
	jobs.Start()
	return jobs, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
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

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.WorkerPoolSize, logg.Named("amqp"))
	if err != nil {
		logg.Fatal("connect broker", zap.Error(err))
	}
	defer q.Close()

	payoutRepo := &repository.PayoutRepository{DB: conn}
	detector := &service.RedFlagDetector{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		Logger:       logg.Named("red_flags"),
	}
	orchestrator := &service.TransferOrchestrator{
		PayoutRepo: payoutRepo,
		Gateway:    gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Currency, cfg.Gateway.Timeout, logg.Named("paystack")),
		Networks:   gateway.NewNetworkTable(cfg.Gateway.Networks),
		Logger:     logg.Named("transfers"),
	}
	resumer := &service.PayoutResumer{
		PayoutRepo: payoutRepo,
		Executor:   orchestrator,
		Logger:     logg.Named("resumer"),
		Grace:      cfg.Payout.ResumeGrace,
	}

	jobs, err := startWorker(ctx, q, detector, resumer, cfg.Payout.ResumeInterval, logg)
	if err != nil {
		logg.Fatal("start worker", zap.Error(err))
	}
	defer jobs.Stop()

	logg.Info("worker running, waiting for messages")
	<-ctx.Done()
	logg.Info("worker stopping")
}
