package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/config"
	"github.com/SirClappington/rightsguard/internal/events"
	"github.com/SirClappington/rightsguard/internal/logging"
	"github.com/SirClappington/rightsguard/internal/monitor"
	"github.com/SirClappington/rightsguard/internal/platform"
	"github.com/SirClappington/rightsguard/internal/queue"
	"github.com/SirClappington/rightsguard/internal/scheduler"
	"github.com/SirClappington/rightsguard/internal/storage"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Dev(), "rightsguard-scheduler")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, db); err != nil {
			logger.Fatal("Failed to migrate", zap.Error(err))
		}
	}
	store := storage.New(db)

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer pub.Close()

	if cfg.YouTubeAPIKey == "" {
		logger.Warn("YOUTUBE_API_KEY is not set, every monitoring run will fail")
	}
	yt := platform.NewYouTube(cfg.YouTubeBaseURL, cfg.YouTubeAPIKey, cfg.HTTPTimeout)
	mon := monitor.New(store, map[string]monitor.Searcher{yt.Name(): yt}, pub, logger)
	sched := scheduler.New(store, mon, scheduler.Options{
		Concurrency: cfg.SchedulerConcurrency,
		ClaimTTL:    cfg.SchedulerClaimTTL,
	}, logger)

	runner := scheduler.NewRunner(sched, queue.NewLease(rdb), queue.New(rdb), cfg.SchedulerInterval, cfg.SchedulerBatchSize, logger)
	logger.Info("Scheduler started",
		zap.Duration("interval", cfg.SchedulerInterval),
		zap.Int("batch_size", cfg.SchedulerBatchSize),
		zap.Int("concurrency", cfg.SchedulerConcurrency))
	if err := runner.Run(ctx); err != nil {
		logger.Error("Scheduler stopped with error", zap.Error(err))
	}
	logger.Info("Scheduler stopped")
}
