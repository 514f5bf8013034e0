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

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/config"
	"github.com/SirClappington/rightsguard/internal/events"
	"github.com/SirClappington/rightsguard/internal/httpapi"
	"github.com/SirClappington/rightsguard/internal/integrations"
	"github.com/SirClappington/rightsguard/internal/licensing"
	"github.com/SirClappington/rightsguard/internal/logging"
	"github.com/SirClappington/rightsguard/internal/monitor"
	"github.com/SirClappington/rightsguard/internal/platform"
	"github.com/SirClappington/rightsguard/internal/queue"
	"github.com/SirClappington/rightsguard/internal/scheduler"
	"github.com/SirClappington/rightsguard/internal/settlement"
	"github.com/SirClappington/rightsguard/internal/storage"
)

type redisPinger struct{ rdb *r.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	cfg := config.Load()
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Dev(), "rightsguard-api")
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

	yt := platform.NewYouTube(cfg.YouTubeBaseURL, cfg.YouTubeAPIKey, cfg.HTTPTimeout)
	mon := monitor.New(store, map[string]monitor.Searcher{yt.Name(): yt}, pub, logger)
	sched := scheduler.New(store, mon, scheduler.Options{
		Concurrency: cfg.SchedulerConcurrency,
		ClaimTTL:    cfg.SchedulerClaimTTL,
	}, logger)

	issuer := licensing.NewIssuer(store, licensing.Collaborators{
		Renderer: integrations.NewRenderer(cfg.RendererURL, cfg.HTTPTimeout),
		Blobs:    integrations.NewBlobStore(cfg.BlobStoreURL, cfg.HTTPTimeout),
		Invoices: integrations.NewInvoices(cfg.BillingAPIURL, cfg.BillingAPIKey, cfg.HTTPTimeout),
		Notifier: integrations.NewNotifier(cfg.NotifierURL, cfg.HTTPTimeout, logger),
	}, pub, cfg.BlobSignedURLTTL, logger)

	reconciler := settlement.NewReconciler(store, settlement.NewVerifier(cfg.BillingWebhookSecret, 0), pub, logger)

	h := httpapi.NewHandler(httpapi.Deps{
		Jobs:       sched,
		Scans:      queue.New(rdb),
		Licenses:   issuer,
		Webhooks:   reconciler,
		Quota:      store,
		QuotaLimit: cfg.SearchDailyQuota,
		Health:     []httpapi.Pinger{db, redisPinger{rdb}},
	}, logger)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("API listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("API stopped")
}
