package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/renderqueue/core/config"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/renderqueue/core/queue/idemcache"
	qsql "github.com/renderqueue/core/queue/sql"
	"github.com/renderqueue/core/webhook"
	wsql "github.com/renderqueue/core/webhook/sql"
)

// App holds every long-lived component wired at startup. The HTTP
// surface named out of scope by the core spec would sit in front of
// Ingest/Observer/Archive/Stats/WebhookStore; App exposes them so that
// surface can be added without touching process wiring.
type App struct {
	Ingest   queue.Ingestor
	Observer *qsql.Observer
	Archive  *qsql.Archive
	Stats    *qsql.Stats

	WebhookStore *wsql.Store
	Dispatcher   *webhook.Dispatcher

	queueDB   *bun.DB
	webhookDB *bun.DB
	redis     *redis.Client

	components []lifecycle
}

type lifecycle struct {
	name  string
	start func(context.Context) error
	stop  func(time.Duration) error
}

// NewApp opens the configured stores, builds every component, and
// registers job type handlers, but does not start anything.
func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger, register func(*queue.HandlerRegistry)) (*App, error) {
	queueDB, err := openDB(cfg.Store.QueueDBPath)
	if err != nil {
		return nil, err
	}
	if err := qsql.InitDB(ctx, queueDB); err != nil {
		queueDB.Close()
		return nil, err
	}

	webhookDB := queueDB
	if cfg.Store.WebhookDBPath != cfg.Store.QueueDBPath {
		webhookDB, err = openDB(cfg.Store.WebhookDBPath)
		if err != nil {
			queueDB.Close()
			return nil, err
		}
	}
	if err := wsql.InitDB(ctx, webhookDB); err != nil {
		return nil, err
	}

	workerID := workerID()
	ingestor := qsql.NewIngestor(queueDB)
	claimer := qsql.NewClaimer(queueDB, workerID, cfg.Scheduler.MaxAttempts)
	observer := qsql.NewObserver(queueDB)
	archive := qsql.NewArchive(queueDB, ingestor)
	retention := qsql.NewRetention(queueDB)
	stats := qsql.NewStats(queueDB)
	webhookStore := wsql.NewStore(webhookDB)

	var ingest queue.Ingestor = ingestor
	ingest = queue.NewValidatingIngestor(ingest)
	ingest = queue.NewSingleflightIngestor(ingest)

	var redisClient *redis.Client
	if cfg.IdemCache.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.IdemCache.Addr})
		cache := idemcache.NewRedisCache(redisClient)
		ingest = idemcache.NewCachedIngestor(ingest, observer, cache, cfg.IdemCache.TTL())
	}

	registry := queue.NewHandlerRegistry()
	register(registry)

	scheduler := queue.NewScheduler(claimer, registry, cfg.Scheduler.ToSchedulerConfig(), log)
	stallRecoverer := queue.NewStallRecoverer(claimer, time.Duration(cfg.Scheduler.StallCheckMs)*time.Millisecond, log)
	statsWorker := queue.NewStatsWorker(stats, time.Duration(cfg.Scheduler.StatsIntervalMs)*time.Millisecond, log)
	completedRetention := queue.NewRetentionWorker(retention, &queue.RetentionConfig{
		Status:   job.Completed,
		Interval: time.Duration(cfg.Scheduler.RetentionMs) * time.Millisecond,
		Before:   true,
		Delta:    time.Duration(cfg.Scheduler.RetentionMs) * time.Millisecond,
	}, log)
	cancelledRetention := queue.NewRetentionWorker(retention, &queue.RetentionConfig{
		Status:   job.Cancelled,
		Interval: time.Duration(cfg.Scheduler.RetentionMs) * time.Millisecond,
		Before:   true,
		Delta:    time.Duration(cfg.Scheduler.RetentionMs) * time.Millisecond,
	}, log)

	dispatcher := webhook.NewDispatcher(webhookStore, &webhook.DispatcherConfig{
		Concurrency:        cfg.Webhook.Concurrency,
		MaxAttempts:        cfg.Webhook.MaxAttempts,
		RequestTimeout:     time.Duration(cfg.Webhook.DeliveryTimeoutMs) * time.Millisecond,
		BreakerMaxFailures: cfg.Webhook.BreakerMaxFailures,
	}, log)

	app := &App{
		Ingest:       ingest,
		Observer:     observer,
		Archive:      archive,
		Stats:        stats,
		WebhookStore: webhookStore,
		Dispatcher:   dispatcher,
		queueDB:      queueDB,
		webhookDB:    webhookDB,
		redis:        redisClient,
		components: []lifecycle{
			{"scheduler", scheduler.Start, scheduler.Stop},
			{"stall-recoverer", stallRecoverer.Start, stallRecoverer.Stop},
			{"stats-worker", statsWorker.Start, statsWorker.Stop},
			{"completed-retention-worker", completedRetention.Start, completedRetention.Stop},
			{"cancelled-retention-worker", cancelledRetention.Start, cancelledRetention.Stop},
			{"webhook-dispatcher", dispatcher.Start, dispatcher.Stop},
		},
	}
	return app, nil
}

// Start launches every background component, in order.
func (a *App) Start(ctx context.Context, log *slog.Logger) error {
	for _, c := range a.components {
		if err := c.start(ctx); err != nil {
			return err
		}
		log.Info("component started", "component", c.name)
	}
	return nil
}

// Stop gracefully shuts down every background component in reverse
// start order, then closes the underlying database handles.
func (a *App) Stop(log *slog.Logger, timeout time.Duration) {
	for i := len(a.components) - 1; i >= 0; i-- {
		c := a.components[i]
		if err := c.stop(timeout); err != nil {
			log.Error("component failed to stop cleanly", "component", c.name, "err", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.webhookDB != a.queueDB {
		a.webhookDB.Close()
	}
	a.queueDB.Close()
}

// workerID identifies this process for crash-recovery self-reclaim
// (StallRecoverer.Start). It falls back to a fresh uuid if the
// hostname is unavailable, which only costs this instance its
// self-reclaim on the next restart, not correctness.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.New().String()
	}
	return host
}

func openDB(path string) (*bun.DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}
