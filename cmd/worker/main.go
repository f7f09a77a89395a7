package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"trust-pipeline/internal/ai"
	"trust-pipeline/internal/config"
	"trust-pipeline/internal/fraud"
	"trust-pipeline/internal/giftcard"
	"trust-pipeline/internal/mailer"
	"trust-pipeline/internal/models"
	"trust-pipeline/internal/objectstore"
	"trust-pipeline/internal/queue"
	"trust-pipeline/internal/ratelimit"
	"trust-pipeline/internal/similarity"
	"trust-pipeline/internal/store"
	"trust-pipeline/internal/telemetry"
	workerproc "trust-pipeline/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.New(st.Pool(), cfg.MaxAttempts, cfg.RetryBackoff)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	aiLimiter := ratelimit.ForService(redisClient, "ai", cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	mailLimiter := ratelimit.ForService(redisClient, "mailer", cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	objects, err := objectstore.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init object store: %v", err)
	}

	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITimeout)
	mailClient := mailer.NewClient(cfg.MailerBaseURL, cfg.MailerAPIKey)
	vendor := giftcard.NewClient(cfg.GiftVendorURL, cfg.GiftVendorAPIKey)

	index := similarity.New(st, cfg.SimilarityMaxDistance)
	engine := fraud.NewEngine(st, fraud.NewCollector(st, index))

	runner := workerproc.NewRunner(q, cfg.HandlerTimeout)
	mustRegister(runner, models.JobHashDigest, workerproc.NewHashHandler(st, objects).Handle)
	mustRegister(runner, models.JobFraudCheck, workerproc.NewFraudHandler(engine).Handle)
	mustRegister(runner, models.JobScreenshotVerify, workerproc.NewVerifyHandler(st, objects, aiClient, aiLimiter, cfg.SignedURLTTL).Handle)
	mustRegister(runner, models.JobAIInsight, workerproc.NewInsightHandler(st, aiClient, aiLimiter).Handle)
	mustRegister(runner, models.JobSendEmail, workerproc.NewEmailHandler(mailClient, mailLimiter).Handle)
	mustRegister(runner, models.JobGiftExchange, workerproc.NewGiftHandler(st, vendor).Handle)
	mustRegister(runner, models.JobCatalogSync, workerproc.NewCatalogHandler(st, vendor).Handle)

	if err := runner.CheckRegistry(); err != nil {
		log.Fatalf("handler registry: %v", err)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started env=%s drain_interval=%s batch_size=%d", cfg.Env, cfg.DrainInterval, cfg.BatchSize)
	drain(ctx, cfg, runner, q)
	log.Printf("worker stopped")
}

func mustRegister(r *workerproc.Runner, jobType string, h workerproc.Handler) {
	if err := r.Register(jobType, h); err != nil {
		log.Fatalf("register %s: %v", jobType, err)
	}
}

// drain polls the queue until the context is cancelled. An empty claim just
// waits out the interval; claim errors are logged and retried on the next tick.
func drain(ctx context.Context, cfg config.Config, runner *workerproc.Runner, q *queue.Queue) {
	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()

	for {
		processed, failed, err := runner.RunBatch(ctx, cfg.BatchSize)
		if err != nil {
			log.Printf("run batch: %v", err)
		} else if processed > 0 {
			log.Printf("batch done processed=%d failed=%d", processed, failed)
		}

		if n, err := q.RequeueFailed(ctx); err != nil {
			log.Printf("requeue failed jobs: %v", err)
		} else if n > 0 {
			log.Printf("requeued %d failed jobs", n)
		}

		if stats, err := q.Stats(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(stats.Pending))
		}

		// Drain back to back while the queue is saturated.
		if err == nil && processed == cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
