package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/logger"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes attendance events and maintains the live per-session tally.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl := logger.New(cfg.IsProduction()).Named("worker")
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		zl.Fatal("worker needs queue_backend=redis; the memory queue is drained inside the api process")
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		zl.Fatal("redis config", zap.Error(err))
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		zl.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, zl)
	tally := attendance.NewTally(redisClient.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		zl.Fatal("queue consume init failed", zap.Error(err))
	}

	zl.Info("worker started, waiting for messages")
	for msg := range messages {
		if err := tally.Handle(ctx, msg); err != nil {
			metrics.EventsConsumedTotal.WithLabelValues(msg.Type, "failed").Inc()
			zl.Warn("handle event", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		metrics.EventsConsumedTotal.WithLabelValues(msg.Type, "ok").Inc()
		zl.Debug("event handled", zap.String("type", msg.Type))
	}
	zl.Info("worker stopped")
}
