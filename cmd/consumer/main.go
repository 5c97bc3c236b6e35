package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/config"
	"github.com/richardliu001/event-ingestor/internal/consumer"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/richardliu001/event-ingestor/internal/logger"
	"github.com/richardliu001/event-ingestor/internal/repo"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	kr := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		GroupTopics: cfg.Kafka.Topics,
	})
	defer kr.Close()

	// consumer only needs the dedupe side of the repository
	seen := repo.NewRepository(nil, rdb, nil, log)
	d := consumer.NewDispatcher(codec.New(), seen, cfg.Consumer.DedupeTTL, log)
	d.Register(domain.KindEventCreated, consumer.CatalogLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("consumer started", "group_id", cfg.Kafka.GroupID, "topics", cfg.Kafka.Topics)
	if err := d.Run(ctx, kr); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("consumer: %v", err)
		log.Sync()
		os.Exit(1)
	}
}
