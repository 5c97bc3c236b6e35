package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/richardliu001/event-ingestor/internal/clock"
	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/config"
	"github.com/richardliu001/event-ingestor/internal/ingest"
	"github.com/richardliu001/event-ingestor/internal/logger"
	"github.com/richardliu001/event-ingestor/internal/model"
	"github.com/richardliu001/event-ingestor/internal/relay"
	"github.com/richardliu001/event-ingestor/internal/repo"
	httptransport "github.com/richardliu001/event-ingestor/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer, topic comes from each message
	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer kw.Close()

	// 6. repo, ingestion & relay
	repository := repo.NewRepository(gdb, rdb, kw, log)
	c := codec.New()
	store := ingest.NewEventStore(repository, c, log)
	svc := ingest.NewService(ingest.NewFactory(clock.NewSystem()), store, cfg.Feed, log)
	rel := relay.New(repository, repository, c, cfg.Relay, log)

	// 7. gin router
	router := httptransport.NewRouter(svc, rel, repository, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("event-ingestor listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
