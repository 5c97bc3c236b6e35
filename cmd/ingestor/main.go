package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/event-ingestor/internal/clock"
	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/config"
	"github.com/richardliu001/event-ingestor/internal/feed"
	"github.com/richardliu001/event-ingestor/internal/ingest"
	"github.com/richardliu001/event-ingestor/internal/logger"
	"github.com/richardliu001/event-ingestor/internal/model"
	"github.com/richardliu001/event-ingestor/internal/repo"
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

	// 4. ingestion; the store never touches redis or kafka
	repository := repo.NewRepository(gdb, nil, nil, log)
	store := ingest.NewEventStore(repository, codec.New(), log)
	svc := ingest.NewService(ingest.NewFactory(clock.NewSystem()), store, cfg.Feed, log)
	client := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. pull every endpoint; one failing endpoint does not stop the others
	failed := 0
	for _, ep := range cfg.Feed.Endpoints {
		rep, err := ingestEndpoint(ctx, client, svc, ep)
		if err != nil {
			failed++
			log.Errorw("endpoint failed", "endpoint", ep, "error", err)
		}
		fmt.Printf("%s: records=%d batches=%d accepted=%d rejected=%d failed=%d\n",
			ep, rep.TotalRecords, rep.TotalBatches, rep.Accepted, rep.Rejected, rep.Failed)
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		log.Sync()
		os.Exit(1)
	}
}

func ingestEndpoint(ctx context.Context, client *feed.Client, svc *ingest.Service, endpoint string) (ingest.Report, error) {
	body, err := client.Fetch(ctx, endpoint)
	if err != nil {
		return ingest.Report{}, err
	}
	defer body.Close()
	return svc.Run(ctx, body)
}
