package ingest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/richardliu001/event-ingestor/internal/config"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/richardliu001/event-ingestor/internal/feed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxReportedErrors bounds the per-record errors kept in a Report.
const maxReportedErrors = 100

// Saver persists an aggregate and its facts.
type Saver interface {
	Save(ctx context.Context, e *domain.Event, facts []domain.Fact) error
}

// RecordError describes one record that was not ingested.
type RecordError struct {
	Index       int    `json:"index"`
	EventID     string `json:"event_id"`
	BaseEventID string `json:"base_event_id"`
	Code        string `json:"code"`
	Message     string `json:"error"`
	Err         error  `json:"-"`
}

// BatchReport counts the outcome of one batch. Rejected records failed
// validation, Failed records failed to persist.
type BatchReport struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// Report is the outcome of a whole feed.
type Report struct {
	feed.Stats
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	Errors   []RecordError `json:"errors,omitempty"`
}

func (r *Report) add(b BatchReport) {
	r.Accepted += b.Accepted
	r.Rejected += b.Rejected
	r.Failed += b.Failed
	for _, e := range b.Errors {
		if len(r.Errors) >= maxReportedErrors {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

// Service runs records through the factory and the store.
type Service struct {
	factory   *Factory
	store     Saver
	log       *zap.SugaredLogger
	batchSize int
	workers   int
	failFast  bool
}

// NewService returns Service.
func NewService(f *Factory, store Saver, cfg config.FeedConfig, logger *zap.SugaredLogger) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		factory:   f,
		store:     store,
		log:       logger,
		batchSize: cfg.BatchSize,
		workers:   workers,
		failFast:  cfg.FailFast,
	}
}

// Ingest validates and saves one record. It returns a domain.ValidationError
// or a *PersistError.
func (s *Service) Ingest(ctx context.Context, rec feed.RawEventRecord) error {
	e, facts, err := s.factory.FromRecord(rec)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, e, facts)
}

// IngestBatch ingests every record, isolating failures per record. With
// FailFast it stops at the first failure and returns it.
func (s *Service) IngestBatch(ctx context.Context, batch []feed.RawEventRecord) (BatchReport, error) {
	var rep BatchReport
	for i, rec := range batch {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		err := s.Ingest(ctx, rec)
		if err == nil {
			rep.Accepted++
			continue
		}
		re := RecordError{
			Index:       i,
			EventID:     rec.Event["event_id"],
			BaseEventID: rec.Base["base_event_id"],
			Message:     err.Error(),
			Err:         err,
		}
		var ve domain.ValidationError
		if errors.As(err, &ve) {
			rep.Rejected++
			re.Code = ve.Code()
			s.log.Warnw("record rejected",
				"event_id", re.EventID, "base_event_id", re.BaseEventID, "code", re.Code, "error", err)
		} else {
			rep.Failed++
			re.Code = "persist_failed"
		}
		rep.Errors = append(rep.Errors, re)

		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if s.failFast {
			return rep, err
		}
	}
	return rep, nil
}

// Run streams a feed document through a pool of workers, one batch at a
// time per worker. A read error stops the feed but batches already handed
// out are still ingested; a worker error stops both.
func (s *Service) Run(ctx context.Context, r io.Reader) (Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []feed.RawEventRecord)

	var (
		mu     sync.Mutex
		report Report
	)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for b := range batches {
				br, err := s.IngestBatch(gctx, b)
				mu.Lock()
				report.add(br)
				mu.Unlock()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	stats, readErr := feed.Read(gctx, r, s.batchSize, func(b []feed.RawEventRecord) error {
		select {
		case batches <- b:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	close(batches)
	err := g.Wait()
	if err == nil {
		err = readErr
	}

	report.Stats = stats
	s.log.Infow("feed ingested",
		"records", stats.TotalRecords, "batches", stats.TotalBatches, "skipped_groups", stats.SkippedGroups,
		"accepted", report.Accepted, "rejected", report.Rejected, "failed", report.Failed)
	return report, err
}
