// Package relay moves pending outbox rows to the broker. Delivery is at
// least once: a crash between publish and mark publishes the row again on
// the next run.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/config"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/richardliu001/event-ingestor/internal/model"
	"go.uber.org/zap"
)

// LockKey is the redis key guarding single-instance runs.
const LockKey = "outbox:relay:lock"

// ErrLockHeld means another relay instance is running.
var ErrLockHeld = errors.New("relay lock held by another instance")

// Outbox is the storage and broker side the relay drives.
type Outbox interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxRow, error)
	MarkOutboxPublished(ctx context.Context, id uint64) error
	PublishFact(ctx context.Context, topic, key string, msg codec.Message) error
}

// Locker is optional. Without it the caller guarantees a single instance.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Stats counts one run. Failed rows stay pending.
type Stats struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

type Relay struct {
	outbox Outbox
	locker Locker
	codec  *codec.Codec
	cfg    config.RelayConfig
	log    *zap.SugaredLogger
}

func New(o Outbox, l Locker, c *codec.Codec, cfg config.RelayConfig, logger *zap.SugaredLogger) *Relay {
	return &Relay{outbox: o, locker: l, codec: c, cfg: cfg, log: logger}
}

// RunOnce publishes up to BatchSize pending rows in insertion order. Only a
// failure to take the lock or to poll is returned; per-row failures are
// counted and the run goes on.
func (r *Relay) RunOnce(ctx context.Context) (Stats, error) {
	return r.run(ctx, r.cfg.BatchSize)
}

// RunBatch is RunOnce with an explicit batch size.
func (r *Relay) RunBatch(ctx context.Context, batch int) (Stats, error) {
	if batch <= 0 {
		batch = r.cfg.BatchSize
	}
	return r.run(ctx, batch)
}

func (r *Relay) run(ctx context.Context, batch int) (Stats, error) {
	var st Stats
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, LockKey, r.cfg.InstanceID, r.cfg.LockTTL)
		if err != nil {
			return st, fmt.Errorf("acquire relay lock: %w", err)
		}
		if !ok {
			return st, ErrLockHeld
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.Background(), LockKey, r.cfg.InstanceID); err != nil {
				r.log.Warnw("release relay lock", "error", err)
			}
		}()
	}

	rows, err := r.outbox.PollOutbox(ctx, batch)
	if err != nil {
		return st, fmt.Errorf("poll outbox: %w", err)
	}
	for _, row := range rows {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		if err := r.deliver(ctx, row); err != nil {
			st.Failed++
			r.log.Warnw("relay row failed",
				"outbox_id", row.ID, "fact_id", row.FactID, "fact_name", row.FactName, "error", err)
			continue
		}
		st.Published++
	}

	if st.Failed > 0 {
		r.log.Warnw("relay run finished with failures", "published", st.Published, "failed", st.Failed)
	} else if st.Published > 0 {
		r.log.Infow("relay run finished", "published", st.Published)
	}
	return st, nil
}

func (r *Relay) deliver(ctx context.Context, row model.OutboxRow) error {
	fact, err := r.factFromRow(row)
	if err != nil {
		return err
	}
	msg, err := r.codec.Encode(fact)
	if err != nil {
		return err
	}

	pctx := ctx
	if r.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
	}
	if err := r.outbox.PublishFact(pctx, fact.Name(), fact.AggregateID, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	// acked: a failure from here on re-publishes next run
	if err := r.outbox.MarkOutboxPublished(ctx, row.ID); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (r *Relay) factFromRow(row model.OutboxRow) (domain.Fact, error) {
	p, err := r.codec.UnmarshalPayload(domain.FactKind(row.FactKind), row.Payload)
	if err != nil {
		return domain.Fact{}, err
	}
	return domain.Fact{
		ID:          row.FactID,
		AggregateID: row.AggregateID,
		OccurredOn:  row.OccurredOn,
		Payload:     p,
	}, nil
}

// Run calls RunOnce every Interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Infow("relay started", "instance_id", r.cfg.InstanceID, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrLockHeld) {
					r.log.Debugw("relay skipped", "reason", err)
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Errorw("relay run failed", "error", err)
			}
		}
	}
}
