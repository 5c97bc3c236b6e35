// Package consumer is the downstream side of the outbox: it decodes facts
// from Kafka and hands them to the handlers registered for their kind.
// Delivery is at least once, so facts are deduplicated on their id.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformed marks a message that can never be decoded.
var ErrMalformed = errors.New("malformed message")

// Handler reacts to one fact.
type Handler func(ctx context.Context, f domain.Fact) error

// SeenStore remembers handled fact ids. MarkFactSeen reports false for an
// id already recorded.
type SeenStore interface {
	FactSeen(ctx context.Context, factID string) (bool, error)
	MarkFactSeen(ctx context.Context, factID string, ttl time.Duration) (bool, error)
}

// MessageReader is the part of *kafka.Reader the dispatcher needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	codec    *codec.Codec
	seen     SeenStore
	ttl      time.Duration
	handlers map[domain.FactKind][]Handler
	log      *zap.SugaredLogger
}

// NewDispatcher returns a Dispatcher with no handlers. A nil SeenStore
// disables deduplication.
func NewDispatcher(c *codec.Codec, seen SeenStore, ttl time.Duration, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		codec:    c,
		seen:     seen,
		ttl:      ttl,
		handlers: make(map[domain.FactKind][]Handler),
		log:      logger,
	}
}

// Register adds h for kind. Handlers run in registration order.
func (d *Dispatcher) Register(kind domain.FactKind, h Handler) {
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Handle decodes msg and runs its handlers unless the fact was already
// handled. The fact id is recorded only after every handler succeeded, so a
// crash or a handler error leaves it eligible for redelivery. Handlers must
// therefore tolerate being run again for the same fact.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	fact, err := d.codec.Decode(msg.Value, Headers(msg))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	hs := d.handlers[fact.Kind()]
	if len(hs) == 0 {
		d.log.Debugw("no handler for fact", "fact_id", fact.ID, "kind", fact.Kind())
		return nil
	}

	if d.seen != nil {
		seen, err := d.seen.FactSeen(ctx, fact.ID)
		if err != nil {
			return fmt.Errorf("dedupe fact %s: %w", fact.ID, err)
		}
		if seen {
			d.log.Infow("duplicate fact skipped", "fact_id", fact.ID, "aggregate_id", fact.AggregateID)
			return nil
		}
	}

	for _, h := range hs {
		if err := h(ctx, fact); err != nil {
			return fmt.Errorf("handle fact %s: %w", fact.ID, err)
		}
	}

	if d.seen != nil {
		if _, err := d.seen.MarkFactSeen(ctx, fact.ID, d.ttl); err != nil {
			return fmt.Errorf("record fact %s: %w", fact.ID, err)
		}
	}
	return nil
}

// Run fetches, handles and commits until ctx is done or a handler fails.
// Malformed messages are logged and committed. On a handler failure the
// offset is left uncommitted so the fact is redelivered after restart.
func (d *Dispatcher) Run(ctx context.Context, r MessageReader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := d.Handle(ctx, msg); err != nil {
			if !errors.Is(err, ErrMalformed) {
				d.log.Errorw("handle message failed",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
				return err
			}
			d.log.Warnw("dropping malformed message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Headers flattens kafka headers; the last value of a repeated key wins.
func Headers(msg kafka.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
