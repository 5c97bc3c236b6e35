package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richardliu001/event-ingestor/internal/clock"
	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateFact is returned when an outbox row with the same fact id
// already exists. It points at a replayed fact and is never swallowed.
var ErrDuplicateFact = errors.New("duplicate fact id in outbox")

// Writer is the part of *kafka.Writer the repository needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RepositoryInterface restricts Repo methods (handy for mocks in unit tests)
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	UpsertEvent(ctx context.Context, tx *gorm.DB, row *model.Event) error
	ReplaceZones(ctx context.Context, tx *gorm.DB, eventID, baseEventID int64, zones []model.EventZone) error
	CreateOutboxRow(ctx context.Context, tx *gorm.DB, row *model.OutboxRow) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxRow, error)
	MarkOutboxPublished(ctx context.Context, id uint64) error
	CountPending(ctx context.Context) (int64, error)
	PublishFact(ctx context.Context, topic, key string, msg codec.Message) error
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
	FactSeen(ctx context.Context, factID string) (bool, error)
	MarkFactSeen(ctx context.Context, factID string, ttl time.Duration) (bool, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer Writer
	clock  clock.Clock
	log    *zap.SugaredLogger
}

// Option tweaks a Repository at construction.
type Option func(*Repository)

// WithClock sets the clock used for published_at and message timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Repository) { r.clock = c }
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w Writer, logger *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{db: db, rdb: rdb, writer: w, clock: clock.NewSystem(), log: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

var eventMutableColumns = []string{
	"sell_mode", "title", "organizer_company_id",
	"event_start_date", "event_end_date", "sell_from", "sell_to",
	"sold_out", "updated_at",
}

// UpsertEvent inserts the event or overwrites every mutable column.
func (r *Repository) UpsertEvent(ctx context.Context, tx *gorm.DB, row *model.Event) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "base_event_id"}},
			DoUpdates: clause.AssignmentColumns(eventMutableColumns),
		}).
		Create(row).Error
}

// ReplaceZones deletes the event's zones and inserts zones in order.
func (r *Repository) ReplaceZones(ctx context.Context, tx *gorm.DB, eventID, baseEventID int64, zones []model.EventZone) error {
	if err := tx.WithContext(ctx).
		Where("event_id = ? AND base_event_id = ?", eventID, baseEventID).
		Delete(&model.EventZone{}).Error; err != nil {
		return fmt.Errorf("delete zones: %w", err)
	}
	if len(zones) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&zones).Error; err != nil {
		return fmt.Errorf("insert zones: %w", err)
	}
	return nil
}

// CreateOutboxRow writes a fact. A duplicate fact id yields ErrDuplicateFact.
func (r *Repository) CreateOutboxRow(ctx context.Context, tx *gorm.DB, row *model.OutboxRow) error {
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert outbox fact %s: %w", row.FactID, ErrDuplicateFact)
		}
		return fmt.Errorf("insert outbox fact %s: %w", row.FactID, err)
	}
	return nil
}

// PollOutbox pulls pending rows in insertion order.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxRow, error) {
	var rows []model.OutboxRow
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkOutboxPublished sets published_at on a still-pending row.
func (r *Repository) MarkOutboxPublished(ctx context.Context, id uint64) error {
	now := r.clock.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.OutboxRow{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", &now).Error
}

// CountPending counts unpublished rows.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxRow{}).Where("published_at IS NULL").Count(&n).Error
	return n, err
}

// PublishFact sends an encoded fact to Kafka. The topic is the fact name and
// the key the aggregate id, so one aggregate's facts share a partition.
func (r *Repository) PublishFact(ctx context.Context, topic, key string, msg codec.Message) error {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for _, k := range []string{codec.HeaderType, codec.HeaderEventName, codec.HeaderContentType} {
		if v, ok := msg.Headers[k]; ok {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return r.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   msg.Body,
		Headers: headers,
		Time:    r.clock.Now(),
	})
}

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// AcquireLock takes a redis lease on key for owner.
func (r *Repository) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock drops the lease only if owner still holds it.
func (r *Repository) ReleaseLock(ctx context.Context, key, owner string) error {
	return r.rdb.Eval(ctx, releaseScript, []string{key}, owner).Err()
}

// FactSeen reports whether a fact id was recorded as handled.
func (r *Repository) FactSeen(ctx context.Context, factID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, seenKey(factID)).Result()
	return n > 0, err
}

// MarkFactSeen records a handled fact id. It reports false when the id was
// already recorded.
func (r *Repository) MarkFactSeen(ctx context.Context, factID string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, seenKey(factID), 1, ttl).Result()
}

func seenKey(factID string) string { return "fact:seen:" + factID }

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
