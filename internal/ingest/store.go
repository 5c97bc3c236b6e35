package ingest

import (
	"context"
	"fmt"

	"github.com/richardliu001/event-ingestor/internal/codec"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/richardliu001/event-ingestor/internal/model"
	"github.com/richardliu001/event-ingestor/internal/repo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PersistError is a rolled back save. It unwraps to the cause.
type PersistError struct {
	EventID     int64
	BaseEventID int64
	Err         error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save event %d-%d: %v", e.EventID, e.BaseEventID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// EventStore writes an event, its zones and its facts atomically.
type EventStore struct {
	repo  repo.RepositoryInterface
	codec *codec.Codec
	log   *zap.SugaredLogger
}

func NewEventStore(r repo.RepositoryInterface, c *codec.Codec, logger *zap.SugaredLogger) *EventStore {
	return &EventStore{repo: r, codec: c, log: logger}
}

// Save upserts the event, replaces its zones and appends one outbox row per
// fact in a single transaction. Any failure rolls the whole save back.
func (s *EventStore) Save(ctx context.Context, e *domain.Event, facts []domain.Fact) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertEvent(ctx, tx, eventRow(e)); err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}
		if err := s.repo.ReplaceZones(ctx, tx, e.ID(), e.BaseEventID(), zoneRows(e)); err != nil {
			return err
		}
		for _, f := range facts {
			row, err := s.outboxRow(f)
			if err != nil {
				return err
			}
			if err := s.repo.CreateOutboxRow(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("save event failed",
			"event_id", e.ID(), "base_event_id", e.BaseEventID(), "error", err)
		return &PersistError{EventID: e.ID(), BaseEventID: e.BaseEventID(), Err: err}
	}
	return nil
}

func (s *EventStore) outboxRow(f domain.Fact) (*model.OutboxRow, error) {
	payload, err := s.codec.MarshalPayload(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode fact %s: %w", f.ID, err)
	}
	return &model.OutboxRow{
		FactID:      f.ID,
		FactName:    f.Name(),
		FactKind:    string(f.Kind()),
		AggregateID: f.AggregateID,
		Payload:     datatypes.JSON(payload),
		OccurredOn:  f.OccurredOn,
	}, nil
}

func eventRow(e *domain.Event) *model.Event {
	return &model.Event{
		EventID:            e.ID(),
		BaseEventID:        e.BaseEventID(),
		SellMode:           string(e.SellMode()),
		Title:              e.Title(),
		OrganizerCompanyID: e.OrganizerCompanyID(),
		EventStartDate:     e.EventPeriod().Start(),
		EventEndDate:       e.EventPeriod().End(),
		SellFrom:           e.SellPeriod().Start(),
		SellTo:             e.SellPeriod().End(),
		SoldOut:            e.SoldOut(),
	}
}

// zoneRows keeps feed order so read-back by id is deterministic.
func zoneRows(e *domain.Event) []model.EventZone {
	zones := e.Zones()
	rows := make([]model.EventZone, 0, len(zones))
	for _, z := range zones {
		rows = append(rows, model.EventZone{
			EventID:     e.ID(),
			BaseEventID: e.BaseEventID(),
			ZoneID:      z.ID(),
			ZoneName:    z.Name(),
			Capacity:    z.Capacity(),
			Price:       z.Price(),
			IsNumbered:  z.Numbered(),
		})
	}
	return rows
}
