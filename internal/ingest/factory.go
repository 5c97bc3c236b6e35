// Package ingest turns raw feed records into persisted events and outbox
// facts.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/richardliu001/event-ingestor/internal/clock"
	"github.com/richardliu001/event-ingestor/internal/domain"
	"github.com/richardliu001/event-ingestor/internal/feed"
	"github.com/shopspring/decimal"
)

// Required fields in the order they are checked.
var (
	requiredBaseFields  = []string{"base_event_id", "sell_mode", "title"}
	requiredEventFields = []string{"event_id", "event_start_date", "event_end_date", "sell_from", "sell_to"}
	requiredZoneFields  = []string{"zone_id", "name"}
)

// Feed timestamps carry no zone and are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var hundred = decimal.NewFromInt(100)

// Factory validates raw records and builds Event aggregates.
type Factory struct {
	clock clock.Clock
}

func NewFactory(c clock.Clock) *Factory {
	return &Factory{clock: c}
}

// FromRecord returns the aggregate and the facts its creation emits, or a
// domain.ValidationError.
func (f *Factory) FromRecord(rec feed.RawEventRecord) (*domain.Event, []domain.Fact, error) {
	if err := requirePresent(rec.Base, requiredBaseFields); err != nil {
		return nil, nil, err
	}
	if err := requirePresent(rec.Event, requiredEventFields); err != nil {
		return nil, nil, err
	}

	baseID, err := parseInt("base_event_id", rec.Base["base_event_id"])
	if err != nil {
		return nil, nil, err
	}
	eventID, err := parseInt("event_id", rec.Event["event_id"])
	if err != nil {
		return nil, nil, err
	}
	mode, err := domain.ParseSellMode(strings.TrimSpace(rec.Base["sell_mode"]))
	if err != nil {
		return nil, nil, err
	}
	var organizer *int64
	if v := strings.TrimSpace(rec.Base["organizer_company_id"]); v != "" {
		id, err := parseInt("organizer_company_id", v)
		if err != nil {
			return nil, nil, err
		}
		organizer = &id
	}

	dates := make(map[string]time.Time, 4)
	for _, field := range requiredEventFields[1:] {
		t, err := parseDate(field, rec.Event[field])
		if err != nil {
			return nil, nil, err
		}
		dates[field] = t
	}
	eventPeriod, err := domain.NewEventPeriod(dates["event_start_date"], dates["event_end_date"])
	if err != nil {
		return nil, nil, err
	}
	sellPeriod, err := domain.NewSellPeriod(dates["sell_from"], dates["sell_to"])
	if err != nil {
		return nil, nil, err
	}

	zones := make([]domain.Zone, 0, len(rec.Zones))
	for _, raw := range rec.Zones {
		z, err := parseZone(raw)
		if err != nil {
			return nil, nil, err
		}
		zones = append(zones, z)
	}

	return domain.NewEvent(domain.EventAttrs{
		ID:                 eventID,
		BaseEventID:        baseID,
		SellMode:           mode,
		Title:              rec.Base["title"],
		OrganizerCompanyID: organizer,
		EventPeriod:        eventPeriod,
		SellPeriod:         sellPeriod,
		SoldOut:            parseBool(rec.Event["sold_out"]),
		Zones:              zones,
	}, f.clock.Now())
}

func parseZone(raw feed.Fields) (domain.Zone, error) {
	if err := requirePresent(raw, requiredZoneFields); err != nil {
		return domain.Zone{}, err
	}
	id, err := parseInt("zone_id", raw["zone_id"])
	if err != nil {
		return domain.Zone{}, err
	}
	var capacity int64
	if v, ok := raw.Lookup("capacity"); ok && strings.TrimSpace(v) != "" {
		if capacity, err = parseInt("capacity", v); err != nil {
			return domain.Zone{}, err
		}
	}
	var price int64
	if v, ok := raw.Lookup("price"); ok && strings.TrimSpace(v) != "" {
		if price, err = MinorUnits(v); err != nil {
			return domain.Zone{}, err
		}
	}
	return domain.NewZone(id, capacity, price, raw["name"], parseBool(raw["numbered"]))
}

// MinorUnits converts a decimal price string to cents, truncating any
// fraction below one cent. Amounts that do not fit in int64 cents are
// rejected.
func MinorUnits(price string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return 0, &domain.InvalidNumberError{Field: "price", Value: price}
	}
	cents := d.Mul(hundred).Truncate(0)
	if !cents.BigInt().IsInt64() {
		return 0, &domain.InvalidNumberError{Field: "price", Value: price}
	}
	return cents.IntPart(), nil
}

func requirePresent(fields feed.Fields, names []string) error {
	for _, name := range names {
		if _, ok := fields.Lookup(name); !ok {
			return &domain.FieldMissingError{Field: name}
		}
	}
	return nil
}

func parseInt(field, v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &domain.InvalidNumberError{Field: field, Value: v}
	}
	return n, nil
}

func parseDate(field, v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &domain.InvalidDateFormatError{Field: field, Value: v}
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
