package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SellMode is how tickets for an event are sold.
type SellMode string

const (
	SellModeOnline  SellMode = "online"
	SellModeOffline SellMode = "offline"
)

func ParseSellMode(s string) (SellMode, error) {
	switch SellMode(s) {
	case SellModeOnline, SellModeOffline:
		return SellMode(s), nil
	}
	return "", &InvalidSellModeError{Value: s}
}

// Period is a closed [Start, End] interval; End may equal Start.
type Period struct {
	start time.Time
	end   time.Time
}

func newPeriod(kind string, start, end time.Time) (Period, error) {
	if end.Before(start) {
		return Period{}, &InvalidPeriodError{Period: kind, Start: start, End: end}
	}
	return Period{start: start, end: end}, nil
}

// NewEventPeriod validates startDate <= endDate.
func NewEventPeriod(start, end time.Time) (Period, error) {
	return newPeriod(PeriodEvent, start, end)
}

// NewSellPeriod validates sellFrom <= sellTo.
func NewSellPeriod(from, to time.Time) (Period, error) {
	return newPeriod(PeriodSell, from, to)
}

func (p Period) Start() time.Time { return p.start }
func (p Period) End() time.Time   { return p.end }

// Zone is a priced area of an event. Its id is only unique inside the event.
type Zone struct {
	id       int64
	capacity int64
	price    int64
	name     string
	numbered bool
}

// NewZone validates a zone. Price is in minor currency units.
func NewZone(id, capacity, price int64, name string, numbered bool) (Zone, error) {
	if err := nonNegative("zone_id", id); err != nil {
		return Zone{}, err
	}
	if err := nonNegative("capacity", capacity); err != nil {
		return Zone{}, err
	}
	if err := nonNegative("price", price); err != nil {
		return Zone{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Zone{}, ErrEmptyZoneName
	}
	return Zone{id: id, capacity: capacity, price: price, name: name, numbered: numbered}, nil
}

func (z Zone) ID() int64       { return z.id }
func (z Zone) Capacity() int64 { return z.capacity }
func (z Zone) Price() int64    { return z.price }
func (z Zone) Name() string    { return z.name }
func (z Zone) Numbered() bool  { return z.numbered }

// DuplicateZoneError is returned when two zones of one event share an id.
type DuplicateZoneError struct {
	ZoneID int64
}

func (e *DuplicateZoneError) Error() string {
	return fmt.Sprintf("zone %d appears more than once", e.ZoneID)
}
func (e *DuplicateZoneError) Code() string { return "duplicate_zone" }

// EventAttrs is the validated input for NewEvent.
type EventAttrs struct {
	ID                 int64
	BaseEventID        int64
	SellMode           SellMode
	Title              string
	OrganizerCompanyID *int64
	EventPeriod        Period
	SellPeriod         Period
	SoldOut            bool
	Zones              []Zone
}

// Event is the aggregate root, identified by (id, baseEventID).
type Event struct {
	id                 int64
	baseEventID        int64
	sellMode           SellMode
	title              string
	organizerCompanyID *int64
	eventPeriod        Period
	sellPeriod         Period
	soldOut            bool
	zones              []Zone
}

// NewEvent creates the aggregate together with the facts its creation
// emits. There is no pending-facts buffer on the aggregate: callers persist
// the returned facts alongside it.
func NewEvent(a EventAttrs, occurredOn time.Time) (*Event, []Fact, error) {
	if err := nonNegative("event_id", a.ID); err != nil {
		return nil, nil, err
	}
	if err := nonNegative("base_event_id", a.BaseEventID); err != nil {
		return nil, nil, err
	}
	if _, err := ParseSellMode(string(a.SellMode)); err != nil {
		return nil, nil, err
	}
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return nil, nil, ErrEmptyTitle
	}
	var organizer *int64
	if a.OrganizerCompanyID != nil {
		if err := nonNegative("organizer_company_id", *a.OrganizerCompanyID); err != nil {
			return nil, nil, err
		}
		v := *a.OrganizerCompanyID
		organizer = &v
	}
	// periods and zones may be zero values built outside their constructors
	if err := checkPeriod(a.EventPeriod, "event_start_date", "event_end_date", NewEventPeriod); err != nil {
		return nil, nil, err
	}
	if err := checkPeriod(a.SellPeriod, "sell_from", "sell_to", NewSellPeriod); err != nil {
		return nil, nil, err
	}
	seen := make(map[int64]struct{}, len(a.Zones))
	zones := make([]Zone, 0, len(a.Zones))
	for _, raw := range a.Zones {
		z, err := NewZone(raw.id, raw.capacity, raw.price, raw.name, raw.numbered)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[z.id]; dup {
			return nil, nil, &DuplicateZoneError{ZoneID: z.id}
		}
		seen[z.id] = struct{}{}
		zones = append(zones, z)
	}

	e := &Event{
		id:                 a.ID,
		baseEventID:        a.BaseEventID,
		sellMode:           a.SellMode,
		title:              title,
		organizerCompanyID: organizer,
		eventPeriod:        a.EventPeriod,
		sellPeriod:         a.SellPeriod,
		soldOut:            a.SoldOut,
		zones:              zones,
	}
	created := Fact{
		ID:          uuid.NewString(),
		AggregateID: e.AggregateID(),
		OccurredOn:  occurredOn.UTC(),
		Payload:     e.snapshot(),
	}
	return e, []Fact{created}, nil
}

func checkPeriod(p Period, startField, endField string, build func(start, end time.Time) (Period, error)) error {
	if p.start.IsZero() {
		return &FieldMissingError{Field: startField}
	}
	if p.end.IsZero() {
		return &FieldMissingError{Field: endField}
	}
	_, err := build(p.start, p.end)
	return err
}

// Getters
func (e *Event) ID() int64                  { return e.id }
func (e *Event) BaseEventID() int64         { return e.baseEventID }
func (e *Event) SellMode() SellMode         { return e.sellMode }
func (e *Event) Title() string              { return e.title }
func (e *Event) EventPeriod() Period        { return e.eventPeriod }
func (e *Event) SellPeriod() Period         { return e.sellPeriod }
func (e *Event) SoldOut() bool              { return e.soldOut }
func (e *Event) AggregateID() string        { return AggregateID(e.id, e.baseEventID) }
func (e *Event) OrganizerCompanyID() *int64 {
	if e.organizerCompanyID == nil {
		return nil
	}
	v := *e.organizerCompanyID
	return &v
}

// Zones returns a copy in feed order.
func (e *Event) Zones() []Zone {
	out := make([]Zone, len(e.zones))
	copy(out, e.zones)
	return out
}

// AggregateID formats the composite identity as "<eventId>-<baseEventId>".
func AggregateID(eventID, baseEventID int64) string {
	return fmt.Sprintf("%d-%d", eventID, baseEventID)
}

func (e *Event) snapshot() EventCreated {
	zones := make([]ZoneSnapshot, 0, len(e.zones))
	for _, z := range e.zones {
		zones = append(zones, ZoneSnapshot{
			ZoneID:   z.id,
			Capacity: z.capacity,
			Price:    z.price,
			Name:     z.name,
			Numbered: z.numbered,
		})
	}
	return EventCreated{
		EventID:            e.id,
		BaseEventID:        e.baseEventID,
		SellMode:           string(e.sellMode),
		Title:              e.title,
		OrganizerCompanyID: e.OrganizerCompanyID(),
		EventStartDate:     formatTime(e.eventPeriod.start),
		EventEndDate:       formatTime(e.eventPeriod.end),
		SellFrom:           formatTime(e.sellPeriod.start),
		SellTo:             formatTime(e.sellPeriod.end),
		SoldOut:            e.soldOut,
		Zones:              zones,
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func nonNegative(field string, v int64) error {
	if v < 0 {
		return &NegativeNumberError{Field: field, Value: v}
	}
	return nil
}
