package domain

import "time"

// FactKind identifies a concrete fact variant. It travels in message headers
// and in the outbox so the payload can be decoded again.
type FactKind string

const KindEventCreated FactKind = "EventCreated"

// Payload is the closed set of fact variants. Only this package can add one.
type Payload interface {
	Kind() FactKind
	// Name is the logical name, used as routing key.
	Name() string
	sealed()
}

// Fact is an immutable record that an aggregate reached a state.
type Fact struct {
	ID          string
	AggregateID string
	OccurredOn  time.Time
	Payload     Payload
}

func (f Fact) Kind() FactKind { return f.Payload.Kind() }
func (f Fact) Name() string    { return f.Payload.Name() }

// EventCreated snapshots an Event at creation. Dates are RFC3339 strings and
// prices are minor units.
type EventCreated struct {
	EventID            int64          `json:"event_id"`
	BaseEventID        int64          `json:"base_event_id"`
	SellMode           string         `json:"sell_mode"`
	Title              string         `json:"title"`
	OrganizerCompanyID *int64         `json:"organizer_company_id"`
	EventStartDate     string         `json:"event_start_date"`
	EventEndDate       string         `json:"event_end_date"`
	SellFrom           string         `json:"sell_from"`
	SellTo             string         `json:"sell_to"`
	SoldOut            bool           `json:"sold_out"`
	Zones              []ZoneSnapshot `json:"zones"`
}

type ZoneSnapshot struct {
	ZoneID   int64  `json:"zone_id"`
	Capacity int64  `json:"capacity"`
	Price    int64  `json:"price"`
	Name     string `json:"name"`
	Numbered bool   `json:"numbered"`
}

func (EventCreated) Kind() FactKind { return KindEventCreated }
func (EventCreated) Name() string    { return "ingestor.event.created" }
func (EventCreated) sealed()         {}
