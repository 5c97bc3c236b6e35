// Package codec converts facts to and from the JSON envelope used on the
// broker, and their attributes to and from the outbox payload column.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/event-ingestor/internal/domain"
)

// Header keys set on every encoded message.
const (
	HeaderType        = "type"
	HeaderEventName   = "event_name"
	HeaderContentType = "Content-Type"
)

var (
	ErrUnknownKind   = errors.New("unknown fact kind")
	ErrMissingHeader = errors.New("missing type header")
)

// Envelope is the wire document: {"data": {...}}.
type Envelope struct {
	Data EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	OccurredOn  string          `json:"occurred_on"`
	AggregateID string          `json:"aggregate_id"`
	Attributes  json.RawMessage `json:"attributes"`
}

// Message is an encoded fact ready for any transport.
type Message struct {
	Body    []byte
	Headers map[string]string
}

// DecodeFunc rebuilds the payload of one fact kind from its attributes.
type DecodeFunc func(attributes []byte) (domain.Payload, error)

// Codec dispatches on fact kind through an explicit registry.
type Codec struct {
	decoders map[domain.FactKind]DecodeFunc
}

// New returns a codec that knows every fact kind of the domain.
func New() *Codec {
	c := &Codec{decoders: make(map[domain.FactKind]DecodeFunc)}
	c.Register(domain.KindEventCreated, func(raw []byte) (domain.Payload, error) {
		var p domain.EventCreated
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	})
	return c
}

// Register adds or replaces the decoder for kind.
func (c *Codec) Register(kind domain.FactKind, fn DecodeFunc) {
	c.decoders[kind] = fn
}

// MarshalPayload encodes the fact attributes, as stored in the outbox.
func (c *Codec) MarshalPayload(p domain.Payload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload decodes attributes stored for kind.
func (c *Codec) UnmarshalPayload(kind domain.FactKind, raw []byte) (domain.Payload, error) {
	fn, ok := c.decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	p, err := fn(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s attributes: %w", kind, err)
	}
	return p, nil
}

// Encode builds the broker message for f.
func (c *Codec) Encode(f domain.Fact) (Message, error) {
	if f.Payload == nil {
		return Message{}, errors.New("fact has no payload")
	}
	attrs, err := c.MarshalPayload(f.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode fact %s: %w", f.ID, err)
	}
	body, err := json.Marshal(Envelope{Data: EnvelopeData{
		ID:          f.ID,
		Type:        f.Name(),
		OccurredOn:  f.OccurredOn.UTC().Format(time.RFC3339Nano),
		AggregateID: f.AggregateID,
		Attributes:  attrs,
	}})
	if err != nil {
		return Message{}, fmt.Errorf("encode fact %s: %w", f.ID, err)
	}
	return Message{
		Body: body,
		Headers: map[string]string{
			HeaderType:        string(f.Kind()),
			HeaderEventName:   f.Name(),
			HeaderContentType: "application/json",
		},
	}, nil
}

// Decode rebuilds a fact from a message body and its headers.
func (c *Codec) Decode(body []byte, headers map[string]string) (domain.Fact, error) {
	kind := headers[HeaderType]
	if kind == "" {
		return domain.Fact{}, ErrMissingHeader
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Fact{}, fmt.Errorf("decode envelope: %w", err)
	}
	occurred, err := time.Parse(time.RFC3339Nano, env.Data.OccurredOn)
	if err != nil {
		return domain.Fact{}, fmt.Errorf("decode occurred_on: %w", err)
	}
	p, err := c.UnmarshalPayload(domain.FactKind(kind), env.Data.Attributes)
	if err != nil {
		return domain.Fact{}, err
	}
	return domain.Fact{
		ID:          env.Data.ID,
		AggregateID: env.Data.AggregateID,
		OccurredOn:  occurred,
		Payload:     p,
	}, nil
}
