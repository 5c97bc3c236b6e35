package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func validAttrs(t *testing.T) EventAttrs {
	t.Helper()
	ep, err := NewEventPeriod(t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	sp, err := NewSellPeriod(t0.AddDate(0, -1, 0), t0.Add(-time.Hour))
	require.NoError(t, err)
	z1, err := NewZone(1, 100, 2000, "Pista", true)
	require.NoError(t, err)
	z2, err := NewZone(2, 50, 1500, " VIP ", false)
	require.NoError(t, err)
	org := int64(7)
	return EventAttrs{
		ID: 291, BaseEventID: 100, SellMode: SellModeOnline, Title: "Concert A",
		OrganizerCompanyID: &org, EventPeriod: ep, SellPeriod: sp, Zones: []Zone{z1, z2},
	}
}

func TestPeriods(t *testing.T) {
	_, err := NewEventPeriod(t0, t0)
	assert.NoError(t, err, "equal dates are a valid period")

	_, err = NewEventPeriod(t0.Add(time.Hour), t0)
	var pe *InvalidPeriodError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PeriodEvent, pe.Period)
	assert.Equal(t, t0.Add(time.Hour), pe.Start)
	assert.Equal(t, t0, pe.End)
	assert.Equal(t, "invalid_event_date_period", pe.Code())

	_, err = NewSellPeriod(t0.Add(time.Hour), t0)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "invalid_sell_date_period", pe.Code())
	assert.Contains(t, pe.Error(), "2025-01-01 11:00:00")
}

func TestParseSellMode(t *testing.T) {
	m, err := ParseSellMode("offline")
	assert.NoError(t, err)
	assert.Equal(t, SellModeOffline, m)

	_, err = ParseSellMode("invalid")
	var se *InvalidSellModeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "invalid", se.Value)
	assert.True(t, IsValidationError(err))
}

func TestNewZone(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		cap  int64
		prc  int64
		zn   string
		want error
	}{
		{"blank name", 1, 1, 1, "   ", ErrEmptyZoneName},
		{"negative capacity", 1, -1, 1, "A", &NegativeNumberError{Field: "capacity", Value: -1}},
		{"negative price", 1, 1, -5, "A", &NegativeNumberError{Field: "price", Value: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZone(tt.id, tt.cap, tt.prc, tt.zn, false)
			assert.Equal(t, tt.want, err)
		})
	}

	z, err := NewZone(0, 0, 0, " Grada ", false)
	require.NoError(t, err)
	assert.Equal(t, "Grada", z.Name())
}

func TestNewEvent_EmitsCreatedFact(t *testing.T) {
	occurred := t0.Add(-24 * time.Hour)
	e, facts, err := NewEvent(validAttrs(t), occurred)
	require.NoError(t, err)

	assert.Equal(t, "291-100", e.AggregateID())
	assert.Equal(t, "Concert A", e.Title())
	require.Len(t, e.Zones(), 2)
	assert.Equal(t, "VIP", e.Zones()[1].Name())

	require.Len(t, facts, 1)
	f := facts[0]
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "291-100", f.AggregateID)
	assert.Equal(t, occurred, f.OccurredOn)
	assert.Equal(t, KindEventCreated, f.Kind())
	assert.Equal(t, "ingestor.event.created", f.Name())

	p, ok := f.Payload.(EventCreated)
	require.True(t, ok)
	assert.Equal(t, int64(291), p.EventID)
	assert.Equal(t, int64(100), p.BaseEventID)
	assert.Equal(t, "online", p.SellMode)
	assert.Equal(t, int64(7), *p.OrganizerCompanyID)
	assert.Equal(t, "2025-01-01T10:00:00Z", p.EventStartDate)
	assert.Equal(t, "2025-01-01T12:00:00Z", p.EventEndDate)
	assert.Equal(t, []ZoneSnapshot{
		{ZoneID: 1, Capacity: 100, Price: 2000, Name: "Pista", Numbered: true},
		{ZoneID: 2, Capacity: 50, Price: 1500, Name: "VIP", Numbered: false},
	}, p.Zones)
}

func TestNewEvent_FactIDsAreUnique(t *testing.T) {
	_, a, err := NewEvent(validAttrs(t), t0)
	require.NoError(t, err)
	_, b, err := NewEvent(validAttrs(t), t0)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestNewEvent_Invariants(t *testing.T) {
	t.Run("blank title", func(t *testing.T) {
		a := validAttrs(t)
		a.Title = "  "
		_, _, err := NewEvent(a, t0)
		assert.True(t, errors.Is(err, ErrEmptyTitle))
	})
	t.Run("invalid sell mode", func(t *testing.T) {
		a := validAttrs(t)
		a.SellMode = "invalid"
		_, _, err := NewEvent(a, t0)
		var se *InvalidSellModeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "invalid", se.Value)
	})
	t.Run("negative id", func(t *testing.T) {
		a := validAttrs(t)
		a.BaseEventID = -3
		_, _, err := NewEvent(a, t0)
		var ne *NegativeNumberError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "base_event_id", ne.Field)
	})
	t.Run("duplicate zone", func(t *testing.T) {
		a := validAttrs(t)
		a.Zones = append(a.Zones, a.Zones[0])
		_, _, err := NewEvent(a, t0)
		var de *DuplicateZoneError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, int64(1), de.ZoneID)
	})
	t.Run("zero value zone", func(t *testing.T) {
		a := validAttrs(t)
		a.Zones = append(a.Zones, Zone{id: 9})
		_, _, err := NewEvent(a, t0)
		assert.True(t, errors.Is(err, ErrEmptyZoneName))
	})
	t.Run("zone with negative price", func(t *testing.T) {
		a := validAttrs(t)
		a.Zones = []Zone{{id: 1, price: -5, name: "Pista"}}
		_, _, err := NewEvent(a, t0)
		var ne *NegativeNumberError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "price", ne.Field)
	})
	t.Run("zero value periods", func(t *testing.T) {
		a := validAttrs(t)
		a.EventPeriod = Period{}
		_, _, err := NewEvent(a, t0)
		var fe *FieldMissingError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "event_start_date", fe.Field)

		a = validAttrs(t)
		a.SellPeriod = Period{start: t0}
		_, _, err = NewEvent(a, t0)
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "sell_to", fe.Field)
	})
	t.Run("no organizer, no zones", func(t *testing.T) {
		a := validAttrs(t)
		a.OrganizerCompanyID = nil
		a.Zones = nil
		e, facts, err := NewEvent(a, t0)
		require.NoError(t, err)
		assert.Nil(t, e.OrganizerCompanyID())
		assert.Empty(t, e.Zones())
		assert.Nil(t, facts[0].Payload.(EventCreated).OrganizerCompanyID)
	})
}

func TestEvent_ZonesAreCopied(t *testing.T) {
	e, _, err := NewEvent(validAttrs(t), t0)
	require.NoError(t, err)
	zs := e.Zones()
	zs[0] = Zone{}
	assert.Equal(t, int64(1), e.Zones()[0].ID())
}
