package consumer

import (
	"context"
	"fmt"

	"github.com/richardliu001/event-ingestor/internal/domain"
	"go.uber.org/zap"
)

// CatalogItem is the flattened, search-friendly view of an event.
type CatalogItem struct {
	ID            string `json:"id"`
	EventID       int64  `json:"event_id"`
	BaseEventID   int64  `json:"base_event_id"`
	Title         string `json:"title"`
	SellMode      string `json:"sell_mode"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	SoldOut       bool   `json:"sold_out"`
	MinPrice      int64  `json:"min_price"`
	MaxPrice      int64  `json:"max_price"`
	TotalCapacity int64  `json:"total_capacity"`
	Zones         int    `json:"zones"`
}

// ToCatalogItem flattens an EventCreated payload. Prices stay in minor
// units; both bounds are zero for an event without zones.
func ToCatalogItem(aggregateID string, p domain.EventCreated) CatalogItem {
	item := CatalogItem{
		ID:          aggregateID,
		EventID:     p.EventID,
		BaseEventID: p.BaseEventID,
		Title:       p.Title,
		SellMode:    p.SellMode,
		StartsAt:    p.EventStartDate,
		EndsAt:      p.EventEndDate,
		SoldOut:     p.SoldOut,
		Zones:       len(p.Zones),
	}
	for i, z := range p.Zones {
		if i == 0 || z.Price < item.MinPrice {
			item.MinPrice = z.Price
		}
		if z.Price > item.MaxPrice {
			item.MaxPrice = z.Price
		}
		item.TotalCapacity += z.Capacity
	}
	return item
}

// CatalogLogger returns a handler that logs the catalog view of each
// created event.
func CatalogLogger(log *zap.SugaredLogger) Handler {
	return func(_ context.Context, f domain.Fact) error {
		p, ok := f.Payload.(domain.EventCreated)
		if !ok {
			return fmt.Errorf("unexpected payload %T", f.Payload)
		}
		item := ToCatalogItem(f.AggregateID, p)
		log.Infow("catalog item updated",
			"id", item.ID, "title", item.Title, "sold_out", item.SoldOut,
			"min_price", item.MinPrice, "max_price", item.MaxPrice, "zones", item.Zones)
		return nil
	}
}
