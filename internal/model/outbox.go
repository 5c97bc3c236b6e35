package model

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxRow is a persisted fact. PublishedAt nil means pending.
type OutboxRow struct {
	ID          uint64         `gorm:"primaryKey"`
	FactID      string         `gorm:"size:36;not null;uniqueIndex"`
	FactName    string         `gorm:"size:255;not null"`
	FactKind    string         `gorm:"size:255;not null"`
	AggregateID string         `gorm:"size:255;not null"`
	Payload     datatypes.JSON `gorm:"not null"`
	OccurredOn  time.Time      `gorm:"not null"`
	PublishedAt *time.Time     `gorm:"index"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
}

func (OutboxRow) TableName() string { return "outbox" }

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&Event{}, &EventZone{}, &OutboxRow{}}
}
