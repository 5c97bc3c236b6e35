package model

import "time"

type Event struct {
	EventID            int64     `gorm:"primaryKey;autoIncrement:false"`
	BaseEventID        int64     `gorm:"primaryKey;autoIncrement:false"`
	SellMode           string    `gorm:"size:16;not null"`
	Title              string    `gorm:"size:500;not null"`
	OrganizerCompanyID *int64
	EventStartDate     time.Time `gorm:"not null"`
	EventEndDate       time.Time `gorm:"not null"`
	SellFrom           time.Time `gorm:"not null"`
	SellTo             time.Time `gorm:"not null"`
	SoldOut            bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

// EventZone rows are owned by one event and replaced wholesale on save.
// ID only records insertion order.
type EventZone struct {
	ID          uint64 `gorm:"primaryKey"`
	EventID     int64  `gorm:"not null;uniqueIndex:uk_event_zone,priority:1;index:idx_event_composite,priority:1"`
	BaseEventID int64  `gorm:"not null;uniqueIndex:uk_event_zone,priority:2;index:idx_event_composite,priority:2"`
	ZoneID      int64  `gorm:"not null;uniqueIndex:uk_event_zone,priority:3"`
	ZoneName    string `gorm:"size:255;not null"`
	Capacity    int64  `gorm:"not null"`
	Price       int64  `gorm:"not null"`
	IsNumbered  bool   `gorm:"not null"`
}

func (EventZone) TableName() string { return "event_zones" }
