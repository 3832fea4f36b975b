package model

import "time"

// DeliveryTracking is an append-only timeline entry.
type DeliveryTracking struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	DeliveryID uint64         `gorm:"column:delivery_id;index;not null"`
	Status     DeliveryStatus `gorm:"column:status;size:20;not null"`
	Latitude   *float64       `gorm:"column:latitude"`
	Longitude  *float64       `gorm:"column:longitude"`
	Notes      string         `gorm:"column:notes;type:text"`
	ActorUID   string         `gorm:"column:actor_uid;size:128"`
	Timestamp  time.Time      `gorm:"column:timestamp;index;not null"`
}

func (DeliveryTracking) TableName() string {
	return "delivery_tracking"
}
