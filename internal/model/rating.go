package model

import "time"

type DeliveryRating struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	DeliveryID    uint64    `gorm:"column:delivery_id;uniqueIndex:idx_rating_delivery_rater;not null"`
	RatedBy       string    `gorm:"column:rated_by;size:128;uniqueIndex:idx_rating_delivery_rater;not null"`
	TransporterID uint64    `gorm:"column:transporter_id;index;not null"`
	Rating        int       `gorm:"column:rating;not null"`
	Comment       string    `gorm:"column:comment;type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (DeliveryRating) TableName() string {
	return "delivery_ratings"
}
