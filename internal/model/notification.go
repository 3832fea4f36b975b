package model

import "time"

type RecipientRole string

const (
	RecipientTransporter RecipientRole = "transporter"
	RecipientBuyer       RecipientRole = "buyer"
	RecipientSeller      RecipientRole = "seller"
	RecipientAdmin       RecipientRole = "admin"
)

type Notification struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement"`
	RecipientRole RecipientRole `gorm:"column:recipient_role;size:32;index;not null"`
	TransporterID *uint64       `gorm:"column:transporter_id;index"`
	DeliveryID    uint64        `gorm:"column:delivery_id;index;not null"`
	Type          string        `gorm:"column:type;size:64;not null"`
	Channel       string        `gorm:"column:channel;size:32;not null"`
	Title         string        `gorm:"column:title;size:255"`
	Body          string        `gorm:"column:body;type:text"`
	ReadAt        *time.Time    `gorm:"column:read_at"`
	CreatedAt     time.Time     `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
