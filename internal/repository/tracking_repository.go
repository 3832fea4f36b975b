package repository

import (
	"context"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"gorm.io/gorm"
)

type TrackingRepository interface {
	Create(ctx context.Context, t *model.DeliveryTracking) error
	// ListByDelivery returns the timeline newest first.
	ListByDelivery(ctx context.Context, deliveryID uint64) ([]model.DeliveryTracking, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	SetDB(db *gorm.DB)
}

type trackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) TrackingRepository {
	return &trackingRepository{db: db}
}

func (r *trackingRepository) Create(ctx context.Context, t *model.DeliveryTracking) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *trackingRepository) ListByDelivery(ctx context.Context, deliveryID uint64) ([]model.DeliveryTracking, error) {
	var list []model.DeliveryTracking
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *trackingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&model.DeliveryTracking{})
	return res.RowsAffected, res.Error
}

func (r *trackingRepository) SetDB(db *gorm.DB) {
	r.db = db
}
