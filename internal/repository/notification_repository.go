package repository

import (
	"context"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByTransporter(ctx context.Context, transporterID uint64, unreadOnly bool, limit int) ([]model.Notification, error)
	ListByDelivery(ctx context.Context, deliveryID uint64, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, transporterID uint64) error
	CountUnread(ctx context.Context, transporterID uint64) (int64, error)
	SetDB(db *gorm.DB)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 50 {
		return 20
	}
	return limit
}

func (r *notificationRepository) ListByTransporter(ctx context.Context, transporterID uint64, unreadOnly bool, limit int) ([]model.Notification, error) {
	var list []model.Notification
	q := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_role = ? AND transporter_id = ?", model.RecipientTransporter, transporterID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(limit)).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) ListByDelivery(ctx context.Context, deliveryID uint64, limit int) ([]model.Notification, error) {
	var list []model.Notification
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, transporterID uint64) error {
	now := r.db.NowFunc()
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_role = ? AND transporter_id = ? AND read_at IS NULL", model.RecipientTransporter, transporterID).
		Update("read_at", now).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, transporterID uint64) (int64, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_role = ? AND transporter_id = ? AND read_at IS NULL", model.RecipientTransporter, transporterID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *notificationRepository) SetDB(db *gorm.DB) {
	r.db = db
}
