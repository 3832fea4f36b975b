package repository

import (
	"context"
	"math"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"gorm.io/gorm"
)

type RatingRepository interface {
	Exists(ctx context.Context, deliveryID uint64, ratedBy string) (bool, error)
	// CreateAndRefresh stores the rating and rewrites the transporter's rating
	// as the mean of all its ratings. It returns the new mean.
	CreateAndRefresh(ctx context.Context, rt *model.DeliveryRating) (float64, error)
	// ListCreated returns ratings created in [from, to), oldest first.
	ListCreated(ctx context.Context, from, to time.Time) ([]model.DeliveryRating, error)
	// RecalculateAll rewrites every rated transporter's mean and returns how many changed.
	RecalculateAll(ctx context.Context) (int, error)
	SetDB(db *gorm.DB)
}

type ratingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) Exists(ctx context.Context, deliveryID uint64, ratedBy string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.DeliveryRating{}).
		Where("delivery_id = ? AND rated_by = ?", deliveryID, ratedBy).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *ratingRepository) CreateAndRefresh(ctx context.Context, rt *model.DeliveryRating) (float64, error) {
	var mean float64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rt).Error; err != nil {
			return err
		}
		avg, err := averageRating(tx, rt.TransporterID)
		if err != nil {
			return err
		}
		mean = avg
		return tx.Model(&model.Transporter{}).
			Where("id = ?", rt.TransporterID).
			Update("rating", mean).Error
	})
	return mean, err
}

func (r *ratingRepository) ListCreated(ctx context.Context, from, to time.Time) ([]model.DeliveryRating, error) {
	var list []model.DeliveryRating
	if err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ratingRepository) RecalculateAll(ctx context.Context) (int, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).
		Model(&model.DeliveryRating{}).
		Distinct("transporter_id").
		Pluck("transporter_id", &ids).Error; err != nil {
		return 0, err
	}
	updated := 0
	for _, id := range ids {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			avg, err := averageRating(tx, id)
			if err != nil {
				return err
			}
			res := tx.Model(&model.Transporter{}).
				Where("id = ? AND rating <> ?", id, avg).
				Update("rating", avg)
			if res.Error != nil {
				return res.Error
			}
			updated += int(res.RowsAffected)
			return nil
		})
		if err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func averageRating(tx *gorm.DB, transporterID uint64) (float64, error) {
	var avg *float64
	if err := tx.Model(&model.DeliveryRating{}).
		Select("AVG(rating)").
		Where("transporter_id = ?", transporterID).
		Scan(&avg).Error; err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return math.Round(*avg*100) / 100, nil
}

func (r *ratingRepository) SetDB(db *gorm.DB) {
	r.db = db
}
