package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"gorm.io/gorm"
)

type RatingService interface {
	Rate(ctx context.Context, deliveryID uint64, ratedBy string, rating int, comment string) (*model.DeliveryRating, error)
	RecalculateAll(ctx context.Context) (int, error)
}

type ratingService struct {
	ratings    repository.RatingRepository
	deliveries repository.DeliveryRepository
}

func NewRatingService(ratings repository.RatingRepository, deliveries repository.DeliveryRepository) RatingService {
	return &ratingService{ratings: ratings, deliveries: deliveries}
}

func (s *ratingService) Rate(ctx context.Context, deliveryID uint64, ratedBy string, rating int, comment string) (*model.DeliveryRating, error) {
	if strings.TrimSpace(ratedBy) == "" {
		return nil, validationf("rater is required")
	}
	if rating < 1 || rating > 5 {
		return nil, validationf("rating must be between 1 and 5")
	}
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery", deliveryID)
	}
	if d.Status != model.DeliveryDelivered || d.TransporterID == nil {
		return nil, fmt.Errorf("%w: only delivered deliveries can be rated, delivery %d is %s", ErrIneligible, deliveryID, d.Status)
	}
	exists, err := s.ratings.Exists(ctx, deliveryID, ratedBy)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateRating
	}

	rt := &model.DeliveryRating{
		DeliveryID:    deliveryID,
		RatedBy:       ratedBy,
		TransporterID: *d.TransporterID,
		Rating:        rating,
		Comment:       comment,
	}
	mean, err := s.ratings.CreateAndRefresh(ctx, rt)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateRating
		}
		return nil, err
	}
	log.Printf("[dispatch] delivery=%d rated=%d transporter=%d mean=%.2f", deliveryID, rating, rt.TransporterID, mean)
	return rt, nil
}

func (s *ratingService) RecalculateAll(ctx context.Context) (int, error) {
	return s.ratings.RecalculateAll(ctx)
}
