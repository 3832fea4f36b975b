package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/cache"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultServiceRadiusKm = 10

type RegisterTransporterInput struct {
	UserUID         string
	Name            string
	Phone           string
	Email           string
	LicenseNumber   string
	VehicleType     model.VehicleType
	VehicleNumber   string
	VehicleCapacity float64
	ServiceRadiusKm float64
	CommissionRate  decimal.Decimal
	LicenseExpiry   *time.Time
	InsuranceExpiry *time.Time
	Location        *geo.Point
}

type DeactivationResult struct {
	Transporter *model.Transporter `json:"transporter"`
	Released    []uint64           `json:"released"`
	// Held lists deliveries already picked up; they stay with the transporter
	// until delivered or returned.
	Held []uint64 `json:"held"`
}

type TransporterService interface {
	Register(ctx context.Context, in RegisterTransporterInput) (*model.Transporter, error)
	Get(ctx context.Context, id uint64) (*model.Transporter, error)
	// GetByUser finds the transporter profile owned by an auth uid.
	GetByUser(ctx context.Context, uid string) (*model.Transporter, error)
	Verify(ctx context.Context, id uint64) (*model.Transporter, error)
	UpdateLocation(ctx context.Context, id uint64, p geo.Point) (*model.Transporter, error)
	SetAvailability(ctx context.Context, id uint64, available bool) (*model.Transporter, error)
	Deactivate(ctx context.Context, id uint64) (*DeactivationResult, error)
	// Metrics reads through the metrics cache, recomputing on a miss.
	Metrics(ctx context.Context, id uint64) (*model.TransporterMetrics, error)
}

type transporterService struct {
	transporters repository.TransporterRepository
	deliveries   repository.DeliveryRepository
	lifecycle    DeliveryLifecycle
	metrics      cache.MetricsCache
	cfg          config.Dispatch
	clock        Clock
}

func NewTransporterService(transporters repository.TransporterRepository, deliveries repository.DeliveryRepository, lifecycle DeliveryLifecycle, metrics cache.MetricsCache, cfg config.Dispatch, clock Clock) TransporterService {
	return &transporterService{
		transporters: transporters,
		deliveries:   deliveries,
		lifecycle:    lifecycle,
		metrics:      metrics,
		cfg:          cfg,
		clock:        clock,
	}
}

func (s *transporterService) Register(ctx context.Context, in RegisterTransporterInput) (*model.Transporter, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Phone) == "" || strings.TrimSpace(in.LicenseNumber) == "" {
		return nil, validationf("name, phone and licenseNumber are required")
	}
	if !in.VehicleType.Valid() {
		return nil, validationf("unknown vehicle type %q", in.VehicleType)
	}
	if in.VehicleCapacity <= 0 {
		return nil, validationf("vehicleCapacity must be positive")
	}
	if in.ServiceRadiusKm < 0 {
		return nil, validationf("serviceRadiusKm must not be negative")
	}
	if in.ServiceRadiusKm == 0 {
		in.ServiceRadiusKm = defaultServiceRadiusKm
	}
	if in.CommissionRate.IsNegative() || in.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, validationf("commissionRate must be between 0 and 100")
	}
	if in.Location != nil && !in.Location.Valid() {
		return nil, validationf("coordinates out of range")
	}

	t := &model.Transporter{
		UserUID:         in.UserUID,
		Name:            in.Name,
		Phone:           in.Phone,
		Email:           in.Email,
		LicenseNumber:   in.LicenseNumber,
		VehicleType:     in.VehicleType,
		VehicleNumber:   in.VehicleNumber,
		VehicleCapacity: in.VehicleCapacity,
		ServiceRadiusKm: in.ServiceRadiusKm,
		IsAvailable:     true,
		Status:          model.TransporterActive,
		CommissionRate:  in.CommissionRate,
		EarningsTotal:   decimal.Zero,
		LicenseExpiry:   in.LicenseExpiry,
		InsuranceExpiry: in.InsuranceExpiry,
	}
	if in.Location != nil {
		lat, lon, now := in.Location.Lat, in.Location.Lon, s.clock.now()
		t.CurrentLatitude, t.CurrentLongitude, t.LastLocationUpdate = &lat, &lon, &now
	}
	if err := s.transporters.Create(ctx, t); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, validationf("license %s is already registered", in.LicenseNumber)
		}
		return nil, err
	}
	return t, nil
}

func (s *transporterService) Get(ctx context.Context, id uint64) (*model.Transporter, error) {
	t, err := s.transporters.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "transporter", id)
	}
	return t, nil
}

func (s *transporterService) GetByUser(ctx context.Context, uid string) (*model.Transporter, error) {
	if uid == "" {
		return nil, validationf("uid is required")
	}
	t, err := s.transporters.FindByUserUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no transporter for uid %s", ErrNotFound, uid)
		}
		return nil, err
	}
	return t, nil
}

func (s *transporterService) update(ctx context.Context, id uint64, fields map[string]interface{}) (*model.Transporter, error) {
	if err := s.transporters.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *transporterService) Verify(ctx context.Context, id uint64) (*model.Transporter, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, map[string]interface{}{"is_verified": true})
}

func (s *transporterService) UpdateLocation(ctx context.Context, id uint64, p geo.Point) (*model.Transporter, error) {
	if !p.Valid() {
		return nil, validationf("coordinates out of range")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, map[string]interface{}{
		"current_latitude":     p.Lat,
		"current_longitude":    p.Lon,
		"last_location_update": s.clock.now(),
	})
}

func (s *transporterService) SetAvailability(ctx context.Context, id uint64, available bool) (*model.Transporter, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if available {
		if t.Status == model.TransporterSuspended || t.Status == model.TransporterInactive {
			return nil, fmt.Errorf("%w: transporter %d is %s", ErrIneligible, id, t.Status)
		}
		if t.DocumentsExpired(s.clock.now()) {
			return nil, fmt.Errorf("%w: transporter %d has expired documents", ErrIneligible, id)
		}
	}
	return s.update(ctx, id, map[string]interface{}{"is_available": available})
}

func (s *transporterService) Deactivate(ctx context.Context, id uint64) (*DeactivationResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	t, err := s.update(ctx, id, map[string]interface{}{
		"status":       model.TransporterInactive,
		"is_available": false,
	})
	if err != nil {
		return nil, err
	}

	res := &DeactivationResult{Transporter: t, Released: []uint64{}, Held: []uint64{}}
	active, err := s.deliveries.List(ctx, repository.DeliveryQuery{
		TransporterIDs: []uint64{id},
		Statuses:       model.ActiveStatuses,
	})
	if err != nil {
		return res, err
	}
	for i := range active {
		d := &active[i]
		if d.Status != model.DeliveryAssigned {
			res.Held = append(res.Held, d.ID)
			continue
		}
		if _, err := s.lifecycle.Release(ctx, d, false, "transporter deactivated"); err != nil {
			log.Printf("[dispatch] deactivate transporter=%d release delivery=%d err=%v", id, d.ID, err)
			continue
		}
		res.Released = append(res.Released, d.ID)
	}
	log.Printf("[dispatch] transporter=%d deactivated released=%d held=%d", id, len(res.Released), len(res.Held))
	return res, nil
}

func (s *transporterService) Metrics(ctx context.Context, id uint64) (*model.TransporterMetrics, error) {
	if m, ok, err := s.metrics.Get(ctx, id); err != nil {
		log.Printf("[dispatch] metrics cache read transporter=%d err=%v", id, err)
	} else if ok {
		return m, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	now := s.clock.now()
	since := now.Add(-s.cfg.MetricsWindow)
	history, err := s.deliveries.List(ctx, repository.DeliveryQuery{
		TransporterIDs: []uint64{id},
		Statuses:       terminalStatuses,
		CreatedSince:   &since,
	})
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(id, history, s.cfg.MetricsWindow, now)
	if err := s.metrics.Set(ctx, m); err != nil {
		log.Printf("[dispatch] metrics cache write transporter=%d err=%v", id, err)
	}
	return &m, nil
}
