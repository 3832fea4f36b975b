package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
)

// Candidate is a transporter under consideration for one delivery.
type Candidate struct {
	Transporter model.Transporter
	ActiveCount int
	// DistanceKm is the distance from the transporter to the pickup point,
	// nil when either location is unknown.
	DistanceKm *float64
}

// Predicate is one eligibility rule. Predicates are pure and run in order.
type Predicate struct {
	Name string
	Keep func(c Candidate) bool
}

// Filter returns the candidates that pass every predicate, preserving order.
func Filter(cands []Candidate, preds ...Predicate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if FirstFailure(c, preds...) == "" {
			out = append(out, c)
		}
	}
	return out
}

// FirstFailure names the first predicate c fails, or "" if it passes all.
func FirstFailure(c Candidate, preds ...Predicate) string {
	for _, p := range preds {
		if !p.Keep(c) {
			return p.Name
		}
	}
	return ""
}

func Available() Predicate {
	return Predicate{Name: "unavailable", Keep: func(c Candidate) bool {
		return c.Transporter.IsAvailable
	}}
}

func Verified() Predicate {
	return Predicate{Name: "unverified", Keep: func(c Candidate) bool {
		return c.Transporter.IsVerified
	}}
}

func ActiveStatus() Predicate {
	return Predicate{Name: "not_active", Keep: func(c Candidate) bool {
		return c.Transporter.Status == model.TransporterActive
	}}
}

func DocumentsValid(now time.Time) Predicate {
	return Predicate{Name: "documents_expired", Keep: func(c Candidate) bool {
		return !c.Transporter.DocumentsExpired(now)
	}}
}

func CapacityFor(weightKg float64) Predicate {
	return Predicate{Name: "insufficient_capacity", Keep: func(c Candidate) bool {
		return c.Transporter.VehicleCapacity >= weightKg
	}}
}

// WithinServiceRadius keeps candidates whose distance to pickup is unknown.
func WithinServiceRadius() Predicate {
	return Predicate{Name: "outside_service_radius", Keep: func(c Candidate) bool {
		if c.DistanceKm == nil {
			return true
		}
		return *c.DistanceKm <= c.Transporter.ServiceRadiusKm
	}}
}

func UnderWorkloadCap(cfg config.Dispatch) Predicate {
	return Predicate{Name: "workload_cap_reached", Keep: func(c Candidate) bool {
		return c.ActiveCount < cfg.WorkloadCap(string(c.Transporter.VehicleType))
	}}
}

type TransporterRegistry interface {
	// FindEligible returns the transporters that may take d, ordered by id.
	// An empty result is not an error.
	FindEligible(ctx context.Context, d *model.Delivery) ([]Candidate, error)
	// CheckManual validates an explicitly chosen transporter for d.
	CheckManual(ctx context.Context, d *model.Delivery, transporterID uint64) (*Candidate, error)
}

type transporterRegistry struct {
	transporters repository.TransporterRepository
	deliveries   repository.DeliveryRepository
	cfg          config.Dispatch
	clock        Clock
}

func NewTransporterRegistry(transporters repository.TransporterRepository, deliveries repository.DeliveryRepository, cfg config.Dispatch, clock Clock) TransporterRegistry {
	return &transporterRegistry{transporters: transporters, deliveries: deliveries, cfg: cfg, clock: clock}
}

func (r *transporterRegistry) autoPipeline(d *model.Delivery, now time.Time) []Predicate {
	return []Predicate{
		Available(),
		Verified(),
		ActiveStatus(),
		DocumentsValid(now),
		CapacityFor(d.PackageWeight),
		WithinServiceRadius(),
		UnderWorkloadCap(r.cfg),
	}
}

// Manual assignment skips availability and radius: an operator may hand work
// to an off-shift or distant transporter.
func (r *transporterRegistry) manualPipeline(d *model.Delivery, now time.Time) []Predicate {
	return []Predicate{
		Verified(),
		ActiveStatus(),
		DocumentsValid(now),
		CapacityFor(d.PackageWeight),
		UnderWorkloadCap(r.cfg),
	}
}

func (r *transporterRegistry) FindEligible(ctx context.Context, d *model.Delivery) ([]Candidate, error) {
	pool, err := r.transporters.ListDispatchable(ctx)
	if err != nil {
		return nil, err
	}
	cands, err := r.candidates(ctx, d, pool)
	if err != nil {
		return nil, err
	}
	return Filter(cands, r.autoPipeline(d, r.clock.now())...), nil
}

func (r *transporterRegistry) CheckManual(ctx context.Context, d *model.Delivery, transporterID uint64) (*Candidate, error) {
	t, err := r.transporters.FindByID(ctx, transporterID)
	if err != nil {
		return nil, notFound(err, "transporter", transporterID)
	}
	cands, err := r.candidates(ctx, d, []model.Transporter{*t})
	if err != nil {
		return nil, err
	}
	c := cands[0]
	if reason := FirstFailure(c, r.manualPipeline(d, r.clock.now())...); reason != "" {
		return nil, fmt.Errorf("%w: transporter %d %s", ErrIneligible, transporterID, reason)
	}
	return &c, nil
}

func (r *transporterRegistry) candidates(ctx context.Context, d *model.Delivery, pool []model.Transporter) ([]Candidate, error) {
	ids := make([]uint64, len(pool))
	for i := range pool {
		ids[i] = pool[i].ID
	}
	counts, err := r.deliveries.CountActiveByTransporters(ctx, ids)
	if err != nil {
		return nil, err
	}
	pickup, hasPickup := d.PickupPoint()
	out := make([]Candidate, len(pool))
	for i := range pool {
		c := Candidate{Transporter: pool[i], ActiveCount: counts[pool[i].ID]}
		if loc, ok := pool[i].Location(); ok && hasPickup {
			dist := geo.Distance(loc, pickup)
			c.DistanceKm = &dist
		}
		out[i] = c
	}
	return out, nil
}
