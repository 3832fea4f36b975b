package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
)

type AssignmentType string

const (
	AssignmentManual    AssignmentType = "manual"
	AssignmentAutomatic AssignmentType = "automatic"
)

type AssignmentResult struct {
	Delivery     *model.Delivery    `json:"delivery"`
	Transporter  *model.Transporter `json:"transporter"`
	Type         AssignmentType     `json:"assignmentType"`
	Score        *Score             `json:"score,omitempty"`
	Alternatives []Score            `json:"alternatives,omitempty"`
}

type BulkFilter struct {
	Priority       model.Priority
	TimeRangeHours *int
	MaxAssignments int
}

type BulkAssignment struct {
	DeliveryID            uint64     `json:"deliveryId"`
	TrackingCode          string     `json:"trackingCode"`
	TransporterID         uint64     `json:"transporterId"`
	Score                 float64    `json:"score"`
	DistanceKm            *float64   `json:"distanceKm,omitempty"`
	EstimatedDeliveryTime *time.Time `json:"estimatedDeliveryTime,omitempty"`
}

type BulkFailure struct {
	DeliveryID uint64 `json:"deliveryId"`
	Error      string `json:"error"`
}

type BulkResult struct {
	Total            int              `json:"total"`
	Assigned         int              `json:"assigned"`
	Failed           int              `json:"failed"`
	SuccessRate      float64          `json:"successRate"`
	ExecutionSeconds float64          `json:"executionSeconds"`
	Assignments      []BulkAssignment `json:"assignments"`
	Failures         []BulkFailure    `json:"failures"`
}

type Recommendation struct {
	Transporter           model.Transporter `json:"transporter"`
	Score                 Score             `json:"score"`
	EstimatedDeliveryTime *time.Time        `json:"estimatedDeliveryTime,omitempty"`
}

type AssignmentService interface {
	AssignDelivery(ctx context.Context, deliveryID uint64, transporterID *uint64, actor string) (*AssignmentResult, error)
	BulkAssign(ctx context.Context, f BulkFilter, actor string) (*BulkResult, error)
	GetRecommendations(ctx context.Context, deliveryID uint64, limit int) ([]Recommendation, error)
}

type assignmentService struct {
	deliveries repository.DeliveryRepository
	registry   TransporterRegistry
	scorer     *Scorer
	lifecycle  DeliveryLifecycle
	cfg        config.Dispatch
	clock      Clock
}

func NewAssignmentService(deliveries repository.DeliveryRepository, registry TransporterRegistry, scorer *Scorer, lifecycle DeliveryLifecycle, cfg config.Dispatch, clock Clock) AssignmentService {
	return &assignmentService{
		deliveries: deliveries,
		registry:   registry,
		scorer:     scorer,
		lifecycle:  lifecycle,
		cfg:        cfg,
		clock:      clock,
	}
}

func (s *assignmentService) loadAvailable(ctx context.Context, id uint64) (*model.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	if d.Status != model.DeliveryAvailable {
		return nil, fmt.Errorf("%w: delivery %d is %s, not available", ErrNotFound, id, d.Status)
	}
	return d, nil
}

func (s *assignmentService) AssignDelivery(ctx context.Context, deliveryID uint64, transporterID *uint64, actor string) (*AssignmentResult, error) {
	d, err := s.loadAvailable(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if transporterID != nil {
		return s.assignManual(ctx, d, *transporterID, actor)
	}
	return s.assignAutomatic(ctx, d, false, actor)
}

func (s *assignmentService) assignManual(ctx context.Context, d *model.Delivery, transporterID uint64, actor string) (*AssignmentResult, error) {
	cand, err := s.registry.CheckManual(ctx, d, transporterID)
	if err != nil {
		return nil, err
	}
	updated, err := s.commit(ctx, d, *cand, "Manually assigned", actor)
	if err != nil {
		return nil, err
	}
	log.Printf("[dispatch] delivery=%d assigned manually transporter=%d actor=%s", d.ID, transporterID, actor)
	return &AssignmentResult{Delivery: updated, Transporter: &cand.Transporter, Type: AssignmentManual}, nil
}

// assignAutomatic commits the best candidate. With fallback set, a capacity
// race on one candidate moves on to the next-ranked one.
func (s *assignmentService) assignAutomatic(ctx context.Context, d *model.Delivery, fallback bool, actor string) (*AssignmentResult, error) {
	cands, err := s.registry.FindEligible(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: delivery %d", ErrNoCandidates, d.ID)
	}
	scores, byID, err := s.rank(ctx, d, cands)
	if err != nil {
		return nil, err
	}

	for i := range scores {
		cand := byID[scores[i].TransporterID]
		updated, err := s.commit(ctx, d, cand, fmt.Sprintf("Auto-assigned (score %.2f)", scores[i].Total), actor)
		if err == nil {
			best := scores[i]
			log.Printf("[dispatch] delivery=%d assigned transporter=%d score=%.2f candidates=%d", d.ID, best.TransporterID, best.Total, len(scores))
			return &AssignmentResult{
				Delivery:     updated,
				Transporter:  &cand.Transporter,
				Type:         AssignmentAutomatic,
				Score:        &best,
				Alternatives: alternatives(scores, i, s.cfg.AlternativesLimit),
			}, nil
		}
		if !fallback || !errors.Is(err, ErrCapacityExceeded) {
			return nil, err
		}
		log.Printf("[dispatch] delivery=%d transporter=%d at capacity, trying next candidate", d.ID, cand.Transporter.ID)
	}
	return nil, fmt.Errorf("%w: every candidate for delivery %d reached capacity", ErrCapacityExceeded, d.ID)
}

func alternatives(scores []Score, chosen, limit int) []Score {
	out := make([]Score, 0, limit)
	for i := range scores {
		if i == chosen {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, scores[i])
	}
	return out
}

// rank scores every candidate and orders them best first.
func (s *assignmentService) rank(ctx context.Context, d *model.Delivery, cands []Candidate) ([]Score, map[uint64]Candidate, error) {
	ids := make([]uint64, len(cands))
	byID := make(map[uint64]Candidate, len(cands))
	for i, c := range cands {
		ids[i] = c.Transporter.ID
		byID[c.Transporter.ID] = c
	}
	since := s.clock.now().Add(-s.cfg.RecentPerformanceWindow)
	recent, err := s.deliveries.List(ctx, repository.DeliveryQuery{
		TransporterIDs: ids,
		Statuses:       []model.DeliveryStatus{model.DeliveryDelivered},
		DeliveredSince: &since,
	})
	if err != nil {
		return nil, nil, err
	}
	recentBy := make(map[uint64][]model.Delivery)
	for _, r := range recent {
		if r.TransporterID != nil {
			recentBy[*r.TransporterID] = append(recentBy[*r.TransporterID], r)
		}
	}

	scores := make([]Score, len(cands))
	for i, c := range cands {
		scores[i] = s.scorer.Score(ScoreInput{Candidate: c, Delivery: d, Recent: recentBy[c.Transporter.ID]})
	}
	Rank(scores)
	return scores, byID, nil
}

func (s *assignmentService) estimate(d *model.Delivery, c Candidate) (*float64, *time.Time) {
	var route *float64
	if d.DistanceKm != nil {
		route = d.DistanceKm
	} else if km, ok := d.RouteDistanceKm(); ok {
		route = &km
	}
	if route == nil {
		return nil, nil
	}
	var leg float64
	if c.DistanceKm != nil {
		leg = *c.DistanceKm
	}
	eta := EstimateDeliveryTime(s.cfg, s.clock.now(), ETAParams{
		Vehicle:     c.Transporter.VehicleType,
		RouteKm:     *route,
		PickupLegKm: leg,
		BufferMin:   HandlingBufferMinutes(s.cfg, d),
	})
	return route, &eta
}

func (s *assignmentService) commit(ctx context.Context, d *model.Delivery, c Candidate, notes, actor string) (*model.Delivery, error) {
	extra := map[string]interface{}{}
	route, eta := s.estimate(d, c)
	if d.DistanceKm == nil && route != nil {
		extra["distance_km"] = *route
	}
	if eta != nil {
		extra["estimated_delivery_time"] = *eta
	}
	maxActive := s.cfg.WorkloadCap(string(c.Transporter.VehicleType))
	return s.lifecycle.Assign(ctx, d, &c.Transporter, maxActive, extra, notes, actor)
}

func (s *assignmentService) BulkAssign(ctx context.Context, f BulkFilter, actor string) (*BulkResult, error) {
	start := time.Now()
	if f.MaxAssignments <= 0 {
		f.MaxAssignments = 50
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, validationf("unknown priority %q", f.Priority)
	}
	filter := repository.AvailableFilter{Priority: f.Priority, Limit: f.MaxAssignments}
	if f.TimeRangeHours != nil {
		if *f.TimeRangeHours <= 0 {
			return nil, validationf("timeRangeHours must be positive")
		}
		before := s.clock.now().Add(time.Duration(*f.TimeRangeHours) * time.Hour)
		filter.PickupBefore = &before
	}
	pending, err := s.deliveries.ListAvailable(ctx, filter)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Total: len(pending), Assignments: []BulkAssignment{}, Failures: []BulkFailure{}}
	for i := range pending {
		d := &pending[i]
		out, err := s.assignAutomatic(ctx, d, true, actor)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Failed++
			res.Failures = append(res.Failures, BulkFailure{DeliveryID: d.ID, Error: err.Error()})
			continue
		}
		res.Assigned++
		res.Assignments = append(res.Assignments, BulkAssignment{
			DeliveryID:            d.ID,
			TrackingCode:          d.TrackingCode,
			TransporterID:         out.Transporter.ID,
			Score:                 out.Score.Total,
			DistanceKm:            out.Delivery.DistanceKm,
			EstimatedDeliveryTime: out.Delivery.EstimatedDeliveryTime,
		})
	}
	if res.Total > 0 {
		res.SuccessRate = float64(res.Assigned) / float64(res.Total) * 100
	}
	res.ExecutionSeconds = time.Since(start).Seconds()
	log.Printf("[dispatch] bulk assign total=%d assigned=%d failed=%d took=%.2fs", res.Total, res.Assigned, res.Failed, res.ExecutionSeconds)
	return res, nil
}

func (s *assignmentService) GetRecommendations(ctx context.Context, deliveryID uint64, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 5
	}
	d, err := s.loadAvailable(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	cands, err := s.registry.FindEligible(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []Recommendation{}, nil
	}
	scores, byID, err := s.rank(ctx, d, cands)
	if err != nil {
		return nil, err
	}
	if len(scores) > limit {
		scores = scores[:limit]
	}
	out := make([]Recommendation, len(scores))
	for i, sc := range scores {
		c := byID[sc.TransporterID]
		_, eta := s.estimate(d, c)
		out[i] = Recommendation{Transporter: c.Transporter, Score: sc, EstimatedDeliveryTime: eta}
	}
	return out, nil
}
