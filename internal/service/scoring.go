package service

import (
	"sort"

	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/model"
)

const (
	FactorDistance           = "distance"
	FactorRating             = "rating"
	FactorSuccessRate        = "success_rate"
	FactorWorkload           = "workload"
	FactorVehicleSuitability = "vehicle_suitability"
	FactorPriorityMatch      = "priority_match"
	FactorSpecialHandling    = "special_requirements"
	FactorRecentPerformance  = "recent_performance"
)

// Score is the additive suitability of one transporter for one delivery.
type Score struct {
	TransporterID uint64             `json:"transporterId"`
	Total         float64            `json:"total"`
	Breakdown     map[string]float64 `json:"breakdown"`
	DistanceKm    *float64           `json:"distanceKm,omitempty"`
}

// ScoreInput carries everything Score reads. Recent holds the transporter's
// deliveries completed inside the trailing performance window.
type ScoreInput struct {
	Candidate Candidate
	Delivery  *model.Delivery
	Recent    []model.Delivery
}

type Scorer struct {
	cfg config.Dispatch
}

func NewScorer(cfg config.Dispatch) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Score(in ScoreInput) Score {
	t := &in.Candidate.Transporter
	d := in.Delivery
	b := map[string]float64{
		FactorDistance:           distancePoints(in.Candidate.DistanceKm, t.ServiceRadiusKm),
		FactorRating:             t.Rating * 5,
		FactorSuccessRate:        t.SuccessRate() * 0.15,
		FactorWorkload:           workloadPoints(in.Candidate.ActiveCount, s.cfg.WorkloadCap(string(t.VehicleType))),
		FactorVehicleSuitability: s.cfg.Suitability(string(t.VehicleType)) * 8,
		FactorPriorityMatch:      priorityPoints(d.Priority, t.VehicleType),
		FactorSpecialHandling:    s.specialPoints(d, t),
		FactorRecentPerformance:  RecentPerformancePoints(in.Recent),
	}
	var total float64
	for _, k := range []string{
		FactorDistance, FactorRating, FactorSuccessRate, FactorWorkload,
		FactorVehicleSuitability, FactorPriorityMatch, FactorSpecialHandling, FactorRecentPerformance,
	} {
		total += b[k]
	}
	return Score{TransporterID: t.ID, Total: total, Breakdown: b, DistanceKm: in.Candidate.DistanceKm}
}

func distancePoints(distanceKm *float64, radiusKm float64) float64 {
	if distanceKm == nil || radiusKm <= 0 {
		return 0
	}
	return floorZero(35 * (1 - *distanceKm/radiusKm))
}

func workloadPoints(active, cap int) float64 {
	if cap <= 0 {
		return 0
	}
	return floorZero(10 * (1 - float64(active)/float64(cap)))
}

func priorityPoints(p model.Priority, v model.VehicleType) float64 {
	if !p.Expedited() {
		return 2
	}
	switch v {
	case model.VehicleBike, model.VehicleCar:
		return 5
	case model.VehicleVan:
		return 3
	default:
		return 0
	}
}

func (s *Scorer) specialPoints(d *model.Delivery, t *model.Transporter) float64 {
	var pts float64
	if d.Fragile && (t.VehicleType == model.VehicleCar || t.VehicleType == model.VehicleVan) {
		pts++
	}
	if d.PackageValue.InexactFloat64() > s.cfg.HighValueThreshold && t.Rating >= 4.0 {
		pts++
	}
	return pts
}

// RecentPerformancePoints is +3 for an on-time rate of at least 90%, -2 below
// 70%, otherwise 0. No completed deliveries scores 0.
func RecentPerformancePoints(recent []model.Delivery) float64 {
	var done, onTime int
	for i := range recent {
		if recent[i].Status != model.DeliveryDelivered {
			continue
		}
		done++
		if recent[i].OnTime() {
			onTime++
		}
	}
	if done == 0 {
		return 0
	}
	rate := float64(onTime) / float64(done)
	switch {
	case rate >= 0.9:
		return 3
	case rate < 0.7:
		return -2
	default:
		return 0
	}
}

// Rank orders scores best first; equal totals keep their input order.
func Rank(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
