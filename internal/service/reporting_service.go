package service

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	defaultReportWindow = 30 * 24 * time.Hour
	// highValueThreshold marks packages worth at least this much.
	highValueThreshold = 1000
)

// ReportPeriod is the half-open window [From, To) over delivery creation time.
type ReportPeriod struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// OverviewFilter narrows the deliveries an overview is computed over.
// Zero fields match everything.
type OverviewFilter struct {
	Status        model.DeliveryStatus `json:"status,omitempty"`
	Priority      model.Priority       `json:"priority,omitempty"`
	TransporterID uint64               `json:"transporterId,omitempty"`
	VehicleType   model.VehicleType    `json:"vehicleType,omitempty"`
	Fragile       *bool                `json:"fragile,omitempty"`
}

type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type RevenueSummary struct {
	TotalFees         decimal.Decimal `json:"totalFees"`
	AvgFee            decimal.Decimal `json:"avgFee"`
	TotalDistanceKm   float64         `json:"totalDistanceKm"`
	AvgDistanceKm     float64         `json:"avgDistanceKm"`
	MinDistanceKm     float64         `json:"minDistanceKm"`
	MaxDistanceKm     float64         `json:"maxDistanceKm"`
	TotalPackageValue decimal.Decimal `json:"totalPackageValue"`
	AvgWeightKg       float64         `json:"avgPackageWeightKg"`
}

type SpecialPackages struct {
	Fragile           int `json:"fragile"`
	SignatureRequired int `json:"signatureRequired"`
	HighValue         int `json:"highValue"`
}

type DeliveryOverview struct {
	Period  ReportPeriod   `json:"period"`
	Filters OverviewFilter `json:"filters"`

	Total      int `json:"total"`
	Successful int `json:"successful"`
	Cancelled  int `json:"cancelled"`
	Failed     int `json:"failed"`
	Returned   int `json:"returned"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`

	// SuccessRate is delivered over finished (delivered, cancelled, returned, failed).
	SuccessRate float64 `json:"successRate"`
	// OnTimeRate is on-time over delivered.
	OnTimeRate       float64  `json:"onTimeRate"`
	AvgDeliveryHours *float64 `json:"avgDeliveryHours"`
	AvgAttempts      float64  `json:"avgAttempts"`
	MaxAttempts      int      `json:"maxAttempts"`

	ByStatus   []CountBucket `json:"byStatus"`
	ByPriority []CountBucket `json:"byPriority"`
	ByVehicle  []CountBucket `json:"byVehicle"`

	Revenue RevenueSummary  `json:"revenue"`
	Special SpecialPackages `json:"specialPackages"`
}

type RatingSummary struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
}

type LifetimeStats struct {
	Total            int             `json:"total"`
	Successful       int             `json:"successful"`
	Cancelled        int             `json:"cancelled"`
	SuccessRate      float64         `json:"successRate"`
	CancellationRate float64         `json:"cancellationRate"`
	Earnings         decimal.Decimal `json:"earnings"`
}

// TransporterPerformance is one transporter's showing inside a report period.
type TransporterPerformance struct {
	TransporterID   uint64                  `json:"transporterId"`
	Name            string                  `json:"name"`
	VehicleType     model.VehicleType       `json:"vehicleType"`
	VehicleCapacity float64                 `json:"vehicleCapacity"`
	Rating          float64                 `json:"rating"`
	IsVerified      bool                    `json:"isVerified"`
	Status          model.TransporterStatus `json:"status"`
	DocsExpired     bool                    `json:"documentsExpired"`

	Assigned         int      `json:"assigned"`
	Delivered        int      `json:"delivered"`
	Cancelled        int      `json:"cancelled"`
	Failed           int      `json:"failed"`
	OnTime           int      `json:"onTime"`
	SuccessRate      float64  `json:"successRate"`
	OnTimeRate       float64  `json:"onTimeRate"`
	CancellationRate float64  `json:"cancellationRate"`
	AvgDeliveryHours *float64 `json:"avgDeliveryHours"`

	Revenue             decimal.Decimal `json:"revenue"`
	Earnings            decimal.Decimal `json:"earnings"`
	AvgFee              decimal.Decimal `json:"avgFee"`
	TotalDistanceKm     float64         `json:"totalDistanceKm"`
	CapacityUtilization float64         `json:"capacityUtilization"`

	PeriodRatings RatingSummary `json:"periodRatings"`
	Lifetime      LifetimeStats `json:"lifetime"`
}

type ReportingService interface {
	// Overview aggregates deliveries created inside period. Zero period bounds
	// default to the last 30 days.
	Overview(ctx context.Context, period ReportPeriod, f OverviewFilter) (*DeliveryOverview, error)
	// TransporterRanking ranks every transporter holding a delivery created
	// inside period by success rate, then delivered count. limit <= 0 keeps all.
	TransporterRanking(ctx context.Context, period ReportPeriod, limit int) ([]TransporterPerformance, error)
}

type reportingService struct {
	deliveries   repository.DeliveryRepository
	transporters repository.TransporterRepository
	ratings      repository.RatingRepository
	clock        Clock
}

func NewReportingService(deliveries repository.DeliveryRepository, transporters repository.TransporterRepository, ratings repository.RatingRepository, clock Clock) ReportingService {
	return &reportingService{
		deliveries:   deliveries,
		transporters: transporters,
		ratings:      ratings,
		clock:        clock,
	}
}

func (s *reportingService) period(p ReportPeriod) (ReportPeriod, error) {
	if p.To.IsZero() {
		p.To = s.clock.now()
	}
	if p.From.IsZero() {
		p.From = p.To.Add(-defaultReportWindow)
	}
	if !p.From.Before(p.To) {
		return p, validationf("report period start %s is not before end %s", p.From.Format(time.RFC3339), p.To.Format(time.RFC3339))
	}
	return p, nil
}

func (s *reportingService) transporterIndex(ctx context.Context) (map[uint64]*model.Transporter, error) {
	all, err := s.transporters.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]*model.Transporter, len(all))
	for i := range all {
		out[all[i].ID] = &all[i]
	}
	return out, nil
}

func (s *reportingService) Overview(ctx context.Context, period ReportPeriod, f OverviewFilter) (*DeliveryOverview, error) {
	p, err := s.period(period)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("unknown status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, validationf("unknown priority %q", f.Priority)
	}
	if f.VehicleType != "" && !f.VehicleType.Valid() {
		return nil, validationf("unknown vehicle type %q", f.VehicleType)
	}

	q := repository.DeliveryQuery{CreatedSince: &p.From, CreatedBefore: &p.To}
	if f.Status != "" {
		q.Statuses = []model.DeliveryStatus{f.Status}
	}
	if f.TransporterID != 0 {
		q.TransporterIDs = []uint64{f.TransporterID}
	}
	list, err := s.deliveries.List(ctx, q)
	if err != nil {
		return nil, err
	}
	transporters, err := s.transporterIndex(ctx)
	if err != nil {
		return nil, err
	}

	vehicleOf := func(d *model.Delivery) (model.VehicleType, bool) {
		if d.TransporterID == nil {
			return "", false
		}
		t, ok := transporters[*d.TransporterID]
		if !ok {
			return "", false
		}
		return t.VehicleType, true
	}

	out := &DeliveryOverview{Period: p, Filters: f}
	byStatus := map[string]int{}
	byPriority := map[string]int{}
	byVehicle := map[string]int{}
	var finished, onTime, timed, attempts, measured int
	var hours, distance, weight float64
	fees, value := decimal.Zero, decimal.Zero
	for i := range list {
		d := &list[i]
		if f.Priority != "" && d.Priority != f.Priority {
			continue
		}
		if f.Fragile != nil && d.Fragile != *f.Fragile {
			continue
		}
		vt, assigned := vehicleOf(d)
		if f.VehicleType != "" && vt != f.VehicleType {
			continue
		}

		out.Total++
		byStatus[string(d.Status)]++
		byPriority[string(d.Priority)]++
		if assigned {
			byVehicle[string(vt)]++
		}

		switch d.Status {
		case model.DeliveryDelivered:
			out.Successful++
			finished++
			if d.OnTime() {
				onTime++
			}
			if d.PickedUpAt != nil && d.DeliveredAt != nil {
				hours += d.DeliveredAt.Sub(*d.PickedUpAt).Hours()
				timed++
			}
		case model.DeliveryCancelled:
			out.Cancelled++
			finished++
		case model.DeliveryFailed:
			out.Failed++
			finished++
		case model.DeliveryReturned:
			out.Returned++
			finished++
		case model.DeliveryAvailable:
			out.Pending++
		case model.DeliveryAssigned, model.DeliveryPickedUp, model.DeliveryInTransit:
			out.InProgress++
		}

		attempts += d.DeliveryAttempts
		if d.DeliveryAttempts > out.MaxAttempts {
			out.MaxAttempts = d.DeliveryAttempts
		}
		fees = fees.Add(d.DeliveryFee)
		value = value.Add(d.PackageValue)
		weight += d.PackageWeight
		if d.DistanceKm != nil {
			km := *d.DistanceKm
			if measured == 0 || km < out.Revenue.MinDistanceKm {
				out.Revenue.MinDistanceKm = km
			}
			if km > out.Revenue.MaxDistanceKm {
				out.Revenue.MaxDistanceKm = km
			}
			distance += km
			measured++
		}
		if d.Fragile {
			out.Special.Fragile++
		}
		if d.RequiresSignature {
			out.Special.SignatureRequired++
		}
		if d.PackageValue.GreaterThanOrEqual(decimal.NewFromInt(highValueThreshold)) {
			out.Special.HighValue++
		}
	}

	out.SuccessRate = percent(out.Successful, finished)
	out.OnTimeRate = percent(onTime, out.Successful)
	if timed > 0 {
		avg := round2(hours / float64(timed))
		out.AvgDeliveryHours = &avg
	}
	out.Revenue.TotalFees = fees
	out.Revenue.TotalPackageValue = value
	out.Revenue.TotalDistanceKm = round2(distance)
	if out.Total > 0 {
		out.AvgAttempts = round2(float64(attempts) / float64(out.Total))
		out.Revenue.AvgFee = fees.Div(decimal.NewFromInt(int64(out.Total))).Round(2)
		out.Revenue.AvgWeightKg = round2(weight / float64(out.Total))
	}
	if measured > 0 {
		out.Revenue.AvgDistanceKm = round2(distance / float64(measured))
	}
	out.ByStatus = buckets(byStatus)
	out.ByPriority = buckets(byPriority)
	out.ByVehicle = buckets(byVehicle)

	log.Printf("[report] overview from=%s to=%s total=%d success_rate=%.2f",
		p.From.Format(time.RFC3339), p.To.Format(time.RFC3339), out.Total, out.SuccessRate)
	return out, nil
}

func (s *reportingService) TransporterRanking(ctx context.Context, period ReportPeriod, limit int) ([]TransporterPerformance, error) {
	p, err := s.period(period)
	if err != nil {
		return nil, err
	}
	list, err := s.deliveries.List(ctx, repository.DeliveryQuery{CreatedSince: &p.From, CreatedBefore: &p.To})
	if err != nil {
		return nil, err
	}
	transporters, err := s.transporterIndex(ctx)
	if err != nil {
		return nil, err
	}
	ratings, err := s.ratings.ListCreated(ctx, p.From, p.To)
	if err != nil {
		return nil, err
	}

	byTransporter := map[uint64][]*model.Delivery{}
	for i := range list {
		d := &list[i]
		if d.TransporterID == nil {
			continue
		}
		byTransporter[*d.TransporterID] = append(byTransporter[*d.TransporterID], d)
	}
	rated := map[uint64]*RatingSummary{}
	for _, rt := range ratings {
		r, ok := rated[rt.TransporterID]
		if !ok {
			r = &RatingSummary{}
			rated[rt.TransporterID] = r
		}
		r.Count++
		r.Avg += float64(rt.Rating)
	}

	now := s.clock.now()
	out := make([]TransporterPerformance, 0, len(byTransporter))
	for id, ds := range byTransporter {
		t, ok := transporters[id]
		if !ok {
			continue
		}
		perf := performanceOf(t, ds, now)
		if r, ok := rated[id]; ok {
			perf.PeriodRatings = RatingSummary{Count: r.Count, Avg: round2(r.Avg / float64(r.Count))}
		}
		out = append(out, perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].Delivered != out[j].Delivered {
			return out[i].Delivered > out[j].Delivered
		}
		return out[i].TransporterID < out[j].TransporterID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	log.Printf("[report] transporters from=%s to=%s ranked=%d",
		p.From.Format(time.RFC3339), p.To.Format(time.RFC3339), len(out))
	return out, nil
}

func performanceOf(t *model.Transporter, ds []*model.Delivery, now time.Time) TransporterPerformance {
	perf := TransporterPerformance{
		TransporterID:   t.ID,
		Name:            t.Name,
		VehicleType:     t.VehicleType,
		VehicleCapacity: t.VehicleCapacity,
		Rating:          t.Rating,
		IsVerified:      t.IsVerified,
		Status:          t.Status,
		DocsExpired:     t.DocumentsExpired(now),
		Assigned:        len(ds),
		Revenue:         decimal.Zero,
		Lifetime: LifetimeStats{
			Total:            t.TotalDeliveries,
			Successful:       t.SuccessfulDeliveries,
			Cancelled:        t.CancelledDeliveries,
			SuccessRate:      round2(t.SuccessRate()),
			CancellationRate: round2(t.CancellationRate()),
			Earnings:         t.EarningsTotal,
		},
	}
	var hours, distance, weight float64
	var timed int
	for _, d := range ds {
		switch d.Status {
		case model.DeliveryDelivered:
			perf.Delivered++
			if d.OnTime() {
				perf.OnTime++
			}
			if d.PickedUpAt != nil && d.DeliveredAt != nil {
				hours += d.DeliveredAt.Sub(*d.PickedUpAt).Hours()
				timed++
			}
		case model.DeliveryCancelled:
			perf.Cancelled++
		case model.DeliveryFailed:
			perf.Failed++
		}
		perf.Revenue = perf.Revenue.Add(d.DeliveryFee)
		if d.DistanceKm != nil {
			distance += *d.DistanceKm
		}
		weight += d.PackageWeight
	}

	perf.SuccessRate = percent(perf.Delivered, perf.Assigned)
	perf.CancellationRate = percent(perf.Cancelled, perf.Assigned)
	perf.OnTimeRate = percent(perf.OnTime, perf.Delivered)
	if timed > 0 {
		avg := round2(hours / float64(timed))
		perf.AvgDeliveryHours = &avg
	}
	perf.TotalDistanceKm = round2(distance)
	share := decimal.NewFromInt(1).Sub(t.CommissionRate.Div(decimal.NewFromInt(100)))
	perf.Earnings = perf.Revenue.Mul(share).Round(2)
	if perf.Assigned > 0 {
		perf.AvgFee = perf.Revenue.Div(decimal.NewFromInt(int64(perf.Assigned))).Round(2)
		if t.VehicleCapacity > 0 {
			perf.CapacityUtilization = round2(weight / (t.VehicleCapacity * float64(perf.Assigned)) * 100)
		}
	}
	return perf
}

// percent is part/whole*100 rounded to two places; 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// buckets returns counts sorted by key.
func buckets(m map[string]int) []CountBucket {
	out := make([]CountBucket, 0, len(m))
	for k, n := range m {
		out = append(out, CountBucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
