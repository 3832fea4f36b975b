package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shopspring/decimal"
)

type reportFixture struct {
	env            *testEnv
	car, bike, van uint64
}

// newReportFixture seeds a month of mixed outcomes plus one delivery that
// falls outside the default window.
func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	env := newTestEnv(t, testNow)
	fx := &reportFixture{env: env}

	car := sampleTransporter(testNow)
	fx.car = env.db.addTransporter(car).ID
	bike := sampleTransporter(testNow)
	bike.VehicleType = model.VehicleBike
	fx.bike = env.db.addTransporter(bike).ID
	van := sampleTransporter(testNow)
	van.VehicleType = model.VehicleVan
	fx.van = env.db.addTransporter(van).ID

	add := func(tid uint64, status model.DeliveryStatus, age time.Duration, mutate func(*model.Delivery)) {
		d := sampleDelivery(testNow)
		d.Status = status
		d.CreatedAt = testNow.Add(-age)
		if tid != 0 {
			d.TransporterID = up(tid)
		}
		if mutate != nil {
			mutate(&d)
		}
		env.db.addDelivery(d)
	}
	add(fx.car, model.DeliveryDelivered, 48*time.Hour, func(d *model.Delivery) {
		d.PickedUpAt = tp(testNow.Add(-30 * time.Hour))
		d.DeliveredAt = tp(testNow.Add(-28 * time.Hour))
		d.RequestedDeliveryDate = testNow.Add(-27 * time.Hour)
		d.DistanceKm = fp(5)
		d.Fragile = true
	})
	add(fx.car, model.DeliveryDelivered, 24*time.Hour, func(d *model.Delivery) {
		d.Priority = model.PriorityUrgent
		d.PickedUpAt = tp(testNow.Add(-20 * time.Hour))
		d.DeliveredAt = tp(testNow.Add(-17 * time.Hour))
		d.RequestedDeliveryDate = testNow.Add(-18 * time.Hour)
		d.DeliveryFee = decimal.NewFromInt(200)
		d.DistanceKm = fp(10)
		d.DeliveryAttempts = 2
	})
	add(fx.car, model.DeliveryInTransit, 2*time.Hour, nil)
	add(fx.bike, model.DeliveryCancelled, 72*time.Hour, func(d *model.Delivery) {
		d.DeliveryFee = decimal.NewFromInt(100)
	})
	add(fx.bike, model.DeliveryFailed, 96*time.Hour, func(d *model.Delivery) {
		d.DeliveryFee = decimal.NewFromInt(120)
		d.DeliveryAttempts = 3
	})
	add(0, model.DeliveryAvailable, time.Hour, func(d *model.Delivery) {
		d.Priority = model.PriorityLow
		d.DeliveryFee = decimal.NewFromInt(80)
		d.PackageValue = decimal.NewFromInt(1500)
	})
	add(fx.van, model.DeliveryDelivered, 40*24*time.Hour, nil)
	return fx
}

func TestOverviewSummarisesWindow(t *testing.T) {
	fx := newReportFixture(t)

	got, err := fx.env.reports.Overview(context.Background(), ReportPeriod{}, OverviewFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Period.To.Equal(testNow) || !got.Period.From.Equal(testNow.Add(-30*24*time.Hour)) {
		t.Fatalf("period=%+v", got.Period)
	}
	counts := []int{got.Total, got.Successful, got.Cancelled, got.Failed, got.Pending, got.InProgress}
	if diff := cmp.Diff([]int{6, 2, 1, 1, 1, 1}, counts); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if got.SuccessRate != 50 || got.OnTimeRate != 50 {
		t.Fatalf("success=%v on_time=%v", got.SuccessRate, got.OnTimeRate)
	}
	if got.AvgDeliveryHours == nil || *got.AvgDeliveryHours != 2.5 {
		t.Fatalf("avg hours=%v", got.AvgDeliveryHours)
	}
	if got.AvgAttempts != 0.83 || got.MaxAttempts != 3 {
		t.Fatalf("attempts avg=%v max=%d", got.AvgAttempts, got.MaxAttempts)
	}

	wantStatus := []CountBucket{
		{"available", 1}, {"cancelled", 1}, {"delivered", 2}, {"failed", 1}, {"in_transit", 1},
	}
	if diff := cmp.Diff(wantStatus, got.ByStatus); diff != "" {
		t.Fatalf("status (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]CountBucket{{"low", 1}, {"normal", 4}, {"urgent", 1}}, got.ByPriority); diff != "" {
		t.Fatalf("priority (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]CountBucket{{"bike", 2}, {"car", 3}}, got.ByVehicle); diff != "" {
		t.Fatalf("vehicle (-want +got):\n%s", diff)
	}

	rev := got.Revenue
	if !rev.TotalFees.Equal(decimal.NewFromInt(800)) || !rev.AvgFee.Equal(decimal.RequireFromString("133.33")) {
		t.Fatalf("fees total=%s avg=%s", rev.TotalFees, rev.AvgFee)
	}
	if rev.TotalDistanceKm != 15 || rev.AvgDistanceKm != 7.5 || rev.MinDistanceKm != 5 || rev.MaxDistanceKm != 10 {
		t.Fatalf("distance=%+v", rev)
	}
	if got.Special != (SpecialPackages{Fragile: 1, HighValue: 1}) {
		t.Fatalf("special=%+v", got.Special)
	}
}

func TestOverviewFilters(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()
	fragile := true

	tests := []struct {
		name string
		f    OverviewFilter
		want int
	}{
		{"vehicle", OverviewFilter{VehicleType: model.VehicleCar}, 3},
		{"priority", OverviewFilter{Priority: model.PriorityNormal}, 4},
		{"status", OverviewFilter{Status: model.DeliveryDelivered}, 2},
		{"transporter", OverviewFilter{TransporterID: fx.bike}, 2},
		{"fragile", OverviewFilter{Fragile: &fragile}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.env.reports.Overview(ctx, ReportPeriod{}, tt.f)
			if err != nil {
				t.Fatal(err)
			}
			if got.Total != tt.want {
				t.Fatalf("total=%d want %d", got.Total, tt.want)
			}
		})
	}

	wide := ReportPeriod{From: testNow.Add(-60 * 24 * time.Hour), To: testNow}
	got, err := fx.env.reports.Overview(ctx, wide, OverviewFilter{VehicleType: model.VehicleVan})
	if err != nil {
		t.Fatal(err)
	}
	if got.Total != 1 {
		t.Fatalf("wide window total=%d", got.Total)
	}
}

func TestOverviewRejectsBadInput(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	backwards := ReportPeriod{From: testNow, To: testNow.Add(-time.Hour)}
	if _, err := fx.env.reports.Overview(ctx, backwards, OverviewFilter{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("backwards period: err=%v", err)
	}
	if _, err := fx.env.reports.Overview(ctx, ReportPeriod{}, OverviewFilter{Status: "lost"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: err=%v", err)
	}
	if _, err := fx.env.reports.TransporterRanking(ctx, backwards, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("ranking backwards period: err=%v", err)
	}
}

func TestTransporterRanking(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()
	fx.env.db.addRating(model.DeliveryRating{TransporterID: fx.car, DeliveryID: 1, RatedBy: "a", Rating: 5, CreatedAt: testNow.Add(-time.Hour)})
	fx.env.db.addRating(model.DeliveryRating{TransporterID: fx.car, DeliveryID: 2, RatedBy: "b", Rating: 4, CreatedAt: testNow.Add(-2 * time.Hour)})
	fx.env.db.addRating(model.DeliveryRating{TransporterID: fx.car, DeliveryID: 3, RatedBy: "c", Rating: 1, CreatedAt: testNow.Add(-90 * 24 * time.Hour)})

	wide := ReportPeriod{From: testNow.Add(-60 * 24 * time.Hour), To: testNow}
	ranked, err := fx.env.reports.TransporterRanking(ctx, wide, 0)
	if err != nil {
		t.Fatal(err)
	}
	order := make([]uint64, 0, len(ranked))
	for _, p := range ranked {
		order = append(order, p.TransporterID)
	}
	if diff := cmp.Diff([]uint64{fx.van, fx.car, fx.bike}, order); diff != "" {
		t.Fatalf("ranking (-want +got):\n%s", diff)
	}

	car := ranked[1]
	if car.Assigned != 3 || car.Delivered != 2 || car.OnTime != 1 {
		t.Fatalf("car counts=%+v", car)
	}
	if car.SuccessRate != 66.67 || car.OnTimeRate != 50 || car.CancellationRate != 0 {
		t.Fatalf("car rates success=%v on_time=%v cancel=%v", car.SuccessRate, car.OnTimeRate, car.CancellationRate)
	}
	if !car.Revenue.Equal(decimal.NewFromInt(500)) || !car.Earnings.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("car revenue=%s earnings=%s", car.Revenue, car.Earnings)
	}
	if car.CapacityUtilization != 5 || car.TotalDistanceKm != 15 {
		t.Fatalf("car utilization=%v distance=%v", car.CapacityUtilization, car.TotalDistanceKm)
	}
	if car.PeriodRatings != (RatingSummary{Count: 2, Avg: 4.5}) {
		t.Fatalf("car ratings=%+v", car.PeriodRatings)
	}

	bike := ranked[2]
	if bike.SuccessRate != 0 || bike.CancellationRate != 50 || bike.Failed != 1 || bike.AvgDeliveryHours != nil {
		t.Fatalf("bike=%+v", bike)
	}

	top, err := fx.env.reports.TransporterRanking(ctx, ReportPeriod{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].TransporterID != fx.car {
		t.Fatalf("default window top=%+v", top)
	}
}
