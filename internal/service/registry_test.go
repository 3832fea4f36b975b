package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func eligibleIDs(cands []Candidate) []uint64 {
	out := make([]uint64, len(cands))
	for i, c := range cands {
		out[i] = c.Transporter.ID
	}
	return out
}

// loadTransporter gives id n active deliveries.
func loadTransporter(db *memDB, id uint64, n int) {
	for i := 0; i < n; i++ {
		d := sampleDelivery(testNow)
		d.Status = model.DeliveryAssigned
		d.TransporterID = up(id)
		d.AssignedAt = tp(testNow)
		db.addDelivery(d)
	}
}

func TestFindEligiblePipeline(t *testing.T) {
	env := newTestEnv(t, testNow)
	d := env.db.addDelivery(sampleDelivery(testNow))

	ok := env.db.addTransporter(sampleTransporter(testNow))

	cases := map[string]func(tr *model.Transporter){
		"unavailable": func(tr *model.Transporter) { tr.IsAvailable = false },
		"unverified":  func(tr *model.Transporter) { tr.IsVerified = false },
		"suspended":   func(tr *model.Transporter) { tr.Status = model.TransporterSuspended },
		"license expired": func(tr *model.Transporter) {
			tr.LicenseExpiry = tp(testNow.Add(-24 * time.Hour))
		},
		"insurance expires today": func(tr *model.Transporter) {
			tr.InsuranceExpiry = tp(testNow.Add(time.Hour))
		},
		"too small":    func(tr *model.Transporter) { tr.VehicleCapacity = 2 },
		"out of range": func(tr *model.Transporter) { tr.CurrentLatitude, tr.CurrentLongitude = fp(28.2096), fp(83.9856) },
	}
	for name, mutate := range cases {
		tr := sampleTransporter(testNow)
		mutate(&tr)
		added := env.db.addTransporter(tr)
		t.Logf("%s -> transporter %d", name, added.ID)
	}
	full := env.db.addTransporter(sampleTransporter(testNow))
	loadTransporter(env.db, full.ID, 4)

	got, err := env.registry.FindEligible(context.Background(), d)
	if err != nil {
		t.Fatalf("find eligible: %v", err)
	}
	if ids := eligibleIDs(got); len(ids) != 1 || ids[0] != ok.ID {
		t.Fatalf("eligible=%v want [%d]", ids, ok.ID)
	}
	if got[0].DistanceKm == nil || *got[0].DistanceKm > 0.2 {
		t.Fatalf("distance=%v want ~0.15km", got[0].DistanceKm)
	}
}

func TestFindEligibleEmptyIsNotAnError(t *testing.T) {
	env := newTestEnv(t, testNow)
	d := env.db.addDelivery(sampleDelivery(testNow))
	got, err := env.registry.FindEligible(context.Background(), d)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d candidates", len(got))
	}
}

func TestWorkloadCapPerVehicle(t *testing.T) {
	tests := []struct {
		vehicle model.VehicleType
		active  int
		want    bool
	}{
		{model.VehicleCar, 3, true},
		{model.VehicleCar, 4, false},
		{model.VehicleBicycle, 1, true},
		{model.VehicleBicycle, 2, false},
		{model.VehicleTruck, 7, true},
		{model.VehicleTruck, 8, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.vehicle), func(t *testing.T) {
			env := newTestEnv(t, testNow)
			tr := sampleTransporter(testNow)
			tr.VehicleType = tt.vehicle
			added := env.db.addTransporter(tr)
			loadTransporter(env.db, added.ID, tt.active)
			d := env.db.addDelivery(sampleDelivery(testNow))

			got, err := env.registry.FindEligible(context.Background(), d)
			if err != nil {
				t.Fatal(err)
			}
			if (len(got) == 1) != tt.want {
				t.Fatalf("%s with %d active: eligible=%v want %v", tt.vehicle, tt.active, len(got) == 1, tt.want)
			}
		})
	}
}

func TestUnknownLocationPassesRadius(t *testing.T) {
	env := newTestEnv(t, testNow)
	tr := sampleTransporter(testNow)
	tr.CurrentLatitude, tr.CurrentLongitude, tr.LastLocationUpdate = nil, nil, nil
	added := env.db.addTransporter(tr)
	d := env.db.addDelivery(sampleDelivery(testNow))

	got, err := env.registry.FindEligible(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Transporter.ID != added.ID || got[0].DistanceKm != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestRaisingCapacityRestoresEligibility(t *testing.T) {
	tr := sampleTransporter(testNow)
	tr.ID = 1
	tr.VehicleCapacity = 10
	d := sampleDelivery(testNow)
	d.PackageWeight = 25
	c := Candidate{Transporter: tr, DistanceKm: fp(1)}

	env := newTestEnv(t, testNow)
	preds := env.registry.(*transporterRegistry).autoPipeline(&d, testNow)
	if got := FirstFailure(c, preds...); got != "insufficient_capacity" {
		t.Fatalf("first failure=%q want insufficient_capacity", got)
	}
	for _, capacity := range []float64{25, 26, 1000} {
		c.Transporter.VehicleCapacity = capacity
		if got := FirstFailure(c, preds...); got != "" {
			t.Fatalf("capacity %v: still excluded by %q", capacity, got)
		}
	}
}

func TestFilterNeverGrowsWithMorePredicates(t *testing.T) {
	env := newTestEnv(t, testNow)
	d := sampleDelivery(testNow)
	var cands []Candidate
	for i, mutate := range []func(*model.Transporter){
		func(*model.Transporter) {},
		func(tr *model.Transporter) { tr.IsAvailable = false },
		func(tr *model.Transporter) { tr.IsVerified = false },
		func(tr *model.Transporter) { tr.VehicleCapacity = 1 },
		func(tr *model.Transporter) { tr.ServiceRadiusKm = 0.01 },
	} {
		tr := sampleTransporter(testNow)
		tr.ID = uint64(i + 1)
		mutate(&tr)
		cands = append(cands, Candidate{Transporter: tr, DistanceKm: fp(0.15)})
	}
	preds := env.registry.(*transporterRegistry).autoPipeline(&d, testNow)
	prev := len(cands)
	for k := 0; k <= len(preds); k++ {
		n := len(Filter(cands, preds[:k]...))
		if n > prev {
			t.Fatalf("adding predicate %d grew the result from %d to %d", k, prev, n)
		}
		prev = n
	}
	if prev != 1 {
		t.Fatalf("survivors=%d want 1", prev)
	}
}

func TestCheckManual(t *testing.T) {
	env := newTestEnv(t, testNow)
	ctx := context.Background()
	d := env.db.addDelivery(sampleDelivery(testNow))

	offShift := sampleTransporter(testNow)
	offShift.IsAvailable = false
	offShift.CurrentLatitude, offShift.CurrentLongitude = fp(28.2096), fp(83.9856)
	off := env.db.addTransporter(offShift)
	if _, err := env.registry.CheckManual(ctx, d, off.ID); err != nil {
		t.Fatalf("off-shift distant transporter should be assignable manually: %v", err)
	}

	unverified := sampleTransporter(testNow)
	unverified.IsVerified = false
	uv := env.db.addTransporter(unverified)
	if _, err := env.registry.CheckManual(ctx, d, uv.ID); !errors.Is(err, ErrIneligible) {
		t.Fatalf("unverified: err=%v want ErrIneligible", err)
	}

	if _, err := env.registry.CheckManual(ctx, d, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: err=%v want ErrNotFound", err)
	}
}
