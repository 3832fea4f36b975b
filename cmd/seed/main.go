package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/joho/godotenv"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/db"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/server"
	"github.com/shinyyama/dispatch-backend/internal/service"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Seed points are scattered around this city centre.
var centre = geo.Point{Lat: 27.7172, Lon: 85.3240}

var vehicles = []model.VehicleType{
	model.VehicleBicycle, model.VehicleBike, model.VehicleCar, model.VehicleVan, model.VehicleTruck,
}

var capacities = map[model.VehicleType]float64{
	model.VehicleBicycle: 10, model.VehicleBike: 20, model.VehicleCar: 100, model.VehicleVan: 500, model.VehicleTruck: 2000,
}

func main() {
	transporters := flag.Int("transporters", 20, "number of transporters to create")
	deliveries := flag.Int("deliveries", 60, "number of deliveries to create")
	flag.Parse()

	if err := run(*transporters, *deliveries); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run(nTransporters, nDeliveries int) error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dispatch, err := config.LoadDispatch(cfg.DispatchConfig)
	if err != nil {
		return err
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("transporters already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	svcs := server.NewServices(gdb, server.Deps{Dispatch: dispatch})
	fake := faker.New()
	now := time.Now().UTC()

	for i := 0; i < nTransporters; i++ {
		t, err := svcs.Transporters.Register(ctx, fakeTransporter(fake, i, now))
		if err != nil {
			return fmt.Errorf("register transporter %d: %w", i, err)
		}
		if fake.IntBetween(1, 10) <= 8 {
			if _, err := svcs.Transporters.Verify(ctx, t.ID); err != nil {
				return fmt.Errorf("verify transporter %d: %w", t.ID, err)
			}
		}
	}
	log.Printf("seeded %d transporters", nTransporters)

	for i := 0; i < nDeliveries; i++ {
		if _, err := svcs.Deliveries.Create(ctx, fakeDelivery(fake, i, now), "seed"); err != nil {
			return fmt.Errorf("create delivery %d: %w", i, err)
		}
	}
	log.Printf("seeded %d deliveries", nDeliveries)
	return nil
}

func jitter(fake faker.Faker, p geo.Point, spreadKm int) geo.Point {
	// ~0.009 degrees per km
	dLat := fake.Float64(6, -spreadKm*9, spreadKm*9) / 1000
	dLon := fake.Float64(6, -spreadKm*9, spreadKm*9) / 1000
	return geo.Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}

func fakeTransporter(fake faker.Faker, i int, now time.Time) service.RegisterTransporterInput {
	vt := vehicles[fake.IntBetween(0, len(vehicles)-1)]
	loc := jitter(fake, centre, 8)
	licenseExpiry := now.AddDate(fake.IntBetween(1, 4), 0, 0)
	insuranceExpiry := now.AddDate(0, fake.IntBetween(2, 18), 0)
	return service.RegisterTransporterInput{
		Name:            fake.Person().Name(),
		Phone:           fake.Phone().Number(),
		Email:           fake.Internet().Email(),
		LicenseNumber:   fmt.Sprintf("LIC-%05d-%s", i+1, strings.ToUpper(fake.Lorem().Word())),
		VehicleType:     vt,
		VehicleNumber:   fmt.Sprintf("BA %d PA %04d", fake.IntBetween(1, 99), fake.IntBetween(1, 9999)),
		VehicleCapacity: capacities[vt],
		ServiceRadiusKm: float64(fake.IntBetween(5, 20)),
		CommissionRate:  decimal.NewFromInt(int64(fake.IntBetween(8, 15))),
		LicenseExpiry:   &licenseExpiry,
		InsuranceExpiry: &insuranceExpiry,
		Location:        &loc,
	}
}

func fakeDelivery(fake faker.Faker, i int, now time.Time) service.CreateDeliveryInput {
	pickup := jitter(fake, centre, 6)
	drop := jitter(fake, pickup, 10)
	priority := model.Priorities[fake.IntBetween(0, len(model.Priorities)-1)]
	pickupAt := now.Add(time.Duration(fake.IntBetween(30, 360)) * time.Minute)
	ref := uint64(100000 + i)

	in := service.CreateDeliveryInput{
		PickupAddress:         fake.Address().StreetAddress(),
		PickupLatitude:        &pickup.Lat,
		PickupLongitude:       &pickup.Lon,
		PickupContactName:     fake.Person().Name(),
		PickupContactPhone:    fake.Phone().Number(),
		DeliveryAddress:       fake.Address().StreetAddress(),
		DeliveryLatitude:      &drop.Lat,
		DeliveryLongitude:     &drop.Lon,
		DeliveryContactName:   fake.Person().Name(),
		DeliveryContactPhone:  fake.Phone().Number(),
		PackageWeight:         fake.Float64(1, 1, 40),
		PackageValue:          decimal.NewFromFloat(fake.Float64(2, 200, 5000)),
		Fragile:               fake.IntBetween(1, 5) == 1,
		RequiresSignature:     fake.IntBetween(1, 4) == 1,
		SpecialInstructions:   fake.Lorem().Sentence(6),
		Priority:              priority,
		DeliveryFee:           decimal.NewFromInt(int64(fake.IntBetween(80, 400))),
		RequestedPickupDate:   pickupAt,
		RequestedDeliveryDate: pickupAt.Add(time.Duration(fake.IntBetween(1, 8)) * time.Hour),
	}
	if i%2 == 0 {
		in.OrderID = &ref
	} else {
		in.SaleID = &ref
	}
	return in
}

func shouldSeed(gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.Model(&model.Transporter{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count transporters: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}
