package repository

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/shinyyama/dispatch-backend/internal/db"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// newTestDB opens a migrated sqlite database private to the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dispatch.db")), &gorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// newDryRunDB renders MySQL statements without a server and records the SQL
// of every query and update it builds.
func newDryRunDB(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()
	conn, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "dispatch:secret@tcp(127.0.0.1:3306)/dispatch?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	if err != nil {
		t.Fatalf("open dry run: %v", err)
	}
	var captured []string
	record := func(tx *gorm.DB) {
		captured = append(captured, tx.Statement.SQL.String())
	}
	if err := conn.Callback().Query().After("gorm:query").Register("test:capture_query", record); err != nil {
		t.Fatal(err)
	}
	if err := conn.Callback().Update().After("gorm:update").Register("test:capture_update", record); err != nil {
		t.Fatal(err)
	}
	return conn, &captured
}

func seedTransporter(t *testing.T, conn *gorm.DB, mutate func(*model.Transporter)) *model.Transporter {
	t.Helper()
	fake := faker.New()
	tr := model.Transporter{
		Name:            fake.Person().Name(),
		Phone:           fake.Phone().Number(),
		LicenseNumber:   "LIC-" + uuid.NewString(),
		VehicleType:     model.VehicleCar,
		VehicleCapacity: 100,
		ServiceRadiusKm: 10,
		IsAvailable:     true,
		IsVerified:      true,
		Status:          model.TransporterActive,
		CommissionRate:  decimal.NewFromInt(10),
		EarningsTotal:   decimal.Zero,
	}
	if mutate != nil {
		mutate(&tr)
	}
	if err := conn.Create(&tr).Error; err != nil {
		t.Fatalf("seed transporter: %v", err)
	}
	return &tr
}

func newDelivery(mutate func(*model.Delivery)) model.Delivery {
	fake := faker.New()
	lat, lon := 27.70, 85.32
	dLat, dLon := 27.67, 85.32
	d := model.Delivery{
		DeliveryID:            uuid.NewString(),
		TrackingCode:          fmt.Sprintf("TRK-%s", uuid.NewString()[:8]),
		PickupAddress:         fake.Address().StreetAddress(),
		PickupLatitude:        &lat,
		PickupLongitude:       &lon,
		PickupContactName:     fake.Person().Name(),
		PickupContactPhone:    fake.Phone().Number(),
		DeliveryAddress:       fake.Address().StreetAddress(),
		DeliveryLatitude:      &dLat,
		DeliveryLongitude:     &dLon,
		DeliveryContactName:   fake.Person().Name(),
		DeliveryContactPhone:  fake.Phone().Number(),
		PackageWeight:         5,
		PackageValue:          decimal.NewFromInt(200),
		Priority:              model.PriorityNormal,
		Status:                model.DeliveryAvailable,
		DeliveryFee:           decimal.NewFromInt(150),
		RequestedPickupDate:   baseTime.Add(time.Hour),
		RequestedDeliveryDate: baseTime.Add(3 * time.Hour),
		MaxDeliveryAttempts:   3,
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func seedDelivery(t *testing.T, conn *gorm.DB, mutate func(*model.Delivery)) *model.Delivery {
	t.Helper()
	d := newDelivery(mutate)
	if err := conn.Create(&d).Error; err != nil {
		t.Fatalf("seed delivery: %v", err)
	}
	return &d
}

func reloadDelivery(t *testing.T, conn *gorm.DB, id uint64) model.Delivery {
	t.Helper()
	var d model.Delivery
	if err := conn.First(&d, id).Error; err != nil {
		t.Fatalf("reload delivery %d: %v", id, err)
	}
	return d
}

func reloadTransporter(t *testing.T, conn *gorm.DB, id uint64) model.Transporter {
	t.Helper()
	var tr model.Transporter
	if err := conn.First(&tr, id).Error; err != nil {
		t.Fatalf("reload transporter %d: %v", id, err)
	}
	return tr
}

func trackingCount(t *testing.T, conn *gorm.DB, deliveryID uint64) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&model.DeliveryTracking{}).Where("delivery_id = ?", deliveryID).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func ids(list []model.Delivery) []uint64 {
	out := make([]uint64, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	return out
}

func u64(v uint64) *uint64 { return &v }

func f64(v float64) *float64 { return &v }
