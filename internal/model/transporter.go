package model

import (
	"time"

	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shopspring/decimal"
)

type VehicleType string

const (
	VehicleBicycle VehicleType = "bicycle"
	VehicleBike    VehicleType = "bike"
	VehicleCar     VehicleType = "car"
	VehicleVan     VehicleType = "van"
	VehicleTruck   VehicleType = "truck"
	VehicleOther   VehicleType = "other"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleBicycle, VehicleBike, VehicleCar, VehicleVan, VehicleTruck, VehicleOther:
		return true
	}
	return false
}

type TransporterStatus string

const (
	TransporterActive    TransporterStatus = "active"
	TransporterInactive  TransporterStatus = "inactive"
	TransporterSuspended TransporterStatus = "suspended"
	TransporterOffline   TransporterStatus = "offline"
)

type Transporter struct {
	ID              uint64      `gorm:"primaryKey;autoIncrement"`
	UserUID         string      `gorm:"column:user_uid;size:128;uniqueIndex"`
	Name            string      `gorm:"column:name;size:255;not null"`
	Phone           string      `gorm:"column:phone;size:32;not null"`
	Email           string      `gorm:"column:email;size:255"`
	LicenseNumber   string      `gorm:"column:license_number;size:50;uniqueIndex;not null"`
	VehicleType     VehicleType `gorm:"column:vehicle_type;size:20;index;not null"`
	VehicleNumber   string      `gorm:"column:vehicle_number;size:20"`
	VehicleCapacity float64     `gorm:"column:vehicle_capacity;not null"` // kg

	CurrentLatitude    *float64   `gorm:"column:current_latitude;index:idx_transporter_location"`
	CurrentLongitude   *float64   `gorm:"column:current_longitude;index:idx_transporter_location"`
	LastLocationUpdate *time.Time `gorm:"column:last_location_update"`
	ServiceRadiusKm    float64    `gorm:"column:service_radius_km;not null"`

	IsAvailable bool              `gorm:"column:is_available;index:idx_transporter_dispatch;not null"`
	IsVerified  bool              `gorm:"column:is_verified;index:idx_transporter_dispatch;not null"`
	Status      TransporterStatus `gorm:"column:status;size:20;index:idx_transporter_dispatch;not null"`

	Rating               float64         `gorm:"column:rating;not null"`
	TotalDeliveries      int             `gorm:"column:total_deliveries;not null"`
	SuccessfulDeliveries int             `gorm:"column:successful_deliveries;not null"`
	CancelledDeliveries  int             `gorm:"column:cancelled_deliveries;not null"`
	CommissionRate       decimal.Decimal `gorm:"column:commission_rate;type:decimal(5,2);not null"` // percent
	EarningsTotal        decimal.Decimal `gorm:"column:earnings_total;type:decimal(12,2);not null"`

	LicenseExpiry   *time.Time `gorm:"column:license_expiry"`
	InsuranceExpiry *time.Time `gorm:"column:insurance_expiry"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Transporter) TableName() string {
	return "transporters"
}

// SuccessRate is successful/total deliveries as a percentage; 0 when total is 0.
func (t *Transporter) SuccessRate() float64 {
	if t.TotalDeliveries == 0 {
		return 0
	}
	return float64(t.SuccessfulDeliveries) / float64(t.TotalDeliveries) * 100
}

// CancellationRate is cancelled/total deliveries as a percentage; 0 when total is 0.
func (t *Transporter) CancellationRate() float64 {
	if t.TotalDeliveries == 0 {
		return 0
	}
	return float64(t.CancelledDeliveries) / float64(t.TotalDeliveries) * 100
}

func (t *Transporter) Location() (geo.Point, bool) {
	if t.CurrentLatitude == nil || t.CurrentLongitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *t.CurrentLatitude, Lon: *t.CurrentLongitude}, true
}

// DocumentsExpired reports whether the license or insurance expires on or
// before the calendar day of now.
func (t *Transporter) DocumentsExpired(now time.Time) bool {
	return expiresBy(t.LicenseExpiry, now) || expiresBy(t.InsuranceExpiry, now)
}

// LocationFresh reports whether the last location update happened within d of now.
func (t *Transporter) LocationFresh(now time.Time, d time.Duration) bool {
	if t.LastLocationUpdate == nil {
		return false
	}
	return now.Sub(*t.LastLocationUpdate) <= d
}

func expiresBy(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return false
	}
	return !startOfDay(expiry.In(now.Location())).After(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
