package service

import (
	"time"

	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/model"
)

// TimeOfDayMultiplier scales travel speed: rush hours [7,9) and [17,19) are
// slower, late night [22,6) is faster.
func TimeOfDayMultiplier(t time.Time) float64 {
	h := t.Hour()
	switch {
	case (h >= 7 && h < 9) || (h >= 17 && h < 19):
		return 0.6
	case h >= 22 || h < 6:
		return 1.2
	default:
		return 1.0
	}
}

// HandlingBufferMinutes is the fixed handling time added to every estimate.
func HandlingBufferMinutes(cfg config.Dispatch, d *model.Delivery) float64 {
	buf := cfg.BaseBufferMinutes
	if d.Fragile {
		buf += cfg.FragileBufferMinutes
	}
	if d.RequiresSignature {
		buf += cfg.SignatureBufferMinutes
	}
	if d.PackageWeight > cfg.HeavyPackageKg {
		buf += cfg.HeavyBufferMinutes
	}
	return buf
}

// RefreshBufferMinutes scales the handling buffer by priority and adds a
// long-haul increment to the factor for long remaining legs.
func RefreshBufferMinutes(cfg config.Dispatch, d *model.Delivery, remainingKm float64) float64 {
	factor := cfg.ETABufferFactor(string(d.Priority))
	if remainingKm > cfg.LongHaulKm {
		factor += cfg.LongHaulBufferIncrement
	}
	return HandlingBufferMinutes(cfg, d) * factor
}

type ETAParams struct {
	Vehicle     model.VehicleType
	RouteKm     float64
	PickupLegKm float64
	BufferMin   float64
	// SpeedMultiplier scales the vehicle speed; zero means 1.
	SpeedMultiplier float64
}

func EstimateDeliveryTime(cfg config.Dispatch, now time.Time, p ETAParams) time.Time {
	mult := p.SpeedMultiplier
	if mult <= 0 {
		mult = 1
	}
	speed := cfg.SpeedKmh(string(p.Vehicle)) * mult
	travel := (p.RouteKm + p.PickupLegKm) / speed
	return now.
		Add(time.Duration(travel * float64(time.Hour))).
		Add(time.Duration(p.BufferMin * float64(time.Minute)))
}
