package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Dispatch holds the tuning tables used by assignment, ETA estimation and the
// reconciliation sweeps. Map keys are vehicle types or priorities.
type Dispatch struct {
	WorkloadCaps       map[string]int     `mapstructure:"workload_caps"`
	DefaultWorkloadCap int                `mapstructure:"default_workload_cap"`
	VehicleSpeedsKmh   map[string]float64 `mapstructure:"vehicle_speeds_kmh"`
	DefaultSpeedKmh    float64            `mapstructure:"default_speed_kmh"`
	VehicleSuitability map[string]float64 `mapstructure:"vehicle_suitability"`

	OverdueThresholds  map[string]time.Duration `mapstructure:"overdue_thresholds"`
	ApproachingWindows map[string]time.Duration `mapstructure:"approaching_windows"`
	ExpiryAges         map[string]time.Duration `mapstructure:"expiry_ages"`
	ETABufferFactors   map[string]float64       `mapstructure:"eta_buffer_factors"`

	EscalateAfter      time.Duration `mapstructure:"escalate_after"`
	ForceFailAfter     time.Duration `mapstructure:"force_fail_after"`
	PickupLapse        time.Duration `mapstructure:"pickup_lapse"`
	StuckAssignedAfter time.Duration `mapstructure:"stuck_assigned_after"`
	StuckPickupGrace   time.Duration `mapstructure:"stuck_pickup_grace"`
	DelayNoteAfter     time.Duration `mapstructure:"delay_note_after"`

	LocationFreshness time.Duration `mapstructure:"location_freshness"`
	OfflineAfter      time.Duration `mapstructure:"offline_after"`
	ReactivateWithin  time.Duration `mapstructure:"reactivate_within"`

	RecentPerformanceWindow time.Duration `mapstructure:"recent_performance_window"`
	MetricsWindow           time.Duration `mapstructure:"metrics_window"`
	MetricsTTL              time.Duration `mapstructure:"metrics_ttl"`
	TrackingRetention       time.Duration `mapstructure:"tracking_retention"`

	BaseBufferMinutes       float64 `mapstructure:"base_buffer_minutes"`
	FragileBufferMinutes    float64 `mapstructure:"fragile_buffer_minutes"`
	SignatureBufferMinutes  float64 `mapstructure:"signature_buffer_minutes"`
	HeavyBufferMinutes      float64 `mapstructure:"heavy_buffer_minutes"`
	HeavyPackageKg          float64 `mapstructure:"heavy_package_kg"`
	LongHaulKm              float64 `mapstructure:"long_haul_km"`
	LongHaulBufferIncrement float64 `mapstructure:"long_haul_buffer_increment"`
	HighValueThreshold      float64 `mapstructure:"high_value_threshold"`
	DefaultMaxAttempts      int     `mapstructure:"default_max_attempts"`
	AlternativesLimit       int     `mapstructure:"alternatives_limit"`
}

func DefaultDispatch() Dispatch {
	return Dispatch{
		WorkloadCaps: map[string]int{
			"bicycle": 2, "bike": 3, "car": 4, "van": 6, "truck": 8, "other": 3,
		},
		DefaultWorkloadCap: 3,
		VehicleSpeedsKmh: map[string]float64{
			"bicycle": 15, "bike": 35, "car": 40, "van": 35, "truck": 30, "other": 30,
		},
		DefaultSpeedKmh: 30,
		VehicleSuitability: map[string]float64{
			"bicycle": 0.6, "bike": 0.8, "car": 1.0, "van": 1.2, "truck": 1.5, "other": 0.9,
		},
		OverdueThresholds: map[string]time.Duration{
			"urgent":   30 * time.Minute,
			"same_day": time.Hour,
			"high":     2 * time.Hour,
			"normal":   4 * time.Hour,
			"low":      8 * time.Hour,
		},
		ApproachingWindows: map[string]time.Duration{
			"urgent":   15 * time.Minute,
			"same_day": 30 * time.Minute,
			"high":     time.Hour,
			"normal":   time.Hour,
			"low":      2 * time.Hour,
		},
		ExpiryAges: map[string]time.Duration{
			"urgent":   2 * time.Hour,
			"same_day": 6 * time.Hour,
			"high":     12 * time.Hour,
			"normal":   24 * time.Hour,
			"low":      48 * time.Hour,
		},
		ETABufferFactors: map[string]float64{
			"urgent":   1.1,
			"same_day": 1.2,
			"high":     1.3,
			"normal":   1.3,
			"low":      1.3,
		},
		EscalateAfter:      24 * time.Hour,
		ForceFailAfter:     48 * time.Hour,
		PickupLapse:        4 * time.Hour,
		StuckAssignedAfter: 6 * time.Hour,
		StuckPickupGrace:   2 * time.Hour,
		DelayNoteAfter:     2 * time.Hour,

		LocationFreshness: 30 * time.Minute,
		OfflineAfter:      2 * time.Hour,
		ReactivateWithin:  30 * time.Minute,

		RecentPerformanceWindow: 7 * 24 * time.Hour,
		MetricsWindow:           30 * 24 * time.Hour,
		MetricsTTL:              time.Hour,
		TrackingRetention:       90 * 24 * time.Hour,

		BaseBufferMinutes:       30,
		FragileBufferMinutes:    15,
		SignatureBufferMinutes:  10,
		HeavyBufferMinutes:      10,
		HeavyPackageKg:          10,
		LongHaulKm:              50,
		LongHaulBufferIncrement: 0.2,
		HighValueThreshold:      1000,
		DefaultMaxAttempts:      3,
		AlternativesLimit:       4,
	}
}

// LoadDispatch overlays the file at path (if any) onto DefaultDispatch.
// Keys missing from the file keep their defaults, map entries are merged.
func LoadDispatch(path string) (Dispatch, error) {
	cfg := DefaultDispatch()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read dispatch config %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode dispatch config %q: %w", path, err)
	}
	return cfg, nil
}

func (d Dispatch) WorkloadCap(vehicleType string) int {
	if c, ok := d.WorkloadCaps[vehicleType]; ok {
		return c
	}
	return d.DefaultWorkloadCap
}

func (d Dispatch) SpeedKmh(vehicleType string) float64 {
	if s, ok := d.VehicleSpeedsKmh[vehicleType]; ok && s > 0 {
		return s
	}
	return d.DefaultSpeedKmh
}

func (d Dispatch) Suitability(vehicleType string) float64 {
	if m, ok := d.VehicleSuitability[vehicleType]; ok {
		return m
	}
	return 1.0
}

func (d Dispatch) OverdueThreshold(priority string) time.Duration {
	if t, ok := d.OverdueThresholds[priority]; ok {
		return t
	}
	return d.OverdueThresholds["normal"]
}

func (d Dispatch) ApproachingWindow(priority string) time.Duration {
	if t, ok := d.ApproachingWindows[priority]; ok {
		return t
	}
	return d.ApproachingWindows["normal"]
}

func (d Dispatch) ExpiryAge(priority string) time.Duration {
	if t, ok := d.ExpiryAges[priority]; ok {
		return t
	}
	return d.ExpiryAges["normal"]
}

func (d Dispatch) ETABufferFactor(priority string) float64 {
	if f, ok := d.ETABufferFactors[priority]; ok {
		return f
	}
	return 1.3
}
