package model

import "time"

// TransporterMetrics is a cached performance snapshot; it is never a source of truth.
type TransporterMetrics struct {
	TransporterID    uint64    `json:"transporterId"`
	WindowDays       int       `json:"windowDays"`
	Completed        int       `json:"completed"`
	Successful       int       `json:"successful"`
	SuccessRate      float64   `json:"successRate"`
	AvgDeliveryHours float64   `json:"avgDeliveryHours"`
	ComputedAt       time.Time `json:"computedAt"`
}
