package service

import (
	"math"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/model"
)

// ComputeMetrics summarises a transporter's terminal deliveries created inside
// window. Average delivery time runs from pickup to delivery.
func ComputeMetrics(transporterID uint64, deliveries []model.Delivery, window time.Duration, now time.Time) model.TransporterMetrics {
	m := model.TransporterMetrics{
		TransporterID: transporterID,
		WindowDays:    int(window / (24 * time.Hour)),
		ComputedAt:    now,
	}
	var hours float64
	var timed int
	for i := range deliveries {
		d := &deliveries[i]
		if d.TransporterID == nil || *d.TransporterID != transporterID {
			continue
		}
		switch d.Status {
		case model.DeliveryDelivered:
			m.Completed++
			m.Successful++
			if d.PickedUpAt != nil && d.DeliveredAt != nil {
				hours += d.DeliveredAt.Sub(*d.PickedUpAt).Hours()
				timed++
			}
		case model.DeliveryCancelled, model.DeliveryFailed:
			m.Completed++
		}
	}
	if m.Completed > 0 {
		m.SuccessRate = round2(float64(m.Successful) / float64(m.Completed) * 100)
	}
	if timed > 0 {
		m.AvgDeliveryHours = round2(hours / float64(timed))
	}
	return m
}

var terminalStatuses = []model.DeliveryStatus{model.DeliveryDelivered, model.DeliveryCancelled, model.DeliveryFailed}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
