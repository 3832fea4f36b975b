package model

import (
	"time"

	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryAvailable DeliveryStatus = "available"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
	DeliveryReturned  DeliveryStatus = "returned"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ActiveStatuses count against a transporter's workload cap.
var ActiveStatuses = []DeliveryStatus{DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit}

var AllDeliveryStatuses = []DeliveryStatus{
	DeliveryAvailable, DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit,
	DeliveryDelivered, DeliveryCancelled, DeliveryReturned, DeliveryFailed,
}

func (s DeliveryStatus) Valid() bool {
	for _, v := range AllDeliveryStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s DeliveryStatus) Active() bool {
	return s == DeliveryAssigned || s == DeliveryPickedUp || s == DeliveryInTransit
}

type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityNormal  Priority = "normal"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
	PrioritySameDay Priority = "same_day"
)

// Priorities is ordered from most to least pressing.
var Priorities = []Priority{PrioritySameDay, PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// Rank orders priorities for dispatch: same_day=0 ... low=4, unknown last.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if v == p {
			return i
		}
	}
	return len(Priorities)
}

func (p Priority) Valid() bool {
	return p.Rank() < len(Priorities)
}

// Expedited priorities favour fast vehicles and may be force-failed when badly overdue.
func (p Priority) Expedited() bool {
	return p == PriorityUrgent || p == PrioritySameDay
}

type Delivery struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	DeliveryID   string `gorm:"column:delivery_id;size:36;uniqueIndex;not null"`
	TrackingCode string `gorm:"column:tracking_code;size:32;uniqueIndex;not null"`

	// Exactly one upstream reference is set.
	OrderID *uint64 `gorm:"column:order_id;uniqueIndex"`
	SaleID  *uint64 `gorm:"column:sale_id;uniqueIndex"`

	PickupAddress      string   `gorm:"column:pickup_address;type:text;not null"`
	PickupLatitude     *float64 `gorm:"column:pickup_latitude;index:idx_delivery_pickup"`
	PickupLongitude    *float64 `gorm:"column:pickup_longitude;index:idx_delivery_pickup"`
	PickupContactName  string   `gorm:"column:pickup_contact_name;size:255;not null"`
	PickupContactPhone string   `gorm:"column:pickup_contact_phone;size:32;not null"`

	DeliveryAddress      string   `gorm:"column:delivery_address;type:text;not null"`
	DeliveryLatitude     *float64 `gorm:"column:delivery_latitude;index:idx_delivery_dropoff"`
	DeliveryLongitude    *float64 `gorm:"column:delivery_longitude;index:idx_delivery_dropoff"`
	DeliveryContactName  string   `gorm:"column:delivery_contact_name;size:255;not null"`
	DeliveryContactPhone string   `gorm:"column:delivery_contact_phone;size:32;not null"`

	PackageWeight       float64         `gorm:"column:package_weight;not null"` // kg
	PackageDimensions   string          `gorm:"column:package_dimensions;size:100"`
	PackageValue        decimal.Decimal `gorm:"column:package_value;type:decimal(12,2);not null"`
	Fragile             bool            `gorm:"column:fragile;not null"`
	RequiresSignature   bool            `gorm:"column:requires_signature;not null"`
	SpecialInstructions string          `gorm:"column:special_instructions;type:text"`

	Priority      Priority       `gorm:"column:priority;size:10;index:idx_delivery_priority_status;not null"`
	Status        DeliveryStatus `gorm:"column:status;size:20;index:idx_delivery_priority_status;index:idx_delivery_transporter_status;not null"`
	TransporterID *uint64        `gorm:"column:transporter_id;index:idx_delivery_transporter_status"`
	Transporter   *Transporter   `gorm:"foreignKey:TransporterID;constraint:OnDelete:SET NULL"`

	DeliveryFee           decimal.Decimal `gorm:"column:delivery_fee;type:decimal(10,2);not null"`
	DistanceKm            *float64        `gorm:"column:distance_km"`
	EstimatedDeliveryTime *time.Time      `gorm:"column:estimated_delivery_time"`

	RequestedPickupDate   time.Time `gorm:"column:requested_pickup_date;index;not null"`
	RequestedDeliveryDate time.Time `gorm:"column:requested_delivery_date;not null"`

	AssignedAt         *time.Time `gorm:"column:assigned_at"`
	PickedUpAt         *time.Time `gorm:"column:picked_up_at"`
	DeliveredAt        *time.Time `gorm:"column:delivered_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`

	DeliveryAttempts    int `gorm:"column:delivery_attempts;not null"`
	MaxDeliveryAttempts int `gorm:"column:max_delivery_attempts;not null"`

	ProofPhotoRef string `gorm:"column:proof_photo_ref;size:512"`
	SignatureRef  string `gorm:"column:signature_ref;size:512"`

	Tracking []DeliveryTracking `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
	Rating   *DeliveryRating    `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

func (d *Delivery) PickupPoint() (geo.Point, bool) {
	if d.PickupLatitude == nil || d.PickupLongitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *d.PickupLatitude, Lon: *d.PickupLongitude}, true
}

func (d *Delivery) DropoffPoint() (geo.Point, bool) {
	if d.DeliveryLatitude == nil || d.DeliveryLongitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *d.DeliveryLatitude, Lon: *d.DeliveryLongitude}, true
}

// RouteDistanceKm is the pickup-to-dropoff distance, if both points are known.
func (d *Delivery) RouteDistanceKm() (float64, bool) {
	from, ok := d.PickupPoint()
	if !ok {
		return 0, false
	}
	to, ok := d.DropoffPoint()
	if !ok {
		return 0, false
	}
	return geo.Distance(from, to), true
}

// OnTime reports whether a delivered delivery arrived by its requested time.
func (d *Delivery) OnTime() bool {
	return d.DeliveredAt != nil && !d.DeliveredAt.After(d.RequestedDeliveryDate)
}
