package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shinyyama/dispatch-backend/internal/storage"
	"github.com/shopspring/decimal"
)

type CreateDeliveryInput struct {
	OrderID *uint64
	SaleID  *uint64

	PickupAddress      string
	PickupLatitude     *float64
	PickupLongitude    *float64
	PickupContactName  string
	PickupContactPhone string

	DeliveryAddress      string
	DeliveryLatitude     *float64
	DeliveryLongitude    *float64
	DeliveryContactName  string
	DeliveryContactPhone string

	PackageWeight       float64
	PackageDimensions   string
	PackageValue        decimal.Decimal
	Fragile             bool
	RequiresSignature   bool
	SpecialInstructions string

	Priority              model.Priority
	DeliveryFee           decimal.Decimal
	RequestedPickupDate   time.Time
	RequestedDeliveryDate time.Time
	MaxDeliveryAttempts   int
}

type Suggestion struct {
	Delivery   model.Delivery `json:"delivery"`
	DistanceKm float64        `json:"distanceKm"`
}

const (
	defaultSuggestionRadiusKm = 20
	defaultSuggestionLimit    = 10
)

type DeliveryService interface {
	Create(ctx context.Context, in CreateDeliveryInput, actor string) (*model.Delivery, error)
	Get(ctx context.Context, id uint64) (*model.Delivery, error)
	Tracking(ctx context.Context, id uint64) ([]model.DeliveryTracking, error)
	// Suggestions lists available deliveries whose pickup is near the transporter.
	Suggestions(ctx context.Context, transporterID uint64, maxDistanceKm float64, limit int) ([]Suggestion, error)
	UploadProof(ctx context.Context, id uint64, kind storage.ProofKind, contentType string, data []byte) (string, error)
}

type deliveryService struct {
	deliveries   repository.DeliveryRepository
	transporters repository.TransporterRepository
	tracking     repository.TrackingRepository
	proofs       storage.ProofStore
	cfg          config.Dispatch
	clock        Clock
}

func NewDeliveryService(deliveries repository.DeliveryRepository, transporters repository.TransporterRepository, tracking repository.TrackingRepository, proofs storage.ProofStore, cfg config.Dispatch, clock Clock) DeliveryService {
	if proofs == nil {
		proofs = storage.NewDisabledProofStore()
	}
	return &deliveryService{
		deliveries:   deliveries,
		transporters: transporters,
		tracking:     tracking,
		proofs:       proofs,
		cfg:          cfg,
		clock:        clock,
	}
}

func optionalPoint(lat, lon *float64, what string) error {
	if (lat == nil) != (lon == nil) {
		return validationf("%s latitude and longitude must be given together", what)
	}
	if lat != nil && !geo.ValidCoordinates(*lat, *lon) {
		return validationf("%s coordinates out of range", what)
	}
	return nil
}

func validateCreate(in *CreateDeliveryInput) error {
	if (in.OrderID == nil) == (in.SaleID == nil) {
		return validationf("exactly one of orderId or saleId is required")
	}
	required := map[string]string{
		"pickupAddress":        in.PickupAddress,
		"pickupContactName":    in.PickupContactName,
		"pickupContactPhone":   in.PickupContactPhone,
		"deliveryAddress":      in.DeliveryAddress,
		"deliveryContactName":  in.DeliveryContactName,
		"deliveryContactPhone": in.DeliveryContactPhone,
	}
	var missing []string
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return validationf("missing %s", strings.Join(missing, ", "))
	}
	if in.PackageWeight <= 0 {
		return validationf("packageWeight must be positive")
	}
	if in.PackageValue.IsNegative() || in.DeliveryFee.IsNegative() {
		return validationf("packageValue and deliveryFee must not be negative")
	}
	if err := optionalPoint(in.PickupLatitude, in.PickupLongitude, "pickup"); err != nil {
		return err
	}
	if err := optionalPoint(in.DeliveryLatitude, in.DeliveryLongitude, "delivery"); err != nil {
		return err
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		return validationf("unknown priority %q", in.Priority)
	}
	if in.RequestedPickupDate.IsZero() || in.RequestedDeliveryDate.IsZero() {
		return validationf("requested pickup and delivery dates are required")
	}
	if in.RequestedDeliveryDate.Before(in.RequestedPickupDate) {
		return validationf("requested delivery date precedes pickup date")
	}
	if in.MaxDeliveryAttempts < 0 {
		return validationf("maxDeliveryAttempts must not be negative")
	}
	return nil
}

// NewTrackingCode returns TRK- followed by ten upper-case hex characters.
func NewTrackingCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK-" + strings.ToUpper(hex[:10])
}

func (s *deliveryService) Create(ctx context.Context, in CreateDeliveryInput, actor string) (*model.Delivery, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}
	maxAttempts := in.MaxDeliveryAttempts
	if maxAttempts == 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}
	d := &model.Delivery{
		DeliveryID:            uuid.NewString(),
		TrackingCode:          NewTrackingCode(),
		OrderID:               in.OrderID,
		SaleID:                in.SaleID,
		PickupAddress:         in.PickupAddress,
		PickupLatitude:        in.PickupLatitude,
		PickupLongitude:       in.PickupLongitude,
		PickupContactName:     in.PickupContactName,
		PickupContactPhone:    in.PickupContactPhone,
		DeliveryAddress:       in.DeliveryAddress,
		DeliveryLatitude:      in.DeliveryLatitude,
		DeliveryLongitude:     in.DeliveryLongitude,
		DeliveryContactName:   in.DeliveryContactName,
		DeliveryContactPhone:  in.DeliveryContactPhone,
		PackageWeight:         in.PackageWeight,
		PackageDimensions:     in.PackageDimensions,
		PackageValue:          in.PackageValue,
		Fragile:               in.Fragile,
		RequiresSignature:     in.RequiresSignature,
		SpecialInstructions:   in.SpecialInstructions,
		Priority:              in.Priority,
		Status:                model.DeliveryAvailable,
		DeliveryFee:           in.DeliveryFee,
		RequestedPickupDate:   in.RequestedPickupDate,
		RequestedDeliveryDate: in.RequestedDeliveryDate,
		MaxDeliveryAttempts:   maxAttempts,
	}
	if km, ok := d.RouteDistanceKm(); ok {
		d.DistanceKm = &km
	}
	entry := &model.DeliveryTracking{
		Status:    model.DeliveryAvailable,
		Notes:     "Delivery created",
		ActorUID:  actor,
		Timestamp: s.clock.now(),
	}
	if err := s.deliveries.Create(ctx, d, entry); err != nil {
		return nil, err
	}
	log.Printf("[dispatch] delivery=%d created tracking=%s priority=%s", d.ID, d.TrackingCode, d.Priority)
	return d, nil
}

func (s *deliveryService) Get(ctx context.Context, id uint64) (*model.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (s *deliveryService) Tracking(ctx context.Context, id uint64) ([]model.DeliveryTracking, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.tracking.ListByDelivery(ctx, id)
}

func (s *deliveryService) Suggestions(ctx context.Context, transporterID uint64, maxDistanceKm float64, limit int) ([]Suggestion, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = defaultSuggestionRadiusKm
	}
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	t, err := s.transporters.FindByID(ctx, transporterID)
	if err != nil {
		return nil, notFound(err, "transporter", transporterID)
	}
	origin, ok := t.Location()
	if !ok {
		return nil, validationf("transporter %d has no known location", transporterID)
	}
	nearby, err := s.deliveries.ListAvailableInBox(ctx, geo.BoundingBox(origin, maxDistanceKm))
	if err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(nearby))
	for _, d := range nearby {
		pickup, ok := d.PickupPoint()
		if !ok || d.PackageWeight > t.VehicleCapacity {
			continue
		}
		dist := geo.Distance(origin, pickup)
		if dist > maxDistanceKm {
			continue
		}
		out = append(out, Suggestion{Delivery: d, DistanceKm: dist})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Delivery.Priority.Rank() < out[j].Delivery.Priority.Rank()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *deliveryService) UploadProof(ctx context.Context, id uint64, kind storage.ProofKind, contentType string, data []byte) (string, error) {
	if !kind.Valid() {
		return "", validationf("unknown proof kind %q", kind)
	}
	if len(data) == 0 {
		return "", validationf("empty proof upload")
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch d.Status {
	case model.DeliveryPickedUp, model.DeliveryInTransit, model.DeliveryDelivered:
	default:
		return "", fmt.Errorf("%w: proof can be attached only after pickup, delivery %d is %s", ErrInvalidTransition, id, d.Status)
	}
	ref, err := s.proofs.Put(ctx, d.ID, kind, contentType, data)
	if err != nil {
		return "", err
	}
	column := "proof_photo_ref"
	if kind == storage.ProofSignature {
		column = "signature_ref"
	}
	if err := s.deliveries.UpdateFields(ctx, d.ID, map[string]interface{}{column: ref}); err != nil {
		return "", err
	}
	return ref, nil
}
