package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shopspring/decimal"
)

var transitions = map[model.DeliveryStatus][]model.DeliveryStatus{
	model.DeliveryAvailable: {model.DeliveryAssigned, model.DeliveryCancelled},
	model.DeliveryAssigned:  {model.DeliveryPickedUp, model.DeliveryCancelled},
	model.DeliveryPickedUp:  {model.DeliveryInTransit, model.DeliveryReturned},
	model.DeliveryInTransit: {model.DeliveryDelivered, model.DeliveryReturned},
	model.DeliveryReturned:  {model.DeliveryAvailable},
}

// CanTransition reports whether to is reachable from from in one step.
// delivered, cancelled and failed have no outgoing transitions.
func CanTransition(from, to model.DeliveryStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionRequest asks for one user-driven status change.
type TransitionRequest struct {
	DeliveryID uint64
	To         model.DeliveryStatus
	// ExpectStatus, when set, rejects the change unless the delivery is
	// still in that status at commit time.
	ExpectStatus  model.DeliveryStatus
	Notes         string
	Location      *geo.Point
	ActorUID      string
	Reason        string
	ProofPhotoRef string
	SignatureRef  string
}

type DeliveryLifecycle interface {
	Transition(ctx context.Context, req TransitionRequest) (*model.Delivery, error)
	// Assign commits available -> assigned for t. extra is persisted with the
	// status change (distance, estimate).
	Assign(ctx context.Context, d *model.Delivery, t *model.Transporter, maxActive int, extra map[string]interface{}, notes, actor string) (*model.Delivery, error)
	// Release returns an assigned delivery to the pool and clears its
	// transporter. penalize counts it as a cancellation for that transporter.
	Release(ctx context.Context, d *model.Delivery, penalize bool, notes string) (*model.Delivery, error)
	// Fail forces an active delivery to failed.
	Fail(ctx context.Context, d *model.Delivery, notes string) (*model.Delivery, error)
	RecordFailedAttempt(ctx context.Context, deliveryID uint64, notes, actor string) (*model.Delivery, error)
	RecordPosition(ctx context.Context, deliveryID uint64, p geo.Point, notes, actor string) (*model.DeliveryTracking, error)
}

type deliveryLifecycle struct {
	deliveries   repository.DeliveryRepository
	transporters repository.TransporterRepository
	tracking     repository.TrackingRepository
	notifier     NotificationService
	clock        Clock
}

func NewDeliveryLifecycle(deliveries repository.DeliveryRepository, transporters repository.TransporterRepository, tracking repository.TrackingRepository, notifier NotificationService, clock Clock) DeliveryLifecycle {
	return &deliveryLifecycle{deliveries: deliveries, transporters: transporters, tracking: tracking, notifier: notifier, clock: clock}
}

func (l *deliveryLifecycle) load(ctx context.Context, id uint64) (*model.Delivery, error) {
	d, err := l.deliveries.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (l *deliveryLifecycle) entry(status model.DeliveryStatus, notes, actor string, p *geo.Point) *model.DeliveryTracking {
	e := &model.DeliveryTracking{Status: status, Notes: notes, ActorUID: actor, Timestamp: l.clock.now()}
	if p != nil {
		lat, lon := p.Lat, p.Lon
		e.Latitude, e.Longitude = &lat, &lon
	}
	return e
}

func (l *deliveryLifecycle) Transition(ctx context.Context, req TransitionRequest) (*model.Delivery, error) {
	if !req.To.Valid() {
		return nil, validationf("unknown status %q", req.To)
	}
	if req.Location != nil && !req.Location.Valid() {
		return nil, validationf("coordinates out of range")
	}
	d, err := l.load(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}
	if req.ExpectStatus != "" && d.Status != req.ExpectStatus {
		return nil, fmt.Errorf("%w: delivery %d is %s, expected %s", ErrInvalidTransition, d.ID, d.Status, req.ExpectStatus)
	}
	if !CanTransition(d.Status, req.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, req.To)
	}
	if req.To == model.DeliveryAssigned {
		return nil, validationf("assignment requires a transporter; use the assign operation")
	}

	now := l.clock.now()
	fields := map[string]interface{}{"status": req.To}
	var stats repository.StatDelta
	notes := req.Notes

	switch req.To {
	case model.DeliveryPickedUp:
		fields["picked_up_at"] = now
	case model.DeliveryDelivered:
		fields["delivered_at"] = now
		if req.ProofPhotoRef != "" {
			fields["proof_photo_ref"] = req.ProofPhotoRef
		}
		if req.SignatureRef != "" {
			fields["signature_ref"] = req.SignatureRef
		}
		if d.TransporterID != nil {
			t, err := l.transporters.FindByID(ctx, *d.TransporterID)
			if err != nil {
				return nil, notFound(err, "transporter", *d.TransporterID)
			}
			stats = repository.StatDelta{Total: 1, Successful: 1, Earnings: TransporterEarnings(d.DeliveryFee, t.CommissionRate)}
		}
	case model.DeliveryCancelled:
		reason := req.Reason
		if reason == "" {
			reason = req.Notes
		}
		fields["cancelled_at"] = now
		fields["cancellation_reason"] = reason
		if d.TransporterID != nil {
			stats.Cancelled = 1
		}
		if notes == "" {
			notes = reason
		}
	case model.DeliveryAvailable:
		fields["transporter_id"] = nil
		fields["assigned_at"] = nil
		fields["picked_up_at"] = nil
		fields["estimated_delivery_time"] = nil
	}

	tr := repository.Transition{
		DeliveryID: d.ID,
		From:       []model.DeliveryStatus{d.Status},
		Fields:     fields,
		Tracking:   l.entry(req.To, notes, req.ActorUID, req.Location),
		Stats:      stats,
	}
	if d.TransporterID != nil {
		tr.TransporterID = *d.TransporterID
	}
	if err := l.deliveries.ApplyTransition(ctx, tr); err != nil {
		if isStale(err) {
			return nil, fmt.Errorf("%w: delivery %d changed status concurrently", ErrInvalidTransition, d.ID)
		}
		return nil, err
	}

	prevTransporter := d.TransporterID
	updated, err := l.load(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	l.notifyTransition(ctx, updated, req.To, prevTransporter)
	return updated, nil
}

func (l *deliveryLifecycle) notifyTransition(ctx context.Context, d *model.Delivery, to model.DeliveryStatus, prevTransporter *uint64) {
	switch to {
	case model.DeliveryPickedUp:
		l.notifier.Notify(ctx, roleNotice(model.RecipientBuyer, d, NoticePickedUp, "Your package has been picked up."))
	case model.DeliveryDelivered:
		l.notifier.Notify(ctx, roleNotice(model.RecipientBuyer, d, NoticeDelivered, "Your package has been delivered."))
		l.notifier.Notify(ctx, roleNotice(model.RecipientSeller, d, NoticeDelivered, "The buyer received the package."))
	case model.DeliveryCancelled:
		if prevTransporter != nil {
			n := transporterNotice(d, NoticeCancelled, d.CancellationReason)
			n.TransporterID = prevTransporter
			l.notifier.Notify(ctx, n)
		}
		l.notifier.Notify(ctx, roleNotice(model.RecipientSeller, d, NoticeCancelled, d.CancellationReason))
	case model.DeliveryReturned:
		l.notifier.Notify(ctx, roleNotice(model.RecipientSeller, d, NoticeReturned, "The package is being returned."))
	}
}

func (l *deliveryLifecycle) Assign(ctx context.Context, d *model.Delivery, t *model.Transporter, maxActive int, extra map[string]interface{}, notes, actor string) (*model.Delivery, error) {
	if d.Status != model.DeliveryAvailable {
		return nil, fmt.Errorf("%w: delivery %d is %s", ErrNotFound, d.ID, d.Status)
	}
	fields := map[string]interface{}{
		"status":         model.DeliveryAssigned,
		"transporter_id": t.ID,
		"assigned_at":    l.clock.now(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	err := l.deliveries.ApplyTransition(ctx, repository.Transition{
		DeliveryID:    d.ID,
		From:          []model.DeliveryStatus{model.DeliveryAvailable},
		Fields:        fields,
		Tracking:      l.entry(model.DeliveryAssigned, notes, actor, nil),
		TransporterID: t.ID,
		MaxActive:     maxActive,
	})
	switch {
	case err == nil:
	case isStale(err):
		return nil, fmt.Errorf("%w: delivery %d is no longer available", ErrNotFound, d.ID)
	case errors.Is(err, repository.ErrAtCapacity):
		return nil, fmt.Errorf("%w: transporter %d", ErrCapacityExceeded, t.ID)
	default:
		return nil, err
	}

	updated, err := l.load(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	l.notifier.Notify(ctx, transporterNotice(updated, NoticeAssigned, fmt.Sprintf("Pick up at %s", updated.PickupAddress)))
	return updated, nil
}

func (l *deliveryLifecycle) Release(ctx context.Context, d *model.Delivery, penalize bool, notes string) (*model.Delivery, error) {
	if d.Status != model.DeliveryAssigned {
		return nil, fmt.Errorf("%w: only assigned deliveries can be released, delivery %d is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	tr := repository.Transition{
		DeliveryID: d.ID,
		From:       []model.DeliveryStatus{model.DeliveryAssigned},
		Fields: map[string]interface{}{
			"status":                  model.DeliveryAvailable,
			"transporter_id":          nil,
			"assigned_at":             nil,
			"estimated_delivery_time": nil,
		},
		Tracking: l.entry(model.DeliveryAvailable, notes, "", nil),
	}
	if d.TransporterID != nil {
		tr.TransporterID = *d.TransporterID
		if penalize {
			tr.Stats.Cancelled = 1
		}
	}
	if err := l.deliveries.ApplyTransition(ctx, tr); err != nil {
		if isStale(err) {
			return nil, fmt.Errorf("%w: delivery %d changed status concurrently", ErrInvalidTransition, d.ID)
		}
		return nil, err
	}
	if d.TransporterID != nil {
		l.notifier.Notify(ctx, transporterNotice(d, NoticeReleased, notes))
	}
	return l.load(ctx, d.ID)
}

func (l *deliveryLifecycle) Fail(ctx context.Context, d *model.Delivery, notes string) (*model.Delivery, error) {
	if !d.Status.Active() {
		return nil, fmt.Errorf("%w: delivery %d is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	tr := repository.Transition{
		DeliveryID: d.ID,
		From:       []model.DeliveryStatus{d.Status},
		Fields:     map[string]interface{}{"status": model.DeliveryFailed},
		Tracking:   l.entry(model.DeliveryFailed, notes, "", nil),
	}
	if err := l.deliveries.ApplyTransition(ctx, tr); err != nil {
		if isStale(err) {
			return nil, fmt.Errorf("%w: delivery %d changed status concurrently", ErrInvalidTransition, d.ID)
		}
		return nil, err
	}
	l.notifier.Notify(ctx, roleNotice(model.RecipientAdmin, d, NoticeFailed, notes))
	return l.load(ctx, d.ID)
}

func (l *deliveryLifecycle) RecordFailedAttempt(ctx context.Context, deliveryID uint64, notes, actor string) (*model.Delivery, error) {
	d, err := l.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DeliveryPickedUp && d.Status != model.DeliveryInTransit {
		return nil, fmt.Errorf("%w: attempts are recorded only while the package is out, delivery %d is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	prev := d.DeliveryAttempts
	next := prev + 1
	status := d.Status
	if next >= d.MaxDeliveryAttempts {
		status = model.DeliveryFailed
	}
	msg := fmt.Sprintf("delivery attempt %d of %d failed", next, d.MaxDeliveryAttempts)
	if notes != "" {
		msg += ": " + notes
	}
	tr := repository.Transition{
		DeliveryID:     d.ID,
		From:           []model.DeliveryStatus{d.Status},
		ExpectAttempts: &prev,
		Fields:         map[string]interface{}{"delivery_attempts": next, "status": status},
		Tracking:       l.entry(status, msg, actor, nil),
	}
	if err := l.deliveries.ApplyTransition(ctx, tr); err != nil {
		if isStale(err) {
			return nil, fmt.Errorf("%w: delivery %d changed concurrently", ErrInvalidTransition, d.ID)
		}
		return nil, err
	}
	updated, err := l.load(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if status == model.DeliveryFailed {
		log.Printf("[dispatch] delivery=%d failed after %d attempts", d.ID, next)
		l.notifier.Notify(ctx, roleNotice(model.RecipientAdmin, updated, NoticeFailed, msg))
	} else {
		l.notifier.Notify(ctx, roleNotice(model.RecipientBuyer, updated, NoticeAttempt, msg))
	}
	return updated, nil
}

func (l *deliveryLifecycle) RecordPosition(ctx context.Context, deliveryID uint64, p geo.Point, notes, actor string) (*model.DeliveryTracking, error) {
	if !p.Valid() {
		return nil, validationf("coordinates out of range")
	}
	d, err := l.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DeliveryPickedUp && d.Status != model.DeliveryInTransit {
		return nil, fmt.Errorf("%w: positions are recorded only while the package is out, delivery %d is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	e := l.entry(d.Status, notes, actor, &p)
	e.DeliveryID = d.ID
	if err := l.tracking.Create(ctx, e); err != nil {
		return nil, err
	}
	if d.TransporterID != nil {
		if err := l.transporters.UpdateFields(ctx, *d.TransporterID, map[string]interface{}{
			"current_latitude":     p.Lat,
			"current_longitude":    p.Lon,
			"last_location_update": e.Timestamp,
		}); err != nil {
			log.Printf("[dispatch] position saved but transporter=%d location update failed: %v", *d.TransporterID, err)
		}
	}
	return e, nil
}

// TransporterEarnings is fee * (1 - commission/100), rounded to cents.
func TransporterEarnings(fee, commissionRate decimal.Decimal) decimal.Decimal {
	share := decimal.NewFromInt(1).Sub(commissionRate.Div(decimal.NewFromInt(100)))
	return fee.Mul(share).Round(2)
}
