package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/cache"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
)

const (
	SweepReminders    = "reminders"
	SweepExpiry       = "expiry"
	SweepETA          = "eta"
	SweepAvailability = "availability"
	SweepMetrics      = "metrics"
)

// Sweeps lists every sweep in the order RunAll executes them.
var Sweeps = []string{SweepReminders, SweepExpiry, SweepETA, SweepAvailability, SweepMetrics}

const (
	ReasonExpired      = "no transporter assigned in time"
	ReasonPickupLapsed = "pickup window lapsed without assignment"
)

// SweepReport carries per-sweep counters. Errors lists per-item failures;
// Error is set when the sweep itself aborted.
type SweepReport struct {
	Sweep      string         `json:"sweep"`
	Examined   int            `json:"examined"`
	Counters   map[string]int `json:"counters"`
	Errors     []string       `json:"errors,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	DurationMs int64          `json:"durationMs"`
}

func newReport(name string, now time.Time) *SweepReport {
	return &SweepReport{Sweep: name, Counters: map[string]int{}, StartedAt: now}
}

func (r *SweepReport) inc(key string) {
	r.Counters[key]++
}

// itemError records a per-item failure. Losing a race to another writer is
// counted as skipped rather than as an error.
func (r *SweepReport) itemError(kind string, id uint64, err error) {
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
		r.inc("skipped")
		return
	}
	r.inc("errors")
	r.Errors = append(r.Errors, fmt.Sprintf("%s %d: %v", kind, id, err))
}

func (r *SweepReport) finish(start time.Time) *SweepReport {
	r.DurationMs = time.Since(start).Milliseconds()
	return r
}

type ReconciliationService interface {
	SendReminders(ctx context.Context) (*SweepReport, error)
	ExpireStale(ctx context.Context) (*SweepReport, error)
	RefreshEstimates(ctx context.Context) (*SweepReport, error)
	AuditAvailability(ctx context.Context) (*SweepReport, error)
	RefreshMetrics(ctx context.Context) (*SweepReport, error)
	// Run executes one sweep by name.
	Run(ctx context.Context, sweep string) (*SweepReport, error)
	// RunAll executes every sweep; one sweep aborting does not stop the rest.
	RunAll(ctx context.Context) ([]SweepReport, error)
	CleanupTracking(ctx context.Context, olderThan time.Duration) (int64, error)
}

type reconciliationService struct {
	deliveries   repository.DeliveryRepository
	transporters repository.TransporterRepository
	tracking     repository.TrackingRepository
	lifecycle    DeliveryLifecycle
	notifier     NotificationService
	metrics      cache.MetricsCache
	cfg          config.Dispatch
	clock        Clock
}

func NewReconciliationService(
	deliveries repository.DeliveryRepository,
	transporters repository.TransporterRepository,
	tracking repository.TrackingRepository,
	lifecycle DeliveryLifecycle,
	notifier NotificationService,
	metrics cache.MetricsCache,
	cfg config.Dispatch,
	clock Clock,
) ReconciliationService {
	return &reconciliationService{
		deliveries:   deliveries,
		transporters: transporters,
		tracking:     tracking,
		lifecycle:    lifecycle,
		notifier:     notifier,
		metrics:      metrics,
		cfg:          cfg,
		clock:        clock,
	}
}

func (s *reconciliationService) Run(ctx context.Context, sweep string) (*SweepReport, error) {
	switch sweep {
	case SweepReminders:
		return s.SendReminders(ctx)
	case SweepExpiry:
		return s.ExpireStale(ctx)
	case SweepETA:
		return s.RefreshEstimates(ctx)
	case SweepAvailability:
		return s.AuditAvailability(ctx)
	case SweepMetrics:
		return s.RefreshMetrics(ctx)
	default:
		return nil, validationf("unknown sweep %q", sweep)
	}
}

func (s *reconciliationService) RunAll(ctx context.Context) ([]SweepReport, error) {
	out := make([]SweepReport, 0, len(Sweeps))
	var errs []error
	for _, name := range Sweeps {
		rep, err := s.Run(ctx, name)
		if rep == nil {
			rep = newReport(name, s.clock.now())
		}
		if err != nil {
			rep.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			log.Printf("[sweep] name=%s aborted err=%v", name, err)
		}
		out = append(out, *rep)
	}
	return out, errors.Join(errs...)
}

// deadline is the pickup time while waiting for pickup, then the requested
// delivery time.
func deadline(d *model.Delivery) time.Time {
	if d.Status == model.DeliveryAssigned {
		return d.RequestedPickupDate
	}
	return d.RequestedDeliveryDate
}

func (s *reconciliationService) SendReminders(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	now := s.clock.now()
	rep := newReport(SweepReminders, now)

	active, err := s.deliveries.ListByStatus(ctx, model.ActiveStatuses...)
	if err != nil {
		return rep.finish(start), err
	}
	for i := range active {
		d := &active[i]
		rep.Examined++
		overdueBy := now.Sub(deadline(d))

		switch {
		case overdueBy > s.cfg.ForceFailAfter && d.Priority.Expedited():
			note := fmt.Sprintf("force-failed: %s overdue by %s", d.Priority, overdueBy.Truncate(time.Minute))
			if _, err := s.lifecycle.Fail(ctx, d, note); err != nil {
				rep.itemError("delivery", d.ID, err)
				continue
			}
			rep.inc("failed")
		case overdueBy > s.cfg.EscalateAfter:
			body := fmt.Sprintf("overdue by %s", overdueBy.Truncate(time.Minute))
			s.notifier.Notify(ctx, roleNotice(model.RecipientAdmin, d, NoticeEscalated, body))
			s.notifier.Notify(ctx, transporterNotice(d, NoticeOverdue, body))
			rep.inc("escalated")
		case overdueBy > s.cfg.OverdueThreshold(string(d.Priority)):
			s.notifier.Notify(ctx, transporterNotice(d, NoticeOverdue, fmt.Sprintf("overdue by %s", overdueBy.Truncate(time.Minute))))
			rep.inc("overdue")
		case d.Status == model.DeliveryAssigned && overdueBy < 0 && -overdueBy <= s.cfg.ApproachingWindow(string(d.Priority)):
			s.notifier.Notify(ctx, transporterNotice(d, NoticeReminder, fmt.Sprintf("pickup due at %s", d.RequestedPickupDate.Format(time.RFC3339))))
			rep.inc("approaching")
		}
	}
	log.Printf("[sweep] name=%s examined=%d counters=%v", rep.Sweep, rep.Examined, rep.Counters)
	return rep.finish(start), nil
}

func (s *reconciliationService) ExpireStale(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	now := s.clock.now()
	rep := newReport(SweepExpiry, now)

	pending, err := s.deliveries.ListByStatus(ctx, model.DeliveryAvailable)
	if err != nil {
		return rep.finish(start), err
	}
	for i := range pending {
		d := &pending[i]
		rep.Examined++
		pastPickup := d.RequestedPickupDate.Before(now)

		var reason, counter string
		switch {
		case pastPickup && now.Sub(d.CreatedAt) > s.cfg.ExpiryAge(string(d.Priority)):
			reason, counter = ReasonExpired, "expired"
		case now.Sub(d.RequestedPickupDate) > s.cfg.PickupLapse:
			reason, counter = ReasonPickupLapsed, "lapsed"
		default:
			continue
		}
		_, err := s.lifecycle.Transition(ctx, TransitionRequest{
			DeliveryID:   d.ID,
			To:           model.DeliveryCancelled,
			ExpectStatus: model.DeliveryAvailable,
			Reason:       reason,
		})
		if err != nil {
			rep.itemError("delivery", d.ID, err)
			continue
		}
		rep.inc(counter)
	}

	stuck, err := s.deliveries.ListByStatus(ctx, model.DeliveryAssigned)
	if err != nil {
		return rep.finish(start), err
	}
	for i := range stuck {
		d := &stuck[i]
		rep.Examined++
		if d.AssignedAt == nil || now.Sub(*d.AssignedAt) <= s.cfg.StuckAssignedAfter {
			continue
		}
		if now.Sub(d.RequestedPickupDate) <= s.cfg.StuckPickupGrace {
			continue
		}
		note := fmt.Sprintf("released: not picked up %s after assignment", now.Sub(*d.AssignedAt).Truncate(time.Minute))
		if _, err := s.lifecycle.Release(ctx, d, true, note); err != nil {
			rep.itemError("delivery", d.ID, err)
			continue
		}
		rep.inc("released")
	}
	log.Printf("[sweep] name=%s examined=%d counters=%v", rep.Sweep, rep.Examined, rep.Counters)
	return rep.finish(start), nil
}

func (s *reconciliationService) RefreshEstimates(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	now := s.clock.now()
	rep := newReport(SweepETA, now)

	moving, err := s.deliveries.ListByStatus(ctx, model.DeliveryPickedUp, model.DeliveryInTransit)
	if err != nil {
		return rep.finish(start), err
	}
	transporters := map[uint64]*model.Transporter{}
	for i := range moving {
		d := &moving[i]
		rep.Examined++
		dropoff, ok := d.DropoffPoint()
		if !ok || d.TransporterID == nil {
			rep.inc("skipped")
			continue
		}
		t, ok := transporters[*d.TransporterID]
		if !ok {
			t, err = s.transporters.FindByID(ctx, *d.TransporterID)
			if err != nil {
				rep.itemError("transporter", *d.TransporterID, notFound(err, "transporter", *d.TransporterID))
				continue
			}
			transporters[t.ID] = t
		}
		loc, hasLoc := t.Location()
		if !hasLoc || !t.LocationFresh(now, s.cfg.LocationFreshness) {
			rep.inc("stale_location")
			continue
		}

		remaining := geo.Distance(loc, dropoff)
		eta := EstimateDeliveryTime(s.cfg, now, ETAParams{
			Vehicle:         t.VehicleType,
			RouteKm:         remaining,
			BufferMin:       RefreshBufferMinutes(s.cfg, d, remaining),
			SpeedMultiplier: TimeOfDayMultiplier(now),
		})
		ok, err := s.deliveries.UpdateFieldsIf(ctx, d.ID,
			[]model.DeliveryStatus{model.DeliveryPickedUp, model.DeliveryInTransit},
			map[string]interface{}{"estimated_delivery_time": eta})
		if err != nil {
			rep.itemError("delivery", d.ID, err)
			continue
		}
		if !ok {
			rep.inc("skipped")
			continue
		}
		rep.inc("updated")

		limit := d.RequestedDeliveryDate.Add(s.cfg.DelayNoteAfter)
		alreadyLate := d.EstimatedDeliveryTime != nil && d.EstimatedDeliveryTime.After(limit)
		if eta.After(limit) && !alreadyLate {
			note := fmt.Sprintf("Delayed: new ETA %s, %.1f km remaining", eta.Format(time.RFC3339), remaining)
			lat, lon := loc.Lat, loc.Lon
			if err := s.tracking.Create(ctx, &model.DeliveryTracking{
				DeliveryID: d.ID,
				Status:     d.Status,
				Latitude:   &lat,
				Longitude:  &lon,
				Notes:      note,
				Timestamp:  now,
			}); err != nil {
				rep.itemError("delivery", d.ID, err)
				continue
			}
			s.notifier.Notify(ctx, roleNotice(model.RecipientBuyer, d, NoticeDelayed, note))
			rep.inc("delayed")
		}
	}
	log.Printf("[sweep] name=%s examined=%d counters=%v", rep.Sweep, rep.Examined, rep.Counters)
	return rep.finish(start), nil
}

func (s *reconciliationService) AuditAvailability(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	now := s.clock.now()
	rep := newReport(SweepAvailability, now)

	all, err := s.transporters.ListAll(ctx)
	if err != nil {
		return rep.finish(start), err
	}
	for i := range all {
		t := &all[i]
		rep.Examined++

		if t.DocumentsExpired(now) {
			if t.Status == model.TransporterSuspended && !t.IsAvailable {
				continue
			}
			err := s.transporters.UpdateFields(ctx, t.ID, map[string]interface{}{
				"status":       model.TransporterSuspended,
				"is_available": false,
			})
			if err != nil {
				rep.itemError("transporter", t.ID, err)
				continue
			}
			log.Printf("[sweep] transporter=%d suspended: documents expired", t.ID)
			rep.inc("suspended")
			continue
		}

		switch t.Status {
		case model.TransporterActive:
			if t.LocationFresh(now, s.cfg.OfflineAfter) {
				continue
			}
			ok, err := s.transporters.UpdateFieldsIf(ctx, t.ID,
				[]model.TransporterStatus{model.TransporterActive},
				map[string]interface{}{"status": model.TransporterOffline})
			if err != nil {
				rep.itemError("transporter", t.ID, err)
				continue
			}
			if ok {
				rep.inc("offline")
			}
		case model.TransporterOffline:
			if !t.LocationFresh(now, s.cfg.ReactivateWithin) {
				continue
			}
			ok, err := s.transporters.UpdateFieldsIf(ctx, t.ID,
				[]model.TransporterStatus{model.TransporterOffline},
				map[string]interface{}{"status": model.TransporterActive})
			if err != nil {
				rep.itemError("transporter", t.ID, err)
				continue
			}
			if ok {
				rep.inc("reactivated")
			}
		}
	}
	log.Printf("[sweep] name=%s examined=%d counters=%v", rep.Sweep, rep.Examined, rep.Counters)
	return rep.finish(start), nil
}

func (s *reconciliationService) RefreshMetrics(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	now := s.clock.now()
	rep := newReport(SweepMetrics, now)

	active, err := s.transporters.ListByStatus(ctx, model.TransporterActive)
	if err != nil {
		return rep.finish(start), err
	}
	if len(active) == 0 {
		return rep.finish(start), nil
	}
	ids := make([]uint64, len(active))
	for i := range active {
		ids[i] = active[i].ID
	}
	since := now.Add(-s.cfg.MetricsWindow)
	history, err := s.deliveries.List(ctx, repository.DeliveryQuery{
		TransporterIDs: ids,
		Statuses:       terminalStatuses,
		CreatedSince:   &since,
	})
	if err != nil {
		return rep.finish(start), err
	}
	for _, id := range ids {
		rep.Examined++
		m := ComputeMetrics(id, history, s.cfg.MetricsWindow, now)
		if err := s.metrics.Set(ctx, m); err != nil {
			rep.itemError("transporter", id, err)
			continue
		}
		rep.inc("cached")
	}
	log.Printf("[sweep] name=%s examined=%d counters=%v", rep.Sweep, rep.Examined, rep.Counters)
	return rep.finish(start), nil
}

func (s *reconciliationService) CleanupTracking(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.TrackingRetention
	}
	cutoff := s.clock.now().Add(-olderThan)
	n, err := s.tracking.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Printf("[sweep] tracking cleanup cutoff=%s deleted=%d", cutoff.Format(time.RFC3339), n)
	return n, nil
}
