package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/cache"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// memDB mimics the gorm repositories: every write is status-gated under one
// mutex, the same way the SQL conditional updates behave.
type memDB struct {
	mu            sync.Mutex
	nextID        uint64
	transporters  map[uint64]*model.Transporter
	deliveries    map[uint64]*model.Delivery
	tracking      []model.DeliveryTracking
	ratings       []model.DeliveryRating
	notifications []model.Notification
	// beforeApply runs inside ApplyTransition before the status gate.
	beforeApply func(tr repository.Transition)
	// beforeUpdate runs inside UpdateFieldsIf before the status gate.
	beforeUpdate func(id uint64)
}

func newMemDB() *memDB {
	return &memDB{
		transporters: map[uint64]*model.Transporter{},
		deliveries:   map[uint64]*model.Delivery{},
	}
}

func (db *memDB) id() uint64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) addTransporter(t model.Transporter) *model.Transporter {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.ID == 0 {
		t.ID = db.id()
	}
	db.transporters[t.ID] = &t
	cp := t
	return &cp
}

func (db *memDB) addDelivery(d model.Delivery) *model.Delivery {
	db.mu.Lock()
	defer db.mu.Unlock()
	if d.ID == 0 {
		d.ID = db.id()
	}
	db.deliveries[d.ID] = &d
	cp := d
	return &cp
}

func (db *memDB) addRating(rt model.DeliveryRating) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rt.ID = db.id()
	db.ratings = append(db.ratings, rt)
}

func (db *memDB) delivery(id uint64) model.Delivery {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.deliveries[id]
}

func (db *memDB) transporter(id uint64) model.Transporter {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.transporters[id]
}

func (db *memDB) trackingFor(id uint64) []model.DeliveryTracking {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.DeliveryTracking
	for _, e := range db.tracking {
		if e.DeliveryID == id {
			out = append(out, e)
		}
	}
	return out
}

func (db *memDB) activeCount(transporterID uint64) int {
	n := 0
	for _, d := range db.deliveries {
		if d.TransporterID != nil && *d.TransporterID == transporterID && d.Status.Active() {
			n++
		}
	}
	return n
}

func (db *memDB) sortedDeliveries() []*model.Delivery {
	out := make([]*model.Delivery, 0, len(db.deliveries))
	for _, d := range db.deliveries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *memDB) sortedTransporters() []*model.Transporter {
	out := make([]*model.Transporter, 0, len(db.transporters))
	for _, t := range db.transporters {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func timeField(v interface{}) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}

func applyDeliveryFields(d *model.Delivery, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "status":
			d.Status = v.(model.DeliveryStatus)
		case "transporter_id":
			if v == nil {
				d.TransporterID = nil
			} else {
				id := v.(uint64)
				d.TransporterID = &id
			}
		case "assigned_at":
			d.AssignedAt = timeField(v)
		case "picked_up_at":
			d.PickedUpAt = timeField(v)
		case "delivered_at":
			d.DeliveredAt = timeField(v)
		case "cancelled_at":
			d.CancelledAt = timeField(v)
		case "estimated_delivery_time":
			d.EstimatedDeliveryTime = timeField(v)
		case "cancellation_reason":
			d.CancellationReason = v.(string)
		case "proof_photo_ref":
			d.ProofPhotoRef = v.(string)
		case "signature_ref":
			d.SignatureRef = v.(string)
		case "distance_km":
			km := v.(float64)
			d.DistanceKm = &km
		case "delivery_attempts":
			d.DeliveryAttempts = v.(int)
		default:
			panic(fmt.Sprintf("memDB: unhandled delivery column %q", k))
		}
	}
}

func applyTransporterFields(t *model.Transporter, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "status":
			t.Status = v.(model.TransporterStatus)
		case "is_available":
			t.IsAvailable = v.(bool)
		case "is_verified":
			t.IsVerified = v.(bool)
		case "current_latitude":
			lat := v.(float64)
			t.CurrentLatitude = &lat
		case "current_longitude":
			lon := v.(float64)
			t.CurrentLongitude = &lon
		case "last_location_update":
			t.LastLocationUpdate = timeField(v)
		default:
			panic(fmt.Sprintf("memDB: unhandled transporter column %q", k))
		}
	}
}

type memTransporters struct{ db *memDB }

func (r memTransporters) Create(_ context.Context, t *model.Transporter) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.transporters {
		if o.LicenseNumber == t.LicenseNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	t.ID = r.db.id()
	cp := *t
	r.db.transporters[t.ID] = &cp
	return nil
}

func (r memTransporters) FindByID(_ context.Context, id uint64) (*model.Transporter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.transporters[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTransporters) FindByUserUID(_ context.Context, uid string) (*model.Transporter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.sortedTransporters() {
		if t.UserUID == uid {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memTransporters) ListDispatchable(_ context.Context) ([]model.Transporter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Transporter
	for _, t := range r.db.sortedTransporters() {
		if t.IsAvailable && t.IsVerified && t.Status == model.TransporterActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r memTransporters) ListByStatus(_ context.Context, statuses ...model.TransporterStatus) ([]model.Transporter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Transporter
	for _, t := range r.db.sortedTransporters() {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, *t)
				break
			}
		}
	}
	return out, nil
}

func (r memTransporters) ListAll(_ context.Context) ([]model.Transporter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Transporter
	for _, t := range r.db.sortedTransporters() {
		out = append(out, *t)
	}
	return out, nil
}

func (r memTransporters) UpdateFields(_ context.Context, id uint64, fields map[string]interface{}) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if t, ok := r.db.transporters[id]; ok {
		applyTransporterFields(t, fields)
	}
	return nil
}

func (r memTransporters) UpdateFieldsIf(_ context.Context, id uint64, from []model.TransporterStatus, fields map[string]interface{}) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.transporters[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if t.Status == s {
			applyTransporterFields(t, fields)
			return true, nil
		}
	}
	return false, nil
}

func (memTransporters) SetDB(*gorm.DB) {}

type memDeliveries struct{ db *memDB }

func (r memDeliveries) Create(_ context.Context, d *model.Delivery, entry *model.DeliveryTracking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d.ID = r.db.id()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	r.db.deliveries[d.ID] = &cp
	if entry != nil {
		entry.DeliveryID = d.ID
		entry.ID = r.db.id()
		r.db.tracking = append(r.db.tracking, *entry)
	}
	return nil
}

func (r memDeliveries) FindByID(_ context.Context, id uint64) (*model.Delivery, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.deliveries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDeliveries) ListAvailable(_ context.Context, f repository.AvailableFilter) ([]model.Delivery, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Delivery
	for _, d := range r.db.sortedDeliveries() {
		if d.Status != model.DeliveryAvailable {
			continue
		}
		if f.Priority != "" && d.Priority != f.Priority {
			continue
		}
		if f.PickupBefore != nil && d.RequestedPickupDate.After(*f.PickupBefore) {
			continue
		}
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].RequestedPickupDate.Before(out[j].RequestedPickupDate)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memDeliveries) ListAvailableInBox(_ context.Context, box geo.Box) ([]model.Delivery, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Delivery
	for _, d := range r.db.sortedDeliveries() {
		if d.Status != model.DeliveryAvailable {
			continue
		}
		if p, ok := d.PickupPoint(); ok && box.Contains(p) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDeliveries) ListByStatus(_ context.Context, statuses ...model.DeliveryStatus) ([]model.Delivery, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Delivery
	for _, d := range r.db.sortedDeliveries() {
		for _, s := range statuses {
			if d.Status == s {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

func (r memDeliveries) List(_ context.Context, q repository.DeliveryQuery) ([]model.Delivery, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Delivery
	for _, d := range r.db.sortedDeliveries() {
		if len(q.TransporterIDs) > 0 {
			if d.TransporterID == nil || !containsID(q.TransporterIDs, *d.TransporterID) {
				continue
			}
		}
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, d.Status) {
			continue
		}
		if q.CreatedSince != nil && d.CreatedAt.Before(*q.CreatedSince) {
			continue
		}
		if q.CreatedBefore != nil && !d.CreatedAt.Before(*q.CreatedBefore) {
			continue
		}
		if q.DeliveredSince != nil && (d.DeliveredAt == nil || d.DeliveredAt.Before(*q.DeliveredSince)) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsStatus(list []model.DeliveryStatus, s model.DeliveryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r memDeliveries) CountActiveByTransporters(_ context.Context, ids []uint64) (map[uint64]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := map[uint64]int{}
	for _, id := range ids {
		if n := r.db.activeCount(id); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (r memDeliveries) ApplyTransition(_ context.Context, tr repository.Transition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.beforeApply != nil {
		r.db.beforeApply(tr)
	}
	if tr.MaxActive > 0 {
		if _, ok := r.db.transporters[tr.TransporterID]; !ok {
			return gorm.ErrRecordNotFound
		}
		if r.db.activeCount(tr.TransporterID) >= tr.MaxActive {
			return repository.ErrAtCapacity
		}
	}
	d, ok := r.db.deliveries[tr.DeliveryID]
	if !ok || !containsStatus(tr.From, d.Status) {
		return repository.ErrStaleStatus
	}
	if tr.ExpectAttempts != nil && d.DeliveryAttempts != *tr.ExpectAttempts {
		return repository.ErrStaleStatus
	}
	applyDeliveryFields(d, tr.Fields)
	if tr.Tracking != nil {
		tr.Tracking.DeliveryID = tr.DeliveryID
		tr.Tracking.ID = r.db.id()
		r.db.tracking = append(r.db.tracking, *tr.Tracking)
	}
	if t, ok := r.db.transporters[tr.TransporterID]; ok && !tr.Stats.IsZero() {
		t.TotalDeliveries += tr.Stats.Total
		t.SuccessfulDeliveries += tr.Stats.Successful
		t.CancelledDeliveries += tr.Stats.Cancelled
		t.EarningsTotal = t.EarningsTotal.Add(tr.Stats.Earnings)
	}
	return nil
}

func (r memDeliveries) UpdateFields(_ context.Context, id uint64, fields map[string]interface{}) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if d, ok := r.db.deliveries[id]; ok {
		applyDeliveryFields(d, fields)
	}
	return nil
}

func (r memDeliveries) UpdateFieldsIf(_ context.Context, id uint64, from []model.DeliveryStatus, fields map[string]interface{}) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.beforeUpdate != nil {
		r.db.beforeUpdate(id)
	}
	d, ok := r.db.deliveries[id]
	if !ok || !containsStatus(from, d.Status) {
		return false, nil
	}
	applyDeliveryFields(d, fields)
	return true, nil
}

func (memDeliveries) SetDB(*gorm.DB) {}

type memTracking struct{ db *memDB }

func (r memTracking) Create(_ context.Context, t *model.DeliveryTracking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t.ID = r.db.id()
	r.db.tracking = append(r.db.tracking, *t)
	return nil
}

func (r memTracking) ListByDelivery(_ context.Context, deliveryID uint64) ([]model.DeliveryTracking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.DeliveryTracking
	for i := len(r.db.tracking) - 1; i >= 0; i-- {
		if r.db.tracking[i].DeliveryID == deliveryID {
			out = append(out, r.db.tracking[i])
		}
	}
	return out, nil
}

func (r memTracking) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.tracking[:0]
	var n int64
	for _, e := range r.db.tracking {
		if e.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.db.tracking = kept
	return n, nil
}

func (memTracking) SetDB(*gorm.DB) {}

type memRatings struct{ db *memDB }

func (r memRatings) Exists(_ context.Context, deliveryID uint64, ratedBy string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rt := range r.db.ratings {
		if rt.DeliveryID == deliveryID && rt.RatedBy == ratedBy {
			return true, nil
		}
	}
	return false, nil
}

func (r memRatings) mean(transporterID uint64) float64 {
	var sum, n int
	for _, rt := range r.db.ratings {
		if rt.TransporterID == transporterID {
			sum += rt.Rating
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round2(float64(sum) / float64(n))
}

func (r memRatings) CreateAndRefresh(_ context.Context, rt *model.DeliveryRating) (float64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rt.ID = r.db.id()
	r.db.ratings = append(r.db.ratings, *rt)
	m := r.mean(rt.TransporterID)
	if t, ok := r.db.transporters[rt.TransporterID]; ok {
		t.Rating = m
	}
	return m, nil
}

func (r memRatings) ListCreated(_ context.Context, from, to time.Time) ([]model.DeliveryRating, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.DeliveryRating
	for _, rt := range r.db.ratings {
		if !rt.CreatedAt.Before(from) && rt.CreatedAt.Before(to) {
			out = append(out, rt)
		}
	}
	return out, nil
}

func (r memRatings) RecalculateAll(_ context.Context) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, t := range r.db.transporters {
		seen := false
		for _, rt := range r.db.ratings {
			if rt.TransporterID == t.ID {
				seen = true
				break
			}
		}
		if !seen {
			continue
		}
		if m := r.mean(t.ID); m != t.Rating {
			t.Rating = m
			n++
		}
	}
	return n, nil
}

func (memRatings) SetDB(*gorm.DB) {}

type memNotifications struct{ db *memDB }

func (r memNotifications) Create(_ context.Context, n *model.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n.ID = r.db.id()
	r.db.notifications = append(r.db.notifications, *n)
	return nil
}

func (r memNotifications) ListByTransporter(_ context.Context, transporterID uint64, unreadOnly bool, _ int) ([]model.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Notification
	for _, n := range r.db.notifications {
		if n.RecipientRole != model.RecipientTransporter || n.TransporterID == nil || *n.TransporterID != transporterID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r memNotifications) ListByDelivery(_ context.Context, deliveryID uint64, _ int) ([]model.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Notification
	for _, n := range r.db.notifications {
		if n.DeliveryID == deliveryID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r memNotifications) MarkAllRead(_ context.Context, transporterID uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for i := range r.db.notifications {
		n := &r.db.notifications[i]
		if n.TransporterID != nil && *n.TransporterID == transporterID && n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	return nil
}

func (r memNotifications) CountUnread(ctx context.Context, transporterID uint64) (int64, error) {
	list, _ := r.ListByTransporter(ctx, transporterID, true, 0)
	return int64(len(list)), nil
}

func (memNotifications) SetDB(*gorm.DB) {}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) ListForTransporter(context.Context, uint64, bool, int) ([]model.Notification, int64, error) {
	return nil, 0, nil
}

func (n *recordingNotifier) MarkAllRead(context.Context, uint64) error { return nil }

func (n *recordingNotifier) count(typ string, role model.RecipientRole) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notices {
		if x.Type == typ && x.Role == role {
			c++
		}
	}
	return c
}

type testEnv struct {
	db       *memDB
	now      time.Time
	cfg      config.Dispatch
	notifier *recordingNotifier
	metrics  cache.MetricsCache

	registry     TransporterRegistry
	scorer       *Scorer
	lifecycle    DeliveryLifecycle
	assign       AssignmentService
	recon        ReconciliationService
	deliverySvc  DeliveryService
	transporters TransporterService
	ratings      RatingService
	reports      ReportingService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	db := newMemDB()
	env := &testEnv{
		db:       db,
		now:      now,
		cfg:      config.DefaultDispatch(),
		notifier: &recordingNotifier{},
		metrics:  cache.NewMemoryMetricsCache(64, time.Hour),
	}
	clock := Clock(func() time.Time { return env.now })
	trs, dls, trk := memTransporters{db}, memDeliveries{db}, memTracking{db}

	env.registry = NewTransporterRegistry(trs, dls, env.cfg, clock)
	env.scorer = NewScorer(env.cfg)
	env.lifecycle = NewDeliveryLifecycle(dls, trs, trk, env.notifier, clock)
	env.assign = NewAssignmentService(dls, env.registry, env.scorer, env.lifecycle, env.cfg, clock)
	env.recon = NewReconciliationService(dls, trs, trk, env.lifecycle, env.notifier, env.metrics, env.cfg, clock)
	env.deliverySvc = NewDeliveryService(dls, trs, trk, nil, env.cfg, clock)
	env.transporters = NewTransporterService(trs, dls, env.lifecycle, env.metrics, env.cfg, clock)
	env.ratings = NewRatingService(memRatings{db}, dls)
	env.reports = NewReportingService(dls, trs, memRatings{db}, clock)
	return env
}

func fp(v float64) *float64 { return &v }

func tp(t time.Time) *time.Time { return &t }

func up(v uint64) *uint64 { return &v }

// sampleTransporter is an idle, verified car parked next to samplePickup.
func sampleTransporter(now time.Time) model.Transporter {
	return model.Transporter{
		Name:               "Ram",
		Phone:              "9800000000",
		LicenseNumber:      fmt.Sprintf("LIC-%d", now.UnixNano()),
		VehicleType:        model.VehicleCar,
		VehicleCapacity:    100,
		CurrentLatitude:    fp(27.701),
		CurrentLongitude:   fp(85.321),
		LastLocationUpdate: tp(now),
		ServiceRadiusKm:    10,
		IsAvailable:        true,
		IsVerified:         true,
		Status:             model.TransporterActive,
		Rating:             4.5,
		CommissionRate:     decimal.NewFromInt(10),
	}
}

func sampleDelivery(now time.Time) model.Delivery {
	return model.Delivery{
		DeliveryID:            "d-" + fmt.Sprint(now.UnixNano()),
		TrackingCode:          "TRK-TEST",
		OrderID:               up(1),
		PickupAddress:         "Thamel",
		PickupLatitude:        fp(27.70),
		PickupLongitude:       fp(85.32),
		PickupContactName:     "Sita",
		PickupContactPhone:    "9811111111",
		DeliveryAddress:       "Patan",
		DeliveryLatitude:      fp(27.67),
		DeliveryLongitude:     fp(85.32),
		DeliveryContactName:   "Hari",
		DeliveryContactPhone:  "9822222222",
		PackageWeight:         5,
		PackageValue:          decimal.NewFromInt(200),
		Priority:              model.PriorityNormal,
		Status:                model.DeliveryAvailable,
		DeliveryFee:           decimal.NewFromInt(150),
		RequestedPickupDate:   now.Add(time.Hour),
		RequestedDeliveryDate: now.Add(3 * time.Hour),
		MaxDeliveryAttempts:   3,
		CreatedAt:             now,
	}
}
