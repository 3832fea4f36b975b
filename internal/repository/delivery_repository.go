package repository

import (
	"context"
	"strings"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/geo"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AvailableFilter narrows the pool of available deliveries for bulk assignment.
type AvailableFilter struct {
	Priority     model.Priority
	PickupBefore *time.Time
	Limit        int
}

// DeliveryQuery selects deliveries by transporter, status and time window.
type DeliveryQuery struct {
	TransporterIDs []uint64
	Statuses       []model.DeliveryStatus
	CreatedSince   *time.Time
	CreatedBefore  *time.Time
	DeliveredSince *time.Time
}

// StatDelta is added to the transporter's counters when a transition commits.
type StatDelta struct {
	Total      int
	Successful int
	Cancelled  int
	Earnings   decimal.Decimal
}

func (s StatDelta) IsZero() bool {
	return s.Total == 0 && s.Successful == 0 && s.Cancelled == 0 && s.Earnings.IsZero()
}

// Transition is one status-gated update of a delivery together with its
// tracking entry and transporter side effects, committed atomically.
type Transition struct {
	DeliveryID uint64
	From       []model.DeliveryStatus
	// ExpectAttempts additionally gates on delivery_attempts when set.
	ExpectAttempts *int
	Fields         map[string]interface{}
	Tracking       *model.DeliveryTracking

	TransporterID uint64
	// MaxActive > 0 locks the transporter row and rejects the transition with
	// ErrAtCapacity when it already holds MaxActive active deliveries.
	MaxActive int
	Stats     StatDelta
}

type DeliveryRepository interface {
	// Create inserts the delivery and its first tracking entry in one transaction.
	Create(ctx context.Context, d *model.Delivery, entry *model.DeliveryTracking) error
	FindByID(ctx context.Context, id uint64) (*model.Delivery, error)
	ListAvailable(ctx context.Context, f AvailableFilter) ([]model.Delivery, error)
	// ListAvailableInBox returns available deliveries whose pickup lies in box.
	ListAvailableInBox(ctx context.Context, box geo.Box) ([]model.Delivery, error)
	ListByStatus(ctx context.Context, statuses ...model.DeliveryStatus) ([]model.Delivery, error)
	List(ctx context.Context, q DeliveryQuery) ([]model.Delivery, error)
	CountActiveByTransporters(ctx context.Context, ids []uint64) (map[uint64]int, error)
	ApplyTransition(ctx context.Context, tr Transition) error
	UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error
	// UpdateFieldsIf applies fields only while the delivery is in one of the
	// given statuses. It reports whether a row was changed.
	UpdateFieldsIf(ctx context.Context, id uint64, from []model.DeliveryStatus, fields map[string]interface{}) (bool, error)
	SetDB(db *gorm.DB)
}

type deliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) Create(ctx context.Context, d *model.Delivery, entry *model.DeliveryTracking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.DeliveryID = d.ID
		return tx.Create(entry).Error
	})
}

func (r *deliveryRepository) FindByID(ctx context.Context, id uint64) (*model.Delivery, error) {
	var d model.Delivery
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// availableOrder ranks same_day first and low last, then earliest pickup.
// It is one clause: gorm drops an OrderBy expression merged with later Order calls.
func availableOrder() clause.OrderBy {
	return clause.OrderBy{Expression: clause.Expr{
		SQL: "CASE priority WHEN ? THEN 0 WHEN ? THEN 1 WHEN ? THEN 2 WHEN ? THEN 3 WHEN ? THEN 4 ELSE 5 END, " +
			"requested_pickup_date ASC, id ASC",
		Vars: []interface{}{
			model.PrioritySameDay, model.PriorityUrgent, model.PriorityHigh, model.PriorityNormal, model.PriorityLow,
		},
		WithoutParentheses: true,
	}}
}

func (r *deliveryRepository) availableQuery(ctx context.Context, f AvailableFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Where("status = ?", model.DeliveryAvailable)
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.PickupBefore != nil {
		q = q.Where("requested_pickup_date <= ?", *f.PickupBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.Order(availableOrder())
}

func (r *deliveryRepository) ListAvailable(ctx context.Context, f AvailableFilter) ([]model.Delivery, error) {
	var list []model.Delivery
	if err := r.availableQuery(ctx, f).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *deliveryRepository) ListAvailableInBox(ctx context.Context, box geo.Box) ([]model.Delivery, error) {
	var list []model.Delivery
	q := r.db.WithContext(ctx).
		Where("status = ?", model.DeliveryAvailable).
		Where("pickup_latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
	if len(box.Lon) > 0 {
		conds := make([]string, 0, len(box.Lon))
		args := make([]interface{}, 0, 2*len(box.Lon))
		for _, lr := range box.Lon {
			conds = append(conds, "pickup_longitude BETWEEN ? AND ?")
			args = append(args, lr.Min, lr.Max)
		}
		q = q.Where(strings.Join(conds, " OR "), args...)
	}
	if err := q.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *deliveryRepository) ListByStatus(ctx context.Context, statuses ...model.DeliveryStatus) ([]model.Delivery, error) {
	var list []model.Delivery
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *deliveryRepository) List(ctx context.Context, q DeliveryQuery) ([]model.Delivery, error) {
	var list []model.Delivery
	db := r.db.WithContext(ctx).Model(&model.Delivery{})
	if len(q.TransporterIDs) > 0 {
		db = db.Where("transporter_id IN ?", q.TransporterIDs)
	}
	if len(q.Statuses) > 0 {
		db = db.Where("status IN ?", q.Statuses)
	}
	if q.CreatedSince != nil {
		db = db.Where("created_at >= ?", *q.CreatedSince)
	}
	if q.CreatedBefore != nil {
		db = db.Where("created_at < ?", *q.CreatedBefore)
	}
	if q.DeliveredSince != nil {
		db = db.Where("delivered_at >= ?", *q.DeliveredSince)
	}
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *deliveryRepository) CountActiveByTransporters(ctx context.Context, ids []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		TransporterID uint64
		N             int
	}
	if err := r.db.WithContext(ctx).
		Model(&model.Delivery{}).
		Select("transporter_id, COUNT(*) AS n").
		Where("transporter_id IN ? AND status IN ?", ids, model.ActiveStatuses).
		Group("transporter_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TransporterID] = row.N
	}
	return out, nil
}

func (r *deliveryRepository) ApplyTransition(ctx context.Context, tr Transition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tr.MaxActive > 0 {
			var t model.Transporter
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, tr.TransporterID).Error; err != nil {
				return err
			}
			var active int64
			if err := tx.Model(&model.Delivery{}).
				Where("transporter_id = ? AND status IN ?", tr.TransporterID, model.ActiveStatuses).
				Count(&active).Error; err != nil {
				return err
			}
			if int(active) >= tr.MaxActive {
				return ErrAtCapacity
			}
		}

		q := tx.Model(&model.Delivery{}).Where("id = ? AND status IN ?", tr.DeliveryID, tr.From)
		if tr.ExpectAttempts != nil {
			q = q.Where("delivery_attempts = ?", *tr.ExpectAttempts)
		}
		res := q.Updates(tr.Fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if tr.Tracking != nil {
			tr.Tracking.DeliveryID = tr.DeliveryID
			if err := tx.Create(tr.Tracking).Error; err != nil {
				return err
			}
		}

		if tr.TransporterID == 0 || tr.Stats.IsZero() {
			return nil
		}
		return tx.Model(&model.Transporter{}).
			Where("id = ?", tr.TransporterID).
			Updates(map[string]interface{}{
				"total_deliveries":      gorm.Expr("total_deliveries + ?", tr.Stats.Total),
				"successful_deliveries": gorm.Expr("successful_deliveries + ?", tr.Stats.Successful),
				"cancelled_deliveries":  gorm.Expr("cancelled_deliveries + ?", tr.Stats.Cancelled),
				"earnings_total":        gorm.Expr("earnings_total + ?", tr.Stats.Earnings),
			}).Error
	})
}

func (r *deliveryRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Delivery{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *deliveryRepository) UpdateFieldsIf(ctx context.Context, id uint64, from []model.DeliveryStatus, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Delivery{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deliveryRepository) SetDB(db *gorm.DB) {
	r.db = db
}
