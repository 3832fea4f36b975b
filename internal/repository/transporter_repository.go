package repository

import (
	"context"

	"github.com/shinyyama/dispatch-backend/internal/model"
	"gorm.io/gorm"
)

type TransporterRepository interface {
	Create(ctx context.Context, t *model.Transporter) error
	FindByID(ctx context.Context, id uint64) (*model.Transporter, error)
	FindByUserUID(ctx context.Context, uid string) (*model.Transporter, error)
	// ListDispatchable returns available, verified, active transporters ordered by id.
	ListDispatchable(ctx context.Context) ([]model.Transporter, error)
	ListByStatus(ctx context.Context, statuses ...model.TransporterStatus) ([]model.Transporter, error)
	ListAll(ctx context.Context) ([]model.Transporter, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error
	// UpdateFieldsIf applies fields only while the transporter is in one of the
	// given statuses. It reports whether a row was changed.
	UpdateFieldsIf(ctx context.Context, id uint64, from []model.TransporterStatus, fields map[string]interface{}) (bool, error)
	SetDB(db *gorm.DB)
}

type transporterRepository struct {
	db *gorm.DB
}

func NewTransporterRepository(db *gorm.DB) TransporterRepository {
	return &transporterRepository{db: db}
}

func (r *transporterRepository) Create(ctx context.Context, t *model.Transporter) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *transporterRepository) FindByID(ctx context.Context, id uint64) (*model.Transporter, error) {
	var t model.Transporter
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transporterRepository) FindByUserUID(ctx context.Context, uid string) (*model.Transporter, error) {
	var t model.Transporter
	if err := r.db.WithContext(ctx).Where("user_uid = ?", uid).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transporterRepository) ListDispatchable(ctx context.Context) ([]model.Transporter, error) {
	var list []model.Transporter
	if err := r.db.WithContext(ctx).
		Where("is_available = ? AND is_verified = ? AND status = ?", true, true, model.TransporterActive).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *transporterRepository) ListByStatus(ctx context.Context, statuses ...model.TransporterStatus) ([]model.Transporter, error) {
	var list []model.Transporter
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *transporterRepository) ListAll(ctx context.Context) ([]model.Transporter, error) {
	var list []model.Transporter
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *transporterRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Transporter{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *transporterRepository) UpdateFieldsIf(ctx context.Context, id uint64, from []model.TransporterStatus, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Transporter{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *transporterRepository) SetDB(db *gorm.DB) {
	r.db = db
}
