package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository persists itemized return handovers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRecord(ctx context.Context, record *models.ReturnRecord) error
	FindRecord(ctx context.Context, id uuid.UUID) (*models.ReturnRecord, error)
	UpdateRecordStatus(ctx context.Context, id uuid.UUID, from enums.ReturnRecordStatus, updates map[string]any) (int64, error)
	UpdateRecordItem(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateRecord inserts the record together with its items.
func (r *repository) CreateRecord(ctx context.Context, record *models.ReturnRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindRecord(ctx context.Context, id uuid.UUID) (*models.ReturnRecord, error) {
	var record models.ReturnRecord
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) UpdateRecordStatus(ctx context.Context, id uuid.UUID, from enums.ReturnRecordStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateRecordItem(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnRecordItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}
