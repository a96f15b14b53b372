package manifests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository persists rider manifests and courier handover batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateManifest(ctx context.Context, manifest *models.Manifest) error
	FindManifest(ctx context.Context, id uuid.UUID) (*models.Manifest, error)
	// UpdateManifestStatus applies updates only while the manifest is still in from.
	UpdateManifestStatus(ctx context.Context, id uuid.UUID, from enums.ManifestStatus, updates map[string]any) (int64, error)
	// ListManifests pages by (created_at, id) descending; Limit is used as given.
	ListManifests(ctx context.Context, filter ManifestFilter) ([]models.Manifest, error)
	CreateBatch(ctx context.Context, batch *models.CourierHandoverBatch) error
	FindBatch(ctx context.Context, id uuid.UUID) (*models.CourierHandoverBatch, error)
	// UpdateBatchStatus applies updates only while the batch is still in from.
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, from enums.HandoverStatus, updates map[string]any) (int64, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]models.CourierHandoverBatch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a manifest repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateManifest(ctx context.Context, manifest *models.Manifest) error {
	return r.db.WithContext(ctx).Omit("Orders").Create(manifest).Error
}

func (r *repository) FindManifest(ctx context.Context, id uuid.UUID) (*models.Manifest, error) {
	var manifest models.Manifest
	if err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("readable_id ASC") }).
		Preload("Orders.Items").
		First(&manifest, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *repository) UpdateManifestStatus(ctx context.Context, id uuid.UUID, from enums.ManifestStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Manifest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) ListManifests(ctx context.Context, filter ManifestFilter) ([]models.Manifest, error) {
	var rows []models.Manifest
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if filter.after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", filter.after.CreatedAt, filter.after.CreatedAt, filter.after.ID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RiderID != nil {
		query = query.Where("rider_id = ?", *filter.RiderID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Preload("Orders").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.CourierHandoverBatch) error {
	return r.db.WithContext(ctx).Omit("Orders").Create(batch).Error
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.CourierHandoverBatch, error) {
	var batch models.CourierHandoverBatch
	if err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("readable_id ASC") }).
		First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) UpdateBatchStatus(ctx context.Context, id uuid.UUID, from enums.HandoverStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CourierHandoverBatch{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) ListBatches(ctx context.Context, filter BatchFilter) ([]models.CourierHandoverBatch, error) {
	var rows []models.CourierHandoverBatch
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CourierPartner != "" {
		query = query.Where("courier_partner = ?", filter.CourierPartner)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Preload("Orders").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
