package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository persists rider settlements and reads the orders they reconcile.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.RiderSettlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RiderSettlement, error)
	// MarkVerified only touches unverified rows and returns the affected count.
	MarkVerified(ctx context.Context, id, actor uuid.UUID, at time.Time) (int64, error)
	ListByRiderBetween(ctx context.Context, riderID uuid.UUID, start, end time.Time) ([]models.RiderSettlement, error)
	ListDeliveredCODBetween(ctx context.Context, riderID uuid.UUID, start, end time.Time) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.RiderSettlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RiderSettlement, error) {
	var settlement models.RiderSettlement
	if err := r.db.WithContext(ctx).First(&settlement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) MarkVerified(ctx context.Context, id, actor uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RiderSettlement{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]any{
			"verified":    true,
			"verified_by": actor,
			"verified_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListByRiderBetween(ctx context.Context, riderID uuid.UUID, start, end time.Time) ([]models.RiderSettlement, error) {
	var rows []models.RiderSettlement
	if err := r.db.WithContext(ctx).
		Where("rider_id = ? AND created_at >= ? AND created_at < ?", riderID, start, end).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListDeliveredCODBetween(ctx context.Context, riderID uuid.UUID, start, end time.Time) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("rider_id = ? AND payment_method = ? AND status = ?", riderID, enums.PaymentMethodCOD, enums.OrderStatusDelivered).
		Where("delivered_at >= ? AND delivered_at < ?", start, end).
		Order("delivered_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
