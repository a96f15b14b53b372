package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository persists variant stock and its movement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// InsertMovement reports false when a movement with the same (reason, ref_id) already exists.
	InsertMovement(ctx context.Context, movement *models.StockMovement) (bool, error)
	FindMovement(ctx context.Context, reason enums.StockMovementReason, refID uuid.UUID) (*models.StockMovement, error)
	// AdjustStock applies delta in a single statement and returns the new stock.
	// gorm.ErrRecordNotFound is returned when the variant does not exist.
	AdjustStock(ctx context.Context, variantID uuid.UUID, delta int64) (int64, error)
	StampResultingStock(ctx context.Context, movementID uuid.UUID, stock int64) error
	ListMovementsByRefs(ctx context.Context, reasons []enums.StockMovementReason, refIDs []uuid.UUID) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.StockMovement) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(movement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindMovement(ctx context.Context, reason enums.StockMovementReason, refID uuid.UUID) (*models.StockMovement, error) {
	var movement models.StockMovement
	if err := r.db.WithContext(ctx).
		Where("reason = ? AND ref_id = ?", reason, refID).
		First(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

func (r *repository) AdjustStock(ctx context.Context, variantID uuid.UUID, delta int64) (int64, error) {
	var stocks []int64
	if err := r.db.WithContext(ctx).
		Raw("UPDATE product_variants SET stock = stock + ?, updated_at = ? WHERE id = ? RETURNING stock", delta, time.Now().UTC(), variantID).
		Scan(&stocks).Error; err != nil {
		return 0, err
	}
	if len(stocks) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return stocks[0], nil
}

func (r *repository) StampResultingStock(ctx context.Context, movementID uuid.UUID, stock int64) error {
	return r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("id = ?", movementID).
		Update("resulting_stock", stock).Error
}

func (r *repository) ListMovementsByRefs(ctx context.Context, reasons []enums.StockMovementReason, refIDs []uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	if len(refIDs) == 0 {
		return movements, nil
	}
	if err := r.db.WithContext(ctx).
		Where("reason IN ? AND ref_id IN ?", reasons, refIDs).
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
