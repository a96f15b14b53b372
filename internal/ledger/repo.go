package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository manages the rider balance and its append-only log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// InsertEntry reports false when the (entry_type, ref_type, ref_id) key already exists.
	InsertEntry(ctx context.Context, entry *models.RiderBalanceLog) (bool, error)
	FindEntry(ctx context.Context, entryType enums.BalanceEntryType, refType string, refID uuid.UUID) (*models.RiderBalanceLog, error)
	EnsureBalance(ctx context.Context, riderID uuid.UUID) error
	// AdjustBalance adds delta in one statement and returns the new balance.
	AdjustBalance(ctx context.Context, riderID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	StampBalanceAfter(ctx context.Context, entryID uuid.UUID, balance decimal.Decimal) error
	FindBalance(ctx context.Context, riderID uuid.UUID) (*models.RiderBalance, error)
	ListEntries(ctx context.Context, riderID uuid.UUID, limit int) ([]models.RiderBalanceLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.RiderBalanceLog) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindEntry(ctx context.Context, entryType enums.BalanceEntryType, refType string, refID uuid.UUID) (*models.RiderBalanceLog, error) {
	var entry models.RiderBalanceLog
	if err := r.db.WithContext(ctx).
		Where("entry_type = ? AND ref_type = ? AND ref_id = ?", entryType, refType, refID).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) EnsureBalance(ctx context.Context, riderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "rider_id"}}, DoNothing: true}).
		Create(&models.RiderBalance{RiderID: riderID, Balance: decimal.Zero}).Error
}

func (r *repository) AdjustBalance(ctx context.Context, riderID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.WithContext(ctx).
		Raw("UPDATE rider_balances SET balance = balance + ?, updated_at = ? WHERE rider_id = ? RETURNING balance", delta, time.Now().UTC(), riderID).
		Row().
		Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *repository) StampBalanceAfter(ctx context.Context, entryID uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.RiderBalanceLog{}).
		Where("id = ?", entryID).
		Update("balance_after", balance).Error
}

func (r *repository) FindBalance(ctx context.Context, riderID uuid.UUID) (*models.RiderBalance, error) {
	var balance models.RiderBalance
	if err := r.db.WithContext(ctx).First(&balance, "rider_id = ?", riderID).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListEntries(ctx context.Context, riderID uuid.UUID, limit int) ([]models.RiderBalanceLog, error) {
	var entries []models.RiderBalanceLog
	query := r.db.WithContext(ctx).
		Where("rider_id = ?", riderID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
