package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// ProductVariant holds sellable stock. Stock may go negative.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU       string    `gorm:"column:sku;type:text;not null;uniqueIndex"`
	Stock     int64     `gorm:"column:stock;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// StockMovement is an immutable stock audit row. (reason, ref_id) is unique so
// each order item is deducted or restored at most once per reason.
type StockMovement struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	VariantID      uuid.UUID                 `gorm:"column:variant_id;type:uuid;not null;index"`
	Delta          int64                     `gorm:"column:delta;not null"`
	ResultingStock *int64                    `gorm:"column:resulting_stock"`
	Reason         enums.StockMovementReason `gorm:"column:reason;type:text;not null;uniqueIndex:ux_stock_movements_reason_ref"`
	RefType        string                    `gorm:"column:ref_type;type:text;not null"`
	RefID          uuid.UUID                 `gorm:"column:ref_id;type:uuid;not null;uniqueIndex:ux_stock_movements_reason_ref"`
	BatchMode      enums.StockBatchMode      `gorm:"column:batch_mode;type:text;not null"`
	Actor          *uuid.UUID                `gorm:"column:actor;type:uuid"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
