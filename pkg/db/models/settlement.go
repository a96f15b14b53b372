package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// RiderSettlement records cash a rider handed back to the warehouse.
type RiderSettlement struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RiderID    uuid.UUID              `gorm:"column:rider_id;type:uuid;not null;index"`
	Amount     decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Method     enums.SettlementMethod `gorm:"column:method;type:text;not null"`
	Reference  *string                `gorm:"column:reference;type:text"`
	Notes      *string                `gorm:"column:notes;type:text"`
	ManifestID *uuid.UUID             `gorm:"column:manifest_id;type:uuid"`
	Verified   bool                   `gorm:"column:verified;not null;default:false"`
	VerifiedBy *uuid.UUID             `gorm:"column:verified_by;type:uuid"`
	VerifiedAt *time.Time             `gorm:"column:verified_at"`
	CreatedBy  uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *RiderSettlement) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// RiderBalance is the running cash a rider owes the warehouse.
type RiderBalance struct {
	RiderID   uuid.UUID       `gorm:"column:rider_id;type:uuid;primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// RiderBalanceLog is the append-only rider ledger. (entry_type, ref_type, ref_id) is unique.
type RiderBalanceLog struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RiderID      uuid.UUID              `gorm:"column:rider_id;type:uuid;not null;index"`
	EntryType    enums.BalanceEntryType `gorm:"column:entry_type;type:text;not null;uniqueIndex:ux_rider_balance_logs_ref"`
	Amount       decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter *decimal.Decimal       `gorm:"column:balance_after;type:numeric(12,2)"`
	RefType      string                 `gorm:"column:ref_type;type:text;not null;uniqueIndex:ux_rider_balance_logs_ref"`
	RefID        uuid.UUID              `gorm:"column:ref_id;type:uuid;not null;uniqueIndex:ux_rider_balance_logs_ref"`
	Note         *string                `gorm:"column:note;type:text"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (l *RiderBalanceLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
