package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Manifest is a rider trip. Manifests are never deleted.
type Manifest struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ManifestNumber  string               `gorm:"column:manifest_number;type:text;not null;uniqueIndex"`
	RiderID         uuid.UUID            `gorm:"column:rider_id;type:uuid;not null;index"`
	Zone            *string              `gorm:"column:zone;type:text"`
	Status          enums.ManifestStatus `gorm:"column:status;type:text;not null"`
	ExpectedCash    *decimal.Decimal     `gorm:"column:expected_cash;type:numeric(12,2)"`
	ReceivedCash    *decimal.Decimal     `gorm:"column:received_cash;type:numeric(12,2)"`
	Variance        *decimal.Decimal     `gorm:"column:variance;type:numeric(12,2)"`
	SettlementNotes *string              `gorm:"column:settlement_notes;type:text"`
	DispatchedAt    *time.Time           `gorm:"column:dispatched_at"`
	SettledAt       *time.Time           `gorm:"column:settled_at"`
	SettledBy       *uuid.UUID           `gorm:"column:settled_by;type:uuid"`
	CreatedBy       uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	Orders          []Order              `gorm:"foreignKey:ManifestID"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Manifest) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// CourierHandoverBatch groups orders physically handed to a third-party courier.
type CourierHandoverBatch struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BatchNumber    string               `gorm:"column:batch_number;type:text;not null;uniqueIndex"`
	CourierPartner string               `gorm:"column:courier_partner;type:text;not null"`
	Status         enums.HandoverStatus `gorm:"column:status;type:text;not null"`
	Notes          *string              `gorm:"column:notes;type:text"`
	HandedOverAt   *time.Time           `gorm:"column:handed_over_at"`
	HandedOverBy   *uuid.UUID           `gorm:"column:handed_over_by;type:uuid"`
	CreatedBy      uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	Orders         []Order              `gorm:"foreignKey:HandoverBatchID"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *CourierHandoverBatch) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
