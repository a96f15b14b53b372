package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// ReturnRecord is an itemized handover of returned goods from a rider or courier.
type ReturnRecord struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Source     enums.ReturnSource       `gorm:"column:source;type:text;not null"`
	SourceRef  *string                  `gorm:"column:source_ref;type:text"`
	Status     enums.ReturnRecordStatus `gorm:"column:status;type:text;not null"`
	Notes      *string                  `gorm:"column:notes;type:text"`
	ReceivedBy uuid.UUID                `gorm:"column:received_by;type:uuid;not null"`
	SettledBy  *uuid.UUID               `gorm:"column:settled_by;type:uuid"`
	SettledAt  *time.Time               `gorm:"column:settled_at"`
	Items      []ReturnRecordItem       `gorm:"foreignKey:ReturnRecordID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

type ReturnRecordItem struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ReturnRecordID uuid.UUID           `gorm:"column:return_record_id;type:uuid;not null;index"`
	OrderItemID    uuid.UUID           `gorm:"column:order_item_id;type:uuid;not null"`
	Condition      enums.ItemCondition `gorm:"column:condition;type:text;not null"`
	ActionTaken    *enums.ReturnAction `gorm:"column:action_taken;type:text"`
	StockRestored  bool                `gorm:"column:stock_restored;not null;default:false"`
	Notes          *string             `gorm:"column:notes;type:text"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *ReturnRecordItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
