package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Order is the fulfillment view of a storefront order.
type Order struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ReadableID         string                   `gorm:"column:readable_id;type:text;not null;uniqueIndex"`
	OrderNumber        string                   `gorm:"column:order_number;type:text;not null"`
	Status             enums.OrderStatus        `gorm:"column:status;type:text;not null;index"`
	FulfillmentType    enums.FulfillmentType    `gorm:"column:fulfillment_type;type:text;not null"`
	RecipientName      string                   `gorm:"column:recipient_name;type:text"`
	RecipientPhone     string                   `gorm:"column:recipient_phone;type:text"`
	RecipientAddress   string                   `gorm:"column:recipient_address;type:text"`
	RecipientArea      string                   `gorm:"column:recipient_area;type:text"`
	LogisticsProvider  *enums.LogisticsProvider `gorm:"column:logistics_provider;type:text"`
	TrackingID         *string                  `gorm:"column:tracking_id;type:text;index"`
	Waybill            *string                  `gorm:"column:waybill;type:text"`
	LogisticsStatusRaw *string                  `gorm:"column:logistics_status_raw;type:text"`
	LogisticsStatus    *enums.OrderStatus       `gorm:"column:logistics_status;type:text"`
	LogisticsRemarks   *string                  `gorm:"column:logistics_remarks;type:text"`
	LogisticsLocation  *string                  `gorm:"column:logistics_location;type:text"`
	LogisticsUpdatedAt *time.Time               `gorm:"column:logistics_updated_at"`
	RiderID            *uuid.UUID               `gorm:"column:rider_id;type:uuid"`
	ManifestID         *uuid.UUID               `gorm:"column:manifest_id;type:uuid;index"`
	HandoverBatchID    *uuid.UUID               `gorm:"column:handover_batch_id;type:uuid;index"`
	RTOInitiatedAt     *time.Time               `gorm:"column:rto_initiated_at"`
	RTOReason          *string                  `gorm:"column:rto_reason;type:text"`
	ReturnCondition    *enums.ReturnCondition   `gorm:"column:return_condition;type:text"`
	ReturnReceivedAt   *time.Time               `gorm:"column:return_received_at"`
	ReturnVerifiedBy   *uuid.UUID               `gorm:"column:return_verified_by;type:uuid"`
	ReturnNotes        *string                  `gorm:"column:return_notes;type:text"`
	StockDeducted      bool                     `gorm:"column:stock_deducted;not null;default:false"`
	StockRestored      bool                     `gorm:"column:stock_restored;not null;default:false"`
	PaymentMethod      enums.PaymentMethod      `gorm:"column:payment_method;type:text;not null"`
	PayableAmount      decimal.Decimal          `gorm:"column:payable_amount;type:numeric(12,2);not null"`
	PaymentCollected   bool                     `gorm:"column:payment_collected;not null;default:false"`
	CollectedAmount    *decimal.Decimal         `gorm:"column:collected_amount;type:numeric(12,2)"`
	PackedAt           *time.Time               `gorm:"column:packed_at"`
	DispatchedAt       *time.Time               `gorm:"column:dispatched_at"`
	DeliveredAt        *time.Time               `gorm:"column:delivered_at"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at"`
	LostAt             *time.Time               `gorm:"column:lost_at"`
	Items              []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsCOD reports whether the rider collects cash on delivery.
func (o *Order) IsCOD() bool {
	return o.PaymentMethod == enums.PaymentMethodCOD
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID       uuid.UUID              `gorm:"column:variant_id;type:uuid;not null"`
	SKU             string                 `gorm:"column:sku;type:text;not null"`
	Quantity        int                    `gorm:"column:quantity;not null"`
	UnitPrice       decimal.Decimal        `gorm:"column:unit_price;type:numeric(12,2);not null"`
	ReturnStatus    enums.ItemReturnStatus `gorm:"column:return_status;type:text;not null;default:'pending'"`
	ReturnCondition *enums.ItemCondition   `gorm:"column:return_condition;type:text"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	if i.ReturnStatus == "" {
		i.ReturnStatus = enums.ItemReturnPending
	}
	return nil
}

// OrderStatusLog is the append-only audit of applied transitions.
type OrderStatusLog struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.OrderStatus      `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.OrderStatus      `gorm:"column:to_status;type:text;not null"`
	Source     enums.TransitionSource `gorm:"column:source;type:text;not null"`
	Actor      *uuid.UUID             `gorm:"column:actor;type:uuid"`
	Reason     *string                `gorm:"column:reason;type:text"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderStatusLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
