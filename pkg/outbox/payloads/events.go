package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// OrderStatusChangedEvent is emitted for every applied order transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID              `json:"order_id"`
	ReadableID string                 `json:"readable_id"`
	From       enums.OrderStatus      `json:"from"`
	To         enums.OrderStatus      `json:"to"`
	Source     enums.TransitionSource `json:"source"`
	Reason     string                 `json:"reason,omitempty"`
	ChangedAt  time.Time              `json:"changed_at"`
}

// ManifestSettledEvent reports the cash reconciliation of a rider trip.
type ManifestSettledEvent struct {
	ManifestID     uuid.UUID       `json:"manifest_id"`
	ManifestNumber string          `json:"manifest_number"`
	RiderID        uuid.UUID       `json:"rider_id"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	ReceivedCash   decimal.Decimal `json:"received_cash"`
	Variance       decimal.Decimal `json:"variance"`
	SettledAt      time.Time       `json:"settled_at"`
}

// RTOVerifiedEvent reports a warehouse scan of a returned parcel.
type RTOVerifiedEvent struct {
	OrderID       uuid.UUID             `json:"order_id"`
	Condition     enums.ReturnCondition `json:"condition"`
	StockRestored bool                  `json:"stock_restored"`
	RestoreMode   enums.StockBatchMode  `json:"restore_mode,omitempty"`
	VerifiedAt    time.Time             `json:"verified_at"`
}

// SettlementRecordedEvent reports cash handed over by a rider.
type SettlementRecordedEvent struct {
	SettlementID uuid.UUID              `json:"settlement_id"`
	RiderID      uuid.UUID              `json:"rider_id"`
	Amount       decimal.Decimal        `json:"amount"`
	Method       enums.SettlementMethod `json:"method"`
	ManifestID   *uuid.UUID             `json:"manifest_id,omitempty"`
	BalanceAfter decimal.Decimal        `json:"balance_after"`
}

// ReturnSettledEvent reports an itemized return handover being settled.
type ReturnSettledEvent struct {
	ReturnRecordID uuid.UUID `json:"return_record_id"`
	RestockedItems int       `json:"restocked_items"`
	WrittenOff     int       `json:"written_off_items"`
	Investigate    int       `json:"investigate_items"`
}
