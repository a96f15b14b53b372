package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// VerifyInput is a warehouse scan of a returned parcel.
type VerifyInput struct {
	ScanValue string
	Condition string
	Notes     string
	Actor     uuid.UUID
}

type VerifyRequest struct {
	ScanValue string `json:"scan_value" validate:"required,max=120"`
	Condition string `json:"condition" validate:"required"`
	Notes     string `json:"notes" validate:"omitempty,max=500"`
}

// RestoreSkippedNotDeducted marks a GOOD return of an order whose stock was
// never deducted.
const RestoreSkippedNotDeducted = "stock_not_deducted"

// VerifyResult is the order after verification. Restore is nil when stock
// was left untouched; RestoreSkipped says why for a GOOD parcel.
// ReconcileRequired means RetryRTORestore should be run for the order.
type VerifyResult struct {
	Order             orders.StatusView     `json:"order"`
	Condition         enums.ReturnCondition `json:"condition"`
	StockRestored     bool                  `json:"stock_restored"`
	Restore           *stock.RestoreReport  `json:"restore,omitempty"`
	RestoreSkipped    string                `json:"restore_skipped,omitempty"`
	ReconcileRequired bool                  `json:"reconcile_required"`
}

type LostInput struct {
	OrderID uuid.UUID
	Notes   string
	Actor   uuid.UUID
}

type LostRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=500"`
}

type ReceiveItem struct {
	OrderItemID uuid.UUID
	Condition   enums.ItemCondition
	Notes       string
}

// ReceiveInput is an itemized handover of returned goods.
type ReceiveInput struct {
	Source    enums.ReturnSource
	SourceRef string
	Items     []ReceiveItem
	Notes     string
	Actor     uuid.UUID
}

type ReceiveItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Condition   string    `json:"condition" validate:"required,oneof=good damaged missing"`
	Notes       string    `json:"notes" validate:"omitempty,max=500"`
}

type ReceiveRequest struct {
	Source    string               `json:"source" validate:"required,oneof=rider courier"`
	SourceRef string               `json:"source_ref" validate:"omitempty,max=120"`
	Items     []ReceiveItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
	Notes     string               `json:"notes" validate:"omitempty,max=500"`
}

// ToInput binds the request to the acting operator.
func (r ReceiveRequest) ToInput(actor uuid.UUID) ReceiveInput {
	input := ReceiveInput{
		Source:    enums.ReturnSource(r.Source),
		SourceRef: r.SourceRef,
		Notes:     r.Notes,
		Actor:     actor,
		Items:     make([]ReceiveItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		input.Items = append(input.Items, ReceiveItem{
			OrderItemID: item.OrderItemID,
			Condition:   enums.ItemCondition(item.Condition),
			Notes:       item.Notes,
		})
	}
	return input
}

type RecordItemView struct {
	ID            uuid.UUID           `json:"id"`
	OrderItemID   uuid.UUID           `json:"order_item_id"`
	Condition     enums.ItemCondition `json:"condition"`
	ActionTaken   *enums.ReturnAction `json:"action_taken,omitempty"`
	StockRestored bool                `json:"stock_restored"`
	Notes         *string             `json:"notes,omitempty"`
}

type RecordView struct {
	ID         uuid.UUID                `json:"id"`
	Source     enums.ReturnSource       `json:"source"`
	SourceRef  *string                  `json:"source_ref,omitempty"`
	Status     enums.ReturnRecordStatus `json:"status"`
	Notes      *string                  `json:"notes,omitempty"`
	ReceivedBy uuid.UUID                `json:"received_by"`
	SettledBy  *uuid.UUID               `json:"settled_by,omitempty"`
	SettledAt  *time.Time               `json:"settled_at,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	Items      []RecordItemView         `json:"items"`
}

func NewRecordView(record *models.ReturnRecord) RecordView {
	view := RecordView{
		ID:         record.ID,
		Source:     record.Source,
		SourceRef:  record.SourceRef,
		Status:     record.Status,
		Notes:      record.Notes,
		ReceivedBy: record.ReceivedBy,
		SettledBy:  record.SettledBy,
		SettledAt:  record.SettledAt,
		CreatedAt:  record.CreatedAt,
		Items:      make([]RecordItemView, 0, len(record.Items)),
	}
	for _, item := range record.Items {
		view.Items = append(view.Items, RecordItemView{
			ID:            item.ID,
			OrderItemID:   item.OrderItemID,
			Condition:     item.Condition,
			ActionTaken:   item.ActionTaken,
			StockRestored: item.StockRestored,
			Notes:         item.Notes,
		})
	}
	return view
}
