package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// TransitionInput requests one status change. Updates are extra columns
// written in the same conditional statement as the status. RequireFrom
// narrows the statuses the order may currently be in.
type TransitionInput struct {
	OrderID         uuid.UUID
	To              enums.OrderStatus
	Actor           uuid.UUID
	Reason          string
	Source          enums.TransitionSource
	CollectedAmount *decimal.Decimal
	Updates         map[string]any
	RequireFrom     []enums.OrderStatus
}

// TransitionResult reports the order after a transition attempt.
// CODCredited is set when the transition itself credited the rider.
type TransitionResult struct {
	Order       *models.Order     `json:"order"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Changed     bool              `json:"changed"`
	CODCredited bool              `json:"cod_credited"`
}

// BulkAssignInput assigns many packed orders to one rider.
type BulkAssignInput struct {
	RiderID  uuid.UUID   `json:"rider_id" validate:"required"`
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=500"`
}

// TransitionRequest is the operator body for POST /orders/{orderId}/transition.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// StatusView is the compact order shape returned by operator actions.
type StatusView struct {
	ID            uuid.UUID         `json:"id"`
	ReadableID    string            `json:"readable_id"`
	Status        enums.OrderStatus `json:"status"`
	RiderID       *uuid.UUID        `json:"rider_id,omitempty"`
	ManifestID    *uuid.UUID        `json:"manifest_id,omitempty"`
	TrackingID    *string           `json:"tracking_id,omitempty"`
	StockDeducted bool              `json:"stock_deducted"`
	StockRestored bool              `json:"stock_restored"`
}

// NewStatusView projects an order onto StatusView.
func NewStatusView(order *models.Order) StatusView {
	return StatusView{
		ID:            order.ID,
		ReadableID:    order.ReadableID,
		Status:        order.Status,
		RiderID:       order.RiderID,
		ManifestID:    order.ManifestID,
		TrackingID:    order.TrackingID,
		StockDeducted: order.StockDeducted,
		StockRestored: order.StockRestored,
	}
}
