package manifests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/settlements"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pagination"
)

type CreateManifestInput struct {
	RiderID  uuid.UUID
	OrderIDs []uuid.UUID
	Zone     string
	Actor    uuid.UUID
}

type CreateManifestRequest struct {
	RiderID  uuid.UUID   `json:"rider_id" validate:"required"`
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=500"`
	Zone     string      `json:"zone" validate:"omitempty,max=80"`
}

// DeliveryOutcomeInput is what a rider reports for one order on a dispatched manifest.
// CODCollected overrides the payable amount for partial deliveries.
type DeliveryOutcomeInput struct {
	ManifestID   uuid.UUID
	OrderID      uuid.UUID
	Outcome      enums.DeliveryOutcome
	CODCollected *decimal.Decimal
	Notes        string
	Actor        uuid.UUID
}

type DeliveryOutcomeRequest struct {
	OrderID      uuid.UUID        `json:"order_id" validate:"required"`
	Outcome      string           `json:"outcome" validate:"required"`
	CODCollected *decimal.Decimal `json:"cod_collected"`
	Notes        string           `json:"notes" validate:"omitempty,max=500"`
}

type SettleManifestInput struct {
	ManifestID   uuid.UUID
	CashReceived decimal.Decimal
	Notes        string
	Actor        uuid.UUID
}

type SettleManifestRequest struct {
	CashReceived decimal.Decimal `json:"cash_received"`
	Notes        string          `json:"notes" validate:"omitempty,max=500"`
}

type ManifestFilter struct {
	Status  enums.ManifestStatus
	RiderID *uuid.UUID
	Limit   int
	// Cursor is the opaque next_cursor of a previous page.
	Cursor string

	after *pagination.Cursor
}

// ManifestList is one page of manifests, newest first.
type ManifestList struct {
	Items      []ManifestView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type CreateHandoverInput struct {
	CourierPartner string
	OrderIDs       []uuid.UUID
	Notes          string
	Actor          uuid.UUID
}

type CreateHandoverRequest struct {
	CourierPartner string      `json:"courier_partner" validate:"required,max=80"`
	OrderIDs       []uuid.UUID `json:"order_ids" validate:"required,min=1,max=500"`
	Notes          string      `json:"notes" validate:"omitempty,max=500"`
}

type BatchFilter struct {
	Status         enums.HandoverStatus
	CourierPartner string
	Limit          int
}

// ManifestView is the API shape of a manifest and its orders.
type ManifestView struct {
	ID              uuid.UUID            `json:"id"`
	ManifestNumber  string               `json:"manifest_number"`
	RiderID         uuid.UUID            `json:"rider_id"`
	Zone            *string              `json:"zone,omitempty"`
	Status          enums.ManifestStatus `json:"status"`
	ExpectedCash    *decimal.Decimal     `json:"expected_cash,omitempty"`
	ReceivedCash    *decimal.Decimal     `json:"received_cash,omitempty"`
	Variance        *decimal.Decimal     `json:"variance,omitempty"`
	SettlementNotes *string              `json:"settlement_notes,omitempty"`
	DispatchedAt    *time.Time           `json:"dispatched_at,omitempty"`
	SettledAt       *time.Time           `json:"settled_at,omitempty"`
	SettledBy       *uuid.UUID           `json:"settled_by,omitempty"`
	CreatedBy       uuid.UUID            `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	OrderCount      int                  `json:"order_count"`
	Orders          []orders.StatusView  `json:"orders"`
}

func NewManifestView(m *models.Manifest) ManifestView {
	view := ManifestView{
		ID:              m.ID,
		ManifestNumber:  m.ManifestNumber,
		RiderID:         m.RiderID,
		Zone:            m.Zone,
		Status:          m.Status,
		ExpectedCash:    m.ExpectedCash,
		ReceivedCash:    m.ReceivedCash,
		Variance:        m.Variance,
		SettlementNotes: m.SettlementNotes,
		DispatchedAt:    m.DispatchedAt,
		SettledAt:       m.SettledAt,
		SettledBy:       m.SettledBy,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		OrderCount:      len(m.Orders),
		Orders:          make([]orders.StatusView, 0, len(m.Orders)),
	}
	for i := range m.Orders {
		view.Orders = append(view.Orders, orders.NewStatusView(&m.Orders[i]))
	}
	return view
}

// OutcomeResult reports the order after a delivery outcome and any COD credit.
type OutcomeResult struct {
	Order        orders.StatusView     `json:"order"`
	Outcome      enums.DeliveryOutcome `json:"outcome"`
	Changed      bool                  `json:"changed"`
	CODCredited  bool                  `json:"cod_credited"`
	RiderBalance *decimal.Decimal      `json:"rider_balance,omitempty"`
}

// SettleResult is a settled manifest and the rider settlement recorded for its cash.
type SettleResult struct {
	Manifest   ManifestView                  `json:"manifest"`
	Expected   decimal.Decimal               `json:"expected_cash"`
	Received   decimal.Decimal               `json:"received_cash"`
	Variance   decimal.Decimal               `json:"variance"`
	Settlement *settlements.SettlementResult `json:"settlement,omitempty"`
}

// HandoverView is the API shape of a courier handover batch.
type HandoverView struct {
	ID             uuid.UUID            `json:"id"`
	BatchNumber    string               `json:"batch_number"`
	CourierPartner string               `json:"courier_partner"`
	Status         enums.HandoverStatus `json:"status"`
	Notes          *string              `json:"notes,omitempty"`
	HandedOverAt   *time.Time           `json:"handed_over_at,omitempty"`
	HandedOverBy   *uuid.UUID           `json:"handed_over_by,omitempty"`
	CreatedBy      uuid.UUID            `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
	OrderCount     int                  `json:"order_count"`
	Orders         []orders.StatusView  `json:"orders"`
}

func NewHandoverView(b *models.CourierHandoverBatch) HandoverView {
	view := HandoverView{
		ID:             b.ID,
		BatchNumber:    b.BatchNumber,
		CourierPartner: b.CourierPartner,
		Status:         b.Status,
		Notes:          b.Notes,
		HandedOverAt:   b.HandedOverAt,
		HandedOverBy:   b.HandedOverBy,
		CreatedBy:      b.CreatedBy,
		CreatedAt:      b.CreatedAt,
		OrderCount:     len(b.Orders),
		Orders:         make([]orders.StatusView, 0, len(b.Orders)),
	}
	for i := range b.Orders {
		view.Orders = append(view.Orders, orders.NewStatusView(&b.Orders[i]))
	}
	return view
}
