package settlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// CreateSettlementInput records cash a rider handed back.
type CreateSettlementInput struct {
	RiderID    uuid.UUID
	Amount     decimal.Decimal
	Method     enums.SettlementMethod
	Reference  string
	Notes      string
	ManifestID *uuid.UUID
	Actor      uuid.UUID
}

// CreateSettlementRequest is the operator body for POST /settlements.
type CreateSettlementRequest struct {
	RiderID    uuid.UUID       `json:"rider_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required,oneof=cash bank_transfer mobile_banking"`
	Reference  string          `json:"reference" validate:"omitempty,max=120"`
	Notes      string          `json:"notes" validate:"omitempty,max=500"`
	ManifestID *uuid.UUID      `json:"manifest_id"`
}

// BulkCreateSettlementRequest is the operator body for POST /settlements/bulk.
type BulkCreateSettlementRequest struct {
	Settlements []CreateSettlementRequest `json:"settlements" validate:"required,min=1,max=200,dive"`
}

// ToInput binds the request to the acting operator.
func (r CreateSettlementRequest) ToInput(actor uuid.UUID) CreateSettlementInput {
	return CreateSettlementInput{
		RiderID:    r.RiderID,
		Amount:     r.Amount,
		Method:     enums.SettlementMethod(r.Method),
		Reference:  r.Reference,
		Notes:      r.Notes,
		ManifestID: r.ManifestID,
		Actor:      actor,
	}
}

// SettlementView is the API shape of a rider settlement.
type SettlementView struct {
	ID         uuid.UUID              `json:"id"`
	RiderID    uuid.UUID              `json:"rider_id"`
	Amount     decimal.Decimal        `json:"amount"`
	Method     enums.SettlementMethod `json:"method"`
	Reference  *string                `json:"reference,omitempty"`
	Notes      *string                `json:"notes,omitempty"`
	ManifestID *uuid.UUID             `json:"manifest_id,omitempty"`
	Verified   bool                   `json:"verified"`
	VerifiedBy *uuid.UUID             `json:"verified_by,omitempty"`
	VerifiedAt *time.Time             `json:"verified_at,omitempty"`
	CreatedBy  uuid.UUID              `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewSettlementView projects a settlement row onto SettlementView.
func NewSettlementView(s *models.RiderSettlement) SettlementView {
	return SettlementView{
		ID:         s.ID,
		RiderID:    s.RiderID,
		Amount:     s.Amount,
		Method:     s.Method,
		Reference:  s.Reference,
		Notes:      s.Notes,
		ManifestID: s.ManifestID,
		Verified:   s.Verified,
		VerifiedBy: s.VerifiedBy,
		VerifiedAt: s.VerifiedAt,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt,
	}
}

// SettlementResult is a recorded settlement and the rider balance after it.
type SettlementResult struct {
	Settlement   SettlementView  `json:"settlement"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// DeliveredOrder is one COD order a rider delivered on the summary day.
type DeliveredOrder struct {
	ID              uuid.UUID       `json:"id"`
	ReadableID      string          `json:"readable_id"`
	PayableAmount   decimal.Decimal `json:"payable_amount"`
	CollectedAmount decimal.Decimal `json:"collected_amount"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
}

// RiderSummary reconciles one rider's COD collections against settlements for a UTC day.
type RiderSummary struct {
	RiderID         uuid.UUID        `json:"rider_id"`
	Date            string           `json:"date"`
	DeliveredOrders []DeliveredOrder `json:"delivered_orders"`
	DeliveredCount  int              `json:"delivered_count"`
	CODCollected    decimal.Decimal  `json:"cod_collected"`
	Settlements     []SettlementView `json:"settlements"`
	SettlementCount int              `json:"settlement_count"`
	SettledAmount   decimal.Decimal  `json:"settled_amount"`
	Outstanding     decimal.Decimal  `json:"outstanding"`
	CurrentBalance  decimal.Decimal  `json:"current_balance"`
}
