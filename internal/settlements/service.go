package settlements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Service records rider cash settlements against the rider ledger.
type Service interface {
	CreateSettlement(ctx context.Context, input CreateSettlementInput) (*SettlementResult, error)
	// RecordWithTx inserts and debits inside a caller-owned transaction.
	RecordWithTx(ctx context.Context, tx *gorm.DB, input CreateSettlementInput) (*SettlementResult, error)
	VerifySettlement(ctx context.Context, id, actor uuid.UUID) (*SettlementView, error)
	GetRiderSettlementSummary(ctx context.Context, riderID uuid.UUID, date time.Time) (*RiderSummary, error)
	BulkCreateSettlements(ctx context.Context, inputs []CreateSettlementInput) types.BulkResult
}

type riderLedger interface {
	Debit(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*ledger.EntryResult, error)
	Balance(ctx context.Context, riderID uuid.UUID) (decimal.Decimal, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger riderLedger
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the settlement engine.
func NewService(repo Repository, tx txRunner, riderLedger riderLedger, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if riderLedger == nil {
		return nil, fmt.Errorf("rider ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		ledger: riderLedger,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateSettlement(ctx context.Context, input CreateSettlementInput) (*SettlementResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	var result *SettlementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.RecordWithTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RecordWithTx(ctx context.Context, tx *gorm.DB, input CreateSettlementInput) (*SettlementResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	settlement := &models.RiderSettlement{
		RiderID:    input.RiderID,
		Amount:     input.Amount.Round(2),
		Method:     input.Method,
		Reference:  optionalString(input.Reference),
		Notes:      optionalString(input.Notes),
		ManifestID: input.ManifestID,
		CreatedBy:  input.Actor,
	}
	if err := s.repo.WithTx(tx).Create(ctx, settlement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
	}

	entry, err := s.ledger.Debit(ctx, tx, ledger.Entry{
		RiderID: input.RiderID,
		Amount:  settlement.Amount,
		RefType: ledger.RefTypeSettlement,
		RefID:   settlement.ID,
		Note:    input.Reference,
	})
	if err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventSettlementRecorded,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Actor:         outbox.Actor(input.Actor, "operator"),
		OccurredAt:    s.now(),
		Data: payloads.SettlementRecordedEvent{
			SettlementID: settlement.ID,
			RiderID:      settlement.RiderID,
			Amount:       settlement.Amount,
			Method:       settlement.Method,
			ManifestID:   settlement.ManifestID,
			BalanceAfter: entry.Balance,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement event")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"settlement_id": settlement.ID.String(),
		"rider_id":      settlement.RiderID.String(),
		"amount":        settlement.Amount.StringFixed(2),
		"method":        settlement.Method,
		"balance_after": entry.Balance.StringFixed(2),
	}), "settlement.recorded")

	return &SettlementResult{Settlement: NewSettlementView(settlement), BalanceAfter: entry.Balance}, nil
}

func (s *service) VerifySettlement(ctx context.Context, id, actor uuid.UUID) (*SettlementView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if existing.Verified {
		return nil, alreadyVerified(id)
	}

	affected, err := s.repo.MarkVerified(ctx, id, actor, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify settlement")
	}
	if affected == 0 {
		return nil, alreadyVerified(id)
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"settlement_id": id.String(),
		"verified_by":   actor.String(),
	}), "settlement.verified")

	view := NewSettlementView(updated)
	return &view, nil
}

func (s *service) GetRiderSettlementSummary(ctx context.Context, riderID uuid.UUID, date time.Time) (*RiderSummary, error) {
	if riderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	orders, err := s.repo.ListDeliveredCODBetween(ctx, riderID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivered orders")
	}
	rows, err := s.repo.ListByRiderBetween(ctx, riderID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	balance, err := s.ledger.Balance(ctx, riderID)
	if err != nil {
		return nil, err
	}

	summary := &RiderSummary{
		RiderID:         riderID,
		Date:            start.Format("2006-01-02"),
		DeliveredOrders: make([]DeliveredOrder, 0, len(orders)),
		DeliveredCount:  len(orders),
		CODCollected:    decimal.Zero,
		Settlements:     make([]SettlementView, 0, len(rows)),
		SettlementCount: len(rows),
		SettledAmount:   decimal.Zero,
		CurrentBalance:  balance,
	}
	for i := range orders {
		order := &orders[i]
		collected := decimal.Zero
		if order.CollectedAmount != nil {
			collected = *order.CollectedAmount
		}
		summary.CODCollected = summary.CODCollected.Add(collected)
		summary.DeliveredOrders = append(summary.DeliveredOrders, DeliveredOrder{
			ID:              order.ID,
			ReadableID:      order.ReadableID,
			PayableAmount:   order.PayableAmount,
			CollectedAmount: collected,
			DeliveredAt:     order.DeliveredAt,
		})
	}
	for i := range rows {
		summary.SettledAmount = summary.SettledAmount.Add(rows[i].Amount)
		summary.Settlements = append(summary.Settlements, NewSettlementView(&rows[i]))
	}
	summary.Outstanding = summary.CODCollected.Sub(summary.SettledAmount)
	return summary, nil
}

// BulkCreateSettlements records each settlement in its own transaction.
func (s *service) BulkCreateSettlements(ctx context.Context, inputs []CreateSettlementInput) types.BulkResult {
	result := types.NewBulkResult()
	for _, input := range inputs {
		res, err := s.CreateSettlement(ctx, input)
		if err != nil {
			result.AddFailure(input.RiderID.String(), err)
			continue
		}
		result.AddSuccess(input.RiderID.String(), res)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"requested": len(inputs),
		"recorded":  len(result.Success),
		"failed":    len(result.Failed),
	}), "settlement.bulk_create")
	return result
}

func validateInput(input CreateSettlementInput) error {
	switch {
	case input.RiderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	case !input.Amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	case !input.Method.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown settlement method %q", input.Method))
	}
	return nil
}

func lookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
}

func alreadyVerified(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "settlement already verified").
		WithDetails(map[string]any{"settlement_id": id})
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
