package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Service exposes the order state machine.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	// TransitionWithTx runs the transition inside a caller-owned transaction.
	TransitionWithTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error)
	Pack(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error)
	Assign(ctx context.Context, orderID, riderID, actor uuid.UUID) (*TransitionResult, error)
	BulkAssign(ctx context.Context, riderID uuid.UUID, orderIDs []uuid.UUID, actor uuid.UUID) types.BulkResult
}

type service struct {
	repo   Repository
	tx     txRunner
	stock  stockDeductor
	outbox outboxPublisher
	ledger codLedger
	logg   *logger.Logger
	now    func() time.Time
}

// Option tunes the order service.
type Option func(*service)

// WithRiderLedger credits the assigned rider when a COD order is delivered
// outside a manifest. Manifest outcomes credit the rider themselves.
func WithRiderLedger(l codLedger) Option {
	return func(s *service) {
		s.ledger = l
	}
}

// NewService wires the order state machine.
func NewService(repo Repository, tx txRunner, stockLedger stockDeductor, outboxPublisher outboxPublisher, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stockLedger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if outboxPublisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	svc := &service{
		repo:   repo,
		tx:     tx,
		stock:  stockLedger,
		outbox: outboxPublisher,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, lookupError(err)
	}
	return order, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.TransitionWithTx(ctx, tx, input)
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

func (s *service) TransitionWithTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.To))
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transition source %q", input.Source))
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, lookupError(err)
	}
	from := order.Status

	if len(input.RequireFrom) > 0 && !containsStatus(input.RequireFrom, from) {
		return nil, invalidTransition(from, input.To, "order is not in an eligible status")
	}
	if from == input.To {
		return &TransitionResult{Order: order, From: from, To: input.To, Changed: false}, nil
	}
	if !CanTransition(from, input.To) {
		return nil, invalidTransition(from, input.To, fmt.Sprintf("cannot move order from %s to %s", from, input.To))
	}
	if from == enums.OrderStatusHold && !holdExitAllowed(input.To, order.StockDeducted) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order on hold cannot resume as %s with stock_deducted=%t", input.To, order.StockDeducted)).
			WithDetails(map[string]any{"from": from, "to": input.To, "stock_deducted": order.StockDeducted})
	}
	if !sourceAllowed(input.To, input.Source) {
		return nil, invalidTransition(from, input.To, fmt.Sprintf("only %s may mark an order %s", enums.SourceRTOVerification, input.To))
	}

	now := s.now()
	updates := s.sideEffects(order, input, now)
	affected, err := repo.UpdateStatusConditional(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID, "expected_status": from})
	}

	if input.To == enums.OrderStatusPacked && !order.StockDeducted {
		if _, err := s.stock.DeductBatch(ctx, tx, deductionLines(order), enums.StockReasonPackDeduction, actorPtr(input.Actor)); err != nil {
			return nil, err
		}
	}

	statusLog := &models.OrderStatusLog{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   input.To,
		Source:     input.Source,
		Actor:      actorPtr(input.Actor),
		Reason:     optionalString(input.Reason),
	}
	if err := repo.CreateStatusLog(ctx, statusLog); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write order status log")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.Actor(input.Actor, string(input.Source)),
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			ReadableID: order.ReadableID,
			From:       from,
			To:         input.To,
			Source:     input.Source,
			Reason:     input.Reason,
			ChangedAt:  now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}

	credited, err := s.creditRider(ctx, tx, updated, input.Source)
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     from,
		"to":       input.To,
		"source":   input.Source,
	}), "order.transition")

	return &TransitionResult{Order: updated, From: from, To: input.To, Changed: true, CODCredited: credited}, nil
}

// creditRider books the cash a rider collected on a delivery that did not go
// through a manifest. The entry is keyed by order, so a later manifest outcome
// for the same order is a no-op.
func (s *service) creditRider(ctx context.Context, tx *gorm.DB, order *models.Order, source enums.TransitionSource) (bool, error) {
	if s.ledger == nil || source == enums.SourceManifest {
		return false, nil
	}
	if order.Status != enums.OrderStatusDelivered || !order.IsCOD() || order.RiderID == nil {
		return false, nil
	}
	if order.CollectedAmount == nil || !order.CollectedAmount.IsPositive() {
		return false, nil
	}
	entry, err := s.ledger.Credit(ctx, tx, ledger.Entry{
		RiderID: *order.RiderID,
		Amount:  *order.CollectedAmount,
		RefType: ledger.RefTypeOrder,
		RefID:   order.ID,
		Note:    string(source),
	})
	if err != nil {
		return false, err
	}
	return entry.Applied, nil
}

// sideEffects returns the columns written together with the new status.
func (s *service) sideEffects(order *models.Order, input TransitionInput, now time.Time) map[string]any {
	updates := make(map[string]any, len(input.Updates)+4)
	for key, value := range input.Updates {
		updates[key] = value
	}
	updates["status"] = input.To
	updates["updated_at"] = now

	switch input.To {
	case enums.OrderStatusPacked:
		if !order.StockDeducted {
			updates["stock_deducted"] = true
		}
		if order.PackedAt == nil {
			updates["packed_at"] = now
		}
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		if order.IsCOD() {
			amount := order.PayableAmount
			if input.CollectedAmount != nil {
				amount = *input.CollectedAmount
			}
			updates["payment_collected"] = true
			updates["collected_amount"] = amount
		}
	case enums.OrderStatusRTOInitiated:
		if order.RTOInitiatedAt == nil {
			updates["rto_initiated_at"] = now
		}
		if order.RTOReason == nil && strings.TrimSpace(input.Reason) != "" {
			updates["rto_reason"] = strings.TrimSpace(input.Reason)
		}
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
	case enums.OrderStatusLostInTransit:
		updates["lost_at"] = now
	}
	return updates
}

func (s *service) Pack(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionInput{
		OrderID: orderID,
		To:      enums.OrderStatusPacked,
		Actor:   actor,
		Source:  enums.SourceOperator,
	})
}

func (s *service) Assign(ctx context.Context, orderID, riderID, actor uuid.UUID) (*TransitionResult, error) {
	if riderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	}
	return s.Transition(ctx, TransitionInput{
		OrderID:     orderID,
		To:          enums.OrderStatusAssigned,
		Actor:       actor,
		Source:      enums.SourceOperator,
		RequireFrom: []enums.OrderStatus{enums.OrderStatusPacked},
		Updates:     map[string]any{"rider_id": riderID},
	})
}

// BulkAssign assigns each order in its own transaction so one failure never
// rolls back the rest.
func (s *service) BulkAssign(ctx context.Context, riderID uuid.UUID, orderIDs []uuid.UUID, actor uuid.UUID) types.BulkResult {
	result := types.NewBulkResult()
	for _, orderID := range orderIDs {
		res, err := s.Assign(ctx, orderID, riderID, actor)
		if err != nil {
			result.AddFailure(orderID.String(), err)
			continue
		}
		result.AddSuccess(orderID.String(), NewStatusView(res.Order))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"rider_id":  riderID.String(),
		"requested": len(orderIDs),
		"assigned":  len(result.Success),
		"failed":    len(result.Failed),
	}), "order.bulk_assign")
	return result
}

func deductionLines(order *models.Order) []stock.Line {
	lines := make([]stock.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, stock.Line{VariantID: item.VariantID, Quantity: item.Quantity, RefID: item.ID})
	}
	return lines
}

func lookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func invalidTransition(from, to enums.OrderStatus, message string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, message).
		WithDetails(map[string]any{"from": from, "to": to})
}

func containsStatus(statuses []enums.OrderStatus, status enums.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func actorPtr(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	return &actor
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
