package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
)

// Statuses a scanned parcel may be in to be verified as returned.
var verifiableStatuses = []enums.OrderStatus{
	enums.OrderStatusRTOInitiated,
	enums.OrderStatusRTOVerificationPending,
}

// Statuses an order may be in to be written off as lost.
var losableStatuses = []enums.OrderStatus{
	enums.OrderStatusRTOInitiated,
	enums.OrderStatusRTOVerificationPending,
	enums.OrderStatusInTransit,
	enums.OrderStatusHandoverToCourier,
}

// Service verifies returned parcels and settles itemized returns.
type Service interface {
	VerifyRTOReturn(ctx context.Context, input VerifyInput) (*VerifyResult, error)
	RetryRTORestore(ctx context.Context, orderID, actor uuid.UUID) (*VerifyResult, error)
	MarkRTOLost(ctx context.Context, input LostInput) (*orders.StatusView, error)
	ReceiveReturnHandover(ctx context.Context, input ReceiveInput) (*RecordView, error)
	SettleReturnRecord(ctx context.Context, id, actor uuid.UUID) (*RecordView, error)
	GetReturnRecord(ctx context.Context, id uuid.UUID) (*RecordView, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, line stock.Line, reason enums.StockMovementReason, actor *uuid.UUID) (*stock.MovementResult, error)
	RestoreWithFallback(ctx context.Context, lines []stock.Line, reason enums.StockMovementReason, actor *uuid.UUID) stock.RestoreReport
	RestoredRefs(ctx context.Context, tx *gorm.DB, refIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Config carries the collaborators of the returns service.
type Config struct {
	Repo        Repository
	Orders      orders.Repository
	Transitions transitioner
	Stock       stockRestorer
	Tx          txRunner
	Outbox      outbox.Emitter
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	orders      orders.Repository
	transitions transitioner
	stock       stockRestorer
	tx          txRunner
	outbox      outbox.Emitter
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(cfg Config) (Service, error) {
	switch {
	case cfg.Repo == nil:
		return nil, fmt.Errorf("returns repository required")
	case cfg.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case cfg.Transitions == nil:
		return nil, fmt.Errorf("order transitions required")
	case cfg.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case cfg.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case cfg.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := cfg.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:        cfg.Repo,
		orders:      cfg.Orders,
		transitions: cfg.Transitions,
		stock:       cfg.Stock,
		tx:          cfg.Tx,
		outbox:      cfg.Outbox,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// VerifyRTOReturn claims the scanned order as returned, then restores stock
// for GOOD parcels. Once the claim commits it never fails: restore problems
// are reported in the result and RetryRTORestore picks them up.
func (s *service) VerifyRTOReturn(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	scan := strings.TrimSpace(input.ScanValue)
	if scan == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan value is required")
	}
	condition, err := enums.ParseReturnCondition(input.Condition)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return condition").
			WithDetails(map[string]any{"allowed": []enums.ReturnCondition{
				enums.ReturnConditionGood,
				enums.ReturnConditionDamaged,
				enums.ReturnConditionMissingItems,
				enums.ReturnConditionTampered,
				enums.ReturnConditionUnknown,
			}})
	}

	matches, err := s.orders.FindByScanValue(ctx, scan, verifiableStatuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up scanned order")
	}
	switch len(matches) {
	case 0:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order awaiting return verification matches this scan").
			WithDetails(map[string]any{"scan_value": scan})
	case 1:
	default:
		ids := make([]uuid.UUID, 0, len(matches))
		for _, match := range matches {
			ids = append(ids, match.ID)
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "scan matches more than one order").
			WithDetails(map[string]any{"scan_value": scan, "order_ids": ids})
	}
	order := &matches[0]
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	now := s.now()
	claimed, err := s.transitions.Transition(ctx, orders.TransitionInput{
		OrderID:     order.ID,
		To:          enums.OrderStatusReturned,
		Actor:       input.Actor,
		Source:      enums.SourceRTOVerification,
		Reason:      strings.TrimSpace(input.Notes),
		RequireFrom: verifiableStatuses,
		Updates: map[string]any{
			"return_received_at": now,
			"return_condition":   condition,
			"return_verified_by": input.Actor,
			"return_notes":       optionalString(input.Notes),
		},
	})
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Condition: condition}
	if condition == enums.ReturnConditionGood {
		s.restoreInto(ctx, result, claimed.Order, input.Actor)
	}
	s.finishVerification(ctx, claimed.Order, result, input.Actor, now)
	return result, nil
}

// RetryRTORestore reconciles a GOOD return whose restore did not complete.
// Items already carrying a restore movement are skipped, so it is safe to
// call for an order that is already restored.
func (s *service) RetryRTORestore(ctx context.Context, orderID, actor uuid.UUID) (*VerifyResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if order.Status != enums.OrderStatusReturned {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order is %s, only returned orders can be reconciled", order.Status))
	}
	if order.ReturnCondition == nil || *order.ReturnCondition != enums.ReturnConditionGood {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "only GOOD returns restore stock")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	result := &VerifyResult{Condition: enums.ReturnConditionGood, Order: orders.NewStatusView(order)}
	switch {
	case order.StockRestored:
		result.StockRestored = true
		return result, nil
	case !order.StockDeducted:
		result.RestoreSkipped = RestoreSkippedNotDeducted
		return result, nil
	}
	s.restoreInto(ctx, result, order, actor)
	s.finishVerification(ctx, order, result, actor, s.now())
	return result, nil
}

// restoreInto restores a GOOD parcel. Orders that never had stock taken out
// are reported as skipped.
func (s *service) restoreInto(ctx context.Context, result *VerifyResult, order *models.Order, actor uuid.UUID) {
	if !order.StockDeducted {
		result.RestoreSkipped = RestoreSkippedNotDeducted
		return
	}
	report := s.restoreOrder(ctx, order, actor)
	result.Restore = &report
	result.StockRestored = report.Complete
}

// finishVerification flags the order and emits rto_verified. The claim is
// already committed, so failures here are logged and reported as needing
// reconciliation instead of failing the scan.
func (s *service) finishVerification(ctx context.Context, order *models.Order, result *VerifyResult, actor uuid.UUID, now time.Time) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if result.StockRestored {
			if err := s.orders.WithTx(tx).UpdateFields(ctx, order.ID, map[string]any{"stock_restored": true}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag stock restored")
			}
		}
		payload := payloads.RTOVerifiedEvent{
			OrderID:       order.ID,
			Condition:     result.Condition,
			StockRestored: result.StockRestored,
			VerifiedAt:    now,
		}
		if result.Restore != nil {
			payload.RestoreMode = result.Restore.Mode
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRTOVerified,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(actor, string(enums.SourceRTOVerification)),
			OccurredAt:    now,
			Data:          payload,
		})
	})

	result.StockRestored = err == nil && result.StockRestored
	result.ReconcileRequired = err != nil || (result.Restore != nil && !result.Restore.Complete)
	view := orders.NewStatusView(order)
	view.StockRestored = result.StockRestored
	result.Order = view

	fields := map[string]any{
		"condition":      result.Condition,
		"stock_restored": result.StockRestored,
	}
	if result.Restore != nil {
		fields["restore_mode"] = result.Restore.Mode
		fields["restore_failed"] = len(result.Restore.Failed)
	}
	if result.RestoreSkipped != "" {
		fields["restore_skipped"] = result.RestoreSkipped
	}
	logCtx := s.logg.WithFields(ctx, fields)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "rto.verification_record_failed", err)
	case result.ReconcileRequired:
		s.logg.Warn(logCtx, "rto.verified_restore_incomplete")
	default:
		s.logg.Info(logCtx, "rto.verified")
	}
}

// restoreOrder restores every item that no restore path has touched yet. A
// failed lookup is reported as every line failing.
func (s *service) restoreOrder(ctx context.Context, order *models.Order, actor uuid.UUID) stock.RestoreReport {
	itemIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		itemIDs = append(itemIDs, item.ID)
	}
	restored, err := s.stock.RestoredRefs(ctx, nil, itemIDs)
	if err != nil {
		report := stock.RestoreReport{
			Mode:        enums.StockBatchAtomic,
			Restored:    []stock.MovementResult{},
			Failed:      make([]stock.RestoreFailure, 0, len(order.Items)),
			AtomicError: fmt.Sprintf("check restored items: %v", err),
		}
		for _, item := range order.Items {
			report.Failed = append(report.Failed, stock.RestoreFailure{
				VariantID: item.VariantID,
				RefID:     item.ID,
				Error:     err.Error(),
				Code:      pkgerrors.CodeDependency,
			})
		}
		return report
	}
	lines := make([]stock.Line, 0, len(order.Items))
	for _, item := range order.Items {
		if restored[item.ID] || item.Quantity <= 0 {
			continue
		}
		lines = append(lines, stock.Line{VariantID: item.VariantID, Quantity: item.Quantity, RefID: item.ID})
	}
	return s.stock.RestoreWithFallback(ctx, lines, enums.StockReasonRTORestore, actorPtr(actor))
}

func (s *service) MarkRTOLost(ctx context.Context, input LostInput) (*orders.StatusView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	notes := strings.TrimSpace(input.Notes)
	result, err := s.transitions.Transition(ctx, orders.TransitionInput{
		OrderID:     input.OrderID,
		To:          enums.OrderStatusLostInTransit,
		Actor:       input.Actor,
		Source:      enums.SourceOperator,
		Reason:      notes,
		RequireFrom: losableStatuses,
		Updates:     map[string]any{"return_notes": optionalString(notes)},
	})
	if err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, input.OrderID.String()), "rto.marked_lost")
	view := orders.NewStatusView(result.Order)
	return &view, nil
}

func orderLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
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
