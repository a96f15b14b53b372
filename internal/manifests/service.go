package manifests

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/settlements"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pagination"
)

// outcomeStatus maps what a rider reports to the order status it produces.
var outcomeStatus = map[enums.DeliveryOutcome]enums.OrderStatus{
	enums.OutcomeDelivered:           enums.OrderStatusDelivered,
	enums.OutcomePartialDelivery:     enums.OrderStatusDelivered,
	enums.OutcomeCustomerRefused:     enums.OrderStatusRTOInitiated,
	enums.OutcomeCustomerUnavailable: enums.OrderStatusHold,
	enums.OutcomeWrongAddress:        enums.OrderStatusHold,
	enums.OutcomeRescheduled:         enums.OrderStatusHold,
	enums.OutcomeReturned:            enums.OrderStatusRTOInitiated,
	enums.OutcomeDamaged:             enums.OrderStatusRTOInitiated,
	enums.OutcomeLost:                enums.OrderStatusLostInTransit,
	enums.OutcomePending:             enums.OrderStatusOutForDelivery,
}

// Service groups orders into rider manifests and courier handover batches.
type Service interface {
	CreateManifest(ctx context.Context, input CreateManifestInput) (*ManifestView, error)
	DispatchManifest(ctx context.Context, id, actor uuid.UUID) (*ManifestView, error)
	RecordDeliveryOutcome(ctx context.Context, input DeliveryOutcomeInput) (*OutcomeResult, error)
	SettleManifest(ctx context.Context, input SettleManifestInput) (*SettleResult, error)
	GetManifest(ctx context.Context, id uuid.UUID) (*ManifestView, error)
	ListManifests(ctx context.Context, filter ManifestFilter) (*ManifestList, error)

	CreateHandoverBatch(ctx context.Context, input CreateHandoverInput) (*HandoverView, error)
	MarkHandedOver(ctx context.Context, id, actor uuid.UUID) (*HandoverView, error)
	GetHandoverBatch(ctx context.Context, id uuid.UUID) (*HandoverView, error)
	ListHandoverBatches(ctx context.Context, filter BatchFilter) ([]HandoverView, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transitioner interface {
	TransitionWithTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type codLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*ledger.EntryResult, error)
}

type settlementRecorder interface {
	RecordWithTx(ctx context.Context, tx *gorm.DB, input settlements.CreateSettlementInput) (*settlements.SettlementResult, error)
}

// Config carries the collaborators of the manifest service.
type Config struct {
	Repo        Repository
	Orders      orders.Repository
	Transitions transitioner
	Tx          txRunner
	Ledger      codLedger
	Settlements settlementRecorder
	Outbox      outbox.Emitter
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	orders      orders.Repository
	transitions transitioner
	tx          txRunner
	ledger      codLedger
	settlements settlementRecorder
	outbox      outbox.Emitter
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(cfg Config) (Service, error) {
	switch {
	case cfg.Repo == nil:
		return nil, fmt.Errorf("manifest repository required")
	case cfg.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case cfg.Transitions == nil:
		return nil, fmt.Errorf("order transitions required")
	case cfg.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("rider ledger required")
	case cfg.Settlements == nil:
		return nil, fmt.Errorf("settlement recorder required")
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
		tx:          cfg.Tx,
		ledger:      cfg.Ledger,
		settlements: cfg.Settlements,
		outbox:      cfg.Outbox,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateManifest(ctx context.Context, input CreateManifestInput) (*ManifestView, error) {
	if input.RiderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	}
	if err := checkOrderIDs(input.OrderIDs); err != nil {
		return nil, err
	}

	var manifestID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.orders.WithTx(tx).FindByIDs(ctx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
		}
		if err := checkEligible(input.OrderIDs, found, "orders must be packed and not on another manifest", func(o *models.Order) bool {
			return o.Status == enums.OrderStatusPacked && o.ManifestID == nil
		}); err != nil {
			return err
		}

		now := s.now()
		manifest := &models.Manifest{
			ManifestNumber: referenceNumber("MF", now),
			RiderID:        input.RiderID,
			Zone:           optionalString(input.Zone),
			Status:         enums.ManifestStatusCreated,
			CreatedBy:      input.Actor,
		}
		if err := s.repo.WithTx(tx).CreateManifest(ctx, manifest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create manifest")
		}

		for _, orderID := range input.OrderIDs {
			if _, err := s.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
				OrderID:     orderID,
				To:          enums.OrderStatusAssigned,
				Actor:       input.Actor,
				Source:      enums.SourceManifest,
				Reason:      manifest.ManifestNumber,
				RequireFrom: []enums.OrderStatus{enums.OrderStatusPacked},
				Updates: map[string]any{
					"manifest_id": manifest.ID,
					"rider_id":    input.RiderID,
				},
			}); err != nil {
				return err
			}
		}
		manifestID = manifest.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	view, err := s.GetManifest(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"manifest_id":     view.ID.String(),
		"manifest_number": view.ManifestNumber,
		"rider_id":        input.RiderID.String(),
		"orders":          len(input.OrderIDs),
	}), "manifest.created")
	return view, nil
}

// DispatchManifest sends the rider out. Orders no longer assigned (cancelled
// or put on hold after manifesting) stay where they are.
func (s *service) DispatchManifest(ctx context.Context, id, actor uuid.UUID) (*ManifestView, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		manifest, err := s.repo.WithTx(tx).FindManifest(ctx, id)
		if err != nil {
			return manifestLookupError(err)
		}
		if manifest.Status != enums.ManifestStatusCreated {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("manifest is already %s", manifest.Status)).
				WithDetails(map[string]any{"manifest_id": id, "status": manifest.Status})
		}
		if len(manifest.Orders) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "manifest has no orders")
		}

		now := s.now()
		affected, err := s.repo.WithTx(tx).UpdateManifestStatus(ctx, id, enums.ManifestStatusCreated, map[string]any{
			"status":        enums.ManifestStatusDispatched,
			"dispatched_at": now,
			"updated_at":    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch manifest")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "manifest changed concurrently")
		}

		for i := range manifest.Orders {
			order := &manifest.Orders[i]
			if order.Status != enums.OrderStatusAssigned {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"manifest_id": id.String(),
					"order_id":    order.ID.String(),
					"status":      order.Status,
				}), "manifest.dispatch_skipped")
				continue
			}
			if _, err := s.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
				OrderID:     order.ID,
				To:          enums.OrderStatusOutForDelivery,
				Actor:       actor,
				Source:      enums.SourceManifest,
				Reason:      manifest.ManifestNumber,
				RequireFrom: []enums.OrderStatus{enums.OrderStatusAssigned},
				Updates:     map[string]any{"dispatched_at": now},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "manifest_id", id.String()), "manifest.dispatched")
	return s.GetManifest(ctx, id)
}

func (s *service) RecordDeliveryOutcome(ctx context.Context, input DeliveryOutcomeInput) (*OutcomeResult, error) {
	target, ok := outcomeStatus[input.Outcome]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown delivery outcome %q", input.Outcome))
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.CODCollected != nil && input.CODCollected.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cod collected cannot be negative")
	}

	var result *OutcomeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		manifest, err := s.repo.WithTx(tx).FindManifest(ctx, input.ManifestID)
		if err != nil {
			return manifestLookupError(err)
		}
		if manifest.Status != enums.ManifestStatusDispatched {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("manifest is %s, outcomes need a dispatched manifest", manifest.Status))
		}
		order, err := s.orders.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return orderLookupError(err)
		}
		if order.ManifestID == nil || *order.ManifestID != manifest.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "order does not belong to this manifest").
				WithDetails(map[string]any{"order_id": order.ID, "manifest_id": manifest.ID})
		}

		reason := strings.TrimSpace(input.Notes)
		if reason == "" {
			reason = string(input.Outcome)
		}
		transition, err := s.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
			OrderID:         order.ID,
			To:              target,
			Actor:           input.Actor,
			Source:          enums.SourceManifest,
			Reason:          reason,
			CollectedAmount: input.CODCollected,
		})
		if err != nil {
			return err
		}

		result = &OutcomeResult{
			Order:   orders.NewStatusView(transition.Order),
			Outcome: input.Outcome,
			Changed: transition.Changed,
		}
		if target != enums.OrderStatusDelivered || !transition.Order.IsCOD() {
			return nil
		}
		amount := transition.Order.PayableAmount
		if transition.Order.CollectedAmount != nil {
			amount = *transition.Order.CollectedAmount
		}
		if !amount.IsPositive() {
			return nil
		}
		entry, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			RiderID: manifest.RiderID,
			Amount:  amount,
			RefType: ledger.RefTypeOrder,
			RefID:   order.ID,
			Note:    manifest.ManifestNumber,
		})
		if err != nil {
			return err
		}
		result.CODCredited = entry.Applied
		result.RiderBalance = &entry.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"manifest_id":  input.ManifestID.String(),
		"order_id":     input.OrderID.String(),
		"outcome":      input.Outcome,
		"changed":      result.Changed,
		"cod_credited": result.CODCredited,
	}), "manifest.outcome_recorded")
	return result, nil
}

// SettleManifest reconciles the cash a rider brought back against the COD
// orders the manifest delivered.
func (s *service) SettleManifest(ctx context.Context, input SettleManifestInput) (*SettleResult, error) {
	if input.CashReceived.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash received cannot be negative")
	}

	var result *SettleResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		manifest, err := repo.FindManifest(ctx, input.ManifestID)
		if err != nil {
			return manifestLookupError(err)
		}
		switch manifest.Status {
		case enums.ManifestStatusSettled:
			return pkgerrors.New(pkgerrors.CodeConflict, "manifest already settled").
				WithDetails(map[string]any{"manifest_id": manifest.ID})
		case enums.ManifestStatusCreated:
			return pkgerrors.New(pkgerrors.CodeConflict, "manifest has not been dispatched").
				WithDetails(map[string]any{"manifest_id": manifest.ID})
		}

		expected := expectedCash(manifest.Orders)
		received := input.CashReceived.Round(2)
		variance := received.Sub(expected)
		now := s.now()

		affected, err := repo.UpdateManifestStatus(ctx, manifest.ID, enums.ManifestStatusDispatched, map[string]any{
			"status":           enums.ManifestStatusSettled,
			"expected_cash":    expected,
			"received_cash":    received,
			"variance":         variance,
			"settlement_notes": optionalString(input.Notes),
			"settled_at":       now,
			"settled_by":       input.Actor,
			"updated_at":       now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle manifest")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "manifest already settled")
		}

		result = &SettleResult{Expected: expected, Received: received, Variance: variance}
		if received.IsPositive() {
			manifestID := manifest.ID
			settlement, err := s.settlements.RecordWithTx(ctx, tx, settlements.CreateSettlementInput{
				RiderID:    manifest.RiderID,
				Amount:     received,
				Method:     enums.SettlementMethodCash,
				Reference:  manifest.ManifestNumber,
				Notes:      input.Notes,
				ManifestID: &manifestID,
				Actor:      input.Actor,
			})
			if err != nil {
				return err
			}
			result.Settlement = settlement
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventManifestSettled,
			AggregateType: enums.AggregateManifest,
			AggregateID:   manifest.ID,
			Actor:         outbox.Actor(input.Actor, string(enums.SourceManifest)),
			OccurredAt:    now,
			Data: payloads.ManifestSettledEvent{
				ManifestID:     manifest.ID,
				ManifestNumber: manifest.ManifestNumber,
				RiderID:        manifest.RiderID,
				ExpectedCash:   expected,
				ReceivedCash:   received,
				Variance:       variance,
				SettledAt:      now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit manifest settled event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view, err := s.GetManifest(ctx, input.ManifestID)
	if err != nil {
		return nil, err
	}
	result.Manifest = *view

	fields := map[string]any{
		"manifest_id": input.ManifestID.String(),
		"expected":    result.Expected.StringFixed(2),
		"received":    result.Received.StringFixed(2),
		"variance":    result.Variance.StringFixed(2),
	}
	if !result.Variance.IsZero() {
		s.logg.Warn(s.logg.WithFields(ctx, fields), "manifest.settled_with_variance")
	} else {
		s.logg.Info(s.logg.WithFields(ctx, fields), "manifest.settled")
	}
	return result, nil
}

func (s *service) GetManifest(ctx context.Context, id uuid.UUID) (*ManifestView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "manifest id is required")
	}
	manifest, err := s.repo.FindManifest(ctx, id)
	if err != nil {
		return nil, manifestLookupError(err)
	}
	view := NewManifestView(manifest)
	return &view, nil
}

func (s *service) ListManifests(ctx context.Context, filter ManifestFilter) (*ManifestList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown manifest status %q", filter.Status))
	}
	after, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	pageSize := pagination.NormalizeLimit(filter.Limit)
	filter.after = after
	filter.Limit = pagination.LimitWithBuffer(pageSize)

	rows, err := s.repo.ListManifests(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list manifests")
	}

	list := &ManifestList{Items: make([]ManifestView, 0, len(rows))}
	if len(rows) > pageSize {
		last := rows[pageSize-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:pageSize]
	}
	for i := range rows {
		list.Items = append(list.Items, NewManifestView(&rows[i]))
	}
	return list, nil
}

// expectedCash sums the payable amount of delivered COD orders.
func expectedCash(list []models.Order) decimal.Decimal {
	total := decimal.Zero
	for i := range list {
		order := &list[i]
		if order.Status == enums.OrderStatusDelivered && order.IsCOD() {
			total = total.Add(order.PayableAmount)
		}
	}
	return total.Round(2)
}

// checkOrderIDs rejects empty and duplicated id lists.
func checkOrderIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_ids must not be empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var duplicates []uuid.UUID
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			duplicates = append(duplicates, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(duplicates) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_ids contains duplicates").
			WithDetails(map[string]any{"duplicate_order_ids": duplicates})
	}
	return nil
}

// checkEligible fails with every missing or ineligible id so the operator can
// fix the whole selection at once.
func checkEligible(ids []uuid.UUID, found []models.Order, message string, eligible func(*models.Order) bool) error {
	byID := make(map[uuid.UUID]*models.Order, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	var missing, ineligible []uuid.UUID
	for _, id := range ids {
		order, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case !eligible(order):
			ineligible = append(ineligible, id)
		}
	}
	if len(missing) == 0 && len(ineligible) == 0 {
		return nil
	}
	details := map[string]any{}
	if len(missing) > 0 {
		details["missing_order_ids"] = missing
	}
	if len(ineligible) > 0 {
		details["ineligible_order_ids"] = ineligible
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// referenceNumber builds PREFIX-YYYYMMDD-XXXXXX.
func referenceNumber(prefix string, now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), strings.ToUpper(hex.EncodeToString(id[:3])))
}

func manifestLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "manifest not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load manifest")
}

func orderLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
