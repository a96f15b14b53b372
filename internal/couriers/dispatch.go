package couriers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

const maxBulkCourierOrders = 200

// syncStatuses are the statuses in which a courier still owns the parcel.
var syncStatuses = []enums.OrderStatus{
	enums.OrderStatusHandoverToCourier,
	enums.OrderStatusInTransit,
	enums.OrderStatusOutForDelivery,
	enums.OrderStatusHold,
	enums.OrderStatusRTOInitiated,
}

// BulkCreateInput pushes packed orders to one courier.
type BulkCreateInput struct {
	Provider enums.LogisticsProvider
	OrderIDs []uuid.UUID
	Options  PushOptions
	Actor    uuid.UUID
}

// BulkCreateRequest is the body of POST /courier-orders/bulk.
type BulkCreateRequest struct {
	Provider          string      `json:"provider" validate:"required"`
	OrderIDs          []uuid.UUID `json:"order_ids" validate:"required,min=1,max=200"`
	DeliveryType      string      `json:"delivery_type" validate:"omitempty,max=40"`
	DestinationBranch string      `json:"destination_branch" validate:"omitempty,max=120"`
}

// CourierOrderView is the success payload of one pushed order.
type CourierOrderView struct {
	OrderID    uuid.UUID               `json:"order_id"`
	Provider   enums.LogisticsProvider `json:"provider"`
	TrackingID string                  `json:"tracking_id"`
	Waybill    string                  `json:"waybill,omitempty"`
	Status     enums.OrderStatus       `json:"status"`
}

// SyncReport summarizes one SyncStale pass.
type SyncReport struct {
	Checked int `json:"checked"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// DispatchService pushes orders to couriers and pulls their status back.
type DispatchService struct {
	registry    *Registry
	orders      orders.Repository
	transitions transitioner
	tx          txRunner
	tracker     *Tracker
	pushEnabled bool
	logg        *logger.Logger
}

// DispatchConfig collects DispatchService dependencies.
type DispatchConfig struct {
	Registry    *Registry
	Orders      orders.Repository
	Transitions transitioner
	Tx          txRunner
	Tracker     *Tracker
	PushEnabled bool
	Logger      *logger.Logger
}

func NewDispatchService(cfg DispatchConfig) (*DispatchService, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("courier registry required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cfg.Transitions == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if cfg.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("courier tracker required")
	}
	logg := cfg.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &DispatchService{
		registry:    cfg.Registry,
		orders:      cfg.Orders,
		transitions: cfg.Transitions,
		tx:          cfg.Tx,
		tracker:     cfg.Tracker,
		pushEnabled: cfg.PushEnabled,
		logg:        logg,
	}, nil
}

// BulkCreateCourierOrders pushes each order independently. The error is only
// set when the request itself is unusable.
func (s *DispatchService) BulkCreateCourierOrders(ctx context.Context, input BulkCreateInput) (types.BulkResult, error) {
	result := types.NewBulkResult()
	if !s.pushEnabled {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "courier push is disabled")
	}
	if len(input.OrderIDs) == 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "order_ids is required")
	}
	if len(input.OrderIDs) > maxBulkCourierOrders {
		return result, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d orders per request", maxBulkCourierOrders))
	}
	adapter, ok := s.registry.Resolve(input.Provider)
	if !ok {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "courier provider is not integrated").
			WithDetails(map[string]any{"provider": input.Provider})
	}

	for _, orderID := range input.OrderIDs {
		view, err := s.pushOne(ctx, adapter, orderID, input)
		if err != nil {
			result.AddFailure(orderID.String(), err)
			continue
		}
		result.AddSuccess(orderID.String(), view)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider":  input.Provider,
		"requested": len(input.OrderIDs),
		"pushed":    len(result.Success),
		"failed":    len(result.Failed),
	}), "courier.bulk_push")
	return result, nil
}

func (s *DispatchService) pushOne(ctx context.Context, adapter Adapter, orderID uuid.UUID, input BulkCreateInput) (*CourierOrderView, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if order.Status != enums.OrderStatusPacked {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "only packed orders can be pushed to a courier").
			WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusHandoverToCourier})
	}
	if order.TrackingID != nil && *order.TrackingID != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a tracking id").
			WithDetails(map[string]any{"tracking_id": *order.TrackingID})
	}

	pushed, err := adapter.PushOrder(ctx, order, input.Options)
	if err != nil {
		return nil, err
	}

	provider := adapter.Provider()
	updates := map[string]any{
		"logistics_provider": provider,
		"tracking_id":        pushed.TrackingID,
		"dispatched_at":      time.Now().UTC(),
	}
	if pushed.Waybill != "" {
		updates["waybill"] = pushed.Waybill
	}

	var transition *orders.TransitionResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
			OrderID:     orderID,
			To:          enums.OrderStatusHandoverToCourier,
			Actor:       input.Actor,
			Source:      enums.SourceHandover,
			RequireFrom: []enums.OrderStatus{enums.OrderStatusPacked},
			Updates:     updates,
		})
		if err != nil {
			return err
		}
		transition = res
		return nil
	})
	if err != nil {
		// the provider already holds a consignment we have not recorded
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"order_id":    orderID.String(),
			"provider":    provider,
			"tracking_id": pushed.TrackingID,
		}), "courier.push_orphaned", err)
		return nil, err
	}

	return &CourierOrderView{
		OrderID:    orderID,
		Provider:   provider,
		TrackingID: pushed.TrackingID,
		Waybill:    pushed.Waybill,
		Status:     transition.Order.Status,
	}, nil
}

// SyncStatus pulls the courier status for one order and applies it.
func (s *DispatchService) SyncStatus(ctx context.Context, orderID uuid.UUID) (*ApplyResult, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	return s.syncOrder(ctx, order)
}

func (s *DispatchService) syncOrder(ctx context.Context, order *models.Order) (*ApplyResult, error) {
	if order.TrackingID == nil || *order.TrackingID == "" || order.LogisticsProvider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no courier consignment").
			WithDetails(map[string]any{"order_id": order.ID})
	}
	adapter, ok := s.registry.Resolve(*order.LogisticsProvider)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier provider is not integrated").
			WithDetails(map[string]any{"provider": *order.LogisticsProvider})
	}
	status, err := adapter.PullStatus(ctx, *order.TrackingID)
	if err != nil {
		return nil, err
	}
	return s.tracker.Apply(ctx, adapter.Provider(), order, status.Event(*order.TrackingID), enums.CourierEventSync)
}

// SyncStale refreshes courier orders not updated since staleBefore. Per-order
// failures are combined into the returned error and never stop the pass.
func (s *DispatchService) SyncStale(ctx context.Context, staleBefore time.Time, limit int) (SyncReport, error) {
	var report SyncReport
	candidates, err := s.orders.ListCourierOrdersForSync(ctx, syncStatuses, staleBefore, limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list courier orders for sync")
	}

	var errs error
	for i := range candidates {
		order := &candidates[i]
		report.Checked++
		res, err := s.syncOrder(ctx, order)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if res.Outcome == OutcomeApplied {
			report.Applied++
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked": report.Checked,
		"applied": report.Applied,
		"failed":  report.Failed,
	}), "courier.sync_stale")
	return report, errs
}

func orderLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
