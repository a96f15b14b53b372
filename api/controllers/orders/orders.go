package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	internalorders "github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// OrderService is the slice of the order state machine the operator routes use.
type OrderService interface {
	Transition(ctx context.Context, input internalorders.TransitionInput) (*internalorders.TransitionResult, error)
	Pack(ctx context.Context, orderID, actor uuid.UUID) (*internalorders.TransitionResult, error)
	BulkAssign(ctx context.Context, riderID uuid.UUID, orderIDs []uuid.UUID, actor uuid.UUID) types.BulkResult
}

// CourierDispatcher pushes orders to couriers and pulls their status.
type CourierDispatcher interface {
	BulkCreateCourierOrders(ctx context.Context, input couriers.BulkCreateInput) (types.BulkResult, error)
	SyncStatus(ctx context.Context, orderID uuid.UUID) (*couriers.ApplyResult, error)
}

type transitionView struct {
	Order   internalorders.StatusView `json:"order"`
	From    enums.OrderStatus         `json:"from"`
	To      enums.OrderStatus         `json:"to"`
	Changed bool                      `json:"changed"`
}

func newTransitionView(result *internalorders.TransitionResult) transitionView {
	return transitionView{
		Order:   internalorders.NewStatusView(result.Order),
		From:    result.From,
		To:      result.To,
		Changed: result.Changed,
	}
}

// Pack moves a converted order to packed and deducts its stock.
func Pack(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Pack(r.Context(), orderID, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransitionView(result))
	}
}

// Transition applies an operator-requested status change.
func Transition(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req internalorders.TransitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		result, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			To:      status,
			Actor:   middleware.ActorIDFromContext(r.Context()),
			Reason:  validators.SanitizeString(req.Reason, validators.MaxNotesLength),
			Source:  enums.SourceOperator,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransitionView(result))
	}
}

// BulkAssign assigns packed orders to a rider. Each order succeeds or fails on its own.
func BulkAssign(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		var req internalorders.BulkAssignInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result := svc.BulkAssign(r.Context(), req.RiderID, req.OrderIDs, middleware.ActorIDFromContext(r.Context()))
		responses.WriteSuccess(w, result)
	}
}

// CourierSync pulls the latest courier status for one order.
func CourierSync(dispatcher CourierDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "courier dispatch unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := dispatcher.SyncStatus(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload := map[string]any{"outcome": result.Outcome}
		if result.Order != nil {
			payload["order"] = internalorders.NewStatusView(result.Order)
		}
		responses.WriteSuccess(w, payload)
	}
}

// BulkCreateCourierOrders pushes packed orders to one courier.
func BulkCreateCourierOrders(dispatcher CourierDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "courier dispatch unavailable"))
			return
		}
		var req couriers.BulkCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParseLogisticsProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown courier provider"))
			return
		}
		result, err := dispatcher.BulkCreateCourierOrders(r.Context(), couriers.BulkCreateInput{
			Provider: provider,
			OrderIDs: req.OrderIDs,
			Options: couriers.PushOptions{
				DeliveryType:      req.DeliveryType,
				DestinationBranch: req.DestinationBranch,
			},
			Actor: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
