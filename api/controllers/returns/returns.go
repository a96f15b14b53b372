package returns

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	internalorders "github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	internalreturns "github.com/angelmondragon/packfinderz-fulfillment/internal/returns"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// Service covers RTO verification and itemized return handovers.
type Service interface {
	VerifyRTOReturn(ctx context.Context, input internalreturns.VerifyInput) (*internalreturns.VerifyResult, error)
	RetryRTORestore(ctx context.Context, orderID, actor uuid.UUID) (*internalreturns.VerifyResult, error)
	MarkRTOLost(ctx context.Context, input internalreturns.LostInput) (*internalorders.StatusView, error)
	ReceiveReturnHandover(ctx context.Context, input internalreturns.ReceiveInput) (*internalreturns.RecordView, error)
	SettleReturnRecord(ctx context.Context, id, actor uuid.UUID) (*internalreturns.RecordView, error)
	GetReturnRecord(ctx context.Context, id uuid.UUID) (*internalreturns.RecordView, error)
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
}

// VerifyRTO resolves a warehouse scan to a returning order and closes it.
func VerifyRTO(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalreturns.VerifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.VerifyRTOReturn(r.Context(), internalreturns.VerifyInput{
			ScanValue: req.ScanValue,
			Condition: req.Condition,
			Notes:     validators.SanitizeString(req.Notes, validators.MaxNotesLength),
			Actor:     middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RetryRestore reruns the stock restore of a GOOD return flagged for
// reconciliation.
func RetryRestore(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryRTORestore(r.Context(), orderID, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MarkLost closes a returning order that never made it back.
func MarkLost(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req internalreturns.LostRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		view, err := svc.MarkRTOLost(r.Context(), internalreturns.LostInput{
			OrderID: orderID,
			Notes:   validators.SanitizeString(req.Notes, validators.MaxNotesLength),
			Actor:   middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ReceiveHandover records the items a rider or courier brought back.
func ReceiveHandover(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalreturns.ReceiveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := req.ToInput(middleware.ActorIDFromContext(r.Context()))
		input.SourceRef = validators.SanitizeString(input.SourceRef, validators.MaxLabelLength)
		input.Notes = validators.SanitizeString(input.Notes, validators.MaxNotesLength)
		for i := range input.Items {
			input.Items[i].Notes = validators.SanitizeString(input.Items[i].Notes, validators.MaxNotesLength)
		}
		view, err := svc.ReceiveReturnHandover(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetRecord(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetReturnRecord(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SettleRecord decides each received item and restocks the good ones.
func SettleRecord(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.SettleReturnRecord(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
