package manifests

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	internalmanifests "github.com/angelmondragon/packfinderz-fulfillment/internal/manifests"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pagination"
)

// HandoverService covers courier handover batches.
type HandoverService interface {
	CreateHandoverBatch(ctx context.Context, input internalmanifests.CreateHandoverInput) (*internalmanifests.HandoverView, error)
	MarkHandedOver(ctx context.Context, id, actor uuid.UUID) (*internalmanifests.HandoverView, error)
	GetHandoverBatch(ctx context.Context, id uuid.UUID) (*internalmanifests.HandoverView, error)
	ListHandoverBatches(ctx context.Context, filter internalmanifests.BatchFilter) ([]internalmanifests.HandoverView, error)
}

func CreateHandover(svc HandoverService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalmanifests.CreateHandoverRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CreateHandoverBatch(r.Context(), internalmanifests.CreateHandoverInput{
			CourierPartner: validators.SanitizeString(req.CourierPartner, 80),
			OrderIDs:       req.OrderIDs,
			Notes:          validators.SanitizeString(req.Notes, validators.MaxNotesLength),
			Actor:          middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func ListHandovers(svc HandoverService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		filter := internalmanifests.BatchFilter{CourierPartner: strings.TrimSpace(r.URL.Query().Get("courier_partner"))}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseHandoverStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = limit

		views, err := svc.ListHandoverBatches(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

func GetHandover(svc HandoverService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetHandoverBatch(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// MarkHandedOver records that the courier collected the batch.
func MarkHandedOver(svc HandoverService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.MarkHandedOver(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
