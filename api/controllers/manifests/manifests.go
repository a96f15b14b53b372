package manifests

import (
	"context"
	"net/http"

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

// ManifestService is the rider manifest half of the dispatch service.
type ManifestService interface {
	CreateManifest(ctx context.Context, input internalmanifests.CreateManifestInput) (*internalmanifests.ManifestView, error)
	DispatchManifest(ctx context.Context, id, actor uuid.UUID) (*internalmanifests.ManifestView, error)
	RecordDeliveryOutcome(ctx context.Context, input internalmanifests.DeliveryOutcomeInput) (*internalmanifests.OutcomeResult, error)
	SettleManifest(ctx context.Context, input internalmanifests.SettleManifestInput) (*internalmanifests.SettleResult, error)
	GetManifest(ctx context.Context, id uuid.UUID) (*internalmanifests.ManifestView, error)
	ListManifests(ctx context.Context, filter internalmanifests.ManifestFilter) (*internalmanifests.ManifestList, error)
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "manifest service unavailable"))
}

// Create groups packed orders into a new rider manifest.
func Create(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalmanifests.CreateManifestRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CreateManifest(r.Context(), internalmanifests.CreateManifestInput{
			RiderID:  req.RiderID,
			OrderIDs: req.OrderIDs,
			Zone:     validators.SanitizeString(req.Zone, 80),
			Actor:    middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// List returns manifests filtered by status and rider.
func List(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		filter := internalmanifests.ManifestFilter{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseManifestStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}
		riderID, err := validators.ParseQueryUUID(r, "rider_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.RiderID = riderID
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = limit

		list, err := svc.ListManifests(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Get(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "manifestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetManifest(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Dispatch sends a created manifest out with its rider.
func Dispatch(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "manifestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.DispatchManifest(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// RecordOutcome applies one rider-reported delivery outcome.
func RecordOutcome(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "manifestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req internalmanifests.DeliveryOutcomeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseDeliveryOutcome(req.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery outcome"))
			return
		}
		result, err := svc.RecordDeliveryOutcome(r.Context(), internalmanifests.DeliveryOutcomeInput{
			ManifestID:   id,
			OrderID:      req.OrderID,
			Outcome:      outcome,
			CODCollected: req.CODCollected,
			Notes:        validators.SanitizeString(req.Notes, validators.MaxNotesLength),
			Actor:        middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Settle reconciles the cash a rider handed in against the manifest.
func Settle(svc ManifestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "manifestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req internalmanifests.SettleManifestRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SettleManifest(r.Context(), internalmanifests.SettleManifestInput{
			ManifestID:   id,
			CashReceived: req.CashReceived,
			Notes:        validators.SanitizeString(req.Notes, validators.MaxNotesLength),
			Actor:        middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
