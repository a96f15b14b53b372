package settlements

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	internalsettlements "github.com/angelmondragon/packfinderz-fulfillment/internal/settlements"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Service is the operator surface of rider settlements.
type Service interface {
	CreateSettlement(ctx context.Context, input internalsettlements.CreateSettlementInput) (*internalsettlements.SettlementResult, error)
	VerifySettlement(ctx context.Context, id, actor uuid.UUID) (*internalsettlements.SettlementView, error)
	GetRiderSettlementSummary(ctx context.Context, riderID uuid.UUID, date time.Time) (*internalsettlements.RiderSummary, error)
	BulkCreateSettlements(ctx context.Context, inputs []internalsettlements.CreateSettlementInput) types.BulkResult
}

var now = func() time.Time { return time.Now().UTC() }

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
}

// Create records cash a rider handed in and debits their balance.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalsettlements.CreateSettlementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateSettlement(r.Context(), settlementInput(req, middleware.ActorIDFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func settlementInput(req internalsettlements.CreateSettlementRequest, actor uuid.UUID) internalsettlements.CreateSettlementInput {
	input := req.ToInput(actor)
	input.Reference = validators.SanitizeString(input.Reference, validators.MaxLabelLength)
	input.Notes = validators.SanitizeString(input.Notes, validators.MaxNotesLength)
	return input
}

// BulkCreate records many settlements. Each one succeeds or fails on its own.
func BulkCreate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req internalsettlements.BulkCreateSettlementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorIDFromContext(r.Context())
		inputs := make([]internalsettlements.CreateSettlementInput, 0, len(req.Settlements))
		for _, item := range req.Settlements {
			inputs = append(inputs, settlementInput(item, actor))
		}
		responses.WriteSuccess(w, svc.BulkCreateSettlements(r.Context(), inputs))
	}
}

func Verify(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "settlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.VerifySettlement(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// RiderSummary reports one rider's deliveries, settlements and balance for a
// UTC day. The date query parameter defaults to today.
func RiderSummary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		riderID, err := validators.ParseUUIDParam(r, "riderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		today := now().Truncate(24 * time.Hour)
		date, err := validators.ParseQueryDate(r, "date", today)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.GetRiderSettlementSummary(r.Context(), riderID, date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
