package manifests

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pagination"
)

func (s *service) CreateHandoverBatch(ctx context.Context, input CreateHandoverInput) (*HandoverView, error) {
	partner := strings.TrimSpace(input.CourierPartner)
	if partner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier partner is required")
	}
	if err := checkOrderIDs(input.OrderIDs); err != nil {
		return nil, err
	}

	var batchID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		found, err := orderRepo.FindByIDs(ctx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
		}
		if err := checkEligible(input.OrderIDs, found, "orders must be packed and not in another handover batch", func(o *models.Order) bool {
			return o.Status == enums.OrderStatusPacked && o.HandoverBatchID == nil
		}); err != nil {
			return err
		}

		batch := &models.CourierHandoverBatch{
			BatchNumber:    referenceNumber("HB", s.now()),
			CourierPartner: partner,
			Status:         enums.HandoverStatusCreated,
			Notes:          optionalString(input.Notes),
			CreatedBy:      input.Actor,
		}
		if err := s.repo.WithTx(tx).CreateBatch(ctx, batch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create handover batch")
		}
		for _, orderID := range input.OrderIDs {
			if err := orderRepo.UpdateFields(ctx, orderID, map[string]any{"handover_batch_id": batch.ID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order to handover batch")
			}
		}
		batchID = batch.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	view, err := s.GetHandoverBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_id":        view.ID.String(),
		"batch_number":    view.BatchNumber,
		"courier_partner": partner,
		"orders":          len(input.OrderIDs),
	}), "handover.created")
	return view, nil
}

// MarkHandedOver records the physical handover. Orders a bulk courier push
// already moved to handover_to_courier are left as they are.
func (s *service) MarkHandedOver(ctx context.Context, id, actor uuid.UUID) (*HandoverView, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := repo.FindBatch(ctx, id)
		if err != nil {
			return batchLookupError(err)
		}
		if batch.Status == enums.HandoverStatusHandedOver {
			return pkgerrors.New(pkgerrors.CodeConflict, "handover batch already handed over").
				WithDetails(map[string]any{"batch_id": id})
		}

		now := s.now()
		affected, err := repo.UpdateBatchStatus(ctx, id, enums.HandoverStatusCreated, map[string]any{
			"status":         enums.HandoverStatusHandedOver,
			"handed_over_at": now,
			"handed_over_by": actor,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark handover batch")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "handover batch changed concurrently")
		}

		updates := map[string]any{"dispatched_at": now}
		if provider, err := enums.ParseLogisticsProvider(batch.CourierPartner); err == nil {
			updates["logistics_provider"] = provider
		}
		for i := range batch.Orders {
			order := &batch.Orders[i]
			if order.Status == enums.OrderStatusHandoverToCourier {
				continue
			}
			if _, err := s.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
				OrderID:     order.ID,
				To:          enums.OrderStatusHandoverToCourier,
				Actor:       actor,
				Source:      enums.SourceHandover,
				Reason:      batch.BatchNumber,
				RequireFrom: []enums.OrderStatus{enums.OrderStatusPacked},
				Updates:     updates,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "batch_id", id.String()), "handover.handed_over")
	return s.GetHandoverBatch(ctx, id)
}

func (s *service) GetHandoverBatch(ctx context.Context, id uuid.UUID) (*HandoverView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}
	batch, err := s.repo.FindBatch(ctx, id)
	if err != nil {
		return nil, batchLookupError(err)
	}
	view := NewHandoverView(batch)
	return &view, nil
}

func (s *service) ListHandoverBatches(ctx context.Context, filter BatchFilter) ([]HandoverView, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown handover status %q", filter.Status))
	}
	filter.Limit = pagination.NormalizeLimit(filter.Limit)
	rows, err := s.repo.ListBatches(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list handover batches")
	}
	views := make([]HandoverView, 0, len(rows))
	for i := range rows {
		views = append(views, NewHandoverView(&rows[i]))
	}
	return views, nil
}

func batchLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "handover batch not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load handover batch")
}
