package returns

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
)

// ReceiveReturnHandover books returned items in. Every item must still be
// pending return, otherwise nothing is recorded.
func (s *service) ReceiveReturnHandover(ctx context.Context, input ReceiveInput) (*RecordView, error) {
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown return source %q", input.Source))
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items must not be empty")
	}
	itemIDs := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if !item.Condition.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item condition %q", item.Condition)).
				WithDetails(map[string]any{"order_item_id": item.OrderItemID})
		}
		if _, dup := seen[item.OrderItemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "items contains duplicates").
				WithDetails(map[string]any{"order_item_id": item.OrderItemID})
		}
		seen[item.OrderItemID] = struct{}{}
		itemIDs = append(itemIDs, item.OrderItemID)
	}

	var recordID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		found, err := orderRepo.FindItemsByIDs(ctx, itemIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		byID := make(map[uuid.UUID]models.OrderItem, len(found))
		for _, item := range found {
			byID[item.ID] = item
		}
		var missing, ineligible []uuid.UUID
		for _, id := range itemIDs {
			item, ok := byID[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case item.ReturnStatus != enums.ItemReturnPending:
				ineligible = append(ineligible, id)
			}
		}
		if len(missing) > 0 || len(ineligible) > 0 {
			details := map[string]any{}
			if len(missing) > 0 {
				details["missing_order_item_ids"] = missing
			}
			if len(ineligible) > 0 {
				details["ineligible_order_item_ids"] = ineligible
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "items must exist and be pending return").WithDetails(details)
		}

		record := &models.ReturnRecord{
			Source:     input.Source,
			SourceRef:  optionalString(input.SourceRef),
			Status:     enums.ReturnRecordReceived,
			Notes:      optionalString(input.Notes),
			ReceivedBy: input.Actor,
		}
		for _, item := range input.Items {
			record.Items = append(record.Items, models.ReturnRecordItem{
				OrderItemID: item.OrderItemID,
				Condition:   item.Condition,
				Notes:       optionalString(item.Notes),
			})
		}
		if err := s.repo.WithTx(tx).CreateRecord(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return record")
		}
		for _, item := range input.Items {
			if err := orderRepo.UpdateItem(ctx, item.OrderItemID, map[string]any{
				"return_status":    enums.ItemReturnPickedUp,
				"return_condition": item.Condition,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item picked up")
			}
		}
		recordID = record.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"return_record_id": recordID.String(),
		"source":           input.Source,
		"items":            len(input.Items),
	}), "return.received")
	return s.GetReturnRecord(ctx, recordID)
}

// SettleReturnRecord decides what happens to each returned item. Good items
// are restocked under the same at-most-once key the RTO scan uses, so stock an
// earlier scan restored is not restored again.
func (s *service) SettleReturnRecord(ctx context.Context, id, actor uuid.UUID) (*RecordView, error) {
	var counts payloads.ReturnSettledEvent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		record, err := repo.FindRecord(ctx, id)
		if err != nil {
			return recordLookupError(err)
		}
		if record.Status == enums.ReturnRecordSettled {
			return pkgerrors.New(pkgerrors.CodeConflict, "return record already settled").
				WithDetails(map[string]any{"return_record_id": id})
		}

		now := s.now()
		affected, err := repo.UpdateRecordStatus(ctx, id, enums.ReturnRecordReceived, map[string]any{
			"status":     enums.ReturnRecordSettled,
			"settled_by": actor,
			"settled_at": now,
			"updated_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle return record")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "return record already settled")
		}

		itemIDs := make([]uuid.UUID, 0, len(record.Items))
		for _, item := range record.Items {
			itemIDs = append(itemIDs, item.OrderItemID)
		}
		orderItems, err := orderRepo.FindItemsByIDs(ctx, itemIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		byID := make(map[uuid.UUID]models.OrderItem, len(orderItems))
		for _, item := range orderItems {
			byID[item.ID] = item
		}
		restored, err := s.stock.RestoredRefs(ctx, tx, itemIDs)
		if err != nil {
			return err
		}

		counts.ReturnRecordID = id
		for _, item := range record.Items {
			action := enums.ActionFor(item.Condition)
			stockRestored := false
			switch action {
			case enums.ReturnActionRestocked:
				orderItem, ok := byID[item.OrderItemID]
				if !ok {
					return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found").
						WithDetails(map[string]any{"order_item_id": item.OrderItemID})
				}
				if !restored[item.OrderItemID] {
					if _, err := s.stock.Restore(ctx, tx, stock.Line{
						VariantID: orderItem.VariantID,
						Quantity:  orderItem.Quantity,
						RefID:     orderItem.ID,
					}, enums.StockReasonReturnRestore, actorPtr(actor)); err != nil {
						return err
					}
				}
				stockRestored = true
				counts.RestockedItems++
			case enums.ReturnActionWrittenOff:
				counts.WrittenOff++
			default:
				counts.Investigate++
			}

			if err := repo.UpdateRecordItem(ctx, item.ID, map[string]any{
				"action_taken":   action,
				"stock_restored": stockRestored,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return item")
			}
			if err := orderRepo.UpdateItem(ctx, item.OrderItemID, map[string]any{"return_status": enums.ItemReturnSettled}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item settled")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnSettled,
			AggregateType: enums.AggregateReturn,
			AggregateID:   id,
			Actor:         outbox.Actor(actor, string(enums.SourceOperator)),
			OccurredAt:    now,
			Data:          counts,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit return settled event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"return_record_id": id.String(),
		"restocked":        counts.RestockedItems,
		"written_off":      counts.WrittenOff,
		"investigate":      counts.Investigate,
	}), "return.settled")
	return s.GetReturnRecord(ctx, id)
}

func (s *service) GetReturnRecord(ctx context.Context, id uuid.UUID) (*RecordView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return record id is required")
	}
	record, err := s.repo.FindRecord(ctx, id)
	if err != nil {
		return nil, recordLookupError(err)
	}
	view := NewRecordView(record)
	return &view, nil
}

func recordLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "return record not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return record")
}
