package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
)

const refTypeOrderItem = "order_item"

// Line is one stock mutation keyed by the order item it belongs to.
type Line struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	RefID     uuid.UUID `json:"ref_id"`
}

// MovementResult reports the stock after a line. Applied is false when the
// line had already been recorded and nothing changed.
type MovementResult struct {
	VariantID uuid.UUID `json:"variant_id"`
	RefID     uuid.UUID `json:"ref_id"`
	NewStock  int64     `json:"new_stock"`
	Applied   bool      `json:"applied"`
}

// Service mutates variant stock through the movement ledger.
type Service interface {
	Deduct(ctx context.Context, tx *gorm.DB, line Line, reason enums.StockMovementReason, actor *uuid.UUID) (*MovementResult, error)
	Restore(ctx context.Context, tx *gorm.DB, line Line, reason enums.StockMovementReason, actor *uuid.UUID) (*MovementResult, error)
	DeductBatch(ctx context.Context, tx *gorm.DB, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) ([]MovementResult, error)
	RestoreBatch(ctx context.Context, tx *gorm.DB, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) ([]MovementResult, error)
	RestoreWithFallback(ctx context.Context, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) RestoreReport
	// RestoredRefs returns the order items that already carry any restore movement.
	RestoredRefs(ctx context.Context, tx *gorm.DB, refIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.StockMetrics
}

// NewService wires the stock ledger.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, stockMetrics *metrics.StockMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: stockMetrics}, nil
}

func (s *service) Deduct(ctx context.Context, tx *gorm.DB, line Line, reason enums.StockMovementReason, actor *uuid.UUID) (*MovementResult, error) {
	return s.apply(ctx, s.repo.WithTx(tx), line, -1, reason, enums.StockBatchSingle, actor)
}

func (s *service) Restore(ctx context.Context, tx *gorm.DB, line Line, reason enums.StockMovementReason, actor *uuid.UUID) (*MovementResult, error) {
	return s.apply(ctx, s.repo.WithTx(tx), line, 1, reason, enums.StockBatchSingle, actor)
}

func (s *service) DeductBatch(ctx context.Context, tx *gorm.DB, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) ([]MovementResult, error) {
	return s.applyBatch(ctx, tx, lines, -1, reason, actor)
}

func (s *service) RestoreBatch(ctx context.Context, tx *gorm.DB, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) ([]MovementResult, error) {
	return s.applyBatch(ctx, tx, lines, 1, reason, actor)
}

func (s *service) RestoredRefs(ctx context.Context, tx *gorm.DB, refIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	movements, err := s.repo.WithTx(tx).ListMovementsByRefs(ctx,
		[]enums.StockMovementReason{enums.StockReasonRTORestore, enums.StockReasonReturnRestore}, refIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list restore movements")
	}
	out := make(map[uuid.UUID]bool, len(movements))
	for _, movement := range movements {
		out[movement.RefID] = true
	}
	return out, nil
}

// applyBatch runs every line against tx. The caller's transaction makes the batch atomic.
func (s *service) applyBatch(ctx context.Context, tx *gorm.DB, lines []Line, sign int64, reason enums.StockMovementReason, actor *uuid.UUID) ([]MovementResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock batch requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	results := make([]MovementResult, 0, len(lines))
	for _, line := range lines {
		result, err := s.apply(ctx, repo, line, sign, reason, enums.StockBatchAtomic, actor)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *service) apply(ctx context.Context, repo Repository, line Line, sign int64, reason enums.StockMovementReason, mode enums.StockBatchMode, actor *uuid.UUID) (*MovementResult, error) {
	if err := validateLine(line, sign, reason); err != nil {
		return nil, err
	}

	delta := sign * int64(line.Quantity)
	movement := &models.StockMovement{
		VariantID: line.VariantID,
		Delta:     delta,
		Reason:    reason,
		RefType:   refTypeOrderItem,
		RefID:     line.RefID,
		BatchMode: mode,
		Actor:     actor,
	}
	inserted, err := repo.InsertMovement(ctx, movement)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found").
				WithDetails(map[string]any{"variant_id": line.VariantID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock movement")
	}
	if !inserted {
		return s.alreadyApplied(ctx, repo, line, reason)
	}

	newStock, err := repo.AdjustStock(ctx, line.VariantID, delta)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found").
				WithDetails(map[string]any{"variant_id": line.VariantID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust variant stock")
	}
	if err := repo.StampResultingStock(ctx, movement.ID, newStock); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp resulting stock")
	}

	return &MovementResult{VariantID: line.VariantID, RefID: line.RefID, NewStock: newStock, Applied: true}, nil
}

func (s *service) alreadyApplied(ctx context.Context, repo Repository, line Line, reason enums.StockMovementReason) (*MovementResult, error) {
	existing, err := repo.FindMovement(ctx, reason, line.RefID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing stock movement")
	}
	result := &MovementResult{VariantID: existing.VariantID, RefID: line.RefID, Applied: false}
	if existing.ResultingStock != nil {
		result.NewStock = *existing.ResultingStock
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"ref_id": line.RefID.String(),
		"reason": reason,
	}), "stock.movement_already_applied")
	return result, nil
}

func validateLine(line Line, sign int64, reason enums.StockMovementReason) error {
	if line.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if line.RefID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ref id is required")
	}
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"ref_id": line.RefID, "quantity": line.Quantity})
	}
	if reason.IsRestore() != (sign > 0) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason %q does not match the movement direction", reason))
	}
	return nil
}
