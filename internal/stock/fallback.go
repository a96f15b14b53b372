package stock

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// RestoreFailure is a line the per-item loop could not restore.
type RestoreFailure struct {
	VariantID uuid.UUID      `json:"variant_id"`
	RefID     uuid.UUID      `json:"ref_id"`
	Error     string         `json:"error"`
	Code      pkgerrors.Code `json:"code"`
}

// RestoreReport describes which path restored stock and what is left over.
type RestoreReport struct {
	Mode        enums.StockBatchMode `json:"mode"`
	Complete    bool                 `json:"complete"`
	Restored    []MovementResult     `json:"restored"`
	Failed      []RestoreFailure     `json:"failed"`
	AtomicError string               `json:"atomic_error,omitempty"`
}

// RestoreWithFallback tries one atomic batch, then restores item by item so a
// single bad line cannot block the rest. Every line is keyed by (reason,
// ref_id), so lines the batch or an earlier call applied are not applied twice.
func (s *service) RestoreWithFallback(ctx context.Context, lines []Line, reason enums.StockMovementReason, actor *uuid.UUID) RestoreReport {
	report := RestoreReport{
		Mode:     enums.StockBatchAtomic,
		Restored: []MovementResult{},
		Failed:   []RestoreFailure{},
	}
	if len(lines) == 0 {
		report.Complete = true
		return report
	}

	var batch []MovementResult
	atomicErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		results, err := s.RestoreBatch(ctx, tx, lines, reason, actor)
		if err != nil {
			return err
		}
		batch = results
		return nil
	})
	if atomicErr == nil {
		report.Restored = batch
		report.Complete = true
		return report
	}

	report.Mode = enums.StockBatchManual
	report.AtomicError = atomicErr.Error()
	s.metrics.IncFallback(string(reason))
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"reason": reason,
		"lines":  len(lines),
	}), "stock.restore_fallback", atomicErr)

	for _, line := range lines {
		var result *MovementResult
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			applied, err := s.apply(ctx, s.repo.WithTx(tx), line, 1, reason, enums.StockBatchManual, actor)
			if err != nil {
				return err
			}
			result = applied
			return nil
		})
		if err != nil {
			report.Failed = append(report.Failed, RestoreFailure{
				VariantID: line.VariantID,
				RefID:     line.RefID,
				Error:     err.Error(),
				Code:      pkgerrors.CodeOf(err),
			})
			continue
		}
		report.Restored = append(report.Restored, *result)
	}

	report.Complete = len(report.Failed) == 0
	if !report.Complete {
		s.metrics.AddItemFailures(string(reason), len(report.Failed))
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"reason":   reason,
			"failed":   len(report.Failed),
			"restored": len(report.Restored),
		}), "stock.restore_incomplete")
	}
	return report
}
