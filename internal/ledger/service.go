package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// Reference types used as the idempotency scope of balance entries.
const (
	RefTypeOrder      = "order"
	RefTypeSettlement = "rider_settlement"
)

// Service records what riders owe the warehouse.
type Service interface {
	// Credit adds a cod_collection entry. Repeating the same reference is a no-op.
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*EntryResult, error)
	// Debit adds a settlement entry. Repeating the same reference is a no-op.
	Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*EntryResult, error)
	Balance(ctx context.Context, riderID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, riderID uuid.UUID, limit int) ([]models.RiderBalanceLog, error)
}

// Entry is one balance movement keyed by (RefType, RefID).
type Entry struct {
	RiderID uuid.UUID
	Amount  decimal.Decimal
	RefType string
	RefID   uuid.UUID
	Note    string
}

// EntryResult reports the log row and the balance after it. Applied is false
// when the reference had already been recorded.
type EntryResult struct {
	Log     *models.RiderBalanceLog `json:"log"`
	Balance decimal.Decimal         `json:"balance"`
	Applied bool                    `json:"applied"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the rider ledger.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*EntryResult, error) {
	return s.record(ctx, tx, enums.BalanceEntryCODCollection, entry)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*EntryResult, error) {
	return s.record(ctx, tx, enums.BalanceEntrySettlement, entry)
}

// record runs inside tx, or in its own transaction when tx is nil.
func (s *service) record(ctx context.Context, tx *gorm.DB, entryType enums.BalanceEntryType, entry Entry) (*EntryResult, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if tx != nil {
		return s.apply(ctx, tx, entryType, entry)
	}
	var result *EntryResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.apply(ctx, tx, entryType, entry)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, entryType enums.BalanceEntryType, entry Entry) (*EntryResult, error) {
	repo := s.repo.WithTx(tx)
	amount := entry.Amount.Round(2)
	log := &models.RiderBalanceLog{
		RiderID:   entry.RiderID,
		EntryType: entryType,
		Amount:    amount,
		RefType:   entry.RefType,
		RefID:     entry.RefID,
		Note:      optionalString(entry.Note),
	}

	inserted, err := repo.InsertEntry(ctx, log)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert balance entry")
	}
	if !inserted {
		existing, err := repo.FindEntry(ctx, entryType, entry.RefType, entry.RefID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance entry")
		}
		balance := decimal.Zero
		if existing.BalanceAfter != nil {
			balance = *existing.BalanceAfter
		}
		return &EntryResult{Log: existing, Balance: balance, Applied: false}, nil
	}

	if err := repo.EnsureBalance(ctx, entry.RiderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure rider balance")
	}
	delta := amount
	if entryType.Sign() < 0 {
		delta = amount.Neg()
	}
	balance, err := repo.AdjustBalance(ctx, entry.RiderID, delta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust rider balance")
	}
	if err := repo.StampBalanceAfter(ctx, log.ID, balance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp balance after")
	}
	log.BalanceAfter = &balance

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"rider_id":   entry.RiderID.String(),
		"entry_type": entryType,
		"amount":     amount.StringFixed(2),
		"balance":    balance.StringFixed(2),
		"ref_type":   entry.RefType,
		"ref_id":     entry.RefID.String(),
	}), "ledger.entry")

	return &EntryResult{Log: log, Balance: balance, Applied: true}, nil
}

func (s *service) Balance(ctx context.Context, riderID uuid.UUID) (decimal.Decimal, error) {
	if riderID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	}
	balance, err := s.repo.FindBalance(ctx, riderID)
	if err != nil {
		if db.IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rider balance")
	}
	return balance.Balance, nil
}

func (s *service) History(ctx context.Context, riderID uuid.UUID, limit int) ([]models.RiderBalanceLog, error) {
	if riderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	}
	entries, err := s.repo.ListEntries(ctx, riderID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list balance entries")
	}
	return entries, nil
}

func validateEntry(entry Entry) error {
	switch {
	case entry.RiderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "rider id is required")
	case entry.RefID == uuid.Nil || strings.TrimSpace(entry.RefType) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "entry reference is required")
	case !entry.Amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount": entry.Amount.String()})
	}
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
