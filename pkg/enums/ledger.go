package enums

import "fmt"

// StockMovementReason labels why variant stock changed.
type StockMovementReason string

const (
	StockReasonPackDeduction StockMovementReason = "pack_deduction"
	StockReasonRTORestore    StockMovementReason = "rto_restore"
	StockReasonReturnRestore StockMovementReason = "return_restore"
)

func (r StockMovementReason) String() string { return string(r) }

// IsRestore reports whether the reason increases stock.
func (r StockMovementReason) IsRestore() bool {
	return r == StockReasonRTORestore || r == StockReasonReturnRestore
}

// StockBatchMode records which ledger path wrote a movement.
type StockBatchMode string

const (
	StockBatchAtomic StockBatchMode = "atomic"
	StockBatchManual StockBatchMode = "manual"
	StockBatchSingle StockBatchMode = "single"
)

// SettlementMethod is how a rider handed over cash.
type SettlementMethod string

const (
	SettlementMethodCash          SettlementMethod = "cash"
	SettlementMethodBankTransfer  SettlementMethod = "bank_transfer"
	SettlementMethodMobileBanking SettlementMethod = "mobile_banking"
)

var validSettlementMethods = []SettlementMethod{
	SettlementMethodCash,
	SettlementMethodBankTransfer,
	SettlementMethodMobileBanking,
}

func (m SettlementMethod) String() string { return string(m) }

func (m SettlementMethod) IsValid() bool {
	for _, candidate := range validSettlementMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseSettlementMethod(value string) (SettlementMethod, error) {
	for _, candidate := range validSettlementMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement method %q", value)
}

// BalanceEntryType labels rider balance log rows.
type BalanceEntryType string

const (
	BalanceEntryCODCollection BalanceEntryType = "cod_collection"
	BalanceEntrySettlement    BalanceEntryType = "settlement"
)

func (t BalanceEntryType) String() string { return string(t) }

// Sign is +1 for credits and -1 for debits.
func (t BalanceEntryType) Sign() int64 {
	if t == BalanceEntrySettlement {
		return -1
	}
	return 1
}
