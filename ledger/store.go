package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Persistence facade for departments, transactions and transfers
// =============================================================================

// Store persists ledger records. Getters return (nil, nil) when the record
// does not exist. Records are insert-only; the Set* methods are the complete
// list of post-insert mutations.
type Store interface {
	InsertDepartment(ctx context.Context, d Department) error
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	SetDepartmentBalance(ctx context.Context, id DepartmentID, balance decimal.Decimal, at time.Time) error
	SetDepartmentActive(ctx context.Context, id DepartmentID, active bool, at time.Time) error

	InsertTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// ListTransactions returns matches ordered by Date descending.
	// A zero Limit means no limit.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// TransactionsByTransfer returns the legs of a transfer.
	TransactionsByTransfer(ctx context.Context, id TransferID) ([]Transaction, error)

	SetTransactionStatus(ctx context.Context, id TransactionID, change StatusChange) error

	InsertTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, id TransferID) (*Transfer, error)
	SetTransferStatus(ctx context.Context, id TransferID, change StatusChange) error
}

// TxStore wraps Store with transaction support.
// Every balance-affecting operation runs inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Aggregator is an optional store capability used by the summary.
// Stores that cannot aggregate simply do not implement it.
type Aggregator interface {
	ApprovedTotals(ctx context.Context) (Totals, error)
}

// Totals are approved deposits and withdrawals across all departments.
type Totals struct {
	Deposits    decimal.Decimal
	Withdrawals decimal.Decimal
}

// StatusChange enumerates what an approval or rejection writes.
type StatusChange struct {
	Status     TransactionStatus
	ApprovedBy string // approver or rejecter
	At         time.Time
}

// TransactionFilter selects transactions. Zero-valued fields do not filter.
type TransactionFilter struct {
	DepartmentID DepartmentID
	Types        []TransactionType
	Statuses     []TransactionStatus
	From         *time.Time // inclusive
	To           *time.Time // exclusive
	MinAmount    *decimal.Decimal
	MaxAmount    *decimal.Decimal
	Limit        int
}

// Matches reports whether t satisfies every set criterion. The memory store
// filters with it; SQLite applies it for the decimal amount bounds.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.DepartmentID != "" && t.DepartmentID != f.DepartmentID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, t.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Date.Before(*f.To) {
		return false
	}
	if f.MinAmount != nil && t.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && t.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

func containsType(types []TransactionType, t TransactionType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []TransactionStatus, s TransactionStatus) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}
