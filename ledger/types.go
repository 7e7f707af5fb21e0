/*
Package ledger keeps one cash box per department of the church/ONG.

PURPOSE:
  Each department has an opening (initial) balance and a materialized
  current balance. Deposits, withdrawals and transfers between departments
  move money, but only once they are approved.

KEY CONCEPTS IN THIS FILE (types.go):
  - Department:  cash box with InitialBalance and CurrentBalance
  - Transaction: one signed movement on one department
  - Transfer:    paired transfer_out / transfer_in legs sharing a reference

BALANCE IDENTITY:
  CurrentBalance == InitialBalance
                  + Σ approved (deposit + transfer_in)
                  - Σ approved (withdrawal + transfer_out)

  CurrentBalance changes exactly once per transaction: when it moves from
  pending to approved (or when it is created already approved).

STATUS MACHINE:
  pending ──▶ approved   (applies the balance delta)
     │
     └──────▶ rejected   (no balance effect)

  approved and rejected are terminal. There is no reversal.

SEE ALSO:
  - ledger.go: Service operations
  - balance.go: Monthly balance, summary, verification
  - store.go: Persistence facade
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEPARTMENT
// =============================================================================

type DepartmentID string

type Department struct {
	ID             DepartmentID
	Name           string
	Description    string
	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionID string

type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypeWithdrawal  TransactionType = "withdrawal"
	TypeTransferIn  TransactionType = "transfer_in"
	TypeTransferOut TransactionType = "transfer_out"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransferIn, TypeTransferOut:
		return true
	}
	return false
}

// IsCredit reports whether the type adds to the balance.
func (t TransactionType) IsCredit() bool {
	return t == TypeDeposit || t == TypeTransferIn
}

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo allows only pending -> approved and pending -> rejected.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

type Transaction struct {
	ID           TransactionID
	DepartmentID DepartmentID
	Type         TransactionType
	Amount       decimal.Decimal // always > 0; sign comes from Type
	Description  string
	Category     string
	Status       TransactionStatus
	Date         time.Time
	Reference    string
	TransferID   TransferID // set on transfer legs only
	CreatedBy    string
	ApprovedBy   string
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Delta is the signed balance effect once approved.
func (t Transaction) Delta() decimal.Decimal {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// =============================================================================
// TRANSFER
// =============================================================================

type TransferID string

type Transfer struct {
	ID               TransferID
	FromDepartmentID DepartmentID
	ToDepartmentID   DepartmentID
	Amount           decimal.Decimal
	Description      string
	Status           TransactionStatus
	Date             time.Time
	Reference        string
	CreatedBy        string
	ApprovedBy       string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// =============================================================================
// REPORTS
// =============================================================================

// MonthlyBalance is the statement of one department for one calendar month.
type MonthlyBalance struct {
	DepartmentID      DepartmentID
	Year              int
	Month             time.Month
	OpeningBalance    decimal.Decimal
	TotalDeposits     decimal.Decimal
	TotalWithdrawals  decimal.Decimal
	TotalTransfersIn  decimal.Decimal
	TotalTransfersOut decimal.Decimal
	ClosingBalance    decimal.Decimal
	TransactionCount  int
}

// DepartmentSummary separates what is always computed from the best-effort
// cross-department totals.
type DepartmentSummary struct {
	Core     SummaryCore
	Extended ExtendedTotals
}

type SummaryCore struct {
	TotalDepartments  int
	ActiveDepartments int
	TotalBalance      decimal.Decimal
}

// ExtendedTotals is zero with Available=false when the aggregation could
// not run; Reason says why.
type ExtendedTotals struct {
	Available        bool
	Reason           string
	TotalDeposits    decimal.Decimal
	TotalWithdrawals decimal.Decimal
}

// BalanceCheck compares the materialized balance with a replay of approved
// transactions.
type BalanceCheck struct {
	DepartmentID DepartmentID
	Recorded     decimal.Decimal
	Computed     decimal.Decimal
	Drift        decimal.Decimal // Recorded - Computed
	Consistent   bool
}
