// Package memory provides in-memory implementations of the ledger,
// scheduling and members stores (for testing/dev).
//
// Each store serializes WithTx calls behind its mutex and simulates
// rollback by restoring a snapshot taken before fn runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ministerio/gestao-engine/ledger"
)

// =============================================================================
// LEDGER STORE
// =============================================================================

type Ledger struct {
	mu          sync.RWMutex
	departments map[ledger.DepartmentID]ledger.Department
	txs         map[ledger.TransactionID]ledger.Transaction
	transfers   map[ledger.TransferID]ledger.Transfer

	// AggregateErr, when set, makes ApprovedTotals fail. Lets callers
	// exercise the degraded summary path.
	AggregateErr error
}

var (
	_ ledger.TxStore    = (*Ledger)(nil)
	_ ledger.Aggregator = (*Ledger)(nil)
)

func NewLedger() *Ledger {
	return &Ledger{
		departments: make(map[ledger.DepartmentID]ledger.Department),
		txs:         make(map[ledger.TransactionID]ledger.Transaction),
		transfers:   make(map[ledger.TransferID]ledger.Transfer),
	}
}

func (m *Ledger) InsertDepartment(_ context.Context, d ledger.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertDepartmentLocked(d)
}

func (m *Ledger) GetDepartment(_ context.Context, id ledger.DepartmentID) (*ledger.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDepartmentLocked(id), nil
}

func (m *Ledger) ListDepartments(_ context.Context) ([]ledger.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDepartmentsLocked(), nil
}

func (m *Ledger) SetDepartmentBalance(_ context.Context, id ledger.DepartmentID, balance decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setDepartmentBalanceLocked(id, balance, at)
}

func (m *Ledger) SetDepartmentActive(_ context.Context, id ledger.DepartmentID, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setDepartmentActiveLocked(id, active, at)
}

func (m *Ledger) InsertTransaction(_ context.Context, t ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(t)
}

func (m *Ledger) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id), nil
}

func (m *Ledger) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(f), nil
}

func (m *Ledger) TransactionsByTransfer(_ context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsByTransferLocked(id), nil
}

func (m *Ledger) SetTransactionStatus(_ context.Context, id ledger.TransactionID, c ledger.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setTransactionStatusLocked(id, c)
}

func (m *Ledger) InsertTransfer(_ context.Context, t ledger.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransferLocked(t)
}

func (m *Ledger) GetTransfer(_ context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransferLocked(id), nil
}

func (m *Ledger) SetTransferStatus(_ context.Context, id ledger.TransferID, c ledger.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setTransferStatusLocked(id, c)
}

// ApprovedTotals sums approved deposits and withdrawals of every department.
func (m *Ledger) ApprovedTotals(_ context.Context) (ledger.Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.AggregateErr != nil {
		return ledger.Totals{}, m.AggregateErr
	}
	totals := ledger.Totals{Deposits: decimal.Zero, Withdrawals: decimal.Zero}
	for _, t := range m.txs {
		if t.Status != ledger.StatusApproved {
			continue
		}
		switch t.Type {
		case ledger.TypeDeposit:
			totals.Deposits = totals.Deposits.Add(t.Amount)
		case ledger.TypeWithdrawal:
			totals.Withdrawals = totals.Withdrawals.Add(t.Amount)
		}
	}
	return totals, nil
}

// =============================================================================
// TRANSACTIONS (WithTx)
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Ledger) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ledgerSnapshot{
		departments: cloneMap(m.departments),
		txs:         cloneMap(m.txs),
		transfers:   cloneMap(m.transfers),
	}
	if err := fn(&ledgerView{parent: m}); err != nil {
		m.departments = snap.departments
		m.txs = snap.txs
		m.transfers = snap.transfers
		return err
	}
	return nil
}

type ledgerSnapshot struct {
	departments map[ledger.DepartmentID]ledger.Department
	txs         map[ledger.TransactionID]ledger.Transaction
	transfers   map[ledger.TransferID]ledger.Transfer
}

// ledgerView is the Store handed to WithTx callbacks; the parent lock is
// already held.
type ledgerView struct {
	parent *Ledger
}

func (v *ledgerView) InsertDepartment(_ context.Context, d ledger.Department) error {
	return v.parent.insertDepartmentLocked(d)
}

func (v *ledgerView) GetDepartment(_ context.Context, id ledger.DepartmentID) (*ledger.Department, error) {
	return v.parent.getDepartmentLocked(id), nil
}

func (v *ledgerView) ListDepartments(_ context.Context) ([]ledger.Department, error) {
	return v.parent.listDepartmentsLocked(), nil
}

func (v *ledgerView) SetDepartmentBalance(_ context.Context, id ledger.DepartmentID, balance decimal.Decimal, at time.Time) error {
	return v.parent.setDepartmentBalanceLocked(id, balance, at)
}

func (v *ledgerView) SetDepartmentActive(_ context.Context, id ledger.DepartmentID, active bool, at time.Time) error {
	return v.parent.setDepartmentActiveLocked(id, active, at)
}

func (v *ledgerView) InsertTransaction(_ context.Context, t ledger.Transaction) error {
	return v.parent.insertTransactionLocked(t)
}

func (v *ledgerView) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return v.parent.getTransactionLocked(id), nil
}

func (v *ledgerView) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return v.parent.listTransactionsLocked(f), nil
}

func (v *ledgerView) TransactionsByTransfer(_ context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	return v.parent.transactionsByTransferLocked(id), nil
}

func (v *ledgerView) SetTransactionStatus(_ context.Context, id ledger.TransactionID, c ledger.StatusChange) error {
	return v.parent.setTransactionStatusLocked(id, c)
}

func (v *ledgerView) InsertTransfer(_ context.Context, t ledger.Transfer) error {
	return v.parent.insertTransferLocked(t)
}

func (v *ledgerView) GetTransfer(_ context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	return v.parent.getTransferLocked(id), nil
}

func (v *ledgerView) SetTransferStatus(_ context.Context, id ledger.TransferID, c ledger.StatusChange) error {
	return v.parent.setTransferStatusLocked(id, c)
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Ledger) insertDepartmentLocked(d ledger.Department) error {
	if _, ok := m.departments[d.ID]; ok {
		return fmt.Errorf("department %s already exists", d.ID)
	}
	m.departments[d.ID] = d
	return nil
}

func (m *Ledger) getDepartmentLocked(id ledger.DepartmentID) *ledger.Department {
	d, ok := m.departments[id]
	if !ok {
		return nil
	}
	return &d
}

func (m *Ledger) listDepartmentsLocked() []ledger.Department {
	out := make([]ledger.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Ledger) setDepartmentBalanceLocked(id ledger.DepartmentID, balance decimal.Decimal, at time.Time) error {
	d, ok := m.departments[id]
	if !ok {
		return fmt.Errorf("department %s does not exist", id)
	}
	d.CurrentBalance = balance
	d.UpdatedAt = at
	m.departments[id] = d
	return nil
}

func (m *Ledger) setDepartmentActiveLocked(id ledger.DepartmentID, active bool, at time.Time) error {
	d, ok := m.departments[id]
	if !ok {
		return fmt.Errorf("department %s does not exist", id)
	}
	d.Active = active
	d.UpdatedAt = at
	m.departments[id] = d
	return nil
}

func (m *Ledger) insertTransactionLocked(t ledger.Transaction) error {
	if _, ok := m.txs[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	m.txs[t.ID] = t
	return nil
}

func (m *Ledger) getTransactionLocked(id ledger.TransactionID) *ledger.Transaction {
	t, ok := m.txs[id]
	if !ok {
		return nil
	}
	return &t
}

func (m *Ledger) listTransactionsLocked(f ledger.TransactionFilter) []ledger.Transaction {
	out := make([]ledger.Transaction, 0)
	for _, t := range m.txs {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	sortByDateDesc(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (m *Ledger) transactionsByTransferLocked(id ledger.TransferID) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, 2)
	for _, t := range m.txs {
		if t.TransferID == id {
			out = append(out, t)
		}
	}
	// transfer_in < transfer_out, so the order is stable across calls.
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (m *Ledger) setTransactionStatusLocked(id ledger.TransactionID, c ledger.StatusChange) error {
	t, ok := m.txs[id]
	if !ok {
		return fmt.Errorf("transaction %s does not exist", id)
	}
	at := c.At
	t.Status = c.Status
	t.ApprovedBy = c.ApprovedBy
	t.ApprovedAt = &at
	t.UpdatedAt = at
	m.txs[id] = t
	return nil
}

func (m *Ledger) insertTransferLocked(t ledger.Transfer) error {
	if _, ok := m.transfers[t.ID]; ok {
		return fmt.Errorf("transfer %s already exists", t.ID)
	}
	m.transfers[t.ID] = t
	return nil
}

func (m *Ledger) getTransferLocked(id ledger.TransferID) *ledger.Transfer {
	t, ok := m.transfers[id]
	if !ok {
		return nil
	}
	return &t
}

func (m *Ledger) setTransferStatusLocked(id ledger.TransferID, c ledger.StatusChange) error {
	t, ok := m.transfers[id]
	if !ok {
		return fmt.Errorf("transfer %s does not exist", id)
	}
	at := c.At
	t.Status = c.Status
	t.ApprovedBy = c.ApprovedBy
	t.ApprovedAt = &at
	t.UpdatedAt = at
	m.transfers[id] = t
	return nil
}

func sortByDateDesc(txs []ledger.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
