package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ministerio/gestao-engine/ledger"
)

// =============================================================================
// LEDGER STORE (ledger.TxStore interface)
// =============================================================================

// LedgerStore implements ledger.TxStore and ledger.Aggregator.
type LedgerStore struct {
	ledgerQueries
	db *sql.DB
}

var (
	_ ledger.TxStore    = (*LedgerStore)(nil)
	_ ledger.Aggregator = (*LedgerStore)(nil)
)

// WithTx executes a function within a database transaction.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(&ledgerQueries{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

// ApprovedTotals sums approved deposits and withdrawals of every department.
func (s *LedgerStore) ApprovedTotals(ctx context.Context) (ledger.Totals, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT type, amount FROM ledger_transactions
		WHERE status = ? AND type IN (?, ?)`,
		ledger.StatusApproved, ledger.TypeDeposit, ledger.TypeWithdrawal)
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	defer rows.Close()

	totals := ledger.Totals{Deposits: decimal.Zero, Withdrawals: decimal.Zero}
	for rows.Next() {
		var typ, amount string
		if err := rows.Scan(&typ, &amount); err != nil {
			return ledger.Totals{}, err
		}
		d, err := parseDecimal(amount)
		if err != nil {
			return ledger.Totals{}, err
		}
		if ledger.TransactionType(typ) == ledger.TypeDeposit {
			totals.Deposits = totals.Deposits.Add(d)
		} else {
			totals.Withdrawals = totals.Withdrawals.Add(d)
		}
	}
	return totals, rows.Err()
}

// ledgerQueries runs every ledger.Store method against either the pool or
// an open transaction.
type ledgerQueries struct {
	q querier
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (s *ledgerQueries) InsertDepartment(ctx context.Context, d ledger.Department) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO departments (id, name, description, initial_balance, current_balance, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullString(d.Description),
		d.InitialBalance.String(), d.CurrentBalance.String(), d.Active,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert department: %w", classify(err))
	}
	return nil
}

const departmentColumns = `id, name, description, initial_balance, current_balance, active, created_at, updated_at`

func (s *ledgerQueries) GetDepartment(ctx context.Context, id ledger.DepartmentID) (*ledger.Department, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = ?`, id)
	d, err := scanDepartment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *ledgerQueries) ListDepartments(ctx context.Context) ([]ledger.Department, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query departments: %w", err)
	}
	defer rows.Close()

	departments := make([]ledger.Department, 0)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

func (s *ledgerQueries) SetDepartmentBalance(ctx context.Context, id ledger.DepartmentID, balance decimal.Decimal, at time.Time) error {
	return execOne(ctx, s.q, "department", string(id),
		`UPDATE departments SET current_balance = ?, updated_at = ? WHERE id = ?`,
		balance.String(), formatTime(at), id)
}

func (s *ledgerQueries) SetDepartmentActive(ctx context.Context, id ledger.DepartmentID, active bool, at time.Time) error {
	return execOne(ctx, s.q, "department", string(id),
		`UPDATE departments SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(at), id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDepartment(row scanner) (ledger.Department, error) {
	var (
		d                  ledger.Department
		description        sql.NullString
		initial, current   string
		createdAt, updated string
	)
	err := row.Scan(&d.ID, &d.Name, &description, &initial, &current, &d.Active, &createdAt, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return d, err
		}
		return d, fmt.Errorf("failed to scan department: %w", err)
	}
	d.Description = description.String
	if d.InitialBalance, err = parseDecimal(initial); err != nil {
		return d, err
	}
	if d.CurrentBalance, err = parseDecimal(current); err != nil {
		return d, err
	}
	var tp timeParser
	d.CreatedAt = tp.parse(createdAt)
	d.UpdatedAt = tp.parse(updated)
	if err := tp.err; err != nil {
		return d, err
	}
	return d, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, department_id, type, amount, description, category, status, date,
	reference, transfer_id, created_by, approved_by, approved_at, created_at, updated_at`

func (s *ledgerQueries) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_transactions (`+transactionColumns+`)
		VALUES (`+placeholders(15)+`)`,
		t.ID, t.DepartmentID, t.Type, t.Amount.String(),
		nullString(t.Description), nullString(t.Category), t.Status, formatTime(t.Date),
		t.Reference, nullString(string(t.TransferID)), nullString(t.CreatedBy),
		nullString(t.ApprovedBy), nullTime(t.ApprovedAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", classify(err))
	}
	return nil
}

func (s *ledgerQueries) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *ledgerQueries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.DepartmentID != "" {
		where = append(where, "department_id = ?")
		args = append(args, f.DepartmentID)
	}
	if len(f.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "date < ?")
		args = append(args, formatTime(*f.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id DESC"

	// Amounts are TEXT decimals, so the range is applied after scanning
	// and LIMIT with it.
	if f.MinAmount == nil && f.MaxAmount == nil {
		if f.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, f.Limit)
		}
		return s.queryTransactions(ctx, query, args...)
	}
	all, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, 0, len(all))
	for _, t := range all {
		if !f.Matches(t) {
			continue
		}
		out = append(out, t)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *ledgerQueries) TransactionsByTransfer(ctx context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM ledger_transactions WHERE transfer_id = ? ORDER BY type`, id)
}

func (s *ledgerQueries) SetTransactionStatus(ctx context.Context, id ledger.TransactionID, c ledger.StatusChange) error {
	return execOne(ctx, s.q, "transaction", string(id), `
		UPDATE ledger_transactions SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Status, nullString(c.ApprovedBy), formatTime(c.At), formatTime(c.At), id)
}

func (s *ledgerQueries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		t                                 ledger.Transaction
		amount, date, createdAt, updated  string
		description, category, transferID sql.NullString
		createdBy, approvedBy, approvedAt sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.DepartmentID, &t.Type, &amount, &description, &category, &t.Status, &date,
		&t.Reference, &transferID, &createdBy, &approvedBy, &approvedAt, &createdAt, &updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, err
		}
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return t, err
	}
	t.Description = description.String
	t.Category = category.String
	var tp timeParser
	t.Date = tp.parse(date)
	t.TransferID = ledger.TransferID(transferID.String)
	t.CreatedBy = createdBy.String
	t.ApprovedBy = approvedBy.String
	t.ApprovedAt = tp.parseNull(approvedAt)
	t.CreatedAt = tp.parse(createdAt)
	t.UpdatedAt = tp.parse(updated)
	if err := tp.err; err != nil {
		return t, err
	}
	return t, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

const transferColumns = `id, from_department_id, to_department_id, amount, description, status, date,
	reference, created_by, approved_by, approved_at, created_at, updated_at`

func (s *ledgerQueries) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES (`+placeholders(13)+`)`,
		t.ID, t.FromDepartmentID, t.ToDepartmentID, t.Amount.String(),
		nullString(t.Description), t.Status, formatTime(t.Date), t.Reference,
		nullString(t.CreatedBy), nullString(t.ApprovedBy), nullTime(t.ApprovedAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", classify(err))
	}
	return nil
}

func (s *ledgerQueries) GetTransfer(ctx context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	var (
		t                                 ledger.Transfer
		amount, date, createdAt, updated  string
		description                       sql.NullString
		createdBy, approvedBy, approvedAt sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id).Scan(
		&t.ID, &t.FromDepartmentID, &t.ToDepartmentID, &amount, &description, &t.Status, &date,
		&t.Reference, &createdBy, &approvedBy, &approvedAt, &createdAt, &updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	t.Description = description.String
	var tp timeParser
	t.Date = tp.parse(date)
	t.CreatedBy = createdBy.String
	t.ApprovedBy = approvedBy.String
	t.ApprovedAt = tp.parseNull(approvedAt)
	t.CreatedAt = tp.parse(createdAt)
	t.UpdatedAt = tp.parse(updated)
	if err := tp.err; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *ledgerQueries) SetTransferStatus(ctx context.Context, id ledger.TransferID, c ledger.StatusChange) error {
	return execOne(ctx, s.q, "transfer", string(id), `
		UPDATE transfers SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Status, nullString(c.ApprovedBy), formatTime(c.At), formatTime(c.At), id)
}

// execOne runs an UPDATE expected to touch exactly one row.
func execOne(ctx context.Context, q querier, kind, id, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s %s does not exist", kind, id)
	}
	return nil
}
