/*
ledger.go - Department ledger service

PURPOSE:
  Computes the mutations for every ledger operation and hands them to the
  store inside one WithTx call. A failure anywhere inside the call leaves
  the persisted state exactly as before.

BALANCE RULE:
  The department balance is written only by applyApproval, which is reached
  from three places:
    - CreateTransaction with status approved
    - UpdateTransactionStatus pending -> approved
    - CreateTransfer / UpdateTransferStatus with status approved
  Pending and rejected records never touch the balance.

TRANSFER LEGS:
  A transfer is one Transfer record plus a transfer_out leg on the source
  and a transfer_in leg on the destination. The three share status: changing
  the status of either leg changes the whole transfer.

RETRIES:
  None. Store errors (including contention) are returned wrapped; the caller
  may retry when generic.IsRetryable reports true.

SEE ALSO:
  - types.go: Entities and status machine
  - balance.go: Read-side reports
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// =============================================================================
// INPUT SPECS
// =============================================================================

type DepartmentSpec struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Description    string          `json:"description" validate:"max=500"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"gte=0"`
}

// TransactionSpec creates a deposit or a withdrawal. Transfer legs are only
// created through CreateTransfer.
type TransactionSpec struct {
	DepartmentID DepartmentID      `json:"department_id" validate:"required"`
	Type         TransactionType   `json:"type" validate:"required,oneof=deposit withdrawal"`
	Amount       decimal.Decimal   `json:"amount" validate:"gt=0"`
	Description  string            `json:"description" validate:"required,max=500"`
	Category     string            `json:"category" validate:"required,max=80"`
	Status       TransactionStatus `json:"status" validate:"omitempty,oneof=pending approved"`
	Date         time.Time         `json:"date"`
	Reference    string            `json:"reference" validate:"max=60"`
	CreatedBy    string            `json:"created_by"`
}

type TransferSpec struct {
	FromDepartmentID DepartmentID      `json:"from_department_id" validate:"required"`
	ToDepartmentID   DepartmentID      `json:"to_department_id" validate:"required,nefield=FromDepartmentID"`
	Amount           decimal.Decimal   `json:"amount" validate:"gt=0"`
	Description      string            `json:"description" validate:"max=500"`
	Status           TransactionStatus `json:"status" validate:"omitempty,oneof=pending approved"`
	Date             time.Time         `json:"date"`
	Reference        string            `json:"reference" validate:"max=60"`
	CreatedBy        string            `json:"created_by"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store     TxStore
	validate  *generic.Validator
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
	listLimit int
}

type Option func(*Service)

// WithLocation sets the calendar used for monthly statements.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.location = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithListLimit sets the default page size of ListTransactions.
func WithListLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= MaxListLimit {
			s.listLimit = n
		}
	}
}

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validate:  generic.NewValidator(),
		location:  time.UTC,
		now:       time.Now,
		logger:    zap.NewNop(),
		listLimit: DefaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	s.logger = s.logger.Named("ledger")
	return s
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

// CreateDepartment opens a cash box. CurrentBalance starts at InitialBalance.
func (s *Service) CreateDepartment(ctx context.Context, spec DepartmentSpec) (*Department, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, err
	}

	now := s.now()
	d := Department{
		ID:             DepartmentID(uuid.NewString()),
		Name:           spec.Name,
		Description:    spec.Description,
		InitialBalance: spec.InitialBalance,
		CurrentBalance: spec.InitialBalance,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertDepartment(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}

	s.logger.Info("department created",
		zap.String("department_id", string(d.ID)),
		zap.String("initial_balance", d.InitialBalance.StringFixed(2)))
	return &d, nil
}

func (s *Service) GetDepartment(ctx context.Context, id DepartmentID) (*Department, error) {
	return getDepartment(ctx, s.store, id)
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.store.ListDepartments(ctx)
}

// SetDepartmentActive activates or deactivates a department. Inactive
// departments accept no new transactions or transfers.
func (s *Service) SetDepartmentActive(ctx context.Context, id DepartmentID, active bool) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		if _, err := getDepartment(ctx, tx, id); err != nil {
			return err
		}
		return tx.SetDepartmentActive(ctx, id, active, s.now())
	})
	if err != nil {
		return err
	}
	s.logger.Info("department activation changed",
		zap.String("department_id", string(id)),
		zap.Bool("active", active))
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransaction records a deposit or withdrawal. A withdrawal larger than
// the current balance is refused even when created pending.
func (s *Service) CreateTransaction(ctx context.Context, spec TransactionSpec) (*Transaction, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, err
	}

	now := s.now()
	t := Transaction{
		ID:           TransactionID(uuid.NewString()),
		DepartmentID: spec.DepartmentID,
		Type:         spec.Type,
		Amount:       spec.Amount,
		Description:  spec.Description,
		Category:     spec.Category,
		Status:       spec.Status,
		Date:         spec.Date,
		Reference:    spec.Reference,
		CreatedBy:    spec.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Date.IsZero() {
		t.Date = now
	}
	if t.Reference == "" {
		t.Reference = generic.NewReference(generic.ReferencePrefixDepartment, t.Date)
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		d, err := activeDepartment(ctx, tx, t.DepartmentID)
		if err != nil {
			return err
		}
		if t.Type == TypeWithdrawal && d.CurrentBalance.LessThan(t.Amount) {
			return &generic.InsufficientBalanceError{
				DepartmentID: string(d.ID),
				Available:    d.CurrentBalance,
				Requested:    t.Amount,
			}
		}
		if t.Status == StatusApproved {
			t.ApprovedBy = t.CreatedBy
			t.ApprovedAt = &now
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if t.Status == StatusApproved {
			return applyApproval(ctx, tx, d, t.Delta(), now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.String("transaction_id", string(t.ID)),
		zap.String("department_id", string(t.DepartmentID)),
		zap.String("type", string(t.Type)),
		zap.String("amount", t.Amount.StringFixed(2)),
		zap.String("status", string(t.Status)))
	return &t, nil
}

func (s *Service) GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if t == nil {
		return nil, &generic.NotFoundError{Kind: "transaction", ID: string(id)}
	}
	return t, nil
}

// UpdateTransactionStatus approves or rejects a pending transaction. A
// transfer leg moves its whole transfer.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id TransactionID, status TransactionStatus, approver string) (*Transaction, error) {
	if err := checkDecision(status); err != nil {
		return nil, err
	}

	var updated Transaction
	err := s.store.WithTx(ctx, func(tx Store) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return &generic.NotFoundError{Kind: "transaction", ID: string(id)}
		}
		if !t.Status.CanTransitionTo(status) {
			return &generic.InvalidStateError{Kind: "transaction", ID: string(id), From: string(t.Status), To: string(status)}
		}

		change := StatusChange{Status: status, ApprovedBy: approver, At: s.now()}
		if t.TransferID != "" {
			if err := s.decideTransfer(ctx, tx, t.TransferID, change); err != nil {
				return err
			}
		} else {
			d, err := getDepartment(ctx, tx, t.DepartmentID)
			if err != nil {
				return err
			}
			if err := tx.SetTransactionStatus(ctx, t.ID, change); err != nil {
				return err
			}
			if status == StatusApproved {
				if err := applyApproval(ctx, tx, d, t.Delta(), change.At); err != nil {
					return err
				}
			}
		}

		updated = *t
		updated.Status = status
		updated.ApprovedBy = approver
		updated.ApprovedAt = &change.At
		updated.UpdatedAt = change.At
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction status changed",
		zap.String("transaction_id", string(id)),
		zap.String("status", string(status)),
		zap.String("approver", approver))
	return &updated, nil
}

// ListTransactions applies filter ordered by date descending. Limit 0 means
// the configured default; the hard cap is MaxListLimit.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	verr := &generic.ValidationError{}
	if filter.Limit < 0 {
		verr.Add("limit", "gte", "must be at least 0")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		verr.Add("to", "gtfield", "must be after from")
	}
	if filter.MinAmount != nil && filter.MaxAmount != nil && filter.MinAmount.GreaterThan(*filter.MaxAmount) {
		verr.Add("max_amount", "gtefield", "must be at least min_amount")
	}
	for i, t := range filter.Types {
		if !t.Valid() {
			verr.Add(fmt.Sprintf("types[%d]", i), "oneof", "must be one of: deposit withdrawal transfer_in transfer_out")
		}
	}
	for i, st := range filter.Statuses {
		if !st.Valid() {
			verr.Add(fmt.Sprintf("statuses[%d]", i), "oneof", "must be one of: pending approved rejected")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	switch {
	case filter.Limit == 0:
		filter.Limit = s.listLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	return s.store.ListTransactions(ctx, filter)
}

// =============================================================================
// TRANSFERS
// =============================================================================

// CreateTransfer writes the transfer, both legs and, when approved, both
// balance updates in one atomic unit.
func (s *Service) CreateTransfer(ctx context.Context, spec TransferSpec) (*Transfer, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, err
	}

	now := s.now()
	tr := Transfer{
		ID:               TransferID(uuid.NewString()),
		FromDepartmentID: spec.FromDepartmentID,
		ToDepartmentID:   spec.ToDepartmentID,
		Amount:           spec.Amount,
		Description:      spec.Description,
		Status:           spec.Status,
		Date:             spec.Date,
		Reference:        spec.Reference,
		CreatedBy:        spec.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if tr.Status == "" {
		tr.Status = StatusPending
	}
	if tr.Date.IsZero() {
		tr.Date = now
	}
	if tr.Reference == "" {
		tr.Reference = generic.NewReference(generic.ReferencePrefixTransfer, tr.Date)
	}
	if tr.Status == StatusApproved {
		tr.ApprovedBy = tr.CreatedBy
		tr.ApprovedAt = &now
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		from, err := activeDepartment(ctx, tx, tr.FromDepartmentID)
		if err != nil {
			return err
		}
		to, err := activeDepartment(ctx, tx, tr.ToDepartmentID)
		if err != nil {
			return err
		}
		if from.CurrentBalance.LessThan(tr.Amount) {
			return &generic.InsufficientBalanceError{
				DepartmentID: string(from.ID),
				Available:    from.CurrentBalance,
				Requested:    tr.Amount,
			}
		}

		if err := tx.InsertTransfer(ctx, tr); err != nil {
			return err
		}
		for _, leg := range transferLegs(tr, from, to) {
			if err := tx.InsertTransaction(ctx, leg); err != nil {
				return err
			}
		}
		if tr.Status != StatusApproved {
			return nil
		}
		if err := applyApproval(ctx, tx, from, tr.Amount.Neg(), now); err != nil {
			return err
		}
		return applyApproval(ctx, tx, to, tr.Amount, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer created",
		zap.String("transfer_id", string(tr.ID)),
		zap.String("from_department_id", string(tr.FromDepartmentID)),
		zap.String("to_department_id", string(tr.ToDepartmentID)),
		zap.String("amount", tr.Amount.StringFixed(2)),
		zap.String("status", string(tr.Status)))
	return &tr, nil
}

func (s *Service) GetTransfer(ctx context.Context, id TransferID) (*Transfer, error) {
	tr, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	if tr == nil {
		return nil, &generic.NotFoundError{Kind: "transfer", ID: string(id)}
	}
	return tr, nil
}

// TransferLegs returns the transfer_out and transfer_in transactions.
func (s *Service) TransferLegs(ctx context.Context, id TransferID) ([]Transaction, error) {
	if _, err := s.GetTransfer(ctx, id); err != nil {
		return nil, err
	}
	return s.store.TransactionsByTransfer(ctx, id)
}

// UpdateTransferStatus approves or rejects a pending transfer and both legs.
func (s *Service) UpdateTransferStatus(ctx context.Context, id TransferID, status TransactionStatus, approver string) (*Transfer, error) {
	if err := checkDecision(status); err != nil {
		return nil, err
	}

	var updated Transfer
	err := s.store.WithTx(ctx, func(tx Store) error {
		change := StatusChange{Status: status, ApprovedBy: approver, At: s.now()}
		if err := s.decideTransfer(ctx, tx, id, change); err != nil {
			return err
		}
		tr, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		updated = *tr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer status changed",
		zap.String("transfer_id", string(id)),
		zap.String("status", string(status)),
		zap.String("approver", approver))
	return &updated, nil
}

// decideTransfer moves a pending transfer and its legs to change.Status,
// applying both balance deltas on approval. Must run inside WithTx.
func (s *Service) decideTransfer(ctx context.Context, tx Store, id TransferID, change StatusChange) error {
	tr, err := tx.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	if tr == nil {
		return &generic.NotFoundError{Kind: "transfer", ID: string(id)}
	}
	if !tr.Status.CanTransitionTo(change.Status) {
		return &generic.InvalidStateError{Kind: "transfer", ID: string(id), From: string(tr.Status), To: string(change.Status)}
	}

	legs, err := tx.TransactionsByTransfer(ctx, id)
	if err != nil {
		return err
	}
	if len(legs) != 2 {
		return fmt.Errorf("transfer %s has %d legs, want 2", id, len(legs))
	}
	from, err := getDepartment(ctx, tx, tr.FromDepartmentID)
	if err != nil {
		return err
	}
	to, err := getDepartment(ctx, tx, tr.ToDepartmentID)
	if err != nil {
		return err
	}

	if err := tx.SetTransferStatus(ctx, id, change); err != nil {
		return err
	}
	for _, leg := range legs {
		if !leg.Status.CanTransitionTo(change.Status) {
			return &generic.InvalidStateError{Kind: "transaction", ID: string(leg.ID), From: string(leg.Status), To: string(change.Status)}
		}
		if err := tx.SetTransactionStatus(ctx, leg.ID, change); err != nil {
			return err
		}
	}
	if change.Status != StatusApproved {
		return nil
	}
	if err := applyApproval(ctx, tx, from, tr.Amount.Neg(), change.At); err != nil {
		return err
	}
	return applyApproval(ctx, tx, to, tr.Amount, change.At)
}

// =============================================================================
// HELPERS
// =============================================================================

// applyApproval is the only writer of Department.CurrentBalance. It refuses
// any delta that would leave the balance negative.
func applyApproval(ctx context.Context, tx Store, d *Department, delta decimal.Decimal, at time.Time) error {
	next := d.CurrentBalance.Add(delta)
	if next.IsNegative() {
		return &generic.InsufficientBalanceError{
			DepartmentID: string(d.ID),
			Available:    d.CurrentBalance,
			Requested:    delta.Abs(),
		}
	}
	if err := tx.SetDepartmentBalance(ctx, d.ID, next, at); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	d.CurrentBalance = next
	d.UpdatedAt = at
	return nil
}

func transferLegs(tr Transfer, from, to *Department) []Transaction {
	leg := func(d *Department, typ TransactionType, desc string) Transaction {
		return Transaction{
			ID:           TransactionID(uuid.NewString()),
			DepartmentID: d.ID,
			Type:         typ,
			Amount:       tr.Amount,
			Description:  desc,
			Category:     "transfer",
			Status:       tr.Status,
			Date:         tr.Date,
			Reference:    tr.Reference,
			TransferID:   tr.ID,
			CreatedBy:    tr.CreatedBy,
			ApprovedBy:   tr.ApprovedBy,
			ApprovedAt:   tr.ApprovedAt,
			CreatedAt:    tr.CreatedAt,
			UpdatedAt:    tr.UpdatedAt,
		}
	}
	desc := tr.Description
	if desc == "" {
		desc = "Transfer"
	}
	return []Transaction{
		leg(from, TypeTransferOut, desc+" to "+to.Name),
		leg(to, TypeTransferIn, desc+" from "+from.Name),
	}
}

func getDepartment(ctx context.Context, st Store, id DepartmentID) (*Department, error) {
	d, err := st.GetDepartment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	if d == nil {
		return nil, &generic.NotFoundError{Kind: "department", ID: string(id)}
	}
	return d, nil
}

func activeDepartment(ctx context.Context, st Store, id DepartmentID) (*Department, error) {
	d, err := getDepartment(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, &generic.InactiveDepartmentError{DepartmentID: string(id)}
	}
	return d, nil
}

func checkDecision(status TransactionStatus) error {
	if status != StatusApproved && status != StatusRejected {
		return generic.NewValidationError("status", "oneof", "must be one of: approved rejected")
	}
	return nil
}

// errAggregationUnsupported marks stores without an Aggregator.
var errAggregationUnsupported = errors.New("store does not support aggregation")
