package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
)

// =============================================================================
// MONTHLY BALANCE
// =============================================================================

// GetMonthlyBalance rebuilds the month's statement from approved
// transactions: everything dated before the month folds into the opening
// balance, everything inside it into the totals.
func (s *Service) GetMonthlyBalance(ctx context.Context, id DepartmentID, year int, month time.Month) (*MonthlyBalance, error) {
	period, err := generic.MonthPeriod(year, month, s.location)
	if err != nil {
		return nil, generic.NewValidationError("month", "range", err.Error())
	}

	d, approved, err := s.approvedSnapshot(ctx, id, &period.End)
	if err != nil {
		return nil, err
	}

	mb := &MonthlyBalance{
		DepartmentID:      id,
		Year:              year,
		Month:             month,
		OpeningBalance:    d.InitialBalance,
		TotalDeposits:     decimal.Zero,
		TotalWithdrawals:  decimal.Zero,
		TotalTransfersIn:  decimal.Zero,
		TotalTransfersOut: decimal.Zero,
	}
	for _, t := range approved {
		if t.Date.Before(period.Start) {
			mb.OpeningBalance = mb.OpeningBalance.Add(t.Delta())
			continue
		}
		mb.TransactionCount++
		switch t.Type {
		case TypeDeposit:
			mb.TotalDeposits = mb.TotalDeposits.Add(t.Amount)
		case TypeWithdrawal:
			mb.TotalWithdrawals = mb.TotalWithdrawals.Add(t.Amount)
		case TypeTransferIn:
			mb.TotalTransfersIn = mb.TotalTransfersIn.Add(t.Amount)
		case TypeTransferOut:
			mb.TotalTransfersOut = mb.TotalTransfersOut.Add(t.Amount)
		}
	}
	mb.ClosingBalance = mb.OpeningBalance.
		Add(mb.TotalDeposits).
		Add(mb.TotalTransfersIn).
		Sub(mb.TotalWithdrawals).
		Sub(mb.TotalTransfersOut)
	return mb, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// GetDepartmentSummary never fails because of the cross-department totals:
// when the store cannot aggregate, Extended is marked unavailable.
func (s *Service) GetDepartmentSummary(ctx context.Context) (*DepartmentSummary, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}

	summary := &DepartmentSummary{
		Core: SummaryCore{TotalBalance: decimal.Zero},
		Extended: ExtendedTotals{
			TotalDeposits:    decimal.Zero,
			TotalWithdrawals: decimal.Zero,
		},
	}
	for _, d := range departments {
		summary.Core.TotalDepartments++
		if d.Active {
			summary.Core.ActiveDepartments++
		}
		summary.Core.TotalBalance = summary.Core.TotalBalance.Add(d.CurrentBalance)
	}

	totals, err := s.approvedTotals(ctx)
	if err != nil {
		s.logger.Warn("summary totals unavailable", zap.Error(err))
		summary.Extended.Reason = err.Error()
		return summary, nil
	}
	summary.Extended.Available = true
	summary.Extended.TotalDeposits = totals.Deposits
	summary.Extended.TotalWithdrawals = totals.Withdrawals
	return summary, nil
}

func (s *Service) approvedTotals(ctx context.Context) (Totals, error) {
	agg, ok := s.store.(Aggregator)
	if !ok {
		return Totals{}, errAggregationUnsupported
	}
	return agg.ApprovedTotals(ctx)
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerifyBalance replays approved transactions and compares the result with
// the materialized CurrentBalance.
func (s *Service) VerifyBalance(ctx context.Context, id DepartmentID) (*BalanceCheck, error) {
	d, approved, err := s.approvedSnapshot(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	computed := d.InitialBalance
	for _, t := range approved {
		computed = computed.Add(t.Delta())
	}

	check := &BalanceCheck{
		DepartmentID: id,
		Recorded:     d.CurrentBalance,
		Computed:     computed,
		Drift:        d.CurrentBalance.Sub(computed),
	}
	check.Consistent = check.Drift.IsZero()
	if !check.Consistent {
		s.logger.Warn("balance drift detected",
			zap.String("department_id", string(id)),
			zap.String("recorded", check.Recorded.StringFixed(2)),
			zap.String("computed", check.Computed.StringFixed(2)))
	}
	return check, nil
}

// approvedSnapshot reads the department and its approved transactions dated
// before `before` (all of them when nil) in one transaction, so an approval
// committing in between cannot show up as drift.
func (s *Service) approvedSnapshot(ctx context.Context, id DepartmentID, before *time.Time) (*Department, []Transaction, error) {
	var (
		d        *Department
		approved []Transaction
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		if d, err = getDepartment(ctx, tx, id); err != nil {
			return err
		}
		approved, err = tx.ListTransactions(ctx, TransactionFilter{
			DepartmentID: id,
			Statuses:     []TransactionStatus{StatusApproved},
			To:           before,
		})
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return d, approved, nil
}
