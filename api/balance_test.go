/*
balance_test.go - HTTP tests for statements, summary and reconciliation

Tests for:
- Monthly balance folding earlier months into the opening balance
- Department summary with cross-department totals
- Balance verification and reconciliation runs detecting drift
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministerio/gestao-engine/auth"
	"github.com/ministerio/gestao-engine/ledger"
)

func TestMonthlyBalance_FoldsEarlierMonths(t *testing.T) {
	// GIVEN: a February deposit and a mix of March movements
	e := newTestEnv(t)
	d := e.createDepartment(t, "Tesouraria", "100")
	other := e.createDepartment(t, "Missões", "0")
	for _, body := range []map[string]any{
		{"department_id": d.ID, "type": "deposit", "amount": "50", "status": "approved", "date": "2025-02-15"},
		{"department_id": d.ID, "type": "deposit", "amount": "30", "status": "approved", "date": "2025-03-05"},
		{"department_id": d.ID, "type": "withdrawal", "amount": "20", "status": "approved", "date": "2025-03-10"},
		{"department_id": d.ID, "type": "deposit", "amount": "99", "date": "2025-03-11"},
	} {
		rec := e.createTransaction(t, auth.RoleTreasurer, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := e.do(t, auth.RoleTreasurer, http.MethodPost, "/api/transfers", map[string]any{
		"from_department_id": d.ID, "to_department_id": other.ID, "amount": "10",
		"status": "approved", "date": "2025-03-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: asking for the March statement
	rec = e.do(t, auth.RoleSecretary, http.MethodGet, "/api/departments/"+d.ID+"/balance?year=2025&month=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mb := decodeBody[MonthlyBalanceDTO](t, rec)

	// THEN: February is in the opening, pending is ignored
	assert.True(t, mb.OpeningBalance.Equal(dec("150")), mb.OpeningBalance.String())
	assert.True(t, mb.TotalDeposits.Equal(dec("30")))
	assert.True(t, mb.TotalWithdrawals.Equal(dec("20")))
	assert.True(t, mb.TotalTransfersOut.Equal(dec("10")))
	assert.True(t, mb.ClosingBalance.Equal(dec("150")))
	assert.Equal(t, 3, mb.TransactionCount)
	assert.True(t, e.department(t, d.ID).CurrentBalance.Equal(mb.ClosingBalance))
}

func TestMonthlyBalance_DefaultsToCurrentMonth(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDepartment(t, "Tesouraria", "75")

	rec := e.do(t, auth.RoleTreasurer, http.MethodGet, "/api/departments/"+d.ID+"/balance", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mb := decodeBody[MonthlyBalanceDTO](t, rec)
	assert.Equal(t, 2025, mb.Year)
	assert.Equal(t, 3, mb.Month)
	assert.True(t, mb.ClosingBalance.Equal(dec("75")))
}

func TestDepartmentSummary(t *testing.T) {
	e := newTestEnv(t)
	a := e.createDepartment(t, "A", "100")
	b := e.createDepartment(t, "B", "50")
	rec := e.createTransaction(t, auth.RoleTreasurer, map[string]any{
		"department_id": a.ID, "type": "deposit", "amount": "25", "status": "approved",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = e.createTransaction(t, auth.RoleTreasurer, map[string]any{
		"department_id": b.ID, "type": "withdrawal", "amount": "5", "status": "approved",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = e.do(t, auth.RoleTreasurer, http.MethodPost, "/api/departments/"+b.ID+"/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, auth.RoleTreasurer, http.MethodGet, "/api/departments/summary", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeBody[SummaryDTO](t, rec)
	assert.Equal(t, 2, s.TotalDepartments)
	assert.Equal(t, 1, s.ActiveDepartments)
	assert.True(t, s.TotalBalance.Equal(dec("170")))
	require.True(t, s.Totals.Available)
	assert.True(t, s.Totals.TotalDeposits.Equal(dec("25")))
	assert.True(t, s.Totals.TotalWithdrawals.Equal(dec("5")))
}

func TestVerifyAndReconcile_DetectDrift(t *testing.T) {
	// GIVEN: two departments, one whose stored balance was tampered with
	e := newTestEnv(t)
	ok := e.createDepartment(t, "A", "10")
	bad := e.createDepartment(t, "B", "10")
	require.NoError(t, e.db.Ledger().SetDepartmentBalance(context.Background(),
		ledger.DepartmentID(bad.ID), dec("12.50"), testNow))

	// WHEN: verifying each department
	rec := e.do(t, auth.RoleTreasurer, http.MethodGet, "/api/departments/"+ok.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[BalanceCheckDTO](t, rec).Consistent)

	rec = e.do(t, auth.RoleTreasurer, http.MethodGet, "/api/departments/"+bad.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	check := decodeBody[BalanceCheckDTO](t, rec)
	assert.False(t, check.Consistent)
	assert.True(t, check.Drift.Equal(dec("2.5")))

	// THEN: a reconciliation run reports the drift and is listed
	rec = e.do(t, auth.RoleTreasurer, http.MethodPost, "/api/reconciliation/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[ReconciliationRun](t, rec)
	assert.Equal(t, "drift", run.Status)
	assert.Equal(t, 2, run.Checked)
	require.Len(t, run.Inconsistent, 1)
	assert.Equal(t, ledger.DepartmentID(bad.ID), run.Inconsistent[0].DepartmentID)

	rec = e.do(t, auth.RoleSecretary, http.MethodPost, "/api/reconciliation/run", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, auth.RoleSecretary, http.MethodGet, "/api/reconciliation/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ReconciliationRun](t, rec), 1)
}

func TestReconciler_KeepsNewestRuns(t *testing.T) {
	e := newTestEnv(t)
	e.createDepartment(t, "A", "0")

	for i := 0; i < maxRecordedRuns+5; i++ {
		e.reconciler.RunNow(context.Background())
	}

	runs := e.reconciler.Runs()
	require.Len(t, runs, maxRecordedRuns)
	assert.False(t, runs[0].StartedAt.Before(runs[len(runs)-1].StartedAt))
	assert.Equal(t, "completed", runs[0].Status)
}

func TestReconciler_StartStop(t *testing.T) {
	e := newTestEnv(t)

	// A zero interval never starts the ticker; Stop is then a no-op.
	e.reconciler.Start()
	e.reconciler.Stop()

	assert.Empty(t, e.reconciler.Runs())
}
