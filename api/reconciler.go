/*
reconciler.go - Automated balance reconciliation

PURPOSE:
  Periodically replays every department's approved transactions and
  compares the result with the stored current balance. Drift is never
  corrected automatically; it is logged and recorded for review.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass verifies all departments and records one run
  - Keeps the most recent runs in memory for the UI

CONFIGURATION:
  - Interval: How often to check (RECONCILE_INTERVAL, default 1h, 0 disables)

USAGE:
  rec := NewBalanceReconciler(ledgerService, logger, time.Hour)
  rec.Start()
  // ... later
  rec.Stop()

SEE ALSO:
  - ledger/balance.go: VerifyBalance
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/ledger"
)

const maxRecordedRuns = 50

// ReconciliationRun is the outcome of one verification pass.
type ReconciliationRun struct {
	ID           string                `json:"id"`
	StartedAt    time.Time             `json:"started_at"`
	CompletedAt  time.Time             `json:"completed_at"`
	Status       string                `json:"status"` // completed, drift, failed
	Checked      int                   `json:"checked"`
	Inconsistent []ledger.BalanceCheck `json:"inconsistent"`
	Error        string                `json:"error,omitempty"`
}

// BalanceReconciler verifies department balances on a ticker.
type BalanceReconciler struct {
	ledger   *ledger.Service
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	runs    []ReconciliationRun
}

func NewBalanceReconciler(l *ledger.Service, logger *zap.Logger, interval time.Duration) *BalanceReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceReconciler{
		ledger:   l,
		logger:   logger.Named("reconciler"),
		interval: interval,
		now:      time.Now,
	}
}

// Start begins periodic checks. A non-positive interval leaves the
// reconciler idle; RunNow still works.
func (br *BalanceReconciler) Start() {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.interval <= 0 {
		br.logger.Info("periodic reconciliation disabled")
		return
	}
	if br.running {
		return
	}
	br.running = true
	br.stop = make(chan struct{})
	br.wg.Add(1)
	go br.run(br.stop)

	br.logger.Info("reconciler started", zap.Duration("interval", br.interval))
}

// Stop halts the ticker and waits for an in-flight pass.
func (br *BalanceReconciler) Stop() {
	br.mu.Lock()
	if !br.running {
		br.mu.Unlock()
		return
	}
	br.running = false
	close(br.stop)
	br.mu.Unlock()

	br.wg.Wait()
	br.logger.Info("reconciler stopped")
}

func (br *BalanceReconciler) run(stop <-chan struct{}) {
	defer br.wg.Done()

	ticker := time.NewTicker(br.interval)
	defer ticker.Stop()

	br.RunNow(context.Background())
	for {
		select {
		case <-ticker.C:
			br.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow verifies every department once and records the run.
func (br *BalanceReconciler) RunNow(ctx context.Context) ReconciliationRun {
	run := ReconciliationRun{
		ID:           uuid.NewString(),
		StartedAt:    br.now(),
		Status:       "completed",
		Inconsistent: []ledger.BalanceCheck{},
	}

	departments, err := br.ledger.ListDepartments(ctx)
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		br.logger.Error("failed to list departments", zap.Error(err))
	}
	for _, d := range departments {
		check, err := br.ledger.VerifyBalance(ctx, d.ID)
		if err != nil {
			run.Status = "failed"
			run.Error = err.Error()
			br.logger.Error("failed to verify balance",
				zap.String("department_id", string(d.ID)), zap.Error(err))
			continue
		}
		run.Checked++
		if !check.Consistent {
			run.Inconsistent = append(run.Inconsistent, *check)
		}
	}
	if run.Status == "completed" && len(run.Inconsistent) > 0 {
		run.Status = "drift"
	}
	run.CompletedAt = br.now()

	br.record(run)
	br.logger.Info("reconciliation finished",
		zap.String("status", run.Status),
		zap.Int("checked", run.Checked),
		zap.Int("inconsistent", len(run.Inconsistent)))
	return run
}

func (br *BalanceReconciler) record(run ReconciliationRun) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.runs = append(br.runs, run)
	if len(br.runs) > maxRecordedRuns {
		br.runs = br.runs[len(br.runs)-maxRecordedRuns:]
	}
}

// Runs returns recorded runs, newest first.
func (br *BalanceReconciler) Runs() []ReconciliationRun {
	br.mu.Lock()
	defer br.mu.Unlock()
	out := make([]ReconciliationRun, len(br.runs))
	for i, r := range br.runs {
		out[len(br.runs)-1-i] = r
	}
	return out
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListReconciliationRuns returns recent runs.
// GET /api/reconciliation/runs
func (br *BalanceReconciler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, br.Runs())
}

// TriggerReconciliation runs a pass synchronously.
// POST /api/reconciliation/run
func (br *BalanceReconciler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, br.RunNow(r.Context()))
}
