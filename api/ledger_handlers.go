package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ministerio/gestao-engine/auth"
	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/ledger"
)

// =============================================================================
// DEPARTMENT HANDLERS
// =============================================================================

// ListDepartments returns all departments.
// GET /api/departments
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Ledger.ListDepartments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]DepartmentDTO, len(departments))
	for i, d := range departments {
		dtos[i] = h.toDepartmentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDepartment opens a new cash box.
// POST /api/departments
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req CreateDepartmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	d, err := h.Ledger.CreateDepartment(r.Context(), ledger.DepartmentSpec{
		Name:           req.Name,
		Description:    req.Description,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toDepartmentDTO(*d))
}

// GetDepartment returns one department.
// GET /api/departments/{id}
func (h *Handler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	d, err := h.Ledger.GetDepartment(r.Context(), ledger.DepartmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDepartmentDTO(*d))
}

// SetDepartmentActive activates or deactivates a department.
// POST /api/departments/{id}/active
func (h *Handler) SetDepartmentActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := ledger.DepartmentID(chi.URLParam(r, "id"))
	if err := h.Ledger.SetDepartmentActive(r.Context(), id, req.Active); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.GetDepartment(w, r)
}

// GetMonthlyBalance returns the statement of one month.
// GET /api/departments/{id}/balance?year=2025&month=3
func (h *Handler) GetMonthlyBalance(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.location)
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	mb, err := h.Ledger.GetMonthlyBalance(r.Context(), ledger.DepartmentID(chi.URLParam(r, "id")), year, time.Month(month))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyBalanceDTO(*mb))
}

// VerifyBalance replays approved transactions against the stored balance.
// GET /api/departments/{id}/verify
func (h *Handler) VerifyBalance(w http.ResponseWriter, r *http.Request) {
	check, err := h.Ledger.VerifyBalance(r.Context(), ledger.DepartmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceCheckDTO(*check))
}

// GetDepartmentSummary returns counts, total balance and best-effort totals.
// GET /api/departments/summary
func (h *Handler) GetDepartmentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.GetDepartmentSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*summary))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions lists transactions, newest first.
// GET /api/transactions?department_id=&type=&status=&from=&to=&min_amount=&max_amount=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseTransactionFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	txs, err := h.Ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toTransactionDTOs(txs))
}

// CreateTransaction records a deposit or withdrawal.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	date, err := h.parseTime("date", req.Date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := ledger.TransactionStatus(req.Status)
	if status == ledger.StatusApproved && !canApprove(r) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "missing permission "+string(auth.LedgerApprove), nil)
		return
	}

	t, err := h.Ledger.CreateTransaction(r.Context(), ledger.TransactionSpec{
		DepartmentID: ledger.DepartmentID(req.DepartmentID),
		Type:         ledger.TransactionType(req.Type),
		Amount:       req.Amount,
		Description:  req.Description,
		Category:     req.Category,
		Status:       status,
		Date:         date,
		Reference:    req.Reference,
		CreatedBy:    auth.Subject(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toTransactionDTO(*t))
}

// GetTransaction returns one transaction.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.Ledger.GetTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toTransactionDTO(*t))
}

// UpdateTransactionStatus approves or rejects a pending transaction.
// POST /api/transactions/{id}/status
func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	t, err := h.Ledger.UpdateTransactionStatus(r.Context(),
		ledger.TransactionID(chi.URLParam(r, "id")),
		ledger.TransactionStatus(req.Status),
		auth.Subject(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toTransactionDTO(*t))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// CreateTransfer moves money between two departments.
// POST /api/transfers
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	date, err := h.parseTime("date", req.Date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := ledger.TransactionStatus(req.Status)
	if status == ledger.StatusApproved && !canApprove(r) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "missing permission "+string(auth.LedgerApprove), nil)
		return
	}

	tr, err := h.Ledger.CreateTransfer(r.Context(), ledger.TransferSpec{
		FromDepartmentID: ledger.DepartmentID(req.FromDepartmentID),
		ToDepartmentID:   ledger.DepartmentID(req.ToDepartmentID),
		Amount:           req.Amount,
		Description:      req.Description,
		Status:           status,
		Date:             date,
		Reference:        req.Reference,
		CreatedBy:        auth.Subject(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTransfer(w, r, http.StatusCreated, tr)
}

// GetTransfer returns a transfer with both legs.
// GET /api/transfers/{id}
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := h.Ledger.GetTransfer(r.Context(), ledger.TransferID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTransfer(w, r, http.StatusOK, tr)
}

// UpdateTransferStatus approves or rejects a pending transfer.
// POST /api/transfers/{id}/status
func (h *Handler) UpdateTransferStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	tr, err := h.Ledger.UpdateTransferStatus(r.Context(),
		ledger.TransferID(chi.URLParam(r, "id")),
		ledger.TransactionStatus(req.Status),
		auth.Subject(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTransfer(w, r, http.StatusOK, tr)
}

func (h *Handler) writeTransfer(w http.ResponseWriter, r *http.Request, status int, tr *ledger.Transfer) {
	legs, err := h.Ledger.TransferLegs(r.Context(), tr.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, h.toTransferDTO(*tr, legs))
}

// =============================================================================
// HELPERS
// =============================================================================

func canApprove(r *http.Request) bool {
	c := auth.FromContext(r.Context())
	return c != nil && c.Role.Can(auth.LedgerApprove)
}

func (h *Handler) parseTransactionFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	verr := &generic.ValidationError{}
	filter := ledger.TransactionFilter{DepartmentID: ledger.DepartmentID(q.Get("department_id"))}

	for _, t := range queryList(r, "type") {
		filter.Types = append(filter.Types, ledger.TransactionType(t))
	}
	for _, s := range queryList(r, "status") {
		filter.Statuses = append(filter.Statuses, ledger.TransactionStatus(s))
	}
	if s := q.Get("from"); s != "" {
		from, err := h.parseTime("from", s)
		verr.Merge(err)
		filter.From = &from
	}
	if s := q.Get("to"); s != "" {
		to, err := h.parseTime("to", s)
		verr.Merge(err)
		filter.To = &to
	}
	filter.MinAmount = parseAmountParam(verr, q.Get("min_amount"), "min_amount")
	filter.MaxAmount = parseAmountParam(verr, q.Get("max_amount"), "max_amount")

	limit, err := queryInt(r, "limit", 0)
	verr.Merge(err)
	filter.Limit = limit

	return filter, verr.OrNil()
}

func parseAmountParam(verr *generic.ValidationError, s, field string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		verr.Add(field, "numeric", "must be a plain number")
		return nil
	}
	return &d
}
