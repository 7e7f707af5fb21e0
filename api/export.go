package api

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/ministerio/gestao-engine/generic"
)

// ExportTransactions streams the filtered transaction list as CSV (default)
// or JSON. It takes the same query parameters as ListTransactions.
// GET /api/transactions/export?format=csv
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
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

	filename := "transacoes-" + h.now().In(h.location).Format("20060102")
	if format == "json" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".json"))
		writeJSON(w, http.StatusOK, h.toTransactionDTOs(txs))
		return
	}

	rows := [][]string{{"id", "date", "department_id", "type", "status", "amount", "amount_brl", "category", "description", "reference", "transfer_id", "created_by", "approved_by"}}
	for _, t := range txs {
		rows = append(rows, []string{
			string(t.ID),
			h.formatTime(t.Date),
			string(t.DepartmentID),
			string(t.Type),
			string(t.Status),
			t.Amount.StringFixed(2),
			generic.FormatCurrency(t.Amount),
			t.Category,
			t.Description,
			t.Reference,
			string(t.TransferID),
			t.CreatedBy,
			t.ApprovedBy,
		})
	}
	h.writeCSV(w, filename+".csv", rows)
}

// ExportMembers streams the member directory as CSV (default) or JSON.
// GET /api/members/export?format=csv
func (h *Handler) ExportMembers(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	ms, err := h.Members.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	filename := "membros-" + h.now().In(h.location).Format("20060102")
	if format == "json" {
		dtos := make([]MemberDTO, len(ms))
		for i, m := range ms {
			dtos[i] = h.toMemberDTO(m)
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".json"))
		writeJSON(w, http.StatusOK, dtos)
		return
	}

	rows := [][]string{{"id", "name", "email", "phone", "birth_date", "active", "created_at"}}
	for _, m := range ms {
		dto := h.toMemberDTO(m)
		birth := ""
		if dto.BirthDate != nil {
			birth = *dto.BirthDate
		}
		rows = append(rows, []string{dto.ID, dto.Name, dto.Email, dto.Phone, birth, fmt.Sprint(dto.Active), dto.CreatedAt})
	}
	h.writeCSV(w, filename+".csv", rows)
}

func exportFormat(r *http.Request) (string, error) {
	switch f := r.URL.Query().Get("format"); f {
	case "", "csv":
		return "csv", nil
	case "json":
		return "json", nil
	default:
		return "", generic.NewValidationError("format", "oneof", "must be csv or json")
	}
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		h.logger.Warn("csv export interrupted")
	}
}
