/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Amounts travel as decimal.Decimal: requests accept plain JSON numbers,
  responses carry exact decimal strings plus a display-formatted copy.

DATES:
  Request dates accept "2006-01-02" (midnight in APP_TIMEZONE) or RFC 3339.
  Responses are RFC 3339 in APP_TIMEZONE.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/ledger"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/scheduling"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type InsufficientBalanceDetails struct {
	DepartmentID string          `json:"department_id"`
	Available    decimal.Decimal `json:"available"`
	Requested    decimal.Decimal `json:"requested"`
	Shortfall    decimal.Decimal `json:"shortfall"`
}

// =============================================================================
// LEDGER
// =============================================================================

type DepartmentDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	BalanceFormatted string          `json:"balance_formatted"`
	Active           bool            `json:"active"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

type CreateDepartmentRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type TransactionDTO struct {
	ID              string          `json:"id"`
	DepartmentID    string          `json:"department_id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	AmountFormatted string          `json:"amount_formatted"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Status          string          `json:"status"`
	Date            string          `json:"date"`
	Reference       string          `json:"reference"`
	TransferID      string          `json:"transfer_id,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      *string         `json:"approved_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

type CreateTransactionRequest struct {
	DepartmentID string          `json:"department_id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Status       string          `json:"status"`
	Date         string          `json:"date"`
	Reference    string          `json:"reference"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type TransferDTO struct {
	ID               string           `json:"id"`
	FromDepartmentID string           `json:"from_department_id"`
	ToDepartmentID   string           `json:"to_department_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Description      string           `json:"description,omitempty"`
	Status           string           `json:"status"`
	Date             string           `json:"date"`
	Reference        string           `json:"reference"`
	ApprovedBy       string           `json:"approved_by,omitempty"`
	Legs             []TransactionDTO `json:"legs,omitempty"`
	CreatedAt        string           `json:"created_at"`
}

type CreateTransferRequest struct {
	FromDepartmentID string          `json:"from_department_id"`
	ToDepartmentID   string          `json:"to_department_id"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	Date             string          `json:"date"`
	Reference        string          `json:"reference"`
}

type MonthlyBalanceDTO struct {
	DepartmentID      string          `json:"department_id"`
	Year              int             `json:"year"`
	Month             int             `json:"month"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	TotalDeposits     decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals"`
	TotalTransfersIn  decimal.Decimal `json:"total_transfers_in"`
	TotalTransfersOut decimal.Decimal `json:"total_transfers_out"`
	ClosingBalance    decimal.Decimal `json:"closing_balance"`
	TransactionCount  int             `json:"transaction_count"`
}

type SummaryDTO struct {
	TotalDepartments  int              `json:"total_departments"`
	ActiveDepartments int              `json:"active_departments"`
	TotalBalance      decimal.Decimal  `json:"total_balance"`
	Totals            ExtendedTotalDTO `json:"totals"`
}

// ExtendedTotalDTO keeps "no transactions" (available, zero) apart from
// "could not aggregate" (unavailable).
type ExtendedTotalDTO struct {
	Available        bool             `json:"available"`
	Reason           string           `json:"reason,omitempty"`
	TotalDeposits    *decimal.Decimal `json:"total_deposits,omitempty"`
	TotalWithdrawals *decimal.Decimal `json:"total_withdrawals,omitempty"`
}

type BalanceCheckDTO struct {
	DepartmentID string          `json:"department_id"`
	Recorded     decimal.Decimal `json:"recorded"`
	Computed     decimal.Decimal `json:"computed"`
	Drift        decimal.Decimal `json:"drift"`
	Consistent   bool            `json:"consistent"`
}

// =============================================================================
// SCHEDULING
// =============================================================================

type ProfessionalDTO struct {
	ID                          string                        `json:"id"`
	Name                        string                        `json:"name"`
	Email                       string                        `json:"email,omitempty"`
	Phone                       string                        `json:"phone,omitempty"`
	Specialty                   string                        `json:"specialty"`
	ConsultationDurationMinutes int                           `json:"consultation_duration_minutes"`
	WorkingHours                []scheduling.WorkingHoursRule `json:"working_hours"`
	Status                      string                        `json:"status"`
	CreatedAt                   string                        `json:"created_at"`
}

type ScheduleRequest struct {
	ConsultationDurationMinutes int                           `json:"consultation_duration_minutes"`
	WorkingHours                []scheduling.WorkingHoursRule `json:"working_hours"`
}

type AvailabilityDTO struct {
	ProfessionalID string   `json:"professional_id"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Slots          []string `json:"slots"`
}

type AppointmentDTO struct {
	ID             string `json:"id"`
	BookingCode    string `json:"booking_code"`
	PatientID      string `json:"patient_id"`
	ProfessionalID string `json:"professional_id"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Status         string `json:"status"`
	Modality       string `json:"modality"`
	Priority       string `json:"priority"`
	Reason         string `json:"reason,omitempty"`
	RescheduledTo  string `json:"rescheduled_to,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type BookAppointmentRequest struct {
	PatientID      string `json:"patient_id"`
	ProfessionalID string `json:"professional_id"`
	Start          string `json:"start"`
	Modality       string `json:"modality"`
	Priority       string `json:"priority"`
	Reason         string `json:"reason"`
}

type RescheduleRequest struct {
	Start string `json:"start"`
}

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
}

type CreateMemberRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func (h *Handler) formatTime(t time.Time) string {
	return t.In(h.location).Format(time.RFC3339)
}

func (h *Handler) formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := h.formatTime(*t)
	return &s
}

func (h *Handler) toDepartmentDTO(d ledger.Department) DepartmentDTO {
	return DepartmentDTO{
		ID:               string(d.ID),
		Name:             d.Name,
		Description:      d.Description,
		InitialBalance:   d.InitialBalance,
		CurrentBalance:   d.CurrentBalance,
		BalanceFormatted: generic.FormatCurrency(d.CurrentBalance),
		Active:           d.Active,
		CreatedAt:        h.formatTime(d.CreatedAt),
		UpdatedAt:        h.formatTime(d.UpdatedAt),
	}
}

func (h *Handler) toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              string(t.ID),
		DepartmentID:    string(t.DepartmentID),
		Type:            string(t.Type),
		Amount:          t.Amount,
		AmountFormatted: generic.FormatCurrency(generic.SignedAmount(t.Amount, t.Type.IsCredit())),
		Description:     t.Description,
		Category:        t.Category,
		Status:          string(t.Status),
		Date:            h.formatTime(t.Date),
		Reference:       t.Reference,
		TransferID:      string(t.TransferID),
		CreatedBy:       t.CreatedBy,
		ApprovedBy:      t.ApprovedBy,
		ApprovedAt:      h.formatTimePtr(t.ApprovedAt),
		CreatedAt:       h.formatTime(t.CreatedAt),
	}
}

func (h *Handler) toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = h.toTransactionDTO(t)
	}
	return dtos
}

func (h *Handler) toTransferDTO(t ledger.Transfer, legs []ledger.Transaction) TransferDTO {
	dto := TransferDTO{
		ID:               string(t.ID),
		FromDepartmentID: string(t.FromDepartmentID),
		ToDepartmentID:   string(t.ToDepartmentID),
		Amount:           t.Amount,
		Description:      t.Description,
		Status:           string(t.Status),
		Date:             h.formatTime(t.Date),
		Reference:        t.Reference,
		ApprovedBy:       t.ApprovedBy,
		CreatedAt:        h.formatTime(t.CreatedAt),
	}
	if len(legs) > 0 {
		dto.Legs = h.toTransactionDTOs(legs)
	}
	return dto
}

func toMonthlyBalanceDTO(mb ledger.MonthlyBalance) MonthlyBalanceDTO {
	return MonthlyBalanceDTO{
		DepartmentID:      string(mb.DepartmentID),
		Year:              mb.Year,
		Month:             int(mb.Month),
		OpeningBalance:    mb.OpeningBalance,
		TotalDeposits:     mb.TotalDeposits,
		TotalWithdrawals:  mb.TotalWithdrawals,
		TotalTransfersIn:  mb.TotalTransfersIn,
		TotalTransfersOut: mb.TotalTransfersOut,
		ClosingBalance:    mb.ClosingBalance,
		TransactionCount:  mb.TransactionCount,
	}
}

func toSummaryDTO(s ledger.DepartmentSummary) SummaryDTO {
	dto := SummaryDTO{
		TotalDepartments:  s.Core.TotalDepartments,
		ActiveDepartments: s.Core.ActiveDepartments,
		TotalBalance:      s.Core.TotalBalance,
		Totals: ExtendedTotalDTO{
			Available: s.Extended.Available,
			Reason:    s.Extended.Reason,
		},
	}
	if s.Extended.Available {
		deposits, withdrawals := s.Extended.TotalDeposits, s.Extended.TotalWithdrawals
		dto.Totals.TotalDeposits = &deposits
		dto.Totals.TotalWithdrawals = &withdrawals
	}
	return dto
}

func toBalanceCheckDTO(c ledger.BalanceCheck) BalanceCheckDTO {
	return BalanceCheckDTO{
		DepartmentID: string(c.DepartmentID),
		Recorded:     c.Recorded,
		Computed:     c.Computed,
		Drift:        c.Drift,
		Consistent:   c.Consistent,
	}
}

func (h *Handler) toProfessionalDTO(p scheduling.Professional) ProfessionalDTO {
	rules := p.WorkingHours
	if rules == nil {
		rules = []scheduling.WorkingHoursRule{}
	}
	return ProfessionalDTO{
		ID:                          string(p.ID),
		Name:                        p.Name,
		Email:                       p.Email,
		Phone:                       p.Phone,
		Specialty:                   p.Specialty,
		ConsultationDurationMinutes: p.ConsultationDurationMinutes,
		WorkingHours:                rules,
		Status:                      string(p.Status),
		CreatedAt:                   h.formatTime(p.CreatedAt),
	}
}

func (h *Handler) toAppointmentDTO(a scheduling.Appointment) AppointmentDTO {
	return AppointmentDTO{
		ID:             string(a.ID),
		BookingCode:    a.BookingCode,
		PatientID:      a.PatientID,
		ProfessionalID: string(a.ProfessionalID),
		Start:          h.formatTime(a.Start),
		End:            h.formatTime(a.End),
		Status:         string(a.Status),
		Modality:       string(a.Modality),
		Priority:       string(a.Priority),
		Reason:         a.Reason,
		RescheduledTo:  string(a.RescheduledTo),
		CreatedAt:      h.formatTime(a.CreatedAt),
	}
}

func (h *Handler) toMemberDTO(m members.Member) MemberDTO {
	dto := MemberDTO{
		ID:        string(m.ID),
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Active:    m.Active,
		CreatedAt: h.formatTime(m.CreatedAt),
	}
	if m.BirthDate != nil {
		s := m.BirthDate.In(h.location).Format("2006-01-02")
		dto.BirthDate = &s
	}
	return dto
}
