/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario goes through the services, so every row
	it creates obeys the same rules as an API call.

AVAILABLE SCENARIOS:

	church-ledger:    Three departments, tithes, a pending withdrawal,
	                  an approved transfer and a rejected expense
	assistance-week:  Members, two volunteer professionals with split
	                  shifts and a few bookings next week

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create departments / professionals / members via the services
 3. Record transactions or book appointments relative to "now"

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "church-ledger"}

NOTE:

	Scenarios reset the database. Routes require the admin:manage permission.

SEE ALSO:
  - handlers.go: Handler, Resetter
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/ledger"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/scheduling"
)

const scenarioActor = "scenario-loader"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "church-ledger",
		Name:        "Church Ledger",
		Description: "Tithes, offerings, a pending withdrawal and an inter-department transfer",
		Category:    "ledger",
	},
	{
		ID:          "assistance-week",
		Name:        "Assistance Week",
		Description: "Volunteer psychologist and lawyer with split shifts and booked appointments",
		Category:    "scheduling",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarioLoaders = map[string]scenarioLoader{
	"church-ledger":   (*Handler).loadChurchLedgerScenario,
	"assistance-week": (*Handler).loadAssistanceWeekScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.writeServiceError(w, r, generic.NewValidationError("scenario_id", "oneof", "unknown scenario"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := load(h, ctx); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID
	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset must be called with h.mu held.
func (h *Handler) reset(ctx context.Context) error {
	if h.resetter == nil {
		return fmt.Errorf("reset is not supported by this store")
	}
	if err := h.resetter.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	if h.Scheduling != nil {
		h.Scheduling.PurgeCache()
	}
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadChurchLedgerScenario(ctx context.Context) error {
	today := generic.StartOfDay(h.now().In(h.location))
	monthStart := generic.StartOfMonth(today.Year(), today.Month(), h.location)
	day := func(n int) time.Time {
		d := generic.AddDays(monthStart, n).Add(10 * time.Hour)
		if d.After(h.now()) {
			return h.now()
		}
		return d
	}

	treasury, err := h.Ledger.CreateDepartment(ctx, ledger.DepartmentSpec{
		Name:           "Tesouraria Geral",
		Description:    "Caixa principal da igreja",
		InitialBalance: decimal.NewFromInt(1000),
	})
	if err != nil {
		return err
	}
	missions, err := h.Ledger.CreateDepartment(ctx, ledger.DepartmentSpec{
		Name:           "Missões",
		Description:    "Sustento de missionários",
		InitialBalance: decimal.NewFromInt(500),
	})
	if err != nil {
		return err
	}
	social, err := h.Ledger.CreateDepartment(ctx, ledger.DepartmentSpec{
		Name:           "Ação Social",
		Description:    "Cestas básicas e atendimento",
		InitialBalance: decimal.NewFromInt(200),
	})
	if err != nil {
		return err
	}

	entries := []ledger.TransactionSpec{
		{DepartmentID: treasury.ID, Type: ledger.TypeDeposit, Amount: decimal.RequireFromString("2350.00"),
			Description: "Dízimos do culto de domingo", Category: "dizimos", Status: ledger.StatusApproved, Date: day(0)},
		{DepartmentID: treasury.ID, Type: ledger.TypeDeposit, Amount: decimal.RequireFromString("480.50"),
			Description: "Ofertas do culto de quarta", Category: "ofertas", Status: ledger.StatusApproved, Date: day(2)},
		{DepartmentID: treasury.ID, Type: ledger.TypeWithdrawal, Amount: decimal.RequireFromString("320.00"),
			Description: "Conta de energia", Category: "manutencao", Status: ledger.StatusApproved, Date: day(3)},
		{DepartmentID: social.ID, Type: ledger.TypeWithdrawal, Amount: decimal.RequireFromString("150.00"),
			Description: "Compra de cestas básicas", Category: "assistencia", Date: day(4)},
	}
	for _, spec := range entries {
		spec.CreatedBy = scenarioActor
		if _, err := h.Ledger.CreateTransaction(ctx, spec); err != nil {
			return err
		}
	}

	rejected, err := h.Ledger.CreateTransaction(ctx, ledger.TransactionSpec{
		DepartmentID: missions.ID,
		Type:         ledger.TypeWithdrawal,
		Amount:       decimal.RequireFromString("450.00"),
		Description:  "Passagem sem comprovante",
		Category:     "viagens",
		Date:         day(5),
		CreatedBy:    scenarioActor,
	})
	if err != nil {
		return err
	}
	if _, err := h.Ledger.UpdateTransactionStatus(ctx, rejected.ID, ledger.StatusRejected, scenarioActor); err != nil {
		return err
	}

	_, err = h.Ledger.CreateTransfer(ctx, ledger.TransferSpec{
		FromDepartmentID: treasury.ID,
		ToDepartmentID:   missions.ID,
		Amount:           decimal.RequireFromString("300.00"),
		Description:      "Repasse mensal para missões",
		Status:           ledger.StatusApproved,
		Date:             day(6),
		CreatedBy:        scenarioActor,
	})
	return err
}

func (h *Handler) loadAssistanceWeekScenario(ctx context.Context) error {
	if h.Members == nil {
		return fmt.Errorf("members service not configured")
	}

	var patients []*members.Member
	for _, spec := range []members.MemberSpec{
		{Name: "Maria das Graças", Phone: "+55 11 98888-1111"},
		{Name: "João Batista", Email: "joao@example.org"},
		{Name: "Ana Paula"},
	} {
		m, err := h.Members.Create(ctx, spec)
		if err != nil {
			return err
		}
		patients = append(patients, m)
	}

	splitShift := func(days ...time.Weekday) []scheduling.WorkingHoursRule {
		var rules []scheduling.WorkingHoursRule
		for _, d := range days {
			rules = append(rules,
				scheduling.WorkingHoursRule{Weekday: d, Start: generic.MustTimeOfDay("09:00"), End: generic.MustTimeOfDay("12:00")},
				scheduling.WorkingHoursRule{Weekday: d, Start: generic.MustTimeOfDay("14:00"), End: generic.MustTimeOfDay("17:00")},
			)
		}
		return rules
	}

	psychologist, err := h.Scheduling.CreateProfessional(ctx, scheduling.ProfessionalSpec{
		Name:                        "Dra. Helena Souza",
		Specialty:                   "psicologia",
		ConsultationDurationMinutes: 50,
		WorkingHours:                splitShift(time.Monday, time.Wednesday, time.Friday),
	})
	if err != nil {
		return err
	}
	lawyer, err := h.Scheduling.CreateProfessional(ctx, scheduling.ProfessionalSpec{
		Name:                        "Dr. Paulo Lima",
		Specialty:                   "advocacia",
		ConsultationDurationMinutes: 30,
		WorkingHours:                splitShift(time.Tuesday, time.Thursday),
	})
	if err != nil {
		return err
	}

	// Book the first free slots of next week so the agenda is never empty.
	from := nextMonday(h.now().In(h.location))
	to := generic.AddDays(from, 7)
	bookings := []struct {
		pro     scheduling.ProfessionalID
		patient *members.Member
		slot    int
	}{
		{psychologist.ID, patients[0], 0},
		{psychologist.ID, patients[1], 2},
		{lawyer.ID, patients[2], 1},
	}
	for _, b := range bookings {
		slots, err := h.Scheduling.AvailableSlots(ctx, b.pro, from, to)
		if err != nil {
			return err
		}
		if b.slot >= len(slots) {
			continue
		}
		if _, err := h.Scheduling.BookAppointment(ctx, scheduling.BookingSpec{
			PatientID:      string(b.patient.ID),
			ProfessionalID: b.pro,
			Start:          slots[b.slot],
			Reason:         "Atendimento da semana de assistência",
		}); err != nil {
			return err
		}
	}
	return nil
}

func nextMonday(t time.Time) time.Time {
	days := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return generic.AddDays(generic.StartOfDay(t), days)
}
