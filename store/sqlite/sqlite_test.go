package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/ledger"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/scheduling"
	"github.com/ministerio/gestao-engine/store/memory"
	"github.com/ministerio/gestao-engine/store/sqlite"
)

var base = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func insertDepartment(t *testing.T, s ledger.Store, id, balance string) {
	t.Helper()
	require.NoError(t, s.InsertDepartment(context.Background(), ledger.Department{
		ID:             ledger.DepartmentID(id),
		Name:           "Dept " + id,
		InitialBalance: dec(balance),
		CurrentBalance: dec(balance),
		Active:         true,
		CreatedAt:      base,
		UpdatedAt:      base,
	}))
}

func tx(id, dept string, typ ledger.TransactionType, amount string, status ledger.TransactionStatus, date time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:           ledger.TransactionID(id),
		DepartmentID: ledger.DepartmentID(dept),
		Type:         typ,
		Amount:       dec(amount),
		Status:       status,
		Date:         date,
		Reference:    "REF-" + id,
		CreatedAt:    date,
		UpdatedAt:    date,
	}
}

func ids(txs []ledger.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = string(t.ID)
	}
	return out
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedgerStore_DepartmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Ledger()
	insertDepartment(t, s, "d1", "1234.56")

	d, err := s.GetDepartment(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.CurrentBalance.Equal(dec("1234.56")))
	assert.True(t, d.CreatedAt.Equal(base))

	require.NoError(t, s.SetDepartmentBalance(ctx, "d1", dec("10.01"), base.Add(time.Hour)))
	require.NoError(t, s.SetDepartmentActive(ctx, "d1", false, base.Add(time.Hour)))
	d, err = s.GetDepartment(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, d.CurrentBalance.Equal(dec("10.01")))
	assert.False(t, d.Active)

	missing, err := s.GetDepartment(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, s.SetDepartmentActive(ctx, "nope", true, base))
}

func TestLedgerStore_ListTransactionsFilter(t *testing.T) {
	// GIVEN: a mix of types, statuses and dates on two departments
	ctx := context.Background()
	s := newDB(t).Ledger()
	insertDepartment(t, s, "d1", "0")
	insertDepartment(t, s, "d2", "0")
	for _, tr := range []ledger.Transaction{
		tx("t1", "d1", ledger.TypeDeposit, "100", ledger.StatusApproved, base),
		tx("t2", "d1", ledger.TypeWithdrawal, "30", ledger.StatusPending, base.Add(24*time.Hour)),
		tx("t3", "d1", ledger.TypeDeposit, "9.5", ledger.StatusRejected, base.Add(48*time.Hour)),
		tx("t4", "d2", ledger.TypeDeposit, "500", ledger.StatusApproved, base.Add(72*time.Hour)),
	} {
		require.NoError(t, s.InsertTransaction(ctx, tr))
	}
	from, to := base.Add(24*time.Hour), base.Add(72*time.Hour)
	min, max := dec("10"), dec("100")

	tests := []struct {
		name   string
		filter ledger.TransactionFilter
		want   []string
	}{
		{"all newest first", ledger.TransactionFilter{}, []string{"t4", "t3", "t2", "t1"}},
		{"department", ledger.TransactionFilter{DepartmentID: "d1"}, []string{"t3", "t2", "t1"}},
		{"type", ledger.TransactionFilter{Types: []ledger.TransactionType{ledger.TypeWithdrawal}}, []string{"t2"}},
		{"statuses", ledger.TransactionFilter{Statuses: []ledger.TransactionStatus{ledger.StatusApproved, ledger.StatusRejected}}, []string{"t4", "t3", "t1"}},
		{"half-open dates", ledger.TransactionFilter{From: &from, To: &to}, []string{"t3", "t2"}},
		{"amount range", ledger.TransactionFilter{MinAmount: &min, MaxAmount: &max}, []string{"t2", "t1"}},
		{"limit", ledger.TransactionFilter{Limit: 2}, []string{"t4", "t3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestLedgerStore_AmountRangeIsExact(t *testing.T) {
	// GIVEN: amounts a hair above and below 100 in both stores
	ctx := context.Background()
	stores := map[string]ledger.Store{
		"sqlite": newDB(t).Ledger(),
		"memory": memory.NewLedger(),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			insertDepartment(t, s, "d1", "0")
			for _, tr := range []ledger.Transaction{
				tx("t1", "d1", ledger.TypeDeposit, "100.0000000000000001", ledger.StatusApproved, base),
				tx("t2", "d1", ledger.TypeDeposit, "100", ledger.StatusApproved, base.Add(time.Hour)),
				tx("t3", "d1", ledger.TypeDeposit, "99.9999999999999999", ledger.StatusApproved, base.Add(2*time.Hour)),
				tx("t4", "d1", ledger.TypeDeposit, "250", ledger.StatusApproved, base.Add(3*time.Hour)),
			} {
				require.NoError(t, s.InsertTransaction(ctx, tr))
			}
			hundred := dec("100")

			// WHEN: filtering at most 100 with a limit of 1
			got, err := s.ListTransactions(ctx, ledger.TransactionFilter{MaxAmount: &hundred})
			require.NoError(t, err)
			limited, err := s.ListTransactions(ctx, ledger.TransactionFilter{MaxAmount: &hundred, Limit: 1})
			require.NoError(t, err)
			atLeast, err := s.ListTransactions(ctx, ledger.TransactionFilter{MinAmount: &hundred})
			require.NoError(t, err)

			// THEN: bounds compare as decimals and the limit counts matches only
			assert.Equal(t, []string{"t3", "t2"}, ids(got))
			assert.Equal(t, []string{"t3"}, ids(limited))
			assert.Equal(t, []string{"t4", "t2", "t1"}, ids(atLeast))
		})
	}
}

func TestLedgerStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that writes and then fails
	ctx := context.Background()
	s := newDB(t).Ledger()
	insertDepartment(t, s, "d1", "50")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(st ledger.Store) error {
		if err := st.InsertTransaction(ctx, tx("t1", "d1", ledger.TypeDeposit, "10", ledger.StatusApproved, base)); err != nil {
			return err
		}
		if err := st.SetDepartmentBalance(ctx, "d1", dec("60"), base); err != nil {
			return err
		}
		return boom
	})

	// THEN: nothing was written
	assert.ErrorIs(t, err, boom)
	got, err := s.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
	d, err := s.GetDepartment(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, d.CurrentBalance.Equal(dec("50")))
}

func TestLedgerStore_CorruptTimestampIsAnError(t *testing.T) {
	// GIVEN: a file database whose stored date was damaged outside the store
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gestao.db")
	db, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := db.Ledger()
	insertDepartment(t, s, "d1", "0")
	require.NoError(t, s.InsertTransaction(ctx, tx("t1", "d1", ledger.TypeDeposit, "10", ledger.StatusApproved, base)))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE ledger_transactions SET date = 'not-a-time' WHERE id = 't1'`)
	require.NoError(t, err)

	// WHEN / THEN: reads fail instead of returning a zero date
	_, err = s.GetTransaction(ctx, "t1")
	assert.ErrorContains(t, err, "not-a-time")
	_, err = s.ListTransactions(ctx, ledger.TransactionFilter{})
	assert.ErrorContains(t, err, "not-a-time")
	d, err := s.GetDepartment(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, d.CreatedAt.Equal(base))
}

func TestLedgerStore_TransferAndStatus(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Ledger()
	insertDepartment(t, s, "d1", "100")
	insertDepartment(t, s, "d2", "0")

	err := s.WithTx(ctx, func(st ledger.Store) error {
		if err := st.InsertTransfer(ctx, ledger.Transfer{
			ID: "tr1", FromDepartmentID: "d1", ToDepartmentID: "d2", Amount: dec("40"),
			Status: ledger.StatusPending, Date: base, Reference: "TRANSF-1", CreatedAt: base, UpdatedAt: base,
		}); err != nil {
			return err
		}
		out := tx("leg-out", "d1", ledger.TypeTransferOut, "40", ledger.StatusPending, base)
		out.TransferID = "tr1"
		in := tx("leg-in", "d2", ledger.TypeTransferIn, "40", ledger.StatusPending, base)
		in.TransferID = "tr1"
		if err := st.InsertTransaction(ctx, out); err != nil {
			return err
		}
		return st.InsertTransaction(ctx, in)
	})
	require.NoError(t, err)

	change := ledger.StatusChange{Status: ledger.StatusApproved, ApprovedBy: "tesoureiro", At: base.Add(time.Hour)}
	require.NoError(t, s.SetTransferStatus(ctx, "tr1", change))
	require.NoError(t, s.SetTransactionStatus(ctx, "leg-in", change))

	transfer, err := s.GetTransfer(ctx, "tr1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, transfer.Status)
	assert.Equal(t, "tesoureiro", transfer.ApprovedBy)
	require.NotNil(t, transfer.ApprovedAt)
	assert.True(t, transfer.ApprovedAt.Equal(base.Add(time.Hour)))

	legs, err := s.TransactionsByTransfer(ctx, "tr1")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, ledger.TypeTransferIn, legs[0].Type)
	assert.Equal(t, ledger.StatusApproved, legs[0].Status)

	assert.Error(t, s.SetTransactionStatus(ctx, "missing", change))
}

func TestLedgerStore_ApprovedTotals(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Ledger()
	insertDepartment(t, s, "d1", "0")
	for _, tr := range []ledger.Transaction{
		tx("t1", "d1", ledger.TypeDeposit, "100.10", ledger.StatusApproved, base),
		tx("t2", "d1", ledger.TypeDeposit, "0.20", ledger.StatusApproved, base),
		tx("t3", "d1", ledger.TypeDeposit, "999", ledger.StatusPending, base),
		tx("t4", "d1", ledger.TypeWithdrawal, "50", ledger.StatusApproved, base),
		tx("t5", "d1", ledger.TypeTransferOut, "5", ledger.StatusApproved, base),
	} {
		require.NoError(t, s.InsertTransaction(ctx, tr))
	}

	totals, err := s.ApprovedTotals(ctx)

	require.NoError(t, err)
	assert.True(t, totals.Deposits.Equal(dec("100.30")), totals.Deposits.String())
	assert.True(t, totals.Withdrawals.Equal(dec("50")))
}

func TestLedgerStore_WorksWithService(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(newDB(t).Ledger())
	d, err := svc.CreateDepartment(ctx, ledger.DepartmentSpec{Name: "Missões", InitialBalance: dec("100")})
	require.NoError(t, err)

	_, err = svc.CreateTransaction(ctx, ledger.TransactionSpec{
		DepartmentID: d.ID, Type: ledger.TypeWithdrawal, Amount: dec("150"),
		Description: "Viagem missionária", Category: "missoes", Status: ledger.StatusApproved,
	})

	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	check, err := svc.VerifyBalance(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}

// =============================================================================
// SCHEDULING
// =============================================================================

func insertProfessional(t *testing.T, s scheduling.Store) {
	t.Helper()
	require.NoError(t, s.InsertProfessional(context.Background(), scheduling.Professional{
		ID:                          "p1",
		Name:                        "Dr. Paulo",
		Specialty:                   "clinica",
		ConsultationDurationMinutes: 30,
		WorkingHours: []scheduling.WorkingHoursRule{
			{Weekday: time.Monday, Start: generic.MustTimeOfDay("09:00"), End: generic.MustTimeOfDay("12:00")},
		},
		Status:    scheduling.ProfessionalActive,
		CreatedAt: base,
		UpdatedAt: base,
	}))
}

func appointment(id string, start time.Time, minutes int) scheduling.Appointment {
	return scheduling.Appointment{
		ID:             scheduling.AppointmentID(id),
		BookingCode:    "ASS-000000-" + id,
		PatientID:      "m1",
		ProfessionalID: "p1",
		Start:          start,
		End:            start.Add(time.Duration(minutes) * time.Minute),
		Status:         scheduling.AppointmentScheduled,
		Modality:       scheduling.ModalityOnline,
		Priority:       scheduling.PriorityHigh,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func TestSchedulingStore_ProfessionalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Scheduling()
	insertProfessional(t, s)

	p, err := s.GetProfessional(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p.WorkingHours, 1)
	assert.Equal(t, generic.MustTimeOfDay("12:00"), p.WorkingHours[0].End)

	require.NoError(t, s.SetProfessionalSchedule(ctx, "p1", scheduling.ScheduleChange{
		ConsultationDurationMinutes: 45,
		At:                          base.Add(time.Hour),
	}))
	require.NoError(t, s.SetProfessionalStatus(ctx, "p1", scheduling.ProfessionalSuspended, base.Add(time.Hour)))

	p, err = s.GetProfessional(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 45, p.ConsultationDurationMinutes)
	assert.Empty(t, p.WorkingHours)
	assert.Equal(t, scheduling.ProfessionalSuspended, p.Status)
}

func TestSchedulingStore_ListAppointmentsOverlap(t *testing.T) {
	// GIVEN: appointments at 09:00, 10:00 and 11:00
	ctx := context.Background()
	s := newDB(t).Scheduling()
	insertProfessional(t, s)
	for i, id := range []string{"A00001", "A00002", "A00003"} {
		require.NoError(t, s.InsertAppointment(ctx, appointment(id, base.Add(time.Duration(i)*time.Hour), 30)))
	}

	// WHEN: querying [09:30, 11:00)
	got, err := s.ListAppointments(ctx, "p1", base.Add(30*time.Minute), base.Add(2*time.Hour))

	// THEN: the touching 09:00 and 11:00 intervals are excluded
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, scheduling.AppointmentID("A00002"), got[0].ID)
	assert.Equal(t, scheduling.ModalityOnline, got[0].Modality)
	assert.True(t, got[0].End.Equal(base.Add(90*time.Minute)))
}

func TestSchedulingStore_SetAppointmentStatus(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Scheduling()
	insertProfessional(t, s)
	require.NoError(t, s.InsertAppointment(ctx, appointment("A00001", base, 30)))

	require.NoError(t, s.SetAppointmentStatus(ctx, "A00001", scheduling.AppointmentStatusChange{
		Status: scheduling.AppointmentRescheduled, RescheduledTo: "A00009", At: base,
	}))
	require.NoError(t, s.SetAppointmentStatus(ctx, "A00001", scheduling.AppointmentStatusChange{
		Status: scheduling.AppointmentCanceled, At: base,
	}))

	a, err := s.GetAppointment(ctx, "A00001")
	require.NoError(t, err)
	assert.Equal(t, scheduling.AppointmentCanceled, a.Status)
	assert.Equal(t, scheduling.AppointmentID("A00009"), a.RescheduledTo, "an empty change keeps the link")
}

func TestSchedulingStore_DuplicateBookingCodeRejected(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Scheduling()
	insertProfessional(t, s)
	first := appointment("A00001", base, 30)
	require.NoError(t, s.InsertAppointment(ctx, first))

	second := appointment("A00002", base.Add(time.Hour), 30)
	second.BookingCode = first.BookingCode

	assert.Error(t, s.InsertAppointment(ctx, second))
}

// =============================================================================
// MEMBERS AND RESET
// =============================================================================

func TestMembersStore(t *testing.T) {
	ctx := context.Background()
	s := newDB(t).Members()
	birth := time.Date(1985, time.January, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertMember(ctx, members.Member{ID: "m2", Name: "Zélia", Active: true, CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.InsertMember(ctx, members.Member{ID: "m1", Name: "Abel", BirthDate: &birth, Active: true, CreatedAt: base, UpdatedAt: base}))

	list, err := s.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Abel", list[0].Name)
	require.NotNil(t, list[0].BirthDate)
	assert.True(t, list[0].BirthDate.Equal(birth))
	assert.Nil(t, list[1].BirthDate)

	require.NoError(t, s.SetMemberActive(ctx, "m1", false, base))
	m, err := s.GetMember(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.Active)
}

func TestDB_Reset(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	insertDepartment(t, db.Ledger(), "d1", "10")
	require.NoError(t, db.Members().InsertMember(ctx, members.Member{ID: "m1", Name: "Abel", CreatedAt: base, UpdatedAt: base}))

	require.NoError(t, db.Reset(ctx))

	deps, err := db.Ledger().ListDepartments(ctx)
	require.NoError(t, err)
	assert.Empty(t, deps)
	ms, err := db.Members().ListMembers(ctx)
	require.NoError(t, err)
	assert.Empty(t, ms)
	assert.NoError(t, db.Ping(ctx))
}
