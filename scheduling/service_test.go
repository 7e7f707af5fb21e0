package scheduling_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/scheduling"
	"github.com/ministerio/gestao-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Friday before the test Monday.
var testNow = time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)

type patients map[string]bool

func (p patients) PatientExists(_ context.Context, id string) (bool, error) {
	return p[id], nil
}

type fixture struct {
	store   *memory.Scheduling
	cache   *scheduling.SlotCache
	service *scheduling.Service
	pro     *scheduling.Professional
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewScheduling()
	cache, err := scheduling.NewSlotCache(64)
	require.NoError(t, err)

	svc := scheduling.NewService(store,
		scheduling.WithPatients(patients{"member-1": true, "member-2": true}),
		scheduling.WithCache(cache),
		scheduling.WithClock(func() time.Time { return testNow }),
	)
	pro, err := svc.CreateProfessional(context.Background(), scheduling.ProfessionalSpec{
		Name:                        "Dra. Helena",
		Specialty:                   "psicologia",
		ConsultationDurationMinutes: 60,
		WorkingHours:                []scheduling.WorkingHoursRule{rule(time.Monday, "09:00", "12:00")},
	})
	require.NoError(t, err)
	return &fixture{store: store, cache: cache, service: svc, pro: pro}
}

func (f *fixture) book(t *testing.T, patient, hhmm string) (*scheduling.Appointment, error) {
	t.Helper()
	return f.service.BookAppointment(context.Background(), scheduling.BookingSpec{
		PatientID:      patient,
		ProfessionalID: f.pro.ID,
		Start:          at(monday, hhmm),
	})
}

func (f *fixture) mondaySlots(t *testing.T) []string {
	t.Helper()
	slots, err := f.service.AvailableSlots(context.Background(), f.pro.ID, monday, generic.AddDays(monday, 1))
	require.NoError(t, err)
	return hhmm(slots)
}

// =============================================================================
// PROFESSIONALS
// =============================================================================

func TestService_CreateProfessional_Validation(t *testing.T) {
	svc := scheduling.NewService(memory.NewScheduling())

	_, err := svc.CreateProfessional(context.Background(), scheduling.ProfessionalSpec{
		Email:                       "not-an-email",
		ConsultationDurationMinutes: 0,
		WorkingHours:                []scheduling.WorkingHoursRule{rule(time.Monday, "12:00", "09:00")},
	})

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"name", "email", "specialty", "consultation_duration_minutes", "working_hours[0]"}, fields)
}

func TestService_GetProfessional_NotFound(t *testing.T) {
	svc := scheduling.NewService(memory.NewScheduling())

	_, err := svc.GetProfessional(context.Background(), "missing")

	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestService_InactiveProfessionalOffersNothing(t *testing.T) {
	// GIVEN: a professional on leave
	f := newFixture(t)
	require.NoError(t, f.service.SetProfessionalStatus(context.Background(), f.pro.ID, scheduling.ProfessionalOnLeave))

	// THEN: no slots and booking is refused
	assert.Empty(t, f.mondaySlots(t))
	_, err := f.book(t, "member-1", "09:00")
	var ise *generic.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "booking", ise.To)
}

func TestService_UpdateSchedule_ChangesSlots(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []string{"Mon 09:00", "Mon 10:00", "Mon 11:00"}, f.mondaySlots(t))

	// WHEN: switching to 30 min consultations in the afternoon
	err := f.service.UpdateSchedule(context.Background(), f.pro.ID, 30,
		[]scheduling.WorkingHoursRule{rule(time.Monday, "14:00", "15:00")})
	require.NoError(t, err)

	// THEN: the cached morning slots are not served
	assert.Equal(t, []string{"Mon 14:00", "Mon 14:30"}, f.mondaySlots(t))
}

// =============================================================================
// BOOKING
// =============================================================================

func TestService_BookAppointment_RemovesSlot(t *testing.T) {
	f := newFixture(t)
	require.Len(t, f.mondaySlots(t), 3)

	a, err := f.book(t, "member-1", "10:00")
	require.NoError(t, err)

	assert.Equal(t, scheduling.AppointmentScheduled, a.Status)
	assert.Equal(t, at(monday, "11:00"), a.End)
	assert.Equal(t, scheduling.ModalityInPerson, a.Modality)
	assert.Equal(t, scheduling.PriorityNormal, a.Priority)
	assert.True(t, generic.IsBookingCode(a.BookingCode), a.BookingCode)
	assert.Equal(t, []string{"Mon 09:00", "Mon 11:00"}, f.mondaySlots(t))
}

func TestService_BookAppointment_DoubleBookingRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, "member-1", "10:00")
	require.NoError(t, err)

	_, err = f.book(t, "member-2", "10:00")

	var sue *generic.SlotUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "conflict", sue.Reason)
}

func TestService_BookAppointment_OffGrid(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, "member-1", "09:30")

	var sue *generic.SlotUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "off_grid", sue.Reason)
}

func TestService_BookAppointment_PastStart(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.BookAppointment(context.Background(), scheduling.BookingSpec{
		PatientID:      "member-1",
		ProfessionalID: f.pro.ID,
		Start:          testNow.Add(-time.Hour),
	})

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestService_BookAppointment_UnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, "stranger", "09:00")

	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "member", nf.Kind)
}

func TestService_CanceledAppointmentFreesSlot(t *testing.T) {
	f := newFixture(t)
	a, err := f.book(t, "member-1", "10:00")
	require.NoError(t, err)

	_, err = f.service.UpdateAppointmentStatus(context.Background(), a.ID, scheduling.AppointmentCanceled)
	require.NoError(t, err)

	assert.Equal(t, []string{"Mon 09:00", "Mon 10:00", "Mon 11:00"}, f.mondaySlots(t))
	_, err = f.book(t, "member-2", "10:00")
	assert.NoError(t, err)
}

func TestService_UpdateAppointmentStatus_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	a, err := f.book(t, "member-1", "10:00")
	require.NoError(t, err)
	_, err = f.service.UpdateAppointmentStatus(context.Background(), a.ID, scheduling.AppointmentCanceled)
	require.NoError(t, err)

	_, err = f.service.UpdateAppointmentStatus(context.Background(), a.ID, scheduling.AppointmentConfirmed)

	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

// =============================================================================
// RESCHEDULE
// =============================================================================

func TestService_RescheduleAppointment(t *testing.T) {
	// GIVEN: a booking at 09:00
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.book(t, "member-1", "09:00")
	require.NoError(t, err)

	// WHEN: moving it to 11:00
	moved, err := f.service.RescheduleAppointment(ctx, old.ID, at(monday, "11:00"))
	require.NoError(t, err)

	// THEN: the new appointment is scheduled and the old one points at it
	assert.Equal(t, at(monday, "11:00"), moved.Start)
	assert.Equal(t, old.PatientID, moved.PatientID)
	prev, err := f.service.GetAppointment(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.AppointmentRescheduled, prev.Status)
	assert.Equal(t, moved.ID, prev.RescheduledTo)
	assert.Equal(t, []string{"Mon 09:00", "Mon 10:00"}, f.mondaySlots(t))
}

func TestService_RescheduleAppointment_ConflictLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.book(t, "member-1", "09:00")
	require.NoError(t, err)
	_, err = f.book(t, "member-2", "10:00")
	require.NoError(t, err)

	_, err = f.service.RescheduleAppointment(ctx, old.ID, at(monday, "10:00"))

	assert.ErrorIs(t, err, generic.ErrSlotUnavailable)
	prev, err := f.service.GetAppointment(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.AppointmentScheduled, prev.Status)
	assert.Empty(t, prev.RescheduledTo)
}

func TestService_RescheduleAppointment_SameSlotAllowed(t *testing.T) {
	// A reschedule onto its own interval does not conflict with itself.
	f := newFixture(t)
	old, err := f.book(t, "member-1", "09:00")
	require.NoError(t, err)

	moved, err := f.service.RescheduleAppointment(context.Background(), old.ID, at(monday, "09:00"))

	require.NoError(t, err)
	assert.NotEqual(t, old.ID, moved.ID)
}

// =============================================================================
// AGENDA
// =============================================================================

func TestService_Agenda(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, "member-1", "11:00")
	require.NoError(t, err)
	_, err = f.book(t, "member-2", "09:00")
	require.NoError(t, err)

	agenda, err := f.service.Agenda(context.Background(), f.pro.ID, monday, generic.AddDays(monday, 1))

	require.NoError(t, err)
	require.Len(t, agenda, 2)
	assert.Equal(t, at(monday, "09:00"), agenda[0].Start)
	assert.Equal(t, at(monday, "11:00"), agenda[1].Start)
}

func TestService_Agenda_InvertedRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Agenda(context.Background(), f.pro.ID, monday, monday)

	assert.True(t, errors.Is(err, generic.ErrValidation))
}
