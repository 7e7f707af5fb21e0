package scheduling

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Persistence facade for professionals and appointments
// =============================================================================

// Store persists professionals and appointments. Getters return (nil, nil)
// when the record does not exist. Mutations name exactly the fields they
// change; there is no generic "save whole record" path.
type Store interface {
	InsertProfessional(ctx context.Context, p Professional) error
	GetProfessional(ctx context.Context, id ProfessionalID) (*Professional, error)
	ListProfessionals(ctx context.Context) ([]Professional, error)
	SetProfessionalStatus(ctx context.Context, id ProfessionalID, status ProfessionalStatus, at time.Time) error
	SetProfessionalSchedule(ctx context.Context, id ProfessionalID, change ScheduleChange) error

	InsertAppointment(ctx context.Context, a Appointment) error
	GetAppointment(ctx context.Context, id AppointmentID) (*Appointment, error)

	// ListAppointments returns the professional's appointments whose
	// [Start, End) intersects [from, to), ordered by Start.
	ListAppointments(ctx context.Context, professionalID ProfessionalID, from, to time.Time) ([]Appointment, error)

	SetAppointmentStatus(ctx context.Context, id AppointmentID, change AppointmentStatusChange) error
}

// TxStore adds the atomic read-modify-write primitive.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ScheduleChange is the only way a professional's template changes.
type ScheduleChange struct {
	ConsultationDurationMinutes int
	WorkingHours                []WorkingHoursRule
	At                          time.Time
}

// AppointmentStatusChange is the only way an appointment changes after booking.
type AppointmentStatusChange struct {
	Status        AppointmentStatus
	RescheduledTo AppointmentID // set only when Status is rescheduled
	At            time.Time
}

// PatientDirectory resolves patient references. members.Service implements it.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id string) (bool, error)
}
