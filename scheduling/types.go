/*
Package scheduling computes bookable slots for assistance professionals and
manages the appointments booked into them.

PURPOSE:
  Professionals (psychologists, lawyers, social workers, ...) publish a weekly
  working-hours template. Patients book fixed-length consultations into the
  slots generated from that template. The availability engine is a pure
  function; the booking service wraps it with persistence.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkingHoursRule: weekday + "HH:MM" window
  - Professional: template owner, consultation duration drives slot size
  - Appointment: booked interval [Start, End) with a status lifecycle

INVARIANT:
  For a professional, no two non-canceled appointments overlap.

SEE ALSO:
  - availability.go: Slot generation and conflict removal
  - service.go: Booking workflow on top of a Store
*/
package scheduling

import (
	"time"

	"github.com/ministerio/gestao-engine/generic"
)

// =============================================================================
// WORKING HOURS
// =============================================================================

// WorkingHoursRule is one weekday's operating window. Several rules per
// weekday are allowed (e.g. morning and afternoon shifts).
type WorkingHoursRule struct {
	Weekday time.Weekday      `json:"weekday"` // 0 = Sunday ... 6 = Saturday
	Start   generic.TimeOfDay `json:"start"`
	End     generic.TimeOfDay `json:"end"`
}

// Valid reports a real weekday and a non-empty window.
func (r WorkingHoursRule) Valid() bool {
	return r.Weekday >= time.Sunday && r.Weekday <= time.Saturday &&
		r.Start.Valid() && r.End.Valid() && r.Start < r.End
}

// =============================================================================
// PROFESSIONAL
// =============================================================================

type ProfessionalID string

type ProfessionalStatus string

const (
	ProfessionalActive    ProfessionalStatus = "active"
	ProfessionalInactive  ProfessionalStatus = "inactive"
	ProfessionalOnLeave   ProfessionalStatus = "on_leave"
	ProfessionalSuspended ProfessionalStatus = "suspended"
)

func (s ProfessionalStatus) Valid() bool {
	switch s {
	case ProfessionalActive, ProfessionalInactive, ProfessionalOnLeave, ProfessionalSuspended:
		return true
	}
	return false
}

// Professional is never deleted; it only changes status.
type Professional struct {
	ID                          ProfessionalID
	Name                        string
	Email                       string
	Phone                       string
	Specialty                   string
	ConsultationDurationMinutes int
	WorkingHours                []WorkingHoursRule
	Status                      ProfessionalStatus
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// ConsultationDuration is the slot length.
func (p Professional) ConsultationDuration() time.Duration {
	return time.Duration(p.ConsultationDurationMinutes) * time.Minute
}

// =============================================================================
// APPOINTMENT
// =============================================================================

type AppointmentID string

type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "scheduled"
	AppointmentConfirmed   AppointmentStatus = "confirmed"
	AppointmentInProgress  AppointmentStatus = "in_progress"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCanceled    AppointmentStatus = "canceled"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
	AppointmentNoShow      AppointmentStatus = "no_show"
)

// appointmentTransitions lists every allowed status change. Statuses
// missing as keys are terminal.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentScheduled: {
		AppointmentConfirmed, AppointmentInProgress, AppointmentCanceled,
		AppointmentRescheduled, AppointmentNoShow,
	},
	AppointmentConfirmed: {
		AppointmentInProgress, AppointmentCanceled, AppointmentRescheduled, AppointmentNoShow,
	},
	AppointmentInProgress: {AppointmentCompleted},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted,
		AppointmentCanceled, AppointmentRescheduled, AppointmentNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BlocksSlot reports whether an appointment in this status occupies its interval.
func (s AppointmentStatus) BlocksSlot() bool {
	return s != AppointmentCanceled && s != AppointmentRescheduled
}

type Modality string

const (
	ModalityInPerson  Modality = "in_person"
	ModalityOnline    Modality = "online"
	ModalityHomeVisit Modality = "home_visit"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Appointment struct {
	ID             AppointmentID
	BookingCode    string
	PatientID      string
	ProfessionalID ProfessionalID
	Start          time.Time
	End            time.Time // Start + consultation duration
	Status         AppointmentStatus
	Modality       Modality
	Priority       Priority
	Reason         string
	RescheduledTo  AppointmentID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
