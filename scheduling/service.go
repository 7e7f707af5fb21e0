/*
service.go - Booking workflow around the availability engine

PURPOSE:
  Owns every write to professionals and appointments. Each booking runs in
  one store transaction: load the professional, load the day's bookings,
  check the requested start is a generated free slot, insert. Two patients
  racing for the same slot are serialized by the store; the loser gets a
  SlotUnavailableError.

APPOINTMENT LIFECYCLE:
  scheduled   -> confirmed | in_progress | canceled | rescheduled | no_show
  confirmed   -> in_progress | canceled | rescheduled | no_show
  in_progress -> completed
  (completed, canceled, rescheduled, no_show are terminal)

CACHING:
  AvailableSlots results are cached per (professional, range) when a
  SlotCache is configured. Any write touching a professional invalidates it.

SEE ALSO:
  - availability.go: ComputeAvailableSlots
  - store.go: Store/TxStore facade
*/
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
)

// =============================================================================
// INPUT SPECS
// =============================================================================

type ProfessionalSpec struct {
	Name                        string             `json:"name" validate:"required,max=120"`
	Email                       string             `json:"email" validate:"omitempty,email"`
	Phone                       string             `json:"phone" validate:"max=30"`
	Specialty                   string             `json:"specialty" validate:"required,max=80"`
	ConsultationDurationMinutes int                `json:"consultation_duration_minutes" validate:"gt=0,lte=480"`
	WorkingHours                []WorkingHoursRule `json:"working_hours"`
}

type BookingSpec struct {
	PatientID      string         `json:"patient_id" validate:"required"`
	ProfessionalID ProfessionalID `json:"professional_id" validate:"required"`
	Start          time.Time      `json:"start" validate:"required"`
	Modality       Modality       `json:"modality" validate:"omitempty,oneof=in_person online home_visit"`
	Priority       Priority       `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Reason         string         `json:"reason" validate:"max=1000"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    TxStore
	patients PatientDirectory
	cache    *SlotCache
	validate *generic.Validator
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Service)

// WithPatients enables patient reference checks on booking.
func WithPatients(d PatientDirectory) Option { return func(s *Service) { s.patients = d } }

// WithCache enables availability caching.
func WithCache(c *SlotCache) Option { return func(s *Service) { s.cache = c } }

// WithLocation sets the wall-clock frame slots are generated in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.location = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: generic.NewValidator(),
		location: time.UTC,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("scheduling")
	return s
}

// =============================================================================
// PROFESSIONALS
// =============================================================================

func (s *Service) CreateProfessional(ctx context.Context, spec ProfessionalSpec) (*Professional, error) {
	verr := &generic.ValidationError{}
	verr.Merge(s.validate.Struct(spec))
	validateRules(verr, spec.WorkingHours)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now()
	p := Professional{
		ID:                          ProfessionalID(uuid.NewString()),
		Name:                        spec.Name,
		Email:                       spec.Email,
		Phone:                       spec.Phone,
		Specialty:                   spec.Specialty,
		ConsultationDurationMinutes: spec.ConsultationDurationMinutes,
		WorkingHours:                spec.WorkingHours,
		Status:                      ProfessionalActive,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
	if err := s.store.InsertProfessional(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create professional: %w", err)
	}

	s.logger.Info("professional created",
		zap.String("professional_id", string(p.ID)),
		zap.String("specialty", p.Specialty))
	return &p, nil
}

func (s *Service) GetProfessional(ctx context.Context, id ProfessionalID) (*Professional, error) {
	p, err := s.store.GetProfessional(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get professional: %w", err)
	}
	if p == nil {
		return nil, &generic.NotFoundError{Kind: "professional", ID: string(id)}
	}
	return p, nil
}

func (s *Service) ListProfessionals(ctx context.Context) ([]Professional, error) {
	return s.store.ListProfessionals(ctx)
}

// SetProfessionalStatus is the soft-delete path: professionals are never removed.
func (s *Service) SetProfessionalStatus(ctx context.Context, id ProfessionalID, status ProfessionalStatus) error {
	if !status.Valid() {
		return generic.NewValidationError("status", "oneof", "must be one of: active inactive on_leave suspended")
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetProfessional(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &generic.NotFoundError{Kind: "professional", ID: string(id)}
		}
		return tx.SetProfessionalStatus(ctx, id, status, s.now())
	})
	if err != nil {
		return err
	}

	s.invalidate(id)
	s.logger.Info("professional status changed",
		zap.String("professional_id", string(id)),
		zap.String("status", string(status)))
	return nil
}

// UpdateSchedule replaces the working-hours template and consultation length.
// Existing appointments are kept as booked.
func (s *Service) UpdateSchedule(ctx context.Context, id ProfessionalID, durationMinutes int, rules []WorkingHoursRule) error {
	verr := &generic.ValidationError{}
	if durationMinutes <= 0 || durationMinutes > 480 {
		verr.Add("consultation_duration_minutes", "range", "must be between 1 and 480")
	}
	validateRules(verr, rules)
	if err := verr.OrNil(); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetProfessional(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &generic.NotFoundError{Kind: "professional", ID: string(id)}
		}
		return tx.SetProfessionalSchedule(ctx, id, ScheduleChange{
			ConsultationDurationMinutes: durationMinutes,
			WorkingHours:                rules,
			At:                          s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func validateRules(verr *generic.ValidationError, rules []WorkingHoursRule) {
	for i, r := range rules {
		if !r.Valid() {
			verr.Add(fmt.Sprintf("working_hours[%d]", i), "window",
				"weekday must be 0-6 and start must be before end")
		}
	}
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AvailableSlots returns free start times in [from, to). Professionals that
// are not active offer no slots.
func (s *Service) AvailableSlots(ctx context.Context, id ProfessionalID, from, to time.Time) ([]time.Time, error) {
	if !from.Before(to) {
		return nil, generic.NewValidationError("to", "gtfield", "must be after from")
	}
	from, to = from.In(s.location), to.In(s.location)

	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation(id)
		if slots, ok := s.cache.Get(id, from, to); ok {
			return slots, nil
		}
	}

	p, err := s.GetProfessional(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != ProfessionalActive {
		return []time.Time{}, nil
	}

	// Bookings that started before the range can still reach into it.
	appointments, err := s.store.ListAppointments(ctx, id, from.Add(-p.ConsultationDuration()), to)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	slots := ComputeAvailableSlots(*p, from, to, appointments)
	if s.cache != nil {
		s.cache.Put(id, from, to, gen, slots)
	}
	return slots, nil
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

// BookAppointment books spec.Start if it is a free generated slot.
func (s *Service) BookAppointment(ctx context.Context, spec BookingSpec) (*Appointment, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, err
	}
	now := s.now()
	if spec.Start.Before(now) {
		return nil, generic.NewValidationError("start", "future", "must not be in the past")
	}
	if err := s.checkPatient(ctx, spec.PatientID); err != nil {
		return nil, err
	}

	var booked Appointment
	err := s.store.WithTx(ctx, func(tx Store) error {
		p, err := s.bookableProfessional(ctx, tx, spec.ProfessionalID)
		if err != nil {
			return err
		}
		start := spec.Start.In(s.location)
		if err := s.ensureFree(ctx, tx, p, start, ""); err != nil {
			return err
		}

		booked = Appointment{
			ID:             AppointmentID(uuid.NewString()),
			BookingCode:    generic.NewBookingCode(),
			PatientID:      spec.PatientID,
			ProfessionalID: p.ID,
			Start:          start,
			End:            start.Add(p.ConsultationDuration()),
			Status:         AppointmentScheduled,
			Modality:       defaultModality(spec.Modality),
			Priority:       defaultPriority(spec.Priority),
			Reason:         spec.Reason,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.InsertAppointment(ctx, booked)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(booked.ProfessionalID)
	s.logger.Info("appointment booked",
		zap.String("appointment_id", string(booked.ID)),
		zap.String("booking_code", booked.BookingCode),
		zap.String("professional_id", string(booked.ProfessionalID)),
		zap.Time("start", booked.Start))
	return &booked, nil
}

func (s *Service) GetAppointment(ctx context.Context, id AppointmentID) (*Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if a == nil {
		return nil, &generic.NotFoundError{Kind: "appointment", ID: string(id)}
	}
	return a, nil
}

// Agenda lists a professional's appointments touching [from, to).
func (s *Service) Agenda(ctx context.Context, id ProfessionalID, from, to time.Time) ([]Appointment, error) {
	if !from.Before(to) {
		return nil, generic.NewValidationError("to", "gtfield", "must be after from")
	}
	if _, err := s.GetProfessional(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAppointments(ctx, id, from, to)
}

// UpdateAppointmentStatus applies one lifecycle transition.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id AppointmentID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, generic.NewValidationError("status", "oneof", "unknown appointment status")
	}

	var updated Appointment
	err := s.store.WithTx(ctx, func(tx Store) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &generic.NotFoundError{Kind: "appointment", ID: string(id)}
		}
		if !a.Status.CanTransitionTo(status) {
			return &generic.InvalidStateError{Kind: "appointment", ID: string(id), From: string(a.Status), To: string(status)}
		}
		change := AppointmentStatusChange{Status: status, At: s.now()}
		if err := tx.SetAppointmentStatus(ctx, id, change); err != nil {
			return err
		}
		updated = *a
		updated.Status = change.Status
		updated.UpdatedAt = change.At
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(updated.ProfessionalID)
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", string(id)),
		zap.String("status", string(status)))
	return &updated, nil
}

// RescheduleAppointment books newStart for the same patient and professional
// and marks the original appointment rescheduled, atomically.
func (s *Service) RescheduleAppointment(ctx context.Context, id AppointmentID, newStart time.Time) (*Appointment, error) {
	now := s.now()
	if newStart.Before(now) {
		return nil, generic.NewValidationError("start", "future", "must not be in the past")
	}

	var moved Appointment
	err := s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return &generic.NotFoundError{Kind: "appointment", ID: string(id)}
		}
		if !old.Status.CanTransitionTo(AppointmentRescheduled) {
			return &generic.InvalidStateError{Kind: "appointment", ID: string(id), From: string(old.Status), To: string(AppointmentRescheduled)}
		}

		p, err := s.bookableProfessional(ctx, tx, old.ProfessionalID)
		if err != nil {
			return err
		}
		start := newStart.In(s.location)
		if err := s.ensureFree(ctx, tx, p, start, old.ID); err != nil {
			return err
		}

		moved = Appointment{
			ID:             AppointmentID(uuid.NewString()),
			BookingCode:    generic.NewBookingCode(),
			PatientID:      old.PatientID,
			ProfessionalID: old.ProfessionalID,
			Start:          start,
			End:            start.Add(p.ConsultationDuration()),
			Status:         AppointmentScheduled,
			Modality:       old.Modality,
			Priority:       old.Priority,
			Reason:         old.Reason,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertAppointment(ctx, moved); err != nil {
			return err
		}
		return tx.SetAppointmentStatus(ctx, old.ID, AppointmentStatusChange{
			Status:        AppointmentRescheduled,
			RescheduledTo: moved.ID,
			At:            now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(moved.ProfessionalID)
	s.logger.Info("appointment rescheduled",
		zap.String("from_appointment_id", string(id)),
		zap.String("to_appointment_id", string(moved.ID)),
		zap.Time("start", moved.Start))
	return &moved, nil
}

func (s *Service) bookableProfessional(ctx context.Context, tx Store, id ProfessionalID) (*Professional, error) {
	p, err := tx.GetProfessional(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &generic.NotFoundError{Kind: "professional", ID: string(id)}
	}
	if p.Status != ProfessionalActive {
		return nil, &generic.InvalidStateError{Kind: "professional", ID: string(id), From: string(p.Status), To: "booking"}
	}
	return p, nil
}

// ensureFree checks start against the slots generated for its day. ignore
// names an appointment that must not count as a conflict (the one being moved).
func (s *Service) ensureFree(ctx context.Context, tx Store, p *Professional, start time.Time, ignore AppointmentID) error {
	day := generic.StartOfDay(start)
	existing, err := tx.ListAppointments(ctx, p.ID, day.Add(-p.ConsultationDuration()), generic.AddDays(day, 1))
	if err != nil {
		return fmt.Errorf("failed to load appointments: %w", err)
	}
	if ignore != "" {
		kept := existing[:0]
		for _, a := range existing {
			if a.ID != ignore {
				kept = append(kept, a)
			}
		}
		existing = kept
	}

	if IsSlotAvailable(*p, start, existing) {
		return nil
	}
	reason := "conflict"
	if !IsSlotAvailable(*p, start, nil) {
		reason = "off_grid"
	}
	return &generic.SlotUnavailableError{
		ProfessionalID: string(p.ID),
		Start:          start.Format(time.RFC3339),
		Reason:         reason,
	}
}

func (s *Service) checkPatient(ctx context.Context, id string) error {
	if s.patients == nil {
		return nil
	}
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check patient: %w", err)
	}
	if !ok {
		return &generic.NotFoundError{Kind: "member", ID: id}
	}
	return nil
}

// PurgeCache empties the slot cache after a bulk reset of the store.
func (s *Service) PurgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Service) invalidate(id ProfessionalID) {
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
}

func defaultModality(m Modality) Modality {
	if m == "" {
		return ModalityInPerson
	}
	return m
}

func defaultPriority(p Priority) Priority {
	if p == "" {
		return PriorityNormal
	}
	return p
}
