package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/scheduling"
)

// =============================================================================
// SCHEDULING STORE
// =============================================================================

type Scheduling struct {
	mu            sync.RWMutex
	professionals map[scheduling.ProfessionalID]scheduling.Professional
	appointments  map[scheduling.AppointmentID]scheduling.Appointment
}

var _ scheduling.TxStore = (*Scheduling)(nil)

func NewScheduling() *Scheduling {
	return &Scheduling{
		professionals: make(map[scheduling.ProfessionalID]scheduling.Professional),
		appointments:  make(map[scheduling.AppointmentID]scheduling.Appointment),
	}
}

func (m *Scheduling) InsertProfessional(_ context.Context, p scheduling.Professional) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertProfessionalLocked(p)
}

func (m *Scheduling) GetProfessional(_ context.Context, id scheduling.ProfessionalID) (*scheduling.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProfessionalLocked(id), nil
}

func (m *Scheduling) ListProfessionals(_ context.Context) ([]scheduling.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProfessionalsLocked(), nil
}

func (m *Scheduling) SetProfessionalStatus(_ context.Context, id scheduling.ProfessionalID, status scheduling.ProfessionalStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setProfessionalStatusLocked(id, status, at)
}

func (m *Scheduling) SetProfessionalSchedule(_ context.Context, id scheduling.ProfessionalID, c scheduling.ScheduleChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setProfessionalScheduleLocked(id, c)
}

func (m *Scheduling) InsertAppointment(_ context.Context, a scheduling.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAppointmentLocked(a)
}

func (m *Scheduling) GetAppointment(_ context.Context, id scheduling.AppointmentID) (*scheduling.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAppointmentLocked(id), nil
}

func (m *Scheduling) ListAppointments(_ context.Context, id scheduling.ProfessionalID, from, to time.Time) ([]scheduling.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAppointmentsLocked(id, from, to), nil
}

func (m *Scheduling) SetAppointmentStatus(_ context.Context, id scheduling.AppointmentID, c scheduling.AppointmentStatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setAppointmentStatusLocked(id, c)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Scheduling) WithTx(_ context.Context, fn func(scheduling.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	professionals := cloneMap(m.professionals)
	appointments := cloneMap(m.appointments)
	if err := fn(&schedulingView{parent: m}); err != nil {
		m.professionals = professionals
		m.appointments = appointments
		return err
	}
	return nil
}

type schedulingView struct {
	parent *Scheduling
}

func (v *schedulingView) InsertProfessional(_ context.Context, p scheduling.Professional) error {
	return v.parent.insertProfessionalLocked(p)
}

func (v *schedulingView) GetProfessional(_ context.Context, id scheduling.ProfessionalID) (*scheduling.Professional, error) {
	return v.parent.getProfessionalLocked(id), nil
}

func (v *schedulingView) ListProfessionals(_ context.Context) ([]scheduling.Professional, error) {
	return v.parent.listProfessionalsLocked(), nil
}

func (v *schedulingView) SetProfessionalStatus(_ context.Context, id scheduling.ProfessionalID, status scheduling.ProfessionalStatus, at time.Time) error {
	return v.parent.setProfessionalStatusLocked(id, status, at)
}

func (v *schedulingView) SetProfessionalSchedule(_ context.Context, id scheduling.ProfessionalID, c scheduling.ScheduleChange) error {
	return v.parent.setProfessionalScheduleLocked(id, c)
}

func (v *schedulingView) InsertAppointment(_ context.Context, a scheduling.Appointment) error {
	return v.parent.insertAppointmentLocked(a)
}

func (v *schedulingView) GetAppointment(_ context.Context, id scheduling.AppointmentID) (*scheduling.Appointment, error) {
	return v.parent.getAppointmentLocked(id), nil
}

func (v *schedulingView) ListAppointments(_ context.Context, id scheduling.ProfessionalID, from, to time.Time) ([]scheduling.Appointment, error) {
	return v.parent.listAppointmentsLocked(id, from, to), nil
}

func (v *schedulingView) SetAppointmentStatus(_ context.Context, id scheduling.AppointmentID, c scheduling.AppointmentStatusChange) error {
	return v.parent.setAppointmentStatusLocked(id, c)
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Scheduling) insertProfessionalLocked(p scheduling.Professional) error {
	if _, ok := m.professionals[p.ID]; ok {
		return fmt.Errorf("professional %s already exists", p.ID)
	}
	p.WorkingHours = slices.Clone(p.WorkingHours)
	m.professionals[p.ID] = p
	return nil
}

func (m *Scheduling) getProfessionalLocked(id scheduling.ProfessionalID) *scheduling.Professional {
	p, ok := m.professionals[id]
	if !ok {
		return nil
	}
	p.WorkingHours = slices.Clone(p.WorkingHours)
	return &p
}

func (m *Scheduling) listProfessionalsLocked() []scheduling.Professional {
	out := make([]scheduling.Professional, 0, len(m.professionals))
	for _, p := range m.professionals {
		p.WorkingHours = slices.Clone(p.WorkingHours)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Scheduling) setProfessionalStatusLocked(id scheduling.ProfessionalID, status scheduling.ProfessionalStatus, at time.Time) error {
	p, ok := m.professionals[id]
	if !ok {
		return fmt.Errorf("professional %s does not exist", id)
	}
	p.Status = status
	p.UpdatedAt = at
	m.professionals[id] = p
	return nil
}

func (m *Scheduling) setProfessionalScheduleLocked(id scheduling.ProfessionalID, c scheduling.ScheduleChange) error {
	p, ok := m.professionals[id]
	if !ok {
		return fmt.Errorf("professional %s does not exist", id)
	}
	p.ConsultationDurationMinutes = c.ConsultationDurationMinutes
	p.WorkingHours = slices.Clone(c.WorkingHours)
	p.UpdatedAt = c.At
	m.professionals[id] = p
	return nil
}

func (m *Scheduling) insertAppointmentLocked(a scheduling.Appointment) error {
	if _, ok := m.appointments[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	m.appointments[a.ID] = a
	return nil
}

func (m *Scheduling) getAppointmentLocked(id scheduling.AppointmentID) *scheduling.Appointment {
	a, ok := m.appointments[id]
	if !ok {
		return nil
	}
	return &a
}

func (m *Scheduling) listAppointmentsLocked(id scheduling.ProfessionalID, from, to time.Time) []scheduling.Appointment {
	out := make([]scheduling.Appointment, 0)
	for _, a := range m.appointments {
		if a.ProfessionalID == id && generic.Overlaps(a.Start, a.End, from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Scheduling) setAppointmentStatusLocked(id scheduling.AppointmentID, c scheduling.AppointmentStatusChange) error {
	a, ok := m.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s does not exist", id)
	}
	a.Status = c.Status
	if c.RescheduledTo != "" {
		a.RescheduledTo = c.RescheduledTo
	}
	a.UpdatedAt = c.At
	m.appointments[id] = a
	return nil
}
