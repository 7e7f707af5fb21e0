package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ministerio/gestao-engine/scheduling"
)

// =============================================================================
// SCHEDULING STORE (scheduling.TxStore interface)
// =============================================================================

type SchedulingStore struct {
	schedulingQueries
	db *sql.DB
}

var _ scheduling.TxStore = (*SchedulingStore)(nil)

// WithTx executes a function within a database transaction.
func (s *SchedulingStore) WithTx(ctx context.Context, fn func(scheduling.Store) error) error {
	sqlTx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(&schedulingQueries{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

type schedulingQueries struct {
	q querier
}

// =============================================================================
// PROFESSIONALS
// =============================================================================

const professionalColumns = `id, name, email, phone, specialty, consultation_duration_minutes,
	working_hours_json, status, created_at, updated_at`

func (s *schedulingQueries) InsertProfessional(ctx context.Context, p scheduling.Professional) error {
	rules, err := json.Marshal(rulesOrEmpty(p.WorkingHours))
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO professionals (`+professionalColumns+`)
		VALUES (`+placeholders(10)+`)`,
		p.ID, p.Name, nullString(p.Email), nullString(p.Phone), p.Specialty,
		p.ConsultationDurationMinutes, string(rules), p.Status,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert professional: %w", classify(err))
	}
	return nil
}

func (s *schedulingQueries) GetProfessional(ctx context.Context, id scheduling.ProfessionalID) (*scheduling.Professional, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE id = ?`, id)
	p, err := scanProfessional(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *schedulingQueries) ListProfessionals(ctx context.Context) ([]scheduling.Professional, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+professionalColumns+` FROM professionals ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query professionals: %w", err)
	}
	defer rows.Close()

	professionals := make([]scheduling.Professional, 0)
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, err
		}
		professionals = append(professionals, p)
	}
	return professionals, rows.Err()
}

func (s *schedulingQueries) SetProfessionalStatus(ctx context.Context, id scheduling.ProfessionalID, status scheduling.ProfessionalStatus, at time.Time) error {
	return execOne(ctx, s.q, "professional", string(id),
		`UPDATE professionals SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(at), id)
}

func (s *schedulingQueries) SetProfessionalSchedule(ctx context.Context, id scheduling.ProfessionalID, c scheduling.ScheduleChange) error {
	rules, err := json.Marshal(rulesOrEmpty(c.WorkingHours))
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}
	return execOne(ctx, s.q, "professional", string(id), `
		UPDATE professionals SET consultation_duration_minutes = ?, working_hours_json = ?, updated_at = ?
		WHERE id = ?`,
		c.ConsultationDurationMinutes, string(rules), formatTime(c.At), id)
}

func scanProfessional(row scanner) (scheduling.Professional, error) {
	var (
		p                  scheduling.Professional
		email, phone       sql.NullString
		rules              string
		createdAt, updated string
	)
	err := row.Scan(&p.ID, &p.Name, &email, &phone, &p.Specialty, &p.ConsultationDurationMinutes,
		&rules, &p.Status, &createdAt, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, err
		}
		return p, fmt.Errorf("failed to scan professional: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &p.WorkingHours); err != nil {
		return p, fmt.Errorf("failed to decode working hours of %s: %w", p.ID, err)
	}
	p.Email = email.String
	p.Phone = phone.String
	var tp timeParser
	p.CreatedAt = tp.parse(createdAt)
	p.UpdatedAt = tp.parse(updated)
	if err := tp.err; err != nil {
		return p, err
	}
	return p, nil
}

func rulesOrEmpty(rules []scheduling.WorkingHoursRule) []scheduling.WorkingHoursRule {
	if rules == nil {
		return []scheduling.WorkingHoursRule{}
	}
	return rules
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

const appointmentColumns = `id, booking_code, patient_id, professional_id, start_at, end_at, status,
	modality, priority, reason, rescheduled_to, created_at, updated_at`

func (s *schedulingQueries) InsertAppointment(ctx context.Context, a scheduling.Appointment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (`+placeholders(13)+`)`,
		a.ID, a.BookingCode, a.PatientID, a.ProfessionalID,
		formatTime(a.Start), formatTime(a.End), a.Status, a.Modality, a.Priority,
		nullString(a.Reason), nullString(string(a.RescheduledTo)),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", classify(err))
	}
	return nil
}

func (s *schedulingQueries) GetAppointment(ctx context.Context, id scheduling.AppointmentID) (*scheduling.Appointment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAppointments returns appointments intersecting [from, to).
func (s *schedulingQueries) ListAppointments(ctx context.Context, id scheduling.ProfessionalID, from, to time.Time) ([]scheduling.Appointment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE professional_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		id, formatTime(to), formatTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	appointments := make([]scheduling.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func (s *schedulingQueries) SetAppointmentStatus(ctx context.Context, id scheduling.AppointmentID, c scheduling.AppointmentStatusChange) error {
	return execOne(ctx, s.q, "appointment", string(id), `
		UPDATE appointments
		SET status = ?, rescheduled_to = COALESCE(?, rescheduled_to), updated_at = ?
		WHERE id = ?`,
		c.Status, nullString(string(c.RescheduledTo)), formatTime(c.At), id)
}

func scanAppointment(row scanner) (scheduling.Appointment, error) {
	var (
		a                        scheduling.Appointment
		start, end               string
		reason, rescheduledTo    sql.NullString
		createdAt, updatedAtText string
	)
	err := row.Scan(&a.ID, &a.BookingCode, &a.PatientID, &a.ProfessionalID, &start, &end, &a.Status,
		&a.Modality, &a.Priority, &reason, &rescheduledTo, &createdAt, &updatedAtText)
	if err != nil {
		if err == sql.ErrNoRows {
			return a, err
		}
		return a, fmt.Errorf("failed to scan appointment: %w", err)
	}
	var tp timeParser
	a.Start = tp.parse(start)
	a.End = tp.parse(end)
	a.Reason = reason.String
	a.RescheduledTo = scheduling.AppointmentID(rescheduledTo.String)
	a.CreatedAt = tp.parse(createdAt)
	a.UpdatedAt = tp.parse(updatedAtText)
	if err := tp.err; err != nil {
		return a, err
	}
	return a, nil
}
