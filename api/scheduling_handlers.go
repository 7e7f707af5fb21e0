package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/scheduling"
)

// =============================================================================
// PROFESSIONAL HANDLERS
// =============================================================================

// ListProfessionals returns all professionals.
// GET /api/professionals
func (h *Handler) ListProfessionals(w http.ResponseWriter, r *http.Request) {
	pros, err := h.Scheduling.ListProfessionals(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]ProfessionalDTO, len(pros))
	for i, p := range pros {
		dtos[i] = h.toProfessionalDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProfessional registers a professional with an optional schedule.
// POST /api/professionals
func (h *Handler) CreateProfessional(w http.ResponseWriter, r *http.Request) {
	var spec scheduling.ProfessionalSpec
	if err := decodeJSON(r, &spec); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := h.Scheduling.CreateProfessional(r.Context(), spec)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProfessionalDTO(*p))
}

// GetProfessional returns one professional.
// GET /api/professionals/{id}
func (h *Handler) GetProfessional(w http.ResponseWriter, r *http.Request) {
	p, err := h.Scheduling.GetProfessional(r.Context(), scheduling.ProfessionalID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProfessionalDTO(*p))
}

// SetProfessionalStatus moves a professional between active, inactive,
// on_leave and suspended.
// POST /api/professionals/{id}/status
func (h *Handler) SetProfessionalStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := scheduling.ProfessionalID(chi.URLParam(r, "id"))
	if err := h.Scheduling.SetProfessionalStatus(r.Context(), id, scheduling.ProfessionalStatus(req.Status)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.GetProfessional(w, r)
}

// UpdateSchedule replaces working hours and consultation duration.
// PUT /api/professionals/{id}/schedule
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := scheduling.ProfessionalID(chi.URLParam(r, "id"))
	if err := h.Scheduling.UpdateSchedule(r.Context(), id, req.ConsultationDurationMinutes, req.WorkingHours); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.GetProfessional(w, r)
}

// GetAvailability lists free slot starts in [from, to).
// GET /api/professionals/{id}/availability?from=2025-03-10&to=2025-03-15
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	slots, err := h.Scheduling.AvailableSlots(r.Context(), scheduling.ProfessionalID(id), from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dto := AvailabilityDTO{
		ProfessionalID: id,
		From:           h.formatTime(from),
		To:             h.formatTime(to),
		Slots:          make([]string, len(slots)),
	}
	for i, s := range slots {
		dto.Slots[i] = h.formatTime(s)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetAgenda lists a professional's appointments overlapping [from, to).
// GET /api/professionals/{id}/appointments?from=&to=
func (h *Handler) GetAgenda(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	appts, err := h.Scheduling.Agenda(r.Context(), scheduling.ProfessionalID(chi.URLParam(r, "id")), from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]AppointmentDTO, len(appts))
	for i, a := range appts {
		dtos[i] = h.toAppointmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPOINTMENT HANDLERS
// =============================================================================

// BookAppointment books a slot for a member.
// POST /api/appointments
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Start == "" {
		h.writeServiceError(w, r, generic.NewValidationError("start", "required", "is required"))
		return
	}
	start, err := h.parseTime("start", req.Start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	a, err := h.Scheduling.BookAppointment(r.Context(), scheduling.BookingSpec{
		PatientID:      req.PatientID,
		ProfessionalID: scheduling.ProfessionalID(req.ProfessionalID),
		Start:          start,
		Modality:       scheduling.Modality(req.Modality),
		Priority:       scheduling.Priority(req.Priority),
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toAppointmentDTO(*a))
}

// GetAppointment returns one appointment.
// GET /api/appointments/{id}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Scheduling.GetAppointment(r.Context(), scheduling.AppointmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAppointmentDTO(*a))
}

// UpdateAppointmentStatus confirms, starts, completes, cancels or marks a
// no-show.
// POST /api/appointments/{id}/status
func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	a, err := h.Scheduling.UpdateAppointmentStatus(r.Context(),
		scheduling.AppointmentID(chi.URLParam(r, "id")),
		scheduling.AppointmentStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAppointmentDTO(*a))
}

// RescheduleAppointment moves an appointment to a new start. The response is
// the new appointment; the old one is left as rescheduled.
// POST /api/appointments/{id}/reschedule
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Start == "" {
		h.writeServiceError(w, r, generic.NewValidationError("start", "required", "is required"))
		return
	}
	start, err := h.parseTime("start", req.Start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	a, err := h.Scheduling.RescheduleAppointment(r.Context(), scheduling.AppointmentID(chi.URLParam(r, "id")), start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toAppointmentDTO(*a))
}
