package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ministerio/gestao-engine/members"
)

// ListMembers returns all members.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Members.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]MemberDTO, len(ms))
	for i, m := range ms {
		dtos[i] = h.toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a member who can later book appointments.
// POST /api/members
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	spec := members.MemberSpec{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if req.BirthDate != "" {
		bd, err := h.parseTime("birth_date", req.BirthDate)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		spec.BirthDate = &bd
	}

	m, err := h.Members.Create(r.Context(), spec)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toMemberDTO(*m))
}

// GetMember returns one member.
// GET /api/members/{id}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Members.Get(r.Context(), members.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toMemberDTO(*m))
}

// SetMemberActive activates or deactivates a member. Inactive members
// cannot book new appointments.
// POST /api/members/{id}/active
func (h *Handler) SetMemberActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := members.MemberID(chi.URLParam(r, "id"))
	if err := h.Members.SetActive(r.Context(), id, req.Active); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.GetMember(w, r)
}
