package handlers

import (
	"net/http"
)

const checkInsPath = "/staff/checkins"

// GET /staff/checkins
func (h *Handlers) PendingCheckIns(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.PendingCheckIns(r.Context(), 200)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_checkins.tmpl", map[string]any{
		"Title": "Check-ins",
		"Rows":  rows,
	})
}

// GET /staff/checkins/{id}
func (h *Handlers) CheckinForm(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.CheckIn(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Member(r.Context(), c.MemberID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	staff, err := h.svc.StaffUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_checkin.tmpl", map[string]any{
		"Title":   "Check-in",
		"CheckIn": c,
		"Member":  m,
		"Staff":   staff,
	})
}

// POST /staff/checkins/{id}/approve
func (h *Handlers) CheckinConfirm(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, outcome, err := h.svc.ApproveCheckIn(r.Context(), actor, id,
		optionalID(r.FormValue("instructor_id")), r.FormValue("staff_note"))
	if err != nil {
		h.back(w, r, checkInsPath, err)
		return
	}
	redirect(w, r, checkInsPath, "ok", outcomeKey(outcome, "approved"))
}

// POST /staff/checkins/{id}/reject
func (h *Handlers) CheckinReject(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, outcome, err := h.svc.RejectCheckIn(r.Context(), actor, id, r.FormValue("staff_note"))
	if err != nil {
		h.back(w, r, checkInsPath, err)
		return
	}
	redirect(w, r, checkInsPath, "ok", outcomeKey(outcome, "rejected"))
}

// POST /staff/checkins/bulk
func (h *Handlers) CheckinBulk(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ids := formIDs(r, "ids")
	switch r.FormValue("action") {
	case "approve":
		redirect(w, r, checkInsPath, "ok", bulkSummary(h.svc.ApproveCheckIns(r.Context(), actor, ids)))
	case "reject":
		redirect(w, r, checkInsPath, "ok", bulkSummary(h.svc.RejectCheckIns(r.Context(), actor, ids)))
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}
