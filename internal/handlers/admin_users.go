package handlers

import (
	"net/http"

	"github.com/doublec/ranchportal/internal/models"
)

// GET /admin/users
func (h *Handlers) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.StaffUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "admin_users.tmpl", map[string]any{
		"Title": "Staff users",
		"Users": users,
	})
}

// POST /admin/users
func (h *Handlers) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role := models.Role(r.FormValue("role"))
	if !role.IsStaff() {
		redirect(w, r, "/admin/users", "error", "role must be staff or admin")
		return
	}
	u, err := h.svc.CreateUser(r.Context(), r.FormValue("email"), r.FormValue("password"), role)
	if err != nil {
		h.back(w, r, "/admin/users", err)
		return
	}
	h.logger.Info("user created", "user_id", u.ID, "role", u.Role)
	redirect(w, r, "/admin/users", "ok", "user_created")
}

// POST /admin/attendance/recompute
func (h *Handlers) AdminRecomputeAttendance(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.RecomputeAllAttendance(r.Context(), h.svc.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("attendance recomputed", "members", sum.Members, "drifted", sum.Drifted)
	redirect(w, r, "/admin/users", "ok", "recomputed")
}
