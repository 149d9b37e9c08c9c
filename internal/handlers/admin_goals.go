package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/doublec/ranchportal/internal/models"
)

const goalRequestsPath = "/staff/goal-requests"

// GET /staff/goal-requests
func (h *Handlers) AdminGoalRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.GoalRequests(r.Context(), models.GoalRequestOpen, 200)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names := map[uuid.UUID]string{}
	for _, gr := range reqs {
		if _, ok := names[gr.MemberID]; ok {
			continue
		}
		m, err := h.svc.Member(r.Context(), gr.MemberID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		names[gr.MemberID] = m.FullName()
	}
	h.render(w, r, "staff_goal_requests.tmpl", map[string]any{
		"Title":       "Goal requests",
		"Requests":    reqs,
		"MemberNames": names,
	})
}

// POST /staff/goal-requests/{id}/process turns a request into a goal.
func (h *Handlers) AdminProcessGoalRequest(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.svc.ProcessGoalRequest(r.Context(), actor, id, h.goalInput(r)); err != nil {
		h.back(w, r, goalRequestsPath, err)
		return
	}
	redirect(w, r, goalRequestsPath, "ok", "goal_created")
}

// POST /staff/goals/{id}/status
func (h *Handlers) AdminGoalStatus(w http.ResponseWriter, r *http.Request) {
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
	g, err := h.svc.SetGoalStatus(r.Context(), actor, id, models.GoalStatus(r.FormValue("status")))
	if err != nil {
		h.back(w, r, "/staff/members", err)
		return
	}
	redirect(w, r, memberPage(g.MemberID.String()), "ok", "saved")
}

// POST /staff/goals/{id}/updates
func (h *Handlers) AdminGoalUpdate(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.svc.AddGoalUpdate(r.Context(), actor, id, r.FormValue("note")); err != nil {
		h.back(w, r, "/staff/members", err)
		return
	}
	to := r.Referer()
	if to == "" {
		to = "/staff/members"
	}
	redirect(w, r, localPath(to), "ok", "saved")
}

// localPath keeps only the path of a same-site referer.
func localPath(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return u.Path
}
