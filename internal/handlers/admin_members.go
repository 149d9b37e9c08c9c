package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

const membersPerPage = 50

var memberStatuses = []models.MemberStatus{
	models.MemberPending, models.MemberApproved, models.MemberDisabled, models.MemberMerged,
}

func memberFilterFromQuery(q url.Values) (services.MemberFilter, int) {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	return services.MemberFilter{
		Query:  strings.TrimSpace(q.Get("q")),
		Status: models.MemberStatus(q.Get("status")),
		Tier:   models.MembershipTier(q.Get("tier")),
		Limit:  membersPerPage,
		Offset: (page - 1) * membersPerPage,
	}, page
}

func pageQuery(q url.Values, page int) string {
	out := url.Values{}
	for _, k := range []string{"q", "status", "tier"} {
		if v := q.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	if page > 1 {
		out.Set("page", strconv.Itoa(page))
	}
	return out.Encode()
}

// GET /staff/members
func (h *Handlers) StaffMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, page := memberFilterFromQuery(q)
	members, total, err := h.svc.SearchMembers(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	counts, err := h.svc.MemberCounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var prev, next string
	if page > 1 {
		prev = pageQuery(q, page-1)
		if prev == "" {
			prev = "page=1"
		}
	}
	if int64(page*membersPerPage) < total {
		next = pageQuery(q, page+1)
	}
	h.render(w, r, "staff_members.tmpl", map[string]any{
		"Title":    "Members",
		"Members":  members,
		"Total":    total,
		"Counts":   counts,
		"Filter":   f,
		"Statuses": memberStatuses,
		"Tiers":    models.MembershipTiers,
		"Query":    pageQuery(q, 0),
		"PrevPage": prev,
		"NextPage": next,
	})
}

// GET /staff/members/{id}
func (h *Handlers) StaffMember(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	m, err := h.svc.Member(ctx, memberID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if m.UserID != nil {
		if u, err := h.svc.User(ctx, *m.UserID); err == nil {
			m.User = &u
		}
	}
	signed, err := h.svc.SignedDocuments(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outstanding, err := h.svc.OutstandingDocuments(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names, err := h.documentNames(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	checkIns, err := h.svc.CheckInsForMember(ctx, m.ID, 50)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	goals, err := h.svc.GoalsForMember(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.svc.NotesForMember(ctx, id, m.ID, 100)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	staff, err := h.svc.StaffUsers(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chats, err := h.svc.TelegramChats(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	audit, err := h.svc.ListAudit(ctx, services.AuditFilter{MemberID: &m.ID, Limit: 100})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_member.tmpl", map[string]any{
		"Title":          m.FullName(),
		"Member":         m,
		"Tiers":          models.MembershipTiers,
		"Signed":         signed,
		"Outstanding":    outstanding,
		"DocNames":       names,
		"CheckIns":       checkIns,
		"CheckInTypes":   models.CheckInTypes,
		"Staff":          staff,
		"Goals":          goals,
		"GoalStatuses":   []models.GoalStatus{models.GoalNotStarted, models.GoalInProgress, models.GoalComplete},
		"Notes":          notes,
		"NoteCategories": models.NoteCategories,
		"Chats":          chats,
		"Audit":          audit,
	})
}

func memberPage(id string) string { return "/staff/members/" + id }

// outcomeKey picks the flash for an applied or ignored transition.
func outcomeKey(o services.Outcome, applied string) string {
	if o == services.NoOpIgnored {
		return "ignored"
	}
	return applied
}

// POST /staff/members/{id}/approve
func (h *Handlers) StaffApproveMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.svc.ApproveMember, "approved")
}

// POST /staff/members/{id}/disable
func (h *Handlers) StaffDisableMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.svc.DisableMember, "disabled")
}

type memberTransitionFunc func(ctx context.Context, actor services.Identity, id uuid.UUID) (models.Member, services.Outcome, error)

func (h *Handlers) memberTransition(w http.ResponseWriter, r *http.Request, apply memberTransitionFunc, applied string) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to := memberPage(memberID.String())
	_, outcome, err := apply(r.Context(), id, memberID)
	if err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", outcomeKey(outcome, applied))
}

// POST /staff/members/bulk
func (h *Handlers) StaffBulkMembers(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ids := formIDs(r, "ids")
	var results []services.BulkResult
	switch r.FormValue("action") {
	case "approve":
		results = h.svc.ApproveMembers(r.Context(), id, ids)
	case "disable":
		results = h.svc.DisableMembers(r.Context(), id, ids)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	redirect(w, r, "/staff/members", "ok", bulkSummary(results))
}

// bulkSummary reads e.g. "3 applied, 1 ignored, 1 failed".
func bulkSummary(results []services.BulkResult) string {
	var applied, ignored, failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case res.Outcome == services.NoOpIgnored:
			ignored++
		default:
			applied++
		}
	}
	return fmt.Sprintf("%d applied, %d ignored, %d failed", applied, ignored, failed)
}

// POST /staff/members/{id}/merge
func (h *Handlers) StaffMergeMember(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	sourceID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := memberPage(sourceID.String())
	target := optionalID(r.FormValue("target_id"))
	if target == nil {
		redirect(w, r, to, "error", "enter the id of the member to merge into")
		return
	}
	if _, err := h.svc.MergeMember(r.Context(), id, sourceID, *target); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, memberPage(target.String()), "ok", "merged")
}

// POST /staff/members/{id}/membership
func (h *Handlers) StaffUpdateMembership(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := memberPage(memberID.String())
	tier := models.MembershipTier(r.FormValue("membership_tier"))
	if _, err := h.svc.UpdateMembership(r.Context(), id, memberID, tier, r.FormValue("certification_level")); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "saved")
}

// POST /staff/members/{id}/recompute
func (h *Handlers) StaffRecomputeMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to := memberPage(memberID.String())
	if _, err := h.svc.RecomputeAttendance(r.Context(), memberID, h.svc.Now()); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "recomputed")
}

// POST /staff/members/{id}/notes
func (h *Handlers) StaffAddNote(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := memberPage(memberID.String())
	_, err = h.svc.AddNote(r.Context(), id, memberID, services.NoteInput{
		Category:   models.NoteCategory(r.FormValue("category")),
		Visibility: models.NoteVisibility(r.FormValue("visibility")),
		Content:    r.FormValue("content"),
	})
	if err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "note_added")
}

// POST /staff/members/{id}/checkins records a check-in staff witnessed.
func (h *Handlers) StaffRecordCheckIn(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := memberPage(memberID.String())
	_, err = h.svc.RecordCheckIn(r.Context(), id, memberID, services.CheckInInput{
		Type: models.CheckInType(r.FormValue("type")),
	}, optionalID(r.FormValue("instructor_id")), r.FormValue("staff_note"))
	if err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "checked_in")
}

// POST /staff/members/{id}/goals
func (h *Handlers) StaffCreateGoal(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	memberID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := memberPage(memberID.String())
	if _, err := h.svc.CreateGoal(r.Context(), id, memberID, h.goalInput(r)); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "goal_created")
}

// goalInput reads title, description and an optional yyyy-mm-dd target date
// in the display timezone.
func (h *Handlers) goalInput(r *http.Request) services.GoalInput {
	in := services.GoalInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if d := strings.TrimSpace(r.FormValue("target_date")); d != "" {
		if t, err := time.ParseInLocation("2006-01-02", d, h.loc); err == nil {
			t = t.UTC()
			in.TargetDate = &t
		}
	}
	return in
}
