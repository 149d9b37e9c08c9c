// internal/handlers/my.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

// currentMember resolves the member profile of the logged-in user. Staff
// accounts have none and are sent to the staff pages.
func (h *Handlers) currentMember(w http.ResponseWriter, r *http.Request) (services.Identity, models.Member, bool) {
	id, _ := IdentityFrom(r.Context())
	m, ok, err := h.svc.MemberForUser(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return id, m, false
	}
	if !ok {
		if id.IsStaff() {
			http.Redirect(w, r, "/staff/members", http.StatusSeeOther)
		} else {
			http.NotFound(w, r)
		}
		return id, m, false
	}
	return id, m, true
}

// documentNames maps document ids to "Name vN" for signature listings.
func (h *Handlers) documentNames(r *http.Request) (map[uuid.UUID]string, error) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Name + " v" + strconv.Itoa(d.Version)
	}
	return out, nil
}

// GET /me
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	progress, err := h.svc.SigningProgress(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next, hasNext, err := h.svc.NextDocumentToSign(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	checkIns, err := h.svc.CheckInsForMember(ctx, m.ID, 20)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	goals, err := h.svc.ActiveGoals(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.svc.NotesForMember(ctx, id, m.ID, 20)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chats, err := h.svc.TelegramChats(ctx, m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "dashboard.tmpl", map[string]any{
		"Title":        "My dashboard",
		"Member":       m,
		"Progress":     progress,
		"NextDoc":      next,
		"HasNext":      hasNext,
		"CheckIns":     checkIns,
		"CheckInTypes": models.CheckInTypes,
		"Goals":        goals,
		"Notes":        notes,
		"Chats":        chats,
		"LinkCode":     r.URL.Query().Get("link_code"),
	})
}

// GET /me/sign shows the next outstanding document.
func (h *Handlers) SignForm(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	doc, found, err := h.svc.NextDocumentToSign(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		http.Redirect(w, r, "/me?ok=all_signed", http.StatusSeeOther)
		return
	}
	progress, err := h.svc.SigningProgress(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	signedFor := ""
	if m.ParentName != "" {
		signedFor = m.FullName()
	}
	h.render(w, r, "sign.tmpl", map[string]any{
		"Title":     "Sign " + doc.Name,
		"Document":  doc,
		"Progress":  progress,
		"SignedFor": signedFor,
	})
}

// POST /me/sign/{id}
func (h *Handlers) SignSubmit(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	docID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err = h.svc.Sign(r.Context(), services.SignInput{
		MemberID:      m.ID,
		DocumentID:    docID,
		Signer:        id,
		SignedName:    r.FormValue("signed_name"),
		SignedForName: strings.TrimSpace(r.FormValue("signed_for_name")),
		Relationship:  strings.TrimSpace(r.FormValue("relationship")),
		Agreed:        checked(r, "agreed"),
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		h.back(w, r, "/me/sign", err)
		return
	}
	done, err := h.svc.HasSignedAllRequired(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if done {
		http.Redirect(w, r, "/me?ok=all_signed", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/me/sign?ok=signed", http.StatusSeeOther)
}

// GET /me/documents
func (h *Handlers) MyDocuments(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	signed, err := h.svc.SignedDocuments(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outstanding, err := h.svc.OutstandingDocuments(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names, err := h.documentNames(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "my_documents.tmpl", map[string]any{
		"Title":       "My documents",
		"Signed":      signed,
		"Outstanding": outstanding,
		"DocNames":    names,
		"Base":        "/me/documents",
	})
}

// GET /me/documents/{id}
func (h *Handlers) MySignedDocument(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	sdID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sd, err := h.svc.SignedDocument(r.Context(), sdID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sd.MemberID != m.ID {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "signed_document.tmpl", map[string]any{"Title": "Signed document", "Signed": sd})
}

// POST /me/checkins
func (h *Handlers) MyCheckIn(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err := h.svc.RequestCheckIn(r.Context(), id, m.ID, services.CheckInInput{
		Type:        models.CheckInType(r.FormValue("type")),
		StudentNote: r.FormValue("student_note"),
	})
	if err != nil {
		h.back(w, r, "/me", err)
		return
	}
	http.Redirect(w, r, "/me?ok=checkin_sent", http.StatusSeeOther)
}

// POST /me/goal-requests
func (h *Handlers) MyGoalRequest(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.svc.SubmitGoalRequest(r.Context(), id, m.ID, r.FormValue("content"), r.FormValue("timeframe")); err != nil {
		h.back(w, r, "/me", err)
		return
	}
	http.Redirect(w, r, "/me?ok=goal_requested", http.StatusSeeOther)
}

// POST /me/goals/{id}/updates
func (h *Handlers) MyGoalUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	goalID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.svc.AddGoalUpdate(r.Context(), id, goalID, r.FormValue("note")); err != nil {
		h.back(w, r, "/me", err)
		return
	}
	http.Redirect(w, r, "/me?ok=saved", http.StatusSeeOther)
}
