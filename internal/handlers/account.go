package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

// ---------- Login / logout ----------

// GET /login
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.tmpl", map[string]any{
		"Title": "Log in",
		"Next":  r.URL.Query().Get("next"),
		"Email": r.URL.Query().Get("email"),
	})
}

// POST /login
func (h *Handlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	id, err := h.svc.Authenticate(r.Context(), email, r.FormValue("password"))
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodePermissionDenied {
			h.logger.Info("login failed", "email", email)
			http.Redirect(w, r, "/login?error=bad_login&email="+url.QueryEscape(email), http.StatusSeeOther)
			return
		}
		h.fail(w, r, err)
		return
	}
	if err := h.startSession(w, r, id); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, nextPage(r.FormValue("next"), id), http.StatusSeeOther)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, id services.Identity) error {
	token, exp, err := h.sessions.Issue(id)
	if err != nil {
		return err
	}
	setSessionCookie(w, r, token, exp)
	return nil
}

// nextPage only follows local paths.
func nextPage(next string, id services.Identity) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}
	if id.IsStaff() {
		return "/staff/members"
	}
	return "/me"
}

// POST /logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ---------- Registration ----------

// GET /register
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, services.RegistrationInput{MembershipTier: models.TierLesson}, nil)
}

func (h *Handlers) renderRegister(w http.ResponseWriter, r *http.Request, in services.RegistrationInput, flash *Flash) {
	data := map[string]any{
		"Title": "Register",
		"Form":  in,
		"Tiers": models.MembershipTiers,
	}
	if flash != nil {
		data["Flash"] = flash
	}
	h.render(w, r, "register.tmpl", data)
}

// POST /register creates the account and signs the new member in so the
// document flow can start straight away.
func (h *Handlers) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := services.RegistrationInput{
		Email:          r.FormValue("email"),
		Password:       r.FormValue("password"),
		FirstName:      r.FormValue("first_name"),
		LastName:       r.FormValue("last_name"),
		ParentName:     r.FormValue("parent_name"),
		Phone:          r.FormValue("phone"),
		MembershipTier: models.MembershipTier(r.FormValue("membership_tier")),
	}
	m, err := h.svc.RegisterMember(r.Context(), in)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeValidation {
			in.Password = ""
			w.WriteHeader(http.StatusBadRequest)
			h.renderRegister(w, r, in, &Flash{Kind: "error", Text: err.Error()})
			return
		}
		h.fail(w, r, err)
		return
	}
	email, _ := services.NormEmail(in.Email)
	id := services.Identity{UserID: *m.UserID, Email: email, Role: models.RoleMember}
	if err := h.startSession(w, r, id); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/me?ok=registered", http.StatusSeeOther)
}
