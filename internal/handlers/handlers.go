// Package handlers implements the HTML pages, CSV export, QR cards and the
// Telegram webhook on top of the services package.
package handlers

import (
	"bytes"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/bot"
	"github.com/doublec/ranchportal/internal/services"
)

// Options carries the collaborators the handlers need.
type Options struct {
	Service       *services.Service
	Sessions      *Sessions
	Templates     *template.Template // layouts and partials
	Pages         fs.FS              // must contain pages/*.tmpl
	Bot           *bot.Bot           // nil when Telegram is disabled
	Logger        *slog.Logger
	Location      *time.Location
	PublicURL     string
	WebhookSecret string
}

type Handlers struct {
	svc           *services.Service
	sessions      *Sessions
	tmpl          *template.Template
	pages         fs.FS
	bot           *bot.Bot
	logger        *slog.Logger
	loc           *time.Location
	publicURL     string
	webhookSecret string
}

func New(o Options) *Handlers {
	h := &Handlers{
		svc:           o.Service,
		sessions:      o.Sessions,
		tmpl:          o.Templates,
		pages:         o.Pages,
		bot:           o.Bot,
		logger:        o.Logger,
		loc:           o.Location,
		publicURL:     strings.TrimRight(o.PublicURL, "/"),
		webhookSecret: o.WebhookSecret,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h.logger = h.logger.With("component", "web")
	if h.loc == nil {
		h.loc = time.UTC
	}
	return h
}

// render clones the shared layout, adds the page and executes it into a
// buffer so template errors never produce half a page.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	view, err := h.tmpl.Clone()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := view.ParseFS(h.pages, "pages/"+page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if id, ok := IdentityFrom(r.Context()); ok {
		data["Identity"] = &id
	}
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = MakeFlash(r, "", "")
	}
	var buf bytes.Buffer
	if err := view.ExecuteTemplate(&buf, page, data); err != nil {
		h.logger.Error("render failed", "page", page, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// fail answers with the status matching the error code. Unknown errors are
// logged and reported as a bare 500.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.CodeOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// back redirects to a page with an ?error= flash built from a domain error.
// Infrastructure errors still end in a 500.
func (h *Handlers) back(w http.ResponseWriter, r *http.Request, to string, err error) {
	if apperrors.CodeOf(err).HTTPStatus() >= http.StatusInternalServerError {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, to, "error", errKey(err))
}

func redirect(w http.ResponseWriter, r *http.Request, to, kind, key string) {
	sep := "?"
	if strings.Contains(to, "?") {
		sep = "&"
	}
	http.Redirect(w, r, to+sep+url.Values{kind: {key}}.Encode(), http.StatusSeeOther)
}

func urlID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.New(apperrors.CodeNotFound, "not found")
	}
	return id, nil
}

// formIDs parses every value of a multi-valued form field, skipping junk.
func formIDs(r *http.Request, name string) []uuid.UUID {
	var out []uuid.UUID
	for _, v := range r.Form[name] {
		if id, err := uuid.Parse(strings.TrimSpace(v)); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// optionalID is nil for an empty or malformed value.
func optionalID(v string) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &id
}

// clientIP strips the port chi's RealIP leaves on direct connections.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func checked(r *http.Request, name string) bool {
	return r.FormValue(name) != ""
}
