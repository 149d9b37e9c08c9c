package web

import (
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doublec/ranchportal/internal/handlers"
)

// Router wires every page. metrics may be nil to leave /metrics unmounted.
func Router(h *handlers.Handlers, metrics prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.LoadIdentity)

	// Public pages
	r.Get("/", h.Home)
	r.Get("/healthz", h.Health)
	r.Post("/tg/webhook", h.TelegramWebhook)
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	}

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.LoginSubmit)
	r.Post("/logout", h.Logout)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.RegisterSubmit)

	// QR image
	r.Get("/qr/members/{id}.png", h.QR)

	// Member self-service
	r.Route("/me", func(mr chi.Router) {
		mr.Use(handlers.RequireUser)
		mr.Get("/", h.Dashboard)
		mr.Get("/sign", h.SignForm)
		mr.Post("/sign/{id}", h.SignSubmit)
		mr.Get("/documents", h.MyDocuments)
		mr.Get("/documents/{id}", h.MySignedDocument)
		mr.Post("/checkins", h.MyCheckIn)
		mr.Post("/goal-requests", h.MyGoalRequest)
		mr.Post("/goals/{id}/updates", h.MyGoalUpdate)
		mr.Post("/linkcode", h.GenerateLinkCode)
		mr.Post("/unlink-telegram", h.UnlinkTelegram)
	})

	// --- Staff routes ---
	r.Route("/staff", func(sr chi.Router) {
		sr.Use(handlers.RequireStaff)

		// Members
		sr.Get("/members", h.StaffMembers)
		sr.Get("/members.csv", h.AdminMembersCSV)
		sr.Post("/members/bulk", h.StaffBulkMembers)
		sr.Get("/members/{id}", h.StaffMember)
		sr.Post("/members/{id}/approve", h.StaffApproveMember)
		sr.Post("/members/{id}/disable", h.StaffDisableMember)
		sr.Post("/members/{id}/merge", h.StaffMergeMember)
		sr.Post("/members/{id}/membership", h.StaffUpdateMembership)
		sr.Post("/members/{id}/recompute", h.StaffRecomputeMember)
		sr.Post("/members/{id}/notes", h.StaffAddNote)
		sr.Post("/members/{id}/checkins", h.StaffRecordCheckIn)
		sr.Post("/members/{id}/goals", h.StaffCreateGoal)

		// Check-ins
		sr.Get("/checkins", h.PendingCheckIns)
		sr.Post("/checkins/bulk", h.CheckinBulk)
		sr.Get("/checkins/{id}", h.CheckinForm)
		sr.Post("/checkins/{id}/approve", h.CheckinConfirm)
		sr.Post("/checkins/{id}/reject", h.CheckinReject)

		// Goals
		sr.Get("/goal-requests", h.AdminGoalRequests)
		sr.Post("/goal-requests/{id}/process", h.AdminProcessGoalRequest)
		sr.Post("/goals/{id}/status", h.AdminGoalStatus)
		sr.Post("/goals/{id}/updates", h.AdminGoalUpdate)

		// Documents
		sr.Get("/documents", h.AdminDocuments)
		sr.Post("/documents", h.AdminPublishDocument)
		sr.Get("/documents/{id}/edit", h.AdminDocumentEditForm)
		sr.Post("/documents/{id}", h.AdminUpdateDocument)
		sr.Post("/documents/{id}/flags", h.AdminDocumentFlags)
		sr.Get("/signed/{id}", h.AdminSignedDocument)

		sr.Get("/audit", h.AdminAudit)
	})

	// --- Admin routes ---
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(handlers.RequireAdmin)
		ar.Get("/users", h.AdminUsers)
		ar.Post("/users", h.AdminCreateUser)
		ar.Post("/attendance/recompute", h.AdminRecomputeAttendance)
	})

	return r
}

// MustParseTemplates loads the shared layouts and partials. Pages are parsed
// per request on a clone.
func MustParseTemplates(fsys fs.FS, loc *time.Location) *template.Template {
	p := template.New("").Funcs(handlers.TemplateFuncs(loc))
	p = template.Must(p.ParseFS(fsys, "layouts/*.tmpl"))
	p = template.Must(p.ParseFS(fsys, "partials/*.tmpl"))
	return p
}
