package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/doublec/ranchportal/internal/services"
)

// GET /staff/audit?action=...&since=yyyy-mm-dd&member=...
func (h *Handlers) AdminAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.AuditFilter{
		Action:   strings.TrimSpace(q.Get("action")),
		MemberID: optionalID(q.Get("member")),
		ActorID:  optionalID(q.Get("actor")),
		Limit:    200,
	}
	since := strings.TrimSpace(q.Get("since"))
	if since != "" {
		if t, err := time.ParseInLocation("2006-01-02", since, h.loc); err == nil {
			t = t.UTC()
			f.Since = &t
		}
	}
	entries, err := h.svc.ListAudit(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_audit.tmpl", map[string]any{
		"Title":   "Audit log",
		"Entries": entries,
		"Filter":  f,
		"Since":   since,
	})
}
