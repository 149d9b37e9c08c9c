package handlers

import (
	"net/http"
)

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home.tmpl", map[string]any{"Title": "Ranch Portal"})
}

// Health pings the database so a wedged connection fails the probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.svc.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
