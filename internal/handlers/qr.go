package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// QR renders a member card: scanning it opens the staff member page.
// GET /qr/members/{id}.png
func (h *Handlers) QR(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimSuffix(chi.URLParam(r, "id"), ".png"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	// ensure the member exists
	if _, err := h.svc.Member(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	png, err := qrcode.Encode(base+"/staff/members/"+id.String(), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to generate qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
