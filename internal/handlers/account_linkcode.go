package handlers

import (
	"net/http"
)

// POST /me/linkcode
func (h *Handlers) GenerateLinkCode(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	lc, err := h.svc.CreateLinkCode(r.Context(), id, m.ID)
	if err != nil {
		h.back(w, r, "/me", err)
		return
	}
	http.Redirect(w, r, "/me?link_code="+lc.Code, http.StatusSeeOther)
}
