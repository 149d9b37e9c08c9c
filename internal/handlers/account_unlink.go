package handlers

import (
	"net/http"
)

// POST /me/unlink-telegram
func (h *Handlers) UnlinkTelegram(w http.ResponseWriter, r *http.Request) {
	id, m, ok := h.currentMember(w, r)
	if !ok {
		return
	}
	n, err := h.svc.UnlinkTelegram(r.Context(), id, m.ID)
	if err != nil {
		h.back(w, r, "/me", err)
		return
	}
	h.logger.Info("telegram unlinked", "member_id", m.ID, "chats", n)
	http.Redirect(w, r, "/me?ok=unlinked", http.StatusSeeOther)
}
