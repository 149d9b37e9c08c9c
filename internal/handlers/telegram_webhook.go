package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/doublec/ranchportal/internal/bot"
)

const maxUpdateBytes = 1 << 20

// TelegramWebhook accepts updates posted by Telegram. The secret is checked
// against the X-Telegram-Bot-Api-Secret-Token header, or ?secret= for
// webhooks registered without one.
func (h *Handlers) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if h.bot == nil || h.webhookSecret == "" {
		http.NotFound(w, r)
		return
	}
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var up bot.Update
	if err := json.Unmarshal(b, &up); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.bot.Handle(r.Context(), &up)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
