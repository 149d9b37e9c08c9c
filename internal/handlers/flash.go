// internal/handlers/flash.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/doublec/ranchportal/internal/apperrors"
)

type Flash struct {
	Kind string // "ok" or "error"
	Text string
}

var okText = map[string]string{
	"saved":          "Saved.",
	"registered":     "Welcome! Please sign the required documents.",
	"signed":         "Document signed.",
	"all_signed":     "All documents signed.",
	"checkin_sent":   "Check-in requested. Staff will confirm it shortly.",
	"checked_in":     "Check-in recorded.",
	"approved":       "Approved.",
	"rejected":       "Rejected.",
	"disabled":       "Disabled.",
	"merged":         "Member merged.",
	"ignored":        "Nothing to do: already decided.",
	"bulk_done":      "Batch processed.",
	"published":      "Document published.",
	"goal_requested": "Goal request sent.",
	"goal_created":   "Goal created.",
	"note_added":     "Note added.",
	"user_created":   "User created.",
	"recomputed":     "Attendance recomputed.",
	"linked":         "Telegram linked.",
	"unlinked":       "Telegram has been unlinked.",
}

var errText = map[string]string{
	"bad_login":      "Invalid email or password.",
	"already_signed": "That document is already signed.",
	"not_found":      "Not found.",
}

// errKey turns a domain error into a flash key, falling back to its message.
func errKey(err error) string {
	var e *apperrors.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Code {
	case apperrors.CodeDuplicateSignature:
		return "already_signed"
	case apperrors.CodeNotFound:
		return "not_found"
	}
	if e.Message != "" {
		return e.Message
	}
	return strings.ToLower(string(e.Code))
}

// MakeFlash reads query params and/or explicit strings to build a Flash.
// Supports both new (?ok= / ?error=) and legacy (?msg= / ?err=) parameters.
func MakeFlash(r *http.Request, errStr, msgStr string) *Flash {
	q := r.URL.Query()

	errRaw := strings.TrimSpace(q.Get("error"))
	if errRaw == "" {
		errRaw = strings.TrimSpace(q.Get("err"))
	}
	okRaw := strings.TrimSpace(q.Get("ok"))
	if okRaw == "" {
		okRaw = strings.TrimSpace(q.Get("msg"))
	}

	if errRaw != "" {
		if t, ok := errText[strings.ToLower(errRaw)]; ok {
			return &Flash{Kind: "error", Text: t}
		}
		return &Flash{Kind: "error", Text: errRaw}
	}
	if okRaw != "" {
		if t, ok := okText[strings.ToLower(okRaw)]; ok {
			return &Flash{Kind: "ok", Text: t}
		}
		return &Flash{Kind: "ok", Text: okRaw}
	}

	// Fallback to handler-provided messages
	if errStr != "" {
		return &Flash{Kind: "error", Text: errStr}
	}
	if msgStr != "" {
		return &Flash{Kind: "ok", Text: msgStr}
	}
	return nil
}
