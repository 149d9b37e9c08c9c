package services

import (
	"net/mail"
	"strings"
)

// NormEmail lowercases and validates an address. Empty input is not ok.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return e, false
	}
	return e, true
}
