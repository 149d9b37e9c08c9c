package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, ., (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-.\s\(\)]+$`)
	// E.164: + followed by 8..15 digits (no leading 0 after +)
	reE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormPhone normalizes phone numbers to E.164, assuming North America for
// bare 10 digit numbers. Returns "" when the input can't be a phone number.
// Rules: strip separators; 00.. -> +..; 1NXXNXXXXXX -> +1..; NXXNXXXXXX -> +1..
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\n", "", "\r", "", "\t", "")
	s = repl.Replace(s)

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case len(s) == 11 && strings.HasPrefix(s, "1"):
		s = "+" + s
	case len(s) == 10:
		s = "+1" + s
	default:
		s = "+" + s
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// altPhones lists the stored spellings a number might have been saved under.
func altPhones(p string) []string {
	out := []string{}
	n := NormPhone(p)
	raw := strings.TrimSpace(p)
	if n != "" {
		out = append(out, n)
	}
	if raw != n && raw != "" {
		out = append(out, raw)
	}
	if strings.HasPrefix(n, "+1") && len(n) == 12 {
		out = append(out, n[2:]) // 5551234567
		out = append(out, n[1:]) // 15551234567
	}
	return out
}

// digitsExpr strips the usual separators from members.phone in SQL.
const digitsExpr = `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(members.phone,'+',''),' ',''),'-',''),'(',''),')',''),'.','')`

// FindMemberByPhone tries normalized variants, then a digits-only SQL compare.
func (s *Service) FindMemberByPhone(ctx context.Context, phone string) (models.Member, error) {
	var m models.Member
	q := s.db.WithContext(ctx)
	for _, cand := range altPhones(phone) {
		err := q.Where("phone = ?", cand).First(&m).Error
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return m, err
		}
	}
	if d := digitsOnly(phone); d != "" {
		err := q.Where(digitsExpr+" IN ?", []string{d, "1" + d}).First(&m).Error
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return m, err
		}
	}
	return m, apperrors.New(apperrors.CodeNotFound, "no member with that phone")
}
