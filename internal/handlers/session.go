package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

const sessionIssuer = "ranchportal"

// Sessions issues and verifies the HS256 tokens kept in the session cookie.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions uses a random key when secret is empty, which logs everybody
// out on restart.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func (s *Sessions) Issue(id services.Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: id.Email,
		Role:  id.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, exp, nil
}

var errBadSession = errors.New("invalid session")

func (s *Sessions) Parse(token string) (services.Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return services.Identity{}, fmt.Errorf("%w: %v", errBadSession, err)
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.Valid() {
		return services.Identity{}, errBadSession
	}
	return services.Identity{UserID: uid, Email: claims.Email, Role: claims.Role}, nil
}

type identityKey struct{}

func withIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity LoadIdentity attached to the request.
func IdentityFrom(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(services.Identity)
	return id, ok
}

// LoadIdentity reads the session cookie, if any. Bad or expired tokens are
// cleared and the request continues anonymously.
func (h *Handlers) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := h.sessions.Parse(c.Value)
		if err != nil {
			h.logger.Debug("dropping session", "error", err)
			clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func loginRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

// RequireUser is middleware: blocks access unless logged in
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			loginRedirect(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(allowed func(services.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				loginRedirect(w, r)
				return
			}
			if !allowed(id) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var (
	RequireStaff = requireRole(services.Identity.IsStaff)
	RequireAdmin = requireRole(services.Identity.IsAdmin)
)
