package services

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

// Service is the portal core: document compliance, state transitions and
// the audit trail, all over one gorm handle.
type Service struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *serviceMetrics
	now     func() time.Time

	bcryptCost int
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = func() time.Time { return now().UTC() } }
}

// WithPromRegistry registers the service metrics. Without it the collectors
// exist but are not exported.
func WithPromRegistry(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = newServiceMetrics(reg) }
}

// WithBcryptCost lowers hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func New(gdb *gorm.DB, opts ...Option) *Service {
	s := &Service{db: gdb, now: utcNow, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.metrics == nil {
		s.metrics = newServiceMetrics(nil)
	}
	return s
}

func (s *Service) DB() *gorm.DB { return s.db }

// Timestamps are stored as text in sqlite, so everything is kept in UTC for
// range comparisons to hold.
func utcNow() time.Time { return time.Now().UTC() }

func (s *Service) Now() time.Time { return s.now().UTC() }

// Identity is the authenticated actor supplied by the session layer.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

func (i Identity) IsStaff() bool { return i.Role.IsStaff() }

func (i Identity) IsAdmin() bool { return i.Role.IsAdmin() }

// SystemIdentity is used by CLI commands and background jobs.
var SystemIdentity = Identity{Role: models.RoleAdmin, Email: "system"}

// actorRef is nil for the system identity so audit rows read "System".
func (i Identity) actorRef() *uuid.UUID {
	if i.UserID == uuid.Nil {
		return nil
	}
	id := i.UserID
	return &id
}

// Outcome distinguishes applied transitions from ignored ones.
type Outcome int

const (
	Applied Outcome = iota
	// NoOpIgnored: the record was not in a state the transition applies to.
	NoOpIgnored
)

func (o Outcome) String() string {
	if o == NoOpIgnored {
		return "ignored"
	}
	return "applied"
}

// BulkResult reports one record of a batch operation.
type BulkResult struct {
	ID      uuid.UUID
	Outcome Outcome
	Err     error
}

func requireStaff(actor Identity) error {
	if !actor.IsStaff() {
		return apperrors.New(apperrors.CodePermissionDenied, "staff role required")
	}
	return nil
}

func notFound(what string, id uuid.UUID) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, what+" not found",
		map[string]string{"ID": id.String()})
}

// first loads a row by primary key, mapping a miss to NotFound.
func first[T any](tx *gorm.DB, what string, id uuid.UUID) (T, error) {
	var out T
	err := tx.First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, notFound(what, id)
	}
	return out, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") && strings.Contains(msg, "constraint")
}
