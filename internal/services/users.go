package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

const minPasswordLen = 8

type RegistrationInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	ParentName     string
	Phone          string
	MembershipTier models.MembershipTier
}

func (in *RegistrationInput) normalize() error {
	email, ok := NormEmail(in.Email)
	if !ok {
		return apperrors.Validation("email", "enter a valid email address")
	}
	in.Email = email
	if len(in.Password) < minPasswordLen {
		return apperrors.Validation("password", "password must be at least 8 characters")
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.ParentName = strings.TrimSpace(in.ParentName)
	if in.FirstName == "" {
		return apperrors.Validation("first_name", "first name is required")
	}
	if in.LastName == "" {
		return apperrors.Validation("last_name", "last name is required")
	}
	if strings.TrimSpace(in.Phone) != "" {
		p := NormPhone(in.Phone)
		if p == "" {
			return apperrors.Validation("phone", "enter a valid phone number")
		}
		in.Phone = p
	}
	if in.MembershipTier == "" {
		in.MembershipTier = models.TierLesson
	}
	if !in.MembershipTier.Valid() {
		return apperrors.Validation("membership_tier", "unknown membership tier")
	}
	return nil
}

// RegisterMember creates the login and a Pending member profile together.
func (s *Service) RegisterMember(ctx context.Context, in RegistrationInput) (models.Member, error) {
	if err := in.normalize(); err != nil {
		return models.Member{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return models.Member{}, err
	}
	var member models.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := models.User{Email: in.Email, PasswordHash: string(hash), Role: models.RoleMember, IsActive: true}
		if err := createUser(tx, &user); err != nil {
			return err
		}
		member = models.Member{
			UserID:         &user.ID,
			FirstName:      in.FirstName,
			LastName:       in.LastName,
			ParentName:     in.ParentName,
			Phone:          in.Phone,
			MembershipTier: in.MembershipTier,
			Status:         models.MemberPending,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		return LogTx(tx, ActionMemberRegistration, &user.ID, &member.ID, map[string]any{
			"email":           user.Email,
			"membership_tier": string(member.MembershipTier),
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	s.metrics.auditEntries.Inc()
	s.logger.Info("member registered", "member_id", member.ID)
	return member, nil
}

func createUser(tx *gorm.DB, u *models.User) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperrors.Validation("email", "an account with this email already exists")
	}
	if err := tx.Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.Validation("email", "an account with this email already exists")
		}
		return err
	}
	return nil
}

// CreateUser adds a login without a member profile (staff accounts).
func (s *Service) CreateUser(ctx context.Context, email, password string, role models.Role) (models.User, error) {
	e, ok := NormEmail(email)
	if !ok {
		return models.User{}, apperrors.Validation("email", "enter a valid email address")
	}
	if len(password) < minPasswordLen {
		return models.User{}, apperrors.Validation("password", "password must be at least 8 characters")
	}
	if !role.Valid() {
		return models.User{}, apperrors.Validation("role", "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{Email: e, PasswordHash: string(hash), Role: role, IsActive: true}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createUser(tx, &u)
	})
	return u, err
}

var errBadLogin = apperrors.New(apperrors.CodePermissionDenied, "invalid email or password")

// Authenticate checks a password and returns the identity to put in a session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	e, _ := NormEmail(email)
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", e).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, errBadLogin
	}
	if err != nil {
		return Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil || !u.IsActive {
		return Identity{}, errBadLogin
	}
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (s *Service) User(ctx context.Context, id uuid.UUID) (models.User, error) {
	return first[models.User](s.db.WithContext(ctx), "user", id)
}

// StaffUsers lists active staff and admins, for instructor pickers.
func (s *Service) StaffUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).
		Where("role IN ? AND is_active = ?", []models.Role{models.RoleStaff, models.RoleAdmin}, true).
		Order("email").Find(&out).Error
	return out, err
}
