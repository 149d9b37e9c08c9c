package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

type NoteInput struct {
	Category   models.NoteCategory
	Visibility models.NoteVisibility
	Content    string
}

func (in NoteInput) validate() error {
	if !in.Category.Valid() {
		return apperrors.Validation("category", "unknown note category")
	}
	if in.Visibility != models.NoteStudentVisible && in.Visibility != models.NoteStaffOnly {
		return apperrors.Validation("visibility", "unknown visibility")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperrors.Validation("content", "note is empty")
	}
	return nil
}

// AddNote records a staff note about a member.
func (s *Service) AddNote(ctx context.Context, actor Identity, memberID uuid.UUID, in NoteInput) (models.Note, error) {
	if err := requireStaff(actor); err != nil {
		return models.Note{}, err
	}
	if err := in.validate(); err != nil {
		return models.Note{}, err
	}
	var n models.Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[models.Member](tx, "member", memberID); err != nil {
			return err
		}
		n = models.Note{
			MemberID:   memberID,
			AuthorID:   actor.UserID,
			Category:   in.Category,
			Visibility: in.Visibility,
			Content:    strings.TrimSpace(in.Content),
		}
		if err := tx.Create(&n).Error; err != nil {
			return err
		}
		return LogTx(tx, ActionNoteAdded, actor.actorRef(), &memberID, map[string]any{
			"note_id":    n.ID.String(),
			"category":   string(n.Category),
			"visibility": string(n.Visibility),
		})
	})
	if err != nil {
		return models.Note{}, err
	}
	s.metrics.auditEntries.Inc()
	return n, nil
}

// NotesForMember returns notes newest first. Viewers without a staff role
// only get StudentVisible notes, and only for their own member.
func (s *Service) NotesForMember(ctx context.Context, viewer Identity, memberID uuid.UUID, limit int) ([]models.Note, error) {
	tx := s.db.WithContext(ctx)
	m, err := first[models.Member](tx, "member", memberID)
	if err != nil {
		return nil, err
	}
	if !ownsMember(viewer, m) {
		return nil, apperrors.New(apperrors.CodePermissionDenied, "cannot read another member's notes")
	}
	q := tx.Where("member_id = ?", memberID)
	if !viewer.IsStaff() {
		q = q.Where("visibility = ?", models.NoteStudentVisible)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []models.Note
	err = q.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}
