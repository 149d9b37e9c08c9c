package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

// outstandingQuery selects active required documents the member has not signed.
func outstandingQuery(tx *gorm.DB, memberID uuid.UUID) *gorm.DB {
	return tx.Model(&models.Document{}).
		Where("is_active = ? AND is_required = ?", true, true).
		Where("id NOT IN (?)", tx.Model(&models.SignedDocument{}).
			Select("document_id").Where("member_id = ?", memberID))
}

// OutstandingDocuments lists the required documents the member still has to
// sign, ordered by code then newest version.
func (s *Service) OutstandingDocuments(ctx context.Context, memberID uuid.UUID) ([]models.Document, error) {
	tx := s.db.WithContext(ctx)
	if _, err := first[models.Member](tx, "member", memberID); err != nil {
		return nil, err
	}
	var docs []models.Document
	err := outstandingQuery(tx, memberID).
		Order("code asc").Order("version desc").
		Find(&docs).Error
	return docs, err
}

func (s *Service) HasSignedAllRequired(ctx context.Context, memberID uuid.UUID) (bool, error) {
	docs, err := s.OutstandingDocuments(ctx, memberID)
	if err != nil {
		return false, err
	}
	return len(docs) == 0, nil
}

// NextDocumentToSign returns the first outstanding document, if any.
func (s *Service) NextDocumentToSign(ctx context.Context, memberID uuid.UUID) (models.Document, bool, error) {
	docs, err := s.OutstandingDocuments(ctx, memberID)
	if err != nil || len(docs) == 0 {
		return models.Document{}, false, err
	}
	return docs[0], true, nil
}

type SigningProgress struct {
	Total     int
	Remaining int
}

func (p SigningProgress) Signed() int { return p.Total - p.Remaining }

// Step is the 1-based position of the next document, for "2 of 3" labels.
func (p SigningProgress) Step() int { return p.Signed() + 1 }

func (s *Service) SigningProgress(ctx context.Context, memberID uuid.UUID) (SigningProgress, error) {
	docs, err := s.OutstandingDocuments(ctx, memberID)
	if err != nil {
		return SigningProgress{}, err
	}
	var total int64
	err = s.db.WithContext(ctx).Model(&models.Document{}).
		Where("is_active = ? AND is_required = ?", true, true).
		Count(&total).Error
	if err != nil {
		return SigningProgress{}, err
	}
	return SigningProgress{Total: int(total), Remaining: len(docs)}, nil
}

// SignedDocuments lists the member's signatures, newest first.
func (s *Service) SignedDocuments(ctx context.Context, memberID uuid.UUID) ([]models.SignedDocument, error) {
	var out []models.SignedDocument
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("signed_at desc").
		Find(&out).Error
	return out, err
}

func (s *Service) SignedDocument(ctx context.Context, id uuid.UUID) (models.SignedDocument, error) {
	return first[models.SignedDocument](s.db.WithContext(ctx), "signed document", id)
}

func (s *Service) Document(ctx context.Context, id uuid.UUID) (models.Document, error) {
	return first[models.Document](s.db.WithContext(ctx), "document", id)
}

// ListDocuments returns every version of every document for the staff view.
func (s *Service) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var out []models.Document
	err := s.db.WithContext(ctx).Order("code asc").Order("version desc").Find(&out).Error
	return out, err
}

type SignInput struct {
	MemberID      uuid.UUID
	DocumentID    uuid.UUID
	Signer        Identity
	SignedName    string
	SignedForName string
	Relationship  string
	Agreed        bool
	IPAddress     string
	UserAgent     string
}

const (
	maxSignedNameLen   = 200
	maxRelationshipLen = 100
)

func (in SignInput) validate() error {
	if strings.TrimSpace(in.SignedName) == "" {
		return apperrors.Validation("signed_name", "signature name is required")
	}
	if !in.Agreed {
		return apperrors.Validation("agreed", "you must agree to the document terms")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.SignedName)) > maxSignedNameLen {
		return apperrors.Validation("signed_name", "signature name is too long")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.SignedForName)) > maxSignedNameLen {
		return apperrors.Validation("signed_for_name", "signed-for name is too long")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Relationship)) > maxRelationshipLen {
		return apperrors.Validation("relationship", "relationship is too long")
	}
	return nil
}

// Sign records a signature on an outstanding document. The stored snapshot is
// the document text read inside the same transaction.
func (s *Service) Sign(ctx context.Context, in SignInput) (models.SignedDocument, error) {
	if err := in.validate(); err != nil {
		return models.SignedDocument{}, err
	}
	var sd models.SignedDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := first[models.Member](tx, "member", in.MemberID)
		if err != nil {
			return err
		}
		if !in.Signer.IsStaff() && (member.UserID == nil || *member.UserID != in.Signer.UserID) {
			return apperrors.New(apperrors.CodePermissionDenied, "cannot sign for another member")
		}
		if !member.CanParticipate() {
			return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
				"member cannot sign documents", map[string]string{"Status": string(member.Status)})
		}
		doc, err := first[models.Document](tx, "document", in.DocumentID)
		if err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&models.SignedDocument{}).
			Where("document_id = ? AND member_id = ?", doc.ID, member.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperrors.ErrDuplicateSignature
		}
		if !doc.IsActive || !doc.IsRequired {
			return apperrors.Validation("document_id", "document is not open for signing")
		}

		sd = models.SignedDocument{
			DocumentID:       doc.ID,
			MemberID:         member.ID,
			UserID:           in.Signer.UserID,
			SignedName:       strings.TrimSpace(in.SignedName),
			SignedForName:    strings.TrimSpace(in.SignedForName),
			Relationship:     strings.TrimSpace(in.Relationship),
			SignedAt:         s.now(),
			IPAddress:        in.IPAddress,
			UserAgent:        in.UserAgent,
			DocumentSnapshot: doc.Content,
		}
		if err := tx.Create(&sd).Error; err != nil {
			if isUniqueViolation(err) {
				return apperrors.ErrDuplicateSignature
			}
			return err
		}
		return LogTx(tx, ActionDocumentSigned+": "+doc.Name, in.Signer.actorRef(), &member.ID, map[string]any{
			"document_id":     doc.ID.String(),
			"document_code":   doc.Code,
			"version":         doc.Version,
			"signed_name":     sd.SignedName,
			"signed_for_name": sd.SignedForName,
			"relationship":    sd.Relationship,
			"ip":              in.IPAddress,
		})
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateSignature) {
			s.metrics.duplicateSignatures.Inc()
		}
		return models.SignedDocument{}, err
	}
	s.metrics.documentsSigned.Inc()
	s.metrics.auditEntries.Inc()
	s.logger.Info("document signed", "member_id", sd.MemberID, "document_id", sd.DocumentID)
	return sd, nil
}

type DocumentInput struct {
	Code       string
	Name       string
	Content    string
	IsRequired bool
}

func (in DocumentInput) validate() error {
	switch {
	case strings.TrimSpace(in.Code) == "":
		return apperrors.Validation("code", "code is required")
	case len(in.Code) > 50:
		return apperrors.Validation("code", "code is too long")
	case strings.TrimSpace(in.Name) == "":
		return apperrors.Validation("name", "name is required")
	case strings.TrimSpace(in.Content) == "":
		return apperrors.Validation("content", "content is required")
	}
	return nil
}

// PublishDocument adds the next version of a document code and makes it the
// only active version. Existing signatures keep their snapshots.
func (s *Service) PublishDocument(ctx context.Context, actor Identity, in DocumentInput) (models.Document, error) {
	if err := requireStaff(actor); err != nil {
		return models.Document{}, err
	}
	if err := in.validate(); err != nil {
		return models.Document{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev []models.Document
		if err := tx.Where("code = ?", code).Order("version desc").Limit(1).Find(&prev).Error; err != nil {
			return err
		}
		version := 1
		if len(prev) > 0 {
			version = prev[0].Version + 1
		}
		if err := tx.Model(&models.Document{}).
			Where("code = ? AND is_active = ?", code, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		doc = models.Document{
			Code:       code,
			Version:    version,
			Name:       strings.TrimSpace(in.Name),
			Content:    in.Content,
			IsActive:   true,
			IsRequired: in.IsRequired,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		// gorm skips zero-valued fields that carry a default on create.
		if !in.IsRequired {
			if err := tx.Model(&doc).Update("is_required", false).Error; err != nil {
				return err
			}
			doc.IsRequired = false
		}
		return LogTx(tx, ActionDocumentPublished, actor.actorRef(), nil, map[string]any{
			"document_id": doc.ID.String(),
			"code":        doc.Code,
			"version":     doc.Version,
		})
	})
	if err != nil {
		return models.Document{}, err
	}
	s.metrics.auditEntries.Inc()
	return doc, nil
}

// UpdateDocumentContent fixes a document's text in place. Snapshots already
// taken are unaffected.
func (s *Service) UpdateDocumentContent(ctx context.Context, actor Identity, id uuid.UUID, name, content string) (models.Document, error) {
	if err := requireStaff(actor); err != nil {
		return models.Document{}, err
	}
	if strings.TrimSpace(content) == "" {
		return models.Document{}, apperrors.Validation("content", "content is required")
	}
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = first[models.Document](tx, "document", id)
		if err != nil {
			return err
		}
		updates := map[string]any{"content": content}
		if strings.TrimSpace(name) != "" {
			updates["name"] = strings.TrimSpace(name)
		}
		if err := tx.Model(&doc).Updates(updates).Error; err != nil {
			return err
		}
		doc.Content = content
		if n, ok := updates["name"].(string); ok {
			doc.Name = n
		}
		return LogTx(tx, ActionDocumentEdited, actor.actorRef(), nil, map[string]any{
			"document_id": doc.ID.String(),
			"code":        doc.Code,
			"version":     doc.Version,
		})
	})
	if err != nil {
		return models.Document{}, err
	}
	s.metrics.auditEntries.Inc()
	return doc, nil
}

// SetDocumentFlags toggles whether a version is active or required.
func (s *Service) SetDocumentFlags(ctx context.Context, actor Identity, id uuid.UUID, active, required bool) (models.Document, error) {
	if err := requireStaff(actor); err != nil {
		return models.Document{}, err
	}
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = first[models.Document](tx, "document", id)
		if err != nil {
			return err
		}
		err = tx.Model(&doc).Updates(map[string]any{"is_active": active, "is_required": required}).Error
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Validation("is_active", "another version of this document is already active")
			}
			return err
		}
		doc.IsActive, doc.IsRequired = active, required
		return LogTx(tx, ActionDocumentEdited, actor.actorRef(), nil, map[string]any{
			"document_id": doc.ID.String(),
			"is_active":   active,
			"is_required": required,
		})
	})
	if err != nil {
		return models.Document{}, err
	}
	s.metrics.auditEntries.Inc()
	return doc, nil
}
