package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/models"
)

// Audit action names.
const (
	ActionMemberRegistration = "Member Registration"
	ActionDocumentSigned     = "Document Signed"
	ActionMemberApproved     = "Member Approved"
	ActionMemberDisabled     = "Member Disabled"
	ActionMemberMerged       = "Member Merged"
	ActionMembershipUpdated  = "Membership Updated"
	ActionCheckInRequested   = "Check-in Requested"
	ActionCheckInApproved    = "Check-in Approved"
	ActionCheckInRejected    = "Check-in Rejected"
	ActionDocumentPublished  = "Document Published"
	ActionDocumentEdited     = "Document Edited"
	ActionGoalRequested      = "Goal Requested"
	ActionGoalCreated        = "Goal Created"
	ActionGoalStatusChanged  = "Goal Status Changed"
	ActionNoteAdded          = "Note Added"
)

// LogTx appends an audit entry inside tx. A failure here must fail the
// surrounding transaction, so callers return the error unchanged.
func LogTx(tx *gorm.DB, action string, actor, member *uuid.UUID, details map[string]any) error {
	entry := models.AuditLog{
		ActorID:  actor,
		MemberID: member,
		Action:   action,
		Details:  datatypes.JSONMap(details),
	}
	if entry.Details == nil {
		entry.Details = datatypes.JSONMap{}
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit %q: %w", action, err)
	}
	return nil
}

type AuditFilter struct {
	MemberID *uuid.UUID
	ActorID  *uuid.UUID
	Action   string // prefix match, so "Document Signed" finds every document
	Since    *time.Time
	Limit    int
}

// ListAudit returns entries newest first.
func (s *Service) ListAudit(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.MemberID != nil {
		q = q.Where("member_id = ?", *f.MemberID)
	}
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action LIKE ?", f.Action+"%")
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.AuditLog
	err := q.Order("created_at desc").Order("id").Limit(limit).Find(&out).Error
	return out, err
}
