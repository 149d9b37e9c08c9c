package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/events"
	"github.com/doublec/ranchportal/internal/models"
)

type CheckInInput struct {
	Type        models.CheckInType
	StudentNote string
	RequestedAt time.Time // zero means now
}

func (in CheckInInput) validate() error {
	if !in.Type.Valid() {
		return apperrors.Validation("type", "unknown check-in type")
	}
	if len(in.StudentNote) > 2000 {
		return apperrors.Validation("student_note", "note is too long")
	}
	return nil
}

// RequestCheckIn records a Pending check-in for staff to confirm.
func (s *Service) RequestCheckIn(ctx context.Context, actor Identity, memberID uuid.UUID, in CheckInInput) (models.CheckIn, error) {
	if err := in.validate(); err != nil {
		return models.CheckIn{}, err
	}
	var c models.CheckIn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[models.Member](tx, "member", memberID)
		if err != nil {
			return err
		}
		if !actor.IsStaff() && (m.UserID == nil || *m.UserID != actor.UserID) {
			return apperrors.New(apperrors.CodePermissionDenied, "cannot check in for another member")
		}
		if m.Status != models.MemberApproved {
			return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
				"only approved members can check in", map[string]string{"Status": string(m.Status)})
		}
		requested := in.RequestedAt
		if requested.IsZero() {
			requested = s.now()
		}
		c = models.CheckIn{
			MemberID:    m.ID,
			RequestedAt: requested,
			Type:        in.Type,
			Status:      models.CheckInPending,
			StudentNote: strings.TrimSpace(in.StudentNote),
			CreatedByID: actor.UserID,
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		return LogTx(tx, ActionCheckInRequested+": "+string(in.Type), actor.actorRef(), &m.ID, map[string]any{
			"check_in_id": c.ID.String(),
			"type":        string(in.Type),
		})
	})
	if err != nil {
		return models.CheckIn{}, err
	}
	s.metrics.checkinTransitions.WithLabelValues("request", Applied.String()).Inc()
	s.metrics.auditEntries.Inc()
	return c, nil
}

// checkInstructor verifies an optional instructor is an active staff user.
func checkInstructor(tx *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	u, err := first[models.User](tx, "instructor", *id)
	if err != nil {
		return err
	}
	if !u.Role.IsStaff() || !u.IsActive {
		return apperrors.Validation("instructor_id", "instructor must be a staff member")
	}
	return nil
}

// creditAttendanceTx applies a confirmed check-in to the member's cached stats.
// attendance_30d is left to RecomputeAttendance.
func creditAttendanceTx(tx *gorm.DB, memberID uuid.UUID, confirmedAt time.Time) error {
	res := tx.Model(&models.Member{}).Where("id = ?", memberID).Updates(map[string]any{
		"attendance_all_time": gorm.Expr("attendance_all_time + 1"),
		"last_checkin_at":     confirmedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return notFound("member", memberID)
	}
	return nil
}

// ApproveCheckIn confirms a Pending check-in and credits the member's
// attendance. Anything not Pending is left alone and reported as NoOpIgnored.
func (s *Service) ApproveCheckIn(ctx context.Context, actor Identity, id uuid.UUID, instructorID *uuid.UUID, staffNote string) (models.CheckIn, Outcome, error) {
	if err := requireStaff(actor); err != nil {
		return models.CheckIn{}, NoOpIgnored, err
	}
	var (
		c       models.CheckIn
		m       models.Member
		outcome = Applied
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = first[models.CheckIn](tx, "check-in", id)
		if err != nil {
			return err
		}
		if c.Status != models.CheckInPending {
			outcome = NoOpIgnored
			return nil
		}
		m, err = first[models.Member](tx, "member", c.MemberID)
		if err != nil {
			return err
		}
		if !m.CanParticipate() {
			return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
				"member can no longer check in", map[string]string{"Status": string(m.Status)})
		}
		if err := checkInstructor(tx, instructorID); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{
			"status":         models.CheckInConfirmed,
			"confirmed_at":   now,
			"approved_by_id": actor.actorRef(),
		}
		if instructorID != nil {
			updates["instructor_id"] = *instructorID
		}
		if note := strings.TrimSpace(staffNote); note != "" {
			updates["staff_note"] = note
		}
		res := tx.Model(&models.CheckIn{}).
			Where("id = ? AND status = ?", c.ID, models.CheckInPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = NoOpIgnored
			return nil
		}
		if err := creditAttendanceTx(tx, m.ID, now); err != nil {
			return err
		}
		if err := tx.First(&c, "id = ?", c.ID).Error; err != nil {
			return err
		}
		if err := tx.First(&m, "id = ?", m.ID).Error; err != nil {
			return err
		}
		details := map[string]any{
			"check_in_id": c.ID.String(),
			"type":        string(c.Type),
		}
		if instructorID != nil {
			details["instructor_id"] = instructorID.String()
		}
		return LogTx(tx, ActionCheckInApproved, actor.actorRef(), &m.ID, details)
	})
	if err != nil {
		return models.CheckIn{}, NoOpIgnored, err
	}
	s.metrics.checkinTransitions.WithLabelValues("approve", outcome.String()).Inc()
	if outcome == Applied {
		s.metrics.auditEntries.Inc()
		s.logger.Info("check-in approved", "check_in_id", c.ID, "member_id", m.ID)
		events.CheckInDecided(m, c)
	}
	return c, outcome, nil
}

// RejectCheckIn marks a Pending check-in Rejected. Stats are untouched.
func (s *Service) RejectCheckIn(ctx context.Context, actor Identity, id uuid.UUID, staffNote string) (models.CheckIn, Outcome, error) {
	if err := requireStaff(actor); err != nil {
		return models.CheckIn{}, NoOpIgnored, err
	}
	var (
		c       models.CheckIn
		outcome = Applied
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = first[models.CheckIn](tx, "check-in", id)
		if err != nil {
			return err
		}
		if c.Status != models.CheckInPending {
			outcome = NoOpIgnored
			return nil
		}
		updates := map[string]any{
			"status":         models.CheckInRejected,
			"approved_by_id": actor.actorRef(),
		}
		if note := strings.TrimSpace(staffNote); note != "" {
			updates["staff_note"] = note
		}
		res := tx.Model(&models.CheckIn{}).
			Where("id = ? AND status = ?", c.ID, models.CheckInPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = NoOpIgnored
			return nil
		}
		if err := tx.First(&c, "id = ?", c.ID).Error; err != nil {
			return err
		}
		return LogTx(tx, ActionCheckInRejected, actor.actorRef(), &c.MemberID, map[string]any{
			"check_in_id": c.ID.String(),
			"type":        string(c.Type),
		})
	})
	if err != nil {
		return models.CheckIn{}, NoOpIgnored, err
	}
	s.metrics.checkinTransitions.WithLabelValues("reject", outcome.String()).Inc()
	if outcome == Applied {
		s.metrics.auditEntries.Inc()
		if m, err := s.Member(ctx, c.MemberID); err == nil {
			events.CheckInDecided(m, c)
		}
	}
	return c, outcome, nil
}

func (s *Service) ApproveCheckIns(ctx context.Context, actor Identity, ids []uuid.UUID) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, o, err := s.ApproveCheckIn(ctx, actor, id, nil, "")
		out = append(out, BulkResult{ID: id, Outcome: o, Err: err})
	}
	return out
}

func (s *Service) RejectCheckIns(ctx context.Context, actor Identity, ids []uuid.UUID) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, o, err := s.RejectCheckIn(ctx, actor, id, "")
		out = append(out, BulkResult{ID: id, Outcome: o, Err: err})
	}
	return out
}

// RecordCheckIn is a staff-entered check-in, confirmed on creation.
func (s *Service) RecordCheckIn(ctx context.Context, actor Identity, memberID uuid.UUID, in CheckInInput, instructorID *uuid.UUID, staffNote string) (models.CheckIn, error) {
	if err := requireStaff(actor); err != nil {
		return models.CheckIn{}, err
	}
	if err := in.validate(); err != nil {
		return models.CheckIn{}, err
	}
	var (
		c models.CheckIn
		m models.Member
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = first[models.Member](tx, "member", memberID)
		if err != nil {
			return err
		}
		if !m.CanParticipate() {
			return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
				"member cannot check in", map[string]string{"Status": string(m.Status)})
		}
		if err := checkInstructor(tx, instructorID); err != nil {
			return err
		}
		now := s.now()
		requested := in.RequestedAt
		if requested.IsZero() {
			requested = now
		}
		c = models.CheckIn{
			MemberID:     m.ID,
			RequestedAt:  requested,
			ConfirmedAt:  &now,
			Type:         in.Type,
			Status:       models.CheckInConfirmed,
			StudentNote:  strings.TrimSpace(in.StudentNote),
			StaffNote:    strings.TrimSpace(staffNote),
			InstructorID: instructorID,
			CreatedByID:  actor.UserID,
			ApprovedByID: actor.actorRef(),
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		if err := creditAttendanceTx(tx, m.ID, now); err != nil {
			return err
		}
		return LogTx(tx, ActionCheckInApproved, actor.actorRef(), &m.ID, map[string]any{
			"check_in_id": c.ID.String(),
			"type":        string(c.Type),
			"recorded":    true,
		})
	})
	if err != nil {
		return models.CheckIn{}, err
	}
	s.metrics.checkinTransitions.WithLabelValues("record", Applied.String()).Inc()
	s.metrics.auditEntries.Inc()
	return c, nil
}

// CheckInRow pairs a check-in with its member for staff lists.
type CheckInRow struct {
	models.CheckIn
	Member models.Member
}

// PendingCheckIns lists check-ins awaiting a decision, oldest first.
func (s *Service) PendingCheckIns(ctx context.Context, limit int) ([]CheckInRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var cs []models.CheckIn
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CheckInPending).
		Order("requested_at asc").Limit(limit).
		Find(&cs).Error
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, cs)
}

func (s *Service) withMembers(ctx context.Context, cs []models.CheckIn) ([]CheckInRow, error) {
	ids := make([]uuid.UUID, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.MemberID)
	}
	var ms []models.Member
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&ms).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[uuid.UUID]models.Member, len(ms))
	for _, m := range ms {
		byID[m.ID] = m
	}
	out := make([]CheckInRow, 0, len(cs))
	for _, c := range cs {
		out = append(out, CheckInRow{CheckIn: c, Member: byID[c.MemberID]})
	}
	return out, nil
}

// CheckInsForMember returns the member's history, newest first.
func (s *Service) CheckInsForMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CheckIn, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.CheckIn
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("requested_at desc").Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (models.CheckIn, error) {
	return first[models.CheckIn](s.db.WithContext(ctx), "check-in", id)
}
