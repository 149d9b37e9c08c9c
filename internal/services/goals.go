package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

// ownsMember is true when actor is staff or the login of the member.
func ownsMember(actor Identity, m models.Member) bool {
	return actor.IsStaff() || (m.UserID != nil && *m.UserID == actor.UserID)
}

// SubmitGoalRequest lets a member ask staff for a new goal.
func (s *Service) SubmitGoalRequest(ctx context.Context, actor Identity, memberID uuid.UUID, content, timeframe string) (models.GoalRequest, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.GoalRequest{}, apperrors.Validation("content", "describe the goal you want to work on")
	}
	var gr models.GoalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[models.Member](tx, "member", memberID)
		if err != nil {
			return err
		}
		if !ownsMember(actor, m) {
			return apperrors.New(apperrors.CodePermissionDenied, "cannot request goals for another member")
		}
		if !m.CanParticipate() {
			return apperrors.New(apperrors.CodeInvalidTransition, "member is not active")
		}
		gr = models.GoalRequest{
			MemberID:      m.ID,
			SubmittedByID: actor.UserID,
			Content:       content,
			Timeframe:     strings.TrimSpace(timeframe),
			Status:        models.GoalRequestOpen,
		}
		if err := tx.Create(&gr).Error; err != nil {
			return err
		}
		return LogTx(tx, ActionGoalRequested, actor.actorRef(), &m.ID, map[string]any{
			"goal_request_id": gr.ID.String(),
		})
	})
	if err != nil {
		return models.GoalRequest{}, err
	}
	s.metrics.auditEntries.Inc()
	return gr, nil
}

type GoalInput struct {
	Title       string
	Description string
	TargetDate  *time.Time
}

func (in GoalInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperrors.Validation("title", "title is required")
	}
	if len(in.Title) > 200 {
		return apperrors.Validation("title", "title is too long")
	}
	return nil
}

func createGoalTx(tx *gorm.DB, actor Identity, memberID uuid.UUID, in GoalInput, requestID *uuid.UUID) (models.Goal, error) {
	g := models.Goal{
		MemberID:    memberID,
		CreatedByID: actor.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		TargetDate:  in.TargetDate,
		Status:      models.GoalNotStarted,
	}
	if err := tx.Create(&g).Error; err != nil {
		return g, err
	}
	details := map[string]any{"goal_id": g.ID.String(), "title": g.Title}
	if requestID != nil {
		details["goal_request_id"] = requestID.String()
	}
	return g, LogTx(tx, ActionGoalCreated, actor.actorRef(), &memberID, details)
}

// CreateGoal adds a goal directly (staff only).
func (s *Service) CreateGoal(ctx context.Context, actor Identity, memberID uuid.UUID, in GoalInput) (models.Goal, error) {
	if err := requireStaff(actor); err != nil {
		return models.Goal{}, err
	}
	if err := in.validate(); err != nil {
		return models.Goal{}, err
	}
	var g models.Goal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[models.Member](tx, "member", memberID); err != nil {
			return err
		}
		var err error
		g, err = createGoalTx(tx, actor, memberID, in, nil)
		return err
	})
	if err != nil {
		return models.Goal{}, err
	}
	s.metrics.auditEntries.Inc()
	return g, nil
}

// ProcessGoalRequest turns an Open request into a goal.
func (s *Service) ProcessGoalRequest(ctx context.Context, actor Identity, requestID uuid.UUID, in GoalInput) (models.Goal, error) {
	if err := requireStaff(actor); err != nil {
		return models.Goal{}, err
	}
	if err := in.validate(); err != nil {
		return models.Goal{}, err
	}
	var g models.Goal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gr, err := first[models.GoalRequest](tx, "goal request", requestID)
		if err != nil {
			return err
		}
		res := tx.Model(&models.GoalRequest{}).
			Where("id = ? AND status = ?", gr.ID, models.GoalRequestOpen).
			Update("status", models.GoalRequestProcessed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.CodeInvalidTransition, "goal request already processed")
		}
		g, err = createGoalTx(tx, actor, gr.MemberID, in, &gr.ID)
		return err
	})
	if err != nil {
		return models.Goal{}, err
	}
	s.metrics.auditEntries.Inc()
	return g, nil
}

func (s *Service) SetGoalStatus(ctx context.Context, actor Identity, goalID uuid.UUID, status models.GoalStatus) (models.Goal, error) {
	if err := requireStaff(actor); err != nil {
		return models.Goal{}, err
	}
	if !status.Valid() {
		return models.Goal{}, apperrors.Validation("status", "unknown goal status")
	}
	var (
		g       models.Goal
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		g, err = first[models.Goal](tx, "goal", goalID)
		if err != nil {
			return err
		}
		if g.Status == status {
			return nil
		}
		prev := g.Status
		if err := tx.Model(&g).Update("status", status).Error; err != nil {
			return err
		}
		g.Status = status
		changed = true
		return LogTx(tx, ActionGoalStatusChanged, actor.actorRef(), &g.MemberID, map[string]any{
			"goal_id": g.ID.String(),
			"from":    string(prev),
			"to":      string(status),
		})
	})
	if err != nil {
		return models.Goal{}, err
	}
	if changed {
		s.metrics.auditEntries.Inc()
	}
	return g, nil
}

// AddGoalUpdate appends a progress note. Members may only update their own goals.
func (s *Service) AddGoalUpdate(ctx context.Context, actor Identity, goalID uuid.UUID, note string) (models.GoalUpdate, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return models.GoalUpdate{}, apperrors.Validation("note", "note is required")
	}
	var u models.GoalUpdate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := first[models.Goal](tx, "goal", goalID)
		if err != nil {
			return err
		}
		m, err := first[models.Member](tx, "member", g.MemberID)
		if err != nil {
			return err
		}
		if !ownsMember(actor, m) {
			return apperrors.New(apperrors.CodePermissionDenied, "cannot update another member's goal")
		}
		author := models.AuthorMember
		if actor.IsStaff() {
			author = models.AuthorStaff
		}
		u = models.GoalUpdate{GoalID: g.ID, AuthorID: actor.UserID, AuthorType: author, Note: note}
		return tx.Create(&u).Error
	})
	return u, err
}

// GoalsForMember returns goals with their updates, newest first.
func (s *Service) GoalsForMember(ctx context.Context, memberID uuid.UUID) ([]models.Goal, error) {
	var out []models.Goal
	err := s.db.WithContext(ctx).
		Preload("Updates", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Where("member_id = ?", memberID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ActiveGoals returns goals that are not complete, with their updates.
func (s *Service) ActiveGoals(ctx context.Context, memberID uuid.UUID) ([]models.Goal, error) {
	var out []models.Goal
	err := s.db.WithContext(ctx).
		Preload("Updates", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Where("member_id = ? AND status <> ?", memberID, models.GoalComplete).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GoalRequests lists requests by status; empty status means all.
func (s *Service) GoalRequests(ctx context.Context, status models.GoalRequestStatus, limit int) ([]models.GoalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.GoalRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.GoalRequest
	err := q.Order("created_at asc").Limit(limit).Find(&out).Error
	return out, err
}
