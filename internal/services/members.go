package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/events"
	"github.com/doublec/ranchportal/internal/models"
)

func (s *Service) Member(ctx context.Context, id uuid.UUID) (models.Member, error) {
	return first[models.Member](s.db.WithContext(ctx), "member", id)
}

// MemberForUser returns the member profile of a login, if it has one.
func (s *Service) MemberForUser(ctx context.Context, userID uuid.UUID) (models.Member, bool, error) {
	var m models.Member
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Member{}, false, nil
	}
	if err != nil {
		return models.Member{}, false, err
	}
	return m, true, nil
}

// ApproveMember moves a Pending or Disabled member to Approved. Documents are
// not checked; staff approve first and members sign later. Any stale
// merged_into pointer is cleared and recorded in the audit entry.
func (s *Service) ApproveMember(ctx context.Context, actor Identity, id uuid.UUID) (models.Member, Outcome, error) {
	if err := requireStaff(actor); err != nil {
		return models.Member{}, NoOpIgnored, err
	}
	var (
		m       models.Member
		outcome = Applied
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = first[models.Member](tx, "member", id)
		if err != nil {
			return err
		}
		switch m.Status {
		case models.MemberApproved:
			outcome = NoOpIgnored
			return nil
		case models.MemberMerged:
			return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
				"merged members cannot be approved", map[string]string{"Status": string(m.Status)})
		}
		prev := m.Status
		details := map[string]any{"previous_status": string(prev)}
		if m.MergedIntoID != nil {
			details["cleared_merged_into"] = m.MergedIntoID.String()
		}
		if err := tx.Model(&m).Updates(map[string]any{
			"status":         models.MemberApproved,
			"merged_into_id": nil,
		}).Error; err != nil {
			return err
		}
		m.Status = models.MemberApproved
		m.MergedIntoID = nil
		return LogTx(tx, ActionMemberApproved, actor.actorRef(), &m.ID, details)
	})
	if err != nil {
		return models.Member{}, NoOpIgnored, err
	}
	s.metrics.memberTransitions.WithLabelValues("approve", outcome.String()).Inc()
	if outcome == Applied {
		s.metrics.auditEntries.Inc()
		s.logger.Info("member approved", "member_id", m.ID, "by", actor.Email)
		events.MemberApproved(m)
	}
	return m, outcome, nil
}

// DisableMember is allowed from every state. Only Merged members carry a
// merged_into pointer, so leaving Merged clears it; the audit entry keeps it.
func (s *Service) DisableMember(ctx context.Context, actor Identity, id uuid.UUID) (models.Member, Outcome, error) {
	if err := requireStaff(actor); err != nil {
		return models.Member{}, NoOpIgnored, err
	}
	var (
		m       models.Member
		outcome = Applied
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = first[models.Member](tx, "member", id)
		if err != nil {
			return err
		}
		if m.Status == models.MemberDisabled {
			outcome = NoOpIgnored
			return nil
		}
		prev := m.Status
		details := map[string]any{"previous_status": string(prev)}
		if m.MergedIntoID != nil {
			details["cleared_merged_into"] = m.MergedIntoID.String()
		}
		if err := tx.Model(&m).Updates(map[string]any{
			"status":         models.MemberDisabled,
			"merged_into_id": nil,
		}).Error; err != nil {
			return err
		}
		m.Status = models.MemberDisabled
		m.MergedIntoID = nil
		return LogTx(tx, ActionMemberDisabled, actor.actorRef(), &m.ID, details)
	})
	if err != nil {
		return models.Member{}, NoOpIgnored, err
	}
	s.metrics.memberTransitions.WithLabelValues("disable", outcome.String()).Inc()
	if outcome == Applied {
		s.metrics.auditEntries.Inc()
		s.logger.Info("member disabled", "member_id", m.ID, "by", actor.Email)
	}
	return m, outcome, nil
}

// ApproveMembers applies ApproveMember to each id in its own transaction.
func (s *Service) ApproveMembers(ctx context.Context, actor Identity, ids []uuid.UUID) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, o, err := s.ApproveMember(ctx, actor, id)
		out = append(out, BulkResult{ID: id, Outcome: o, Err: err})
	}
	return out
}

func (s *Service) DisableMembers(ctx context.Context, actor Identity, ids []uuid.UUID) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, o, err := s.DisableMember(ctx, actor, id)
		out = append(out, BulkResult{ID: id, Outcome: o, Err: err})
	}
	return out
}

// MergeMember folds a duplicate profile into target. Members previously
// merged into source are re-pointed at target so chains stay one deep.
func (s *Service) MergeMember(ctx context.Context, actor Identity, sourceID, targetID uuid.UUID) (models.Member, error) {
	if err := requireStaff(actor); err != nil {
		return models.Member{}, err
	}
	if sourceID == targetID {
		return models.Member{}, apperrors.New(apperrors.CodeInvalidTransition, "cannot merge a member into itself")
	}
	var src models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		src, err = first[models.Member](tx, "member", sourceID)
		if err != nil {
			return err
		}
		target, err := first[models.Member](tx, "member", targetID)
		if err != nil {
			return err
		}
		if target.Status == models.MemberMerged {
			return apperrors.New(apperrors.CodeInvalidTransition, "target member is itself merged")
		}
		if src.Status == models.MemberMerged {
			return apperrors.New(apperrors.CodeInvalidTransition, "member is already merged")
		}
		repointed := tx.Model(&models.Member{}).
			Where("merged_into_id = ? AND status = ? AND id <> ?", src.ID, models.MemberMerged, target.ID).
			Update("merged_into_id", target.ID)
		if repointed.Error != nil {
			return repointed.Error
		}
		prev := src.Status
		if err := tx.Model(&src).Updates(map[string]any{
			"status":         models.MemberMerged,
			"merged_into_id": target.ID,
		}).Error; err != nil {
			return err
		}
		src.Status = models.MemberMerged
		src.MergedIntoID = &target.ID
		return LogTx(tx, ActionMemberMerged, actor.actorRef(), &src.ID, map[string]any{
			"merged_into":     target.ID.String(),
			"previous_status": string(prev),
			"repointed":       repointed.RowsAffected,
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	s.metrics.memberTransitions.WithLabelValues("merge", Applied.String()).Inc()
	s.metrics.auditEntries.Inc()
	return src, nil
}

// UpdateMembership changes tier and certification level.
func (s *Service) UpdateMembership(ctx context.Context, actor Identity, id uuid.UUID, tier models.MembershipTier, certification string) (models.Member, error) {
	if err := requireStaff(actor); err != nil {
		return models.Member{}, err
	}
	if !tier.Valid() {
		return models.Member{}, apperrors.Validation("membership_tier", "unknown membership tier")
	}
	certification = strings.TrimSpace(certification)
	if certification == "" {
		certification = "None"
	}
	if len(certification) > 50 {
		return models.Member{}, apperrors.Validation("certification_level", "certification level is too long")
	}
	var m models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = first[models.Member](tx, "member", id)
		if err != nil {
			return err
		}
		details := map[string]any{
			"from_tier":          string(m.MembershipTier),
			"to_tier":            string(tier),
			"from_certification": m.CertificationLevel,
			"to_certification":   certification,
		}
		if err := tx.Model(&m).Updates(map[string]any{
			"membership_tier":     tier,
			"certification_level": certification,
		}).Error; err != nil {
			return err
		}
		m.MembershipTier = tier
		m.CertificationLevel = certification
		return LogTx(tx, ActionMembershipUpdated, actor.actorRef(), &m.ID, details)
	})
	if err != nil {
		return models.Member{}, err
	}
	s.metrics.auditEntries.Inc()
	return m, nil
}

type MemberFilter struct {
	Query  string // name, email or phone
	Status models.MemberStatus
	Tier   models.MembershipTier
	Limit  int
	Offset int
}

// SearchMembers backs the staff member list.
func (s *Service) SearchMembers(ctx context.Context, f MemberFilter) ([]models.Member, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Member{}).
		Joins("LEFT JOIN users ON users.id = members.user_id")
	if f.Status != "" {
		q = q.Where("members.status = ?", f.Status)
	}
	if f.Tier != "" {
		q = q.Where("members.membership_tier = ?", f.Tier)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		cond := "LOWER(members.first_name) LIKE ? OR LOWER(members.last_name) LIKE ? OR LOWER(members.parent_name) LIKE ? OR LOWER(users.email) LIKE ?"
		args := []any{like, like, like, like}
		if d := digitsOnly(term); len(d) >= 3 {
			cond += " OR " + digitsExpr + " LIKE ?"
			args = append(args, "%"+d+"%")
		}
		q = q.Where("("+cond+")", args...)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Member
	err := q.Preload("User").
		Order("members.last_name").Order("members.first_name").
		Limit(limit).Offset(f.Offset).
		Find(&out).Error
	return out, total, err
}

// MemberCounts returns the number of members per status for the dashboard.
func (s *Service) MemberCounts(ctx context.Context) (map[models.MemberStatus]int64, error) {
	type row struct {
		Status models.MemberStatus
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.MemberStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
