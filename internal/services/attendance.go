package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/models"
)

// AttendanceWindow is the span counted by attendance_30d.
const AttendanceWindow = 30 * 24 * time.Hour

type AttendanceStats struct {
	Last30d       int
	AllTime       int
	LastCheckinAt *time.Time
	// Drifted is true when the cached counters disagreed with history.
	Drifted bool
}

// RecomputeAttendance rebuilds a member's cached counters from confirmed
// check-ins.
func (s *Service) RecomputeAttendance(ctx context.Context, memberID uuid.UUID, now time.Time) (AttendanceStats, error) {
	var st AttendanceStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = RecomputeAttendanceTx(tx, memberID, now)
		return err
	})
	if err != nil {
		return st, err
	}
	s.recomputed(memberID, st)
	return st, nil
}

func (s *Service) recomputed(memberID uuid.UUID, st AttendanceStats) {
	s.metrics.attendanceRecompute.Inc()
	if st.Drifted {
		s.metrics.attendanceDrift.Inc()
		s.logger.Warn("attendance drift corrected", "member_id", memberID,
			"attendance_30d", st.Last30d, "attendance_all_time", st.AllTime)
	}
}

// RecomputeAttendanceTx does the same as RecomputeAttendance but inside an existing TX.
func RecomputeAttendanceTx(tx *gorm.DB, memberID uuid.UUID, now time.Time) (AttendanceStats, error) {
	now = now.UTC()
	m, err := first[models.Member](tx, "member", memberID)
	if err != nil {
		return AttendanceStats{}, err
	}

	confirmed := func() *gorm.DB {
		return tx.Model(&models.CheckIn{}).
			Where("member_id = ? AND status = ?", memberID, models.CheckInConfirmed)
	}
	var allTime, recent int64
	if err := confirmed().Count(&allTime).Error; err != nil {
		return AttendanceStats{}, err
	}
	if err := confirmed().Where("confirmed_at >= ?", now.Add(-AttendanceWindow)).Count(&recent).Error; err != nil {
		return AttendanceStats{}, err
	}
	// MAX() over a datetime column comes back as text from sqlite, so take
	// the newest row instead.
	var latest []models.CheckIn
	if err := confirmed().Where("confirmed_at IS NOT NULL").
		Order("confirmed_at desc").Limit(1).Find(&latest).Error; err != nil {
		return AttendanceStats{}, err
	}

	st := AttendanceStats{Last30d: int(recent), AllTime: int(allTime)}
	if len(latest) > 0 {
		st.LastCheckinAt = latest[0].ConfirmedAt
	}
	st.Drifted = m.Attendance30d != st.Last30d ||
		m.AttendanceAllTime != st.AllTime ||
		!sameTime(m.LastCheckinAt, st.LastCheckinAt)

	err = tx.Model(&models.Member{}).Where("id = ?", memberID).Updates(map[string]any{
		"attendance_30d":      st.Last30d,
		"attendance_all_time": st.AllTime,
		"last_checkin_at":     st.LastCheckinAt,
		"stats_recomputed_at": now,
	}).Error
	return st, err
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type RecomputeSummary struct {
	Members int
	Drifted int
}

// RecomputeAllAttendance reconciles every non-merged member, one
// transaction per member so a long run never holds the write lock.
func (s *Service) RecomputeAllAttendance(ctx context.Context, now time.Time) (RecomputeSummary, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("status <> ?", models.MemberMerged).
		Order("id").Pluck("id", &ids).Error
	if err != nil {
		return RecomputeSummary{}, err
	}
	var sum RecomputeSummary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		st, err := s.RecomputeAttendance(ctx, id, now)
		if err != nil {
			return sum, err
		}
		sum.Members++
		if st.Drifted {
			sum.Drifted++
		}
	}
	s.logger.Info("attendance recomputed", "members", sum.Members, "drifted", sum.Drifted)
	return sum, nil
}
