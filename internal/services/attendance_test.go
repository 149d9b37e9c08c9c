package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublec/ranchportal/internal/models"
)

func (f *fixture) confirmedCheckIn(t *testing.T, m models.Member, at time.Time) {
	t.Helper()
	c := models.CheckIn{MemberID: m.ID, RequestedAt: at, ConfirmedAt: &at, Type: models.CheckInLesson, Status: models.CheckInConfirmed, CreatedByID: *m.UserID}
	require.NoError(t, f.gdb.Create(&c).Error)
}

func TestRecomputeAttendance(t *testing.T) {
	f := newFixture(t)
	m, _ := f.member(t, "Amy", "Rider", models.MemberApproved)

	f.confirmedCheckIn(t, m, testNow.Add(-90*24*time.Hour))
	f.confirmedCheckIn(t, m, testNow.Add(-10*24*time.Hour))
	f.confirmedCheckIn(t, m, testNow.Add(-time.Hour))
	rejected := models.CheckIn{MemberID: m.ID, RequestedAt: testNow, Type: models.CheckInLesson, Status: models.CheckInRejected, CreatedByID: *m.UserID}
	require.NoError(t, f.gdb.Create(&rejected).Error)

	st, err := f.svc.RecomputeAttendance(f.ctx, m.ID, testNow)
	require.NoError(t, err)
	assert.True(t, st.Drifted)
	assert.Equal(t, 2, st.Last30d)
	assert.Equal(t, 3, st.AllTime)

	m = f.reload(t, m)
	assert.Equal(t, 2, m.Attendance30d)
	assert.Equal(t, 3, m.AttendanceAllTime)
	require.NotNil(t, m.LastCheckinAt)
	assert.True(t, m.LastCheckinAt.Equal(testNow.Add(-time.Hour)))
	require.NotNil(t, m.StatsRecomputedAt)

	st, err = f.svc.RecomputeAttendance(f.ctx, m.ID, testNow)
	require.NoError(t, err)
	assert.False(t, st.Drifted)

	// a month later the recent lessons fall out of the window
	st, err = f.svc.RecomputeAttendance(f.ctx, m.ID, testNow.Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, st.Last30d)
	assert.Equal(t, 3, st.AllTime)
}

func TestApprovalAgreesWithRecompute(t *testing.T) {
	f := newFixture(t)
	m, _ := f.member(t, "Amy", "Rider", models.MemberApproved)
	for i := 0; i < 3; i++ {
		c := f.pendingCheckIn(t, m)
		f.advance(time.Hour)
		_, _, err := f.svc.ApproveCheckIn(f.ctx, f.staff, c.ID, nil, "")
		require.NoError(t, err)
	}
	before := f.reload(t, m)

	st, err := f.svc.RecomputeAttendance(f.ctx, m.ID, *f.clock)
	require.NoError(t, err)
	assert.Equal(t, before.AttendanceAllTime, st.AllTime)
	assert.Equal(t, 3, st.Last30d)
	assert.True(t, before.LastCheckinAt.Equal(*st.LastCheckinAt))
}

func TestRecomputeAllAttendance(t *testing.T) {
	f := newFixture(t)
	a, _ := f.member(t, "Amy", "Rider", models.MemberApproved)
	b, _ := f.member(t, "Bea", "Rider", models.MemberApproved)
	merged, _ := f.member(t, "Old", "Profile", models.MemberMerged)
	f.confirmedCheckIn(t, a, testNow.Add(-time.Hour))
	require.NoError(t, f.gdb.Model(&b).Update("attendance_all_time", 7).Error)

	sum, err := f.svc.RecomputeAllAttendance(f.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Members)
	assert.Equal(t, 2, sum.Drifted)
	assert.Equal(t, 1, f.reload(t, a).AttendanceAllTime)
	assert.Equal(t, 0, f.reload(t, b).AttendanceAllTime)
	assert.Nil(t, f.reload(t, merged).StatsRecomputedAt)
}
