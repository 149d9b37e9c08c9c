package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/doublec/ranchportal/internal/db"
	"github.com/doublec/ranchportal/internal/models"
)

func TestGoalStatusCountsAuditEntries(t *testing.T) {
	gdb, err := db.Open(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	svc := New(gdb, WithPromRegistry(prometheus.NewRegistry()), WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "staff@ranch.test", "correct horse", models.RoleStaff)
	require.NoError(t, err)
	staff := Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
	m := models.Member{FirstName: "Amy", LastName: "Rider", Status: models.MemberApproved, MembershipTier: models.TierLesson}
	require.NoError(t, gdb.Create(&m).Error)

	goal, err := svc.CreateGoal(ctx, staff, m.ID, GoalInput{Title: "Canter"})
	require.NoError(t, err)
	before := testutil.ToFloat64(svc.metrics.auditEntries)

	_, err = svc.SetGoalStatus(ctx, staff, goal.ID, models.GoalInProgress)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(svc.metrics.auditEntries))

	// unchanged status writes no audit row
	_, err = svc.SetGoalStatus(ctx, staff, goal.ID, models.GoalInProgress)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(svc.metrics.auditEntries))

	var n int64
	require.NoError(t, gdb.Model(&models.AuditLog{}).Where("action = ?", ActionGoalStatusChanged).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
