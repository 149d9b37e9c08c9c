package services_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/db"
	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	gdb   *gorm.DB
	svc   *services.Service
	staff services.Identity
	clock *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	now := testNow
	f := &fixture{ctx: context.Background(), gdb: gdb, clock: &now}
	f.svc = services.New(gdb,
		services.WithClock(func() time.Time { return *f.clock }),
		services.WithBcryptCost(bcrypt.MinCost),
	)
	f.staff = f.user(t, "staff@ranch.test", models.RoleStaff)
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func (f *fixture) user(t *testing.T, email string, role models.Role) services.Identity {
	t.Helper()
	u, err := f.svc.CreateUser(f.ctx, email, "correct horse", role)
	require.NoError(t, err)
	return services.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// member inserts a member directly, without the registration audit entry.
func (f *fixture) member(t *testing.T, first, last string, status models.MemberStatus) (models.Member, services.Identity) {
	t.Helper()
	id := f.user(t, uuid.NewString()[:8]+"@ranch.test", models.RoleMember)
	m := models.Member{UserID: &id.UserID, FirstName: first, LastName: last, Status: status, MembershipTier: models.TierLesson}
	require.NoError(t, f.gdb.Create(&m).Error)
	return m, id
}

func (f *fixture) document(t *testing.T, code, name string, version int) models.Document {
	t.Helper()
	d := models.Document{Code: code, Name: name, Version: version, Content: fmt.Sprintf("%s text v%d", name, version), IsActive: true, IsRequired: true}
	require.NoError(t, f.gdb.Create(&d).Error)
	return d
}

func (f *fixture) reload(t *testing.T, m models.Member) models.Member {
	t.Helper()
	var out models.Member
	require.NoError(t, f.gdb.First(&out, "id = ?", m.ID).Error)
	return out
}

func (f *fixture) auditCount(t *testing.T, memberID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.gdb.Model(&models.AuditLog{}).Where("member_id = ?", memberID).Count(&n).Error)
	return n
}

func (f *fixture) actions(t *testing.T, memberID uuid.UUID) []string {
	t.Helper()
	var out []string
	require.NoError(t, f.gdb.Model(&models.AuditLog{}).
		Where("member_id = ?", memberID).Order("created_at").Order("rowid").
		Pluck("action", &out).Error)
	return out
}

func (f *fixture) sign(t *testing.T, signer services.Identity, m models.Member, d models.Document) models.SignedDocument {
	t.Helper()
	sd, err := f.svc.Sign(f.ctx, services.SignInput{
		MemberID: m.ID, DocumentID: d.ID, Signer: signer,
		SignedName: m.FullName(), Agreed: true, IPAddress: "127.0.0.1",
	})
	require.NoError(t, err)
	return sd
}

// failOn makes every statement of kind against table fail.
func failOn(t *testing.T, gdb *gorm.DB, kind, table string) {
	t.Helper()
	name := "test:fail_" + kind + "_" + table
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errInjected)
		}
	}
	switch kind {
	case "create":
		require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register(name, fail))
	case "update":
		require.NoError(t, gdb.Callback().Update().Before("gorm:update").Register(name, fail))
	}
}

type injectedError struct{}

func (injectedError) Error() string { return "injected failure" }

var errInjected = injectedError{}
