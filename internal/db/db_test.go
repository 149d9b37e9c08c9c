package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublec/ranchportal/internal/db"
	"github.com/doublec/ranchportal/internal/models"
)

// TestWALMode verifies that the DSN parameters enable WAL journal mode and
// foreign keys.
func TestWALMode(t *testing.T) {
	gdb, err := db.Open(filepath.Join(t.TempDir(), "wal_test.db"))
	require.NoError(t, err)

	var mode string
	gdb.Raw("PRAGMA journal_mode").Scan(&mode)
	assert.Equal(t, "wal", mode)

	var fk int
	gdb.Raw("PRAGMA foreign_keys").Scan(&fk)
	assert.Equal(t, 1, fk)
}

func TestInit_CreatesIndexes(t *testing.T) {
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "init.db"), nil))

	sqlDB, err := db.Conn().DB()
	require.NoError(t, err)

	docs := indexNames(t, sqlDB, "documents")
	assert.True(t, docs["idx_documents_active_code"], "found: %v", docs)
	assert.True(t, docs["idx_documents_code_version"], "found: %v", docs)

	signed := indexNames(t, sqlDB, "signed_documents")
	assert.True(t, signed["idx_signed_document_member"], "found: %v", signed)
}

func TestOneActiveVersionPerCode(t *testing.T) {
	gdb, err := db.Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)

	require.NoError(t, gdb.Create(&models.Document{Code: "WAIVER", Version: 1, Name: "Waiver", Content: "v1", IsActive: true}).Error)
	err = gdb.Create(&models.Document{Code: "WAIVER", Version: 2, Name: "Waiver", Content: "v2", IsActive: true}).Error
	assert.Error(t, err, "second active version of the same code must be refused")

	require.NoError(t, gdb.Model(&models.Document{}).Where("code = ?", "WAIVER").Update("is_active", false).Error)
	assert.NoError(t, gdb.Create(&models.Document{Code: "WAIVER", Version: 2, Name: "Waiver", Content: "v2", IsActive: true}).Error)
}

func TestDocumentProtectedWhileSigned(t *testing.T) {
	gdb, err := db.Open(filepath.Join(t.TempDir(), "protect.db"))
	require.NoError(t, err)

	doc := models.Document{Code: "WAIVER", Version: 1, Name: "Waiver", Content: "text", IsActive: true, IsRequired: true}
	require.NoError(t, gdb.Create(&doc).Error)
	member := models.Member{FirstName: "Jane", LastName: "Doe"}
	require.NoError(t, gdb.Create(&member).Error)
	require.NoError(t, gdb.Create(&models.SignedDocument{
		DocumentID: doc.ID, MemberID: member.ID, UserID: member.ID,
		SignedName: "Jane Doe", DocumentSnapshot: doc.Content,
	}).Error)

	assert.Error(t, gdb.Delete(&doc).Error, "document with signatures must be protected")

	// Deleting the member cascades to its signatures, which frees the document.
	require.NoError(t, gdb.Delete(&member).Error)
	var n int64
	gdb.Model(&models.SignedDocument{}).Count(&n)
	assert.Zero(t, n)
	assert.NoError(t, gdb.Delete(&doc).Error)
}

func indexNames(t *testing.T, sqlDB *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := sqlDB.Query("PRAGMA index_list(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var seq int
		var name string
		var unique bool
		var origin, partial string
		require.NoError(t, rows.Scan(&seq, &name, &unique, &origin, &partial))
		out[name] = true
	}
	return out
}
