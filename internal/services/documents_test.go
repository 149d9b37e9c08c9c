package services_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

func codes(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Code)
	}
	return out
}

func TestJaneSignsAndIsApproved(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver and Release of Liability", 1)
	lesson := f.document(t, "LESSON_AGREEMENT", "Riding Lesson Agreement", 1)
	jane, janeID := f.member(t, "Jane", "Doe", models.MemberPending)

	out, err := f.svc.OutstandingDocuments(f.ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"LESSON_AGREEMENT", "LIABILITY_WAIVER"}, codes(out))

	f.sign(t, janeID, jane, waiver)
	out, err = f.svc.OutstandingDocuments(f.ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"LESSON_AGREEMENT"}, codes(out))
	all, err := f.svc.HasSignedAllRequired(f.ctx, jane.ID)
	require.NoError(t, err)
	assert.False(t, all)

	f.sign(t, janeID, jane, lesson)
	all, err = f.svc.HasSignedAllRequired(f.ctx, jane.ID)
	require.NoError(t, err)
	assert.True(t, all)

	approved, outcome, err := f.svc.ApproveMember(f.ctx, f.staff, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, services.Applied, outcome)
	assert.Equal(t, models.MemberApproved, approved.Status)
	assert.Equal(t, models.MemberApproved, f.reload(t, jane).Status)

	assert.Equal(t, int64(3), f.auditCount(t, jane.ID))
	assert.ElementsMatch(t, []string{
		"Document Signed: Waiver and Release of Liability",
		"Document Signed: Riding Lesson Agreement",
		"Member Approved",
	}, f.actions(t, jane.ID))
}

func TestSignTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)

	f.sign(t, id, m, waiver)
	_, err := f.svc.Sign(f.ctx, services.SignInput{
		MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy Rider", Agreed: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateSignature))

	var n int64
	require.NoError(t, f.gdb.Model(&models.SignedDocument{}).Where("member_id = ?", m.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), f.auditCount(t, m.ID))
}

func TestConcurrentSigningCreatesOneRow(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Sign(f.ctx, services.SignInput{
				MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy Rider", Agreed: true,
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperrors.CodeDuplicateSignature, apperrors.CodeOf(err), "%v", err)
	}
	assert.Equal(t, 1, ok)

	var n int64
	require.NoError(t, f.gdb.Model(&models.SignedDocument{}).Where("member_id = ?", m.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSnapshotSurvivesDocumentEdit(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)

	sd := f.sign(t, id, m, waiver)
	assert.Equal(t, waiver.Content, sd.DocumentSnapshot)

	edited, err := f.svc.UpdateDocumentContent(f.ctx, f.staff, waiver.ID, "", "fixed a typo")
	require.NoError(t, err)
	assert.Equal(t, "fixed a typo", edited.Content)

	got, err := f.svc.SignedDocument(f.ctx, sd.ID)
	require.NoError(t, err)
	assert.Equal(t, waiver.Content, got.DocumentSnapshot)
}

func TestSignedDocumentIsImmutable(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)
	sd := f.sign(t, id, m, waiver)

	sd.SignedName = "Someone Else"
	assert.ErrorIs(t, f.gdb.Save(&sd).Error, models.ErrImmutable)
}

func TestSignValidation(t *testing.T) {
	f := newFixture(t)
	waiver := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)
	other, _ := f.member(t, "Bea", "Other", models.MemberApproved)
	disabled, disabledID := f.member(t, "Dee", "Gone", models.MemberDisabled)

	optional := models.Document{Code: "PHOTO_RELEASE", Version: 1, Name: "Photo release", Content: "photos", IsActive: true, IsRequired: true}
	require.NoError(t, f.gdb.Create(&optional).Error)
	require.NoError(t, f.gdb.Model(&optional).Update("is_required", false).Error)

	tests := []struct {
		name string
		in   services.SignInput
		code apperrors.Code
	}{
		{"empty name", services.SignInput{MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "  ", Agreed: true}, apperrors.CodeValidation},
		{"not agreed", services.SignInput{MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy"}, apperrors.CodeValidation},
		{"unknown document", services.SignInput{MemberID: m.ID, DocumentID: other.ID, Signer: id, SignedName: "Amy", Agreed: true}, apperrors.CodeNotFound},
		{"not required", services.SignInput{MemberID: m.ID, DocumentID: optional.ID, Signer: id, SignedName: "Amy", Agreed: true}, apperrors.CodeValidation},
		{"someone else's member", services.SignInput{MemberID: other.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy", Agreed: true}, apperrors.CodePermissionDenied},
		{"disabled member", services.SignInput{MemberID: disabled.ID, DocumentID: waiver.ID, Signer: disabledID, SignedName: "Dee", Agreed: true}, apperrors.CodeInvalidTransition},
		{"long name", services.SignInput{MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: strings.Repeat("a", 201), Agreed: true}, apperrors.CodeValidation},
		{"long signed-for name", services.SignInput{MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy", SignedForName: strings.Repeat("b", 201), Agreed: true}, apperrors.CodeValidation},
		{"long relationship", services.SignInput{MemberID: m.ID, DocumentID: waiver.ID, Signer: id, SignedName: "Amy", Relationship: strings.Repeat("c", 101), Agreed: true}, apperrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Sign(f.ctx, tc.in)
			assert.Equal(t, tc.code, apperrors.CodeOf(err), "%v", err)
		})
	}

	// staff may sign on a member's behalf
	_, err := f.svc.Sign(f.ctx, services.SignInput{MemberID: other.ID, DocumentID: waiver.ID, Signer: f.staff, SignedName: "Bea Other", Agreed: true})
	assert.NoError(t, err)

	// the limits themselves are accepted
	_, err = f.svc.Sign(f.ctx, services.SignInput{
		MemberID: m.ID, DocumentID: waiver.ID, Signer: id,
		SignedName: strings.Repeat("a", 200), SignedForName: strings.Repeat("b", 200),
		Relationship: strings.Repeat("c", 100), Agreed: true,
	})
	assert.NoError(t, err)
}

func TestPublishDocumentReplacesActiveVersion(t *testing.T) {
	f := newFixture(t)
	v1 := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)
	f.sign(t, id, m, v1)

	v2, err := f.svc.PublishDocument(f.ctx, f.staff, services.DocumentInput{
		Code: "liability_waiver", Name: "Waiver", Content: "new terms", IsRequired: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "LIABILITY_WAIVER", v2.Code)
	assert.Equal(t, 2, v2.Version)

	old, err := f.svc.Document(f.ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	// signing v1 does not satisfy v2
	out, err := f.svc.OutstandingDocuments(f.ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, v2.ID, out[0].ID)

	progress, err := f.svc.SigningProgress(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, services.SigningProgress{Total: 1, Remaining: 1}, progress)

	_, err = f.svc.PublishDocument(f.ctx, id, services.DocumentInput{Code: "X", Name: "X", Content: "x"})
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
}

func TestSetDocumentFlags(t *testing.T) {
	f := newFixture(t)
	v1 := f.document(t, "LIABILITY_WAIVER", "Waiver", 1)
	v2 := models.Document{Code: "LIABILITY_WAIVER", Version: 2, Name: "Waiver", Content: "Waiver text v2", IsActive: true, IsRequired: true}
	require.NoError(t, f.gdb.Create(&v2).Error)
	require.NoError(t, f.gdb.Model(&v2).Update("is_active", false).Error)
	m, id := f.member(t, "Amy", "Rider", models.MemberApproved)
	f.sign(t, id, m, v1)

	// a second active version of the same code is refused
	_, err := f.svc.SetDocumentFlags(f.ctx, f.staff, v2.ID, true, true)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err), "%v", err)
	got, err := f.svc.Document(f.ctx, v2.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// deactivating a signed document keeps the signature
	doc, err := f.svc.SetDocumentFlags(f.ctx, f.staff, v1.ID, false, true)
	require.NoError(t, err)
	assert.False(t, doc.IsActive)
	signed, err := f.svc.SignedDocuments(f.ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, signed, 1)
	assert.Equal(t, v1.ID, signed[0].DocumentID)
	out, err := f.svc.OutstandingDocuments(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, out)

	// with v1 inactive, v2 can take over
	doc, err = f.svc.SetDocumentFlags(f.ctx, f.staff, v2.ID, true, true)
	require.NoError(t, err)
	assert.True(t, doc.IsActive)
	out, err = f.svc.OutstandingDocuments(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"LIABILITY_WAIVER"}, codes(out))

	_, err = f.svc.SetDocumentFlags(f.ctx, id, v2.ID, false, false)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
}

func TestSeedDefaultDocumentsIsIdempotent(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SeedDefaultDocuments(f.ctx)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].Created)
	assert.True(t, res[1].Created)

	res, err = f.svc.SeedDefaultDocuments(f.ctx)
	require.NoError(t, err)
	assert.False(t, res[0].Created)
	assert.False(t, res[1].Created)

	docs, err := f.svc.ListDocuments(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"LESSON_AGREEMENT", "LIABILITY_WAIVER"}, codes(docs))
	for _, d := range docs {
		assert.True(t, d.IsActive && d.IsRequired)
		assert.NotEmpty(t, d.Content)
	}
}

func TestLoadDocumentsFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "docs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
documents:
  - code: PHOTO_RELEASE
    name: Photo Release
    required: false
    content: |
      Photos may be used on the ranch website.
`), 0o600))

	res, err := f.svc.LoadDocumentsFile(f.ctx, path)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Created)

	docs, err := f.svc.ListDocuments(f.ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.False(t, docs[0].IsRequired)
	assert.Equal(t, 1, docs[0].Version)

	_, err = f.svc.LoadDocumentsFile(f.ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
