package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/memstore"
	"github.com/dharsanguruparan/propshield/internal/model"
)

type fixture struct {
	store *memstore.Store
	b     *backend.Backend
	user  *model.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	return &fixture{
		store: store,
		b:     backend.NewMemory(store, "https://backend.example", zap.NewNop()),
		user:  &model.Profile{ID: uuid.New(), Email: "owner@example.com"},
	}
}

func (f *fixture) files(t *testing.T, names ...string) []model.SelectedFile {
	t.Helper()
	dir := t.TempDir()
	out := make([]model.SelectedFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		content := "content of " + name
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		out = append(out, model.SelectedFile{Name: name, URI: "file://" + path, Size: int64(len(content))})
	}
	return out
}

func (f *fixture) verifications(t *testing.T) []model.Verification {
	t.Helper()
	vs, err := f.store.ListVerifications(context.Background(), f.user.ID)
	require.NoError(t, err)
	return vs
}

func (f *fixture) documents(t *testing.T, id uuid.UUID) []model.Document {
	t.Helper()
	docs, err := f.store.ListDocuments(context.Background(), id)
	require.NoError(t, err)
	return docs
}

type recordingDispatcher struct {
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.ids = append(d.ids, id)
	return d.err
}

func TestSubmitRejectsBeforeAnyRemoteCall(t *testing.T) {
	f := newFixture(t)
	o := New(f.b, zap.NewNop(), WithLimits(2, 100))
	one := f.files(t, "a.pdf")
	big := []model.SelectedFile{{Name: "big.pdf", URI: "/tmp/big.pdf", Size: 101}}

	tests := []struct {
		name  string
		req   Request
		want  error
		field string
	}{
		{"no user", Request{DocumentType: model.DocSaleDeed, Files: one}, ErrNotAuthenticated, "user"},
		{"missing type", Request{User: f.user, Files: one}, ErrMissingType, "document_type"},
		{"unknown type", Request{User: f.user, DocumentType: "deed_of_doom", Files: one}, ErrUnknownType, "document_type"},
		{"no files", Request{User: f.user, DocumentType: model.DocSaleDeed}, ErrNoFiles, "files"},
		{"too many files", Request{User: f.user, DocumentType: model.DocSaleDeed, Files: f.files(t, "1", "2", "3")}, ErrTooManyFiles, "files"},
		{"file too large", Request{User: f.user, DocumentType: model.DocSaleDeed, Files: big}, ErrFileTooLarge, "files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Submit(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, f.store.Calls())
		})
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t)
	dispatcher := &recordingDispatcher{}
	o := New(f.b, zap.NewNop(), WithDispatcher(dispatcher))
	files := f.files(t, "deed.pdf", "photo 1.JPG", "notes.txt")
	files[0].MimeType = "text/json,application/pdf"

	var progress []int
	res, err := o.Submit(context.Background(), Request{
		User:         f.user,
		DocumentType: model.DocSaleDeed,
		Files:        files,
		Progress:     func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 26, 53, 80, 100}, progress)

	vs := f.verifications(t)
	require.Len(t, vs, 1)
	v := vs[0]
	assert.Equal(t, res.VerificationID, v.ID)
	assert.Equal(t, model.VerificationPending, v.Status)
	assert.Equal(t, model.RiskPending, v.RiskRating)
	assert.Nil(t, v.FraudScore)
	assert.Equal(t, model.PlaceholderAddress, v.PropertyAddress)

	docs := f.documents(t, v.ID)
	require.Len(t, docs, 3)
	assert.Equal(t, res.Documents, docs)
	wantTypes := []string{"application/pdf", "image/jpeg", "text/plain"}
	for i, d := range docs {
		assert.Equal(t, files[i].Name, d.FileName)
		assert.Equal(t, v.ID, d.VerificationID)
		assert.Equal(t, model.DocSaleDeed, d.DocumentType)
		assert.Equal(t, model.OCRPending, d.OCRStatus)
		assert.Equal(t, wantTypes[i], d.MimeType)
		assert.Equal(t, files[i].Size, d.FileSize)
		assert.True(t, strings.HasPrefix(d.StoragePath, f.user.ID.String()+"/"+v.ID.String()+"/"), d.StoragePath)
		assert.Equal(t, "https://backend.example/storage/v1/object/public/documents/"+d.StoragePath, d.FileURL)
		assert.Equal(t, wantTypes[i], f.store.Objects.ContentType("documents", d.StoragePath))
	}
	assert.Equal(t, 3, f.store.Objects.Len())
	assert.Equal(t, []uuid.UUID{v.ID}, dispatcher.ids)

	log := f.store.ActivityLog()
	require.Len(t, log, 1)
	assert.Equal(t, model.ActionVerificationSubmitted, log[0].Action)
	assert.Equal(t, f.user.ID, log[0].UserID)
}

func TestSubmitDispatchFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	o := New(f.b, zap.NewNop(), WithDispatcher(&recordingDispatcher{err: errors.New("redis down")}))
	res, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocOther, Files: f.files(t, "a.pdf")})
	require.NoError(t, err)
	assert.Len(t, f.documents(t, res.VerificationID), 1)
}

func TestSubmitUploadFailureWithoutCompensation(t *testing.T) {
	for _, k := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("file %d fails", k), func(t *testing.T) {
			f := newFixture(t)
			f.store.FailUploadAt(k)
			o := New(f.b, zap.NewNop(), WithoutCompensation())
			files := f.files(t, "f1.pdf", "f2.pdf", "f3.pdf", "f4.pdf")

			_, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocTaxReceipt, Files: files})
			require.Error(t, err)
			var serr *SubmitError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, StageUpload, serr.Stage)
			assert.Equal(t, files[k-1].Name, serr.FileName)
			assert.Contains(t, err.Error(), files[k-1].Name)
			assert.False(t, serr.Compensated)

			vs := f.verifications(t)
			require.Len(t, vs, 1)
			assert.Equal(t, serr.VerificationID, vs[0].ID)
			assert.Equal(t, model.VerificationPending, vs[0].Status)
			docs := f.documents(t, vs[0].ID)
			assert.Len(t, docs, k-1)
			for i, d := range docs {
				assert.Equal(t, files[i].Name, d.FileName)
			}
		})
	}
}

func TestSubmitUploadFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.store.FailUploadAt(3)
	o := New(f.b, zap.NewNop())
	files := f.files(t, "f1.pdf", "f2.pdf", "f3.pdf")

	_, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocMutation, Files: files})
	var serr *SubmitError
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.Compensated)
	assert.Equal(t, "f3.pdf", serr.FileName)

	vs := f.verifications(t)
	require.Len(t, vs, 1)
	assert.Equal(t, model.VerificationFailed, vs[0].Status)
	assert.Empty(t, f.documents(t, vs[0].ID))
	assert.Equal(t, 0, f.store.Objects.Len())
	assert.Empty(t, f.store.ActivityLog())
}

func TestSubmitDocumentFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.store.FailDocumentAt(2)
	o := New(f.b, zap.NewNop())
	files := f.files(t, "f1.pdf", "f2.pdf", "f3.pdf")

	_, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocMutation, Files: files})
	var serr *SubmitError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StageCreateDocument, serr.Stage)
	assert.Equal(t, "f2.pdf", serr.FileName)
	assert.ErrorIs(t, err, memstore.ErrInjected)
	assert.True(t, serr.Compensated)

	assert.Equal(t, 0, f.store.Objects.Len())
	vs := f.verifications(t)
	require.Len(t, vs, 1)
	assert.Empty(t, f.documents(t, vs[0].ID))
}

func TestSubmitDocumentFailureLeavesOrphanWithoutCompensation(t *testing.T) {
	f := newFixture(t)
	f.store.FailDocumentAt(1)
	o := New(f.b, zap.NewNop(), WithoutCompensation())

	_, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocMutation, Files: f.files(t, "f1.pdf")})
	require.Error(t, err)
	assert.Equal(t, 1, f.store.Objects.Len())
}

func TestSubmitVerificationFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailVerification()
	o := New(f.b, zap.NewNop())

	_, err := o.Submit(context.Background(), Request{User: f.user, DocumentType: model.DocOther, Files: f.files(t, "a.pdf")})
	var serr *SubmitError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StageCreateVerification, serr.Stage)
	assert.Equal(t, uuid.Nil, serr.VerificationID)
	assert.Equal(t, 0, f.store.Objects.PutCalls)
	assert.Empty(t, f.verifications(t))
}

func TestSelectionLifecycle(t *testing.T) {
	f := newFixture(t)
	o := New(f.b, zap.NewNop())
	var sel Selection

	require.NoError(t, sel.SetType(model.DocPropertyCard))
	require.NoError(t, sel.Add(f.files(t, "a.pdf", "b.pdf", "c.pdf")...))
	require.NoError(t, sel.Remove(1))
	require.Error(t, sel.Remove(5))
	names := []string{}
	for _, file := range sel.Files() {
		names = append(names, file.Name)
	}
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, names)

	var inFlightErrs []error
	res, err := sel.Submit(context.Background(), o, f.user, func(p int) {
		if p == 0 {
			inFlightErrs = append(inFlightErrs,
				sel.Add(model.SelectedFile{Name: "late.pdf"}),
				sel.SetType(model.DocOther),
				sel.Remove(0),
				sel.Reset(),
			)
		}
	})
	require.NoError(t, err)
	require.Len(t, inFlightErrs, 4)
	for _, e := range inFlightErrs {
		assert.ErrorIs(t, e, ErrSubmissionInFlight)
	}
	assert.Len(t, res.Documents, 2)

	assert.Len(t, sel.Files(), 2)
	require.NoError(t, sel.Reset())
	assert.Empty(t, sel.Files())
	assert.Equal(t, model.DocumentType(""), sel.Type())
}
