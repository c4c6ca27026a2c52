package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/repository"
	"github.com/dharsanguruparan/propshield/internal/s3storage"
	"github.com/dharsanguruparan/propshield/internal/status"
)

const formOverhead = 1 << 20

// progressResponse is a progress snapshot plus the documents behind it.
type progressResponse struct {
	status.Progress
	Documents []model.Document `json:"documents"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	limit := s.cfg.MaxFileSize*int64(s.cfg.MaxFiles+1) + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}

	dir, err := os.MkdirTemp("", "propshield-upload-*")
	if err != nil {
		s.respondErr(w, r, fmt.Errorf("create upload dir: %w", err))
		return
	}
	defer os.RemoveAll(dir)

	req := intake.Request{User: user}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		switch part.FormName() {
		case "document_type":
			raw, _ := io.ReadAll(io.LimitReader(part, 256))
			req.DocumentType = documentType(string(raw))
		case "files":
			file, err := s.persistTemp(part, dir, len(req.Files))
			if err != nil {
				part.Close()
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.Files = append(req.Files, file)
		}
		part.Close()
	}

	res, err := s.intake.Submit(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// documentType resolves aliases and leaves unknown values for the
// orchestrator to reject.
func documentType(raw string) model.DocumentType {
	if t, err := model.ParseDocumentType(raw); err == nil {
		return t
	}
	return model.DocumentType(strings.TrimSpace(raw))
}

// persistTemp copies one file part to dir. At most MaxFileSize+1 bytes are
// kept so an oversized file still fails validation with its own message.
func (s *Server) persistTemp(part *multipart.Part, dir string, index int) (model.SelectedFile, error) {
	name := part.FileName()
	if name == "" {
		name = fmt.Sprintf("upload-%d", index+1)
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d_%s", index, s3storage.SanitizeFileName(filepath.Base(name))))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return model.SelectedFile{}, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		return model.SelectedFile{}, fmt.Errorf("read %s: %w", name, err)
	}
	if written == 0 {
		return model.SelectedFile{}, fmt.Errorf("%s is empty", name)
	}
	if written > s.cfg.MaxFileSize {
		// discard the rest so the next part can be read
		_, _ = io.Copy(io.Discard, part)
	}
	return model.SelectedFile{
		Name:     name,
		URI:      path,
		Size:     written,
		MimeType: part.Header.Get("Content-Type"),
	}, nil
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	list, err := s.backend.Verifications.ListVerifications(r.Context(), user.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []model.Verification{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	v, err := s.ownedVerification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	progress, err := s.tracker.Snapshot(r.Context(), v.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	docs, err := s.backend.Documents.ListDocuments(r.Context(), v.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	respondJSON(w, http.StatusOK, progressResponse{Progress: progress, Documents: docs})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opts := s3storage.ListOptions{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	entries, err := s.backend.Storage.List(r.Context(), s.backend.Buckets.Documents, user.ID.String(), opts)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []s3storage.ObjectInfo{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	doc, err := s.backend.Documents.GetDocument(ctx, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if _, err := s.ownedVerification(ctx, doc.VerificationID.String()); err != nil {
		s.respondErr(w, r, err)
		return
	}
	ttl := s.cfg.SignedURLTTL
	u, err := s.backend.Storage.SignedURL(ctx, doc.Bucket, doc.StoragePath, ttl)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"url":       u,
		"expiresAt": time.Now().Add(ttl).UTC(),
	})
}

// ownedVerification loads a verification of the signed-in user. Other
// users' verifications are reported as missing.
func (s *Server) ownedVerification(ctx context.Context, rawID string) (*model.Verification, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	v, err := s.backend.Verifications.GetVerification(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.UserID != userFrom(ctx).ID {
		s.log.Warn("verification access denied",
			zap.String("verification_id", id.String()),
			zap.String("user_id", userFrom(ctx).ID.String()),
		)
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
