// Package memstore is an in-process backend: every repository contract
// backed by maps guarded with an RWMutex, plus an in-memory object store.
// Tests use its call counter and failure hooks to drive partial failures.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/repository"
	"github.com/dharsanguruparan/propshield/internal/s3storage"
)

// ErrInjected is returned by operations failed through the hooks.
var ErrInjected = errors.New("injected failure")

// Store satisfies repository.Profiles, Verifications, Documents and
// Activity.
type Store struct {
	mu            sync.RWMutex
	profiles      map[uuid.UUID]*model.Profile
	verifications map[uuid.UUID]*model.Verification
	documents     map[uuid.UUID]*model.Document
	docOrder      []uuid.UUID
	activity      []model.ActivityLog
	calls         int
	docCreates    int

	failVerification bool
	failDocumentAt   int

	// Objects holds uploaded bytes.
	Objects *s3storage.MemoryStore
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		profiles:      make(map[uuid.UUID]*model.Profile),
		verifications: make(map[uuid.UUID]*model.Verification),
		documents:     make(map[uuid.UUID]*model.Document),
		Objects:       s3storage.NewMemoryStore(),
	}
}

// FailVerification makes every CreateVerification fail.
func (s *Store) FailVerification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failVerification = true
}

// FailDocumentAt makes the n-th CreateDocument call (1-indexed) fail.
func (s *Store) FailDocumentAt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDocumentAt = n
}

// FailUploadAt makes the n-th object write (1-indexed) fail.
func (s *Store) FailUploadAt(n int) {
	s.Objects.FailPut = s3storage.FailNthPut(n)
}

// Calls counts every record operation plus object writes.
func (s *Store) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls + s.Objects.PutCalls
}

func (s *Store) CreateProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, existing := range s.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return repository.ErrDuplicate
		}
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpsertProviderProfile(_ context.Context, p *model.Profile) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	now := time.Now().UTC()
	for _, existing := range s.profiles {
		if !strings.EqualFold(existing.Email, p.Email) {
			continue
		}
		existing.Provider = p.Provider
		if existing.FullName == "" {
			existing.FullName = p.FullName
		}
		if existing.AvatarURL == "" {
			existing.AvatarURL = p.AvatarURL
		}
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	cp := *p
	cp.Email = strings.ToLower(p.Email)
	cp.PasswordHash = ""
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.profiles[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) CreateVerification(_ context.Context, v *model.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failVerification {
		return ErrInjected
	}
	if _, ok := s.verifications[v.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *v
	s.verifications[v.ID] = &cp
	return nil
}

func (s *Store) GetVerification(_ context.Context, id uuid.UUID) (*model.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyVerification(v), nil
}

func (s *Store) ListVerifications(_ context.Context, userID uuid.UUID) ([]model.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Verification{}
	for _, v := range s.verifications {
		if v.UserID == userID {
			out = append(out, *copyVerification(v))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateVerificationStatus(_ context.Context, id uuid.UUID, status model.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	v, ok := s.verifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	return nil
}

// SetScore stands in for the external fraud scorer.
func (s *Store) SetScore(id uuid.UUID, score float64, rating model.RiskRating, status model.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.FraudScore = &score
	v.RiskRating = rating
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteVerification(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.verifications[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.verifications, id)
	kept := s.docOrder[:0]
	for _, docID := range s.docOrder {
		if s.documents[docID].VerificationID == id {
			delete(s.documents, docID)
			continue
		}
		kept = append(kept, docID)
	}
	s.docOrder = kept
	return nil
}

func (s *Store) CreateDocument(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.docCreates++
	if s.failDocumentAt > 0 && s.docCreates == s.failDocumentAt {
		return ErrInjected
	}
	if _, ok := s.verifications[d.VerificationID]; !ok {
		return fmt.Errorf("document references verification %s: %w", d.VerificationID, repository.ErrNotFound)
	}
	cp := *d
	cp.ExtractedData = cloneJSON(d.ExtractedData)
	s.documents[d.ID] = &cp
	s.docOrder = append(s.docOrder, d.ID)
	return nil
}

func (s *Store) GetDocument(_ context.Context, id uuid.UUID) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyDocument(d), nil
}

func (s *Store) ListDocuments(_ context.Context, verificationID uuid.UUID) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Document{}
	for _, id := range s.docOrder {
		if d := s.documents[id]; d.VerificationID == verificationID {
			out = append(out, *copyDocument(d))
		}
	}
	return out, nil
}

func (s *Store) UpdateDocumentOCR(_ context.Context, id uuid.UUID, status model.OCRStatus, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	d, ok := s.documents[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.OCRStatus = status
	if data != nil {
		d.ExtractedData = cloneJSON(data)
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.documents[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.documents, id)
	for i, docID := range s.docOrder {
		if docID == id {
			s.docOrder = append(s.docOrder[:i], s.docOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) AppendActivity(_ context.Context, entry *model.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cp := *entry
	cp.Details = cloneJSON(entry.Details)
	s.activity = append(s.activity, cp)
	return nil
}

// ActivityLog returns a copy of every appended entry.
func (s *Store) ActivityLog() []model.ActivityLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ActivityLog(nil), s.activity...)
}

func copyVerification(v *model.Verification) *model.Verification {
	cp := *v
	if v.FraudScore != nil {
		score := *v.FraudScore
		cp.FraudScore = &score
	}
	return &cp
}

func copyDocument(d *model.Document) *model.Document {
	cp := *d
	cp.ExtractedData = cloneJSON(d.ExtractedData)
	return &cp
}

func cloneJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}
