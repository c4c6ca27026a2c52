package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/dharsanguruparan/propshield/internal/model"
)

// Selection is the draft a user builds before submitting: a document type
// and an ordered list of files. It is frozen while a submission runs.
type Selection struct {
	mu       sync.Mutex
	docType  model.DocumentType
	files    []model.SelectedFile
	inFlight bool
}

// SetType selects the document type.
func (s *Selection) SetType(t model.DocumentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.docType = t
	return nil
}

// Type returns the selected document type.
func (s *Selection) Type() model.DocumentType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docType
}

// Add appends files in order.
func (s *Selection) Add(files ...model.SelectedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.files = append(s.files, files...)
	return nil
}

// Remove drops the file at index.
func (s *Selection) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	if index < 0 || index >= len(s.files) {
		return fmt.Errorf("no file at index %d", index)
	}
	s.files = append(s.files[:index], s.files[index+1:]...)
	return nil
}

// Files returns a copy of the selected files.
func (s *Selection) Files() []model.SelectedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SelectedFile(nil), s.files...)
}

// Reset clears the draft for another submission.
func (s *Selection) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.docType = ""
	s.files = nil
	return nil
}

// Submit sends the draft through o. The draft is left untouched so the
// caller decides whether to Reset.
func (s *Selection) Submit(ctx context.Context, o *Orchestrator, user *model.Profile, progress func(int)) (*Result, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.inFlight = true
	req := Request{
		User:         user,
		DocumentType: s.docType,
		Files:        append([]model.SelectedFile(nil), s.files...),
		Progress:     progress,
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()
	return o.Submit(ctx, req)
}
