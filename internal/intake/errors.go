package intake

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation failures, reported before any remote call.
var (
	ErrNotAuthenticated = errors.New("please sign in to upload documents")
	ErrMissingType      = errors.New("please select a document type")
	ErrUnknownType      = errors.New("unknown document type")
	ErrNoFiles          = errors.New("please select at least one document")
	ErrTooManyFiles     = errors.New("too many files")
	ErrFileTooLarge     = errors.New("file too large")
)

// ErrSubmissionInFlight rejects draft changes while a submission runs.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// ValidationError names the offending request field. It matches its
// sentinel with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.err }

func invalid(field string, sentinel error, format string, args ...any) *ValidationError {
	msg := sentinel.Error()
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &ValidationError{Field: field, Message: msg, err: sentinel}
}

// Submission stages.
const (
	StageCreateVerification = "create_verification"
	StageUpload             = "upload"
	StageCreateDocument     = "create_document"
)

// SubmitError is a remote failure during Submit. VerificationID is zero
// when the verification could not be created. Compensated is true when
// everything this submission wrote was rolled back.
type SubmitError struct {
	VerificationID uuid.UUID
	FileName       string
	Stage          string
	Err            error
	Compensated    bool
}

func (e *SubmitError) Error() string {
	switch e.Stage {
	case StageCreateVerification:
		return fmt.Sprintf("failed to create verification record: %v", e.Err)
	case StageUpload:
		return fmt.Sprintf("failed to upload %s: %v", e.FileName, e.Err)
	case StageCreateDocument:
		return fmt.Sprintf("failed to save document metadata for %s: %v", e.FileName, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
