package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType enumerates the property documents the service accepts.
type DocumentType string

const (
	DocSaleDeed               DocumentType = "sale_deed"
	DocEncumbranceCertificate DocumentType = "ec"
	DocMutation               DocumentType = "mutation"
	DocTaxReceipt             DocumentType = "tax_receipt"
	DocPropertyCard           DocumentType = "property_card"
	DocApprovalPlan           DocumentType = "approval_plan"
	DocTitleDeed              DocumentType = "title_deed"
	DocOther                  DocumentType = "other"
)

// DocumentTypes lists every accepted type in display order.
var DocumentTypes = []DocumentType{
	DocSaleDeed,
	DocEncumbranceCertificate,
	DocMutation,
	DocTaxReceipt,
	DocPropertyCard,
	DocApprovalPlan,
	DocTitleDeed,
	DocOther,
}

var documentTypeLabels = map[DocumentType]string{
	DocSaleDeed:               "Sale Deed",
	DocEncumbranceCertificate: "Encumbrance Certificate",
	DocMutation:               "Mutation Records",
	DocTaxReceipt:             "Property Tax Receipt",
	DocPropertyCard:           "Property Card",
	DocApprovalPlan:           "Approval Plans",
	DocTitleDeed:              "Title Deed",
	DocOther:                  "Other Documents",
}

// Older clients send long spellings for a few types.
var documentTypeAliases = map[string]DocumentType{
	"encumbrance_certificate": DocEncumbranceCertificate,
	"property_tax":            DocTaxReceipt,
	"mutation_records":        DocMutation,
	"approval_plans":          DocApprovalPlan,
}

// ParseDocumentType accepts canonical values and their legacy aliases.
func ParseDocumentType(s string) (DocumentType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := documentTypeAliases[key]; ok {
		return alias, nil
	}
	dt := DocumentType(key)
	if _, ok := documentTypeLabels[dt]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Valid reports whether t is one of the canonical types.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeLabels[t]
	return ok
}

// Label returns the human readable name.
func (t DocumentType) Label() string {
	if l, ok := documentTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// OCRStatus tracks text extraction for a single document.
type OCRStatus string

const (
	OCRPending    OCRStatus = "pending"
	OCRProcessing OCRStatus = "processing"
	OCRCompleted  OCRStatus = "completed"
	OCRFailed     OCRStatus = "failed"
)

// Document is one uploaded file attached to a verification. A row only
// exists once its bytes are stored at Bucket/StoragePath.
type Document struct {
	ID             uuid.UUID       `json:"id"`
	VerificationID uuid.UUID       `json:"verificationId"`
	DocumentType   DocumentType    `json:"documentType"`
	FileName       string          `json:"fileName"`
	FileURL        string          `json:"fileUrl"`
	FileSize       int64           `json:"fileSize"`
	MimeType       string          `json:"mimeType"`
	Bucket         string          `json:"-"`
	StoragePath    string          `json:"-"`
	OCRStatus      OCRStatus       `json:"ocrStatus"`
	ExtractedData  json.RawMessage `json:"extractedData,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// SelectedFile is a locally chosen file waiting to be uploaded. It is
// never persisted.
type SelectedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}
