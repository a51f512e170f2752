package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

const (
	StatusUploaded    InvoiceStatus = "uploaded"
	StatusProcessing  InvoiceStatus = "processing"
	StatusExtracted   InvoiceStatus = "extracted"
	StatusMatched     InvoiceStatus = "matched"
	StatusClassified  InvoiceStatus = "classified"
	StatusNeedsReview InvoiceStatus = "needs_review"
	StatusApproved    InvoiceStatus = "approved"
	StatusRejected    InvoiceStatus = "rejected"
)

var validStatuses = map[InvoiceStatus]bool{
	StatusUploaded:    true,
	StatusProcessing:  true,
	StatusExtracted:   true,
	StatusMatched:     true,
	StatusClassified:  true,
	StatusNeedsReview: true,
	StatusApproved:    true,
	StatusRejected:    true,
}

// ParseInvoiceStatus validates a raw status string.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(s)
	if !validStatuses[status] {
		return "", eris.Errorf("model: unknown invoice status %q", s)
	}
	return status, nil
}

// Terminal reports whether the status admits no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Invoice is an uploaded vendor invoice owned by a single builder (tenant).
// Status is mutated only through the review workflow's transition rules.
type Invoice struct {
	ID               string           `json:"id"`
	BuilderID        string           `json:"builder_id"`
	Filename         string           `json:"filename"`
	FilePath         string           `json:"file_path"`
	Status           InvoiceStatus    `json:"status"`
	ProcessingMethod ProcessingMethod `json:"processing_method,omitempty"`
	UploadedAt       time.Time        `json:"uploaded_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
