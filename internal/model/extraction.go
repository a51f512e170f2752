package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingMethod identifies which extraction strategy produced a result.
type ProcessingMethod string

const (
	MethodTraditional ProcessingMethod = "traditional"
	MethodVision      ProcessingMethod = "vision"

	// MethodBoth is an invoice-level marker for comparison runs; extraction
	// results themselves are always traditional or vision.
	MethodBoth ProcessingMethod = "both"
)

// ExtractionStatus summarizes how an extraction attempt went.
type ExtractionStatus string

const (
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionPartial ExtractionStatus = "partial"
	ExtractionFailed  ExtractionStatus = "failed"
)

// Confidence thresholds. One consistent set is used everywhere. Vars, not
// consts: startup overrides them from config before any service is built.
var (
	// SuccessThreshold and PartialThreshold partition [0,1] into
	// success / partial / failed extraction statuses.
	SuccessThreshold = 0.85
	PartialThreshold = 0.40

	// CostCodeFloor is the minimum classification confidence before a
	// line item is routed to human review.
	CostCodeFloor = 0.80
)

// Rule-based extraction confidence weights. Each weight is awarded in full
// when the field was extracted, zero otherwise.
const (
	WeightVendor        = 0.25
	WeightTotal         = 0.25
	WeightInvoiceNumber = 0.15
	WeightInvoiceDate   = 0.15
	WeightLineItems     = 0.20
)

// StatusForConfidence maps a confidence score to an extraction status.
// The partition is exact: c >= 0.85 success, 0.40 <= c < 0.85 partial,
// c < 0.40 failed.
func StatusForConfidence(c float64) ExtractionStatus {
	switch {
	case c >= SuccessThreshold:
		return ExtractionSuccess
	case c >= PartialThreshold:
		return ExtractionPartial
	default:
		return ExtractionFailed
	}
}

// ExtractedFields holds the four scalar invoice fields. Empty string / nil
// means the field was not extracted.
type ExtractedFields struct {
	VendorName    string           `json:"vendor_name,omitempty"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	InvoiceDate   string           `json:"invoice_date,omitempty"` // ISO 8601 date
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
}

// ExtractionResult is one strategy's output for one invoice. Results are
// append-only: re-running a strategy creates a new row.
type ExtractionResult struct {
	ID               string           `json:"id"`
	InvoiceID        string           `json:"invoice_id"`
	Method           ProcessingMethod `json:"processing_method"`
	Status           ExtractionStatus `json:"extraction_status"`
	Fields           ExtractedFields  `json:"fields"`
	LineItems        []LineItem       `json:"line_items"`
	Confidence       float64          `json:"confidence"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	RawOutput        map[string]any   `json:"raw_output,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// LineItem is a single invoice line. SuggestedCode and Confidence are filled
// by classification; ConfirmedCode only by a human override.
type LineItem struct {
	ID            string           `json:"id"`
	InvoiceID     string           `json:"invoice_id"`
	ResultID      string           `json:"result_id,omitempty"`
	Description   string           `json:"description"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	SuggestedCode string           `json:"suggested_code,omitempty"`
	Confidence    *float64         `json:"confidence,omitempty"`
	ConfirmedCode string           `json:"confirmed_code,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
