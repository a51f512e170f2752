package model

import "time"

// ConfidenceLevel bands a vendor match score for routing.
type ConfidenceLevel string

const (
	LevelHigh        ConfidenceLevel = "high"
	LevelAutoApprove ConfidenceLevel = "auto_approve"
	LevelReview      ConfidenceLevel = "review"
	LevelLow         ConfidenceLevel = "low"
)

// Vendor match score bands (0-100 scale). VendorHighThreshold is overridable
// from config at startup.
var (
	VendorHighThreshold        = 90
	VendorAutoApproveThreshold = 85
	VendorReviewThreshold      = 70
)

// LevelForScore derives the confidence band from a match score.
func LevelForScore(score int) ConfidenceLevel {
	switch {
	case score >= VendorHighThreshold:
		return LevelHigh
	case score >= VendorAutoApproveThreshold:
		return LevelAutoApprove
	case score >= VendorReviewThreshold:
		return LevelReview
	default:
		return LevelLow
	}
}

// Subcontractor is a registered vendor, scoped to a builder.
type Subcontractor struct {
	ID          string         `json:"id"`
	BuilderID   string         `json:"builder_id"`
	Name        string         `json:"name"`
	ContactInfo map[string]any `json:"contact_info,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// VendorCandidate is a ranked fuzzy-match candidate. Only the top candidate
// is persisted (as a VendorMatch); the rest are returned for UI suggestions.
type VendorCandidate struct {
	SubcontractorID   string          `json:"subcontractor_id"`
	SubcontractorName string          `json:"subcontractor_name"`
	Score             int             `json:"score"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	ContactInfo       map[string]any  `json:"contact_info,omitempty"`
}

// VendorMatch is the persisted top candidate for an invoice.
type VendorMatch struct {
	ID              string     `json:"id"`
	InvoiceID       string     `json:"invoice_id"`
	SubcontractorID string     `json:"subcontractor_id,omitempty"`
	MatchScore      int        `json:"match_score"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// VendorMatchResult is the resolver's response shape.
type VendorMatchResult struct {
	InvoiceID       string            `json:"invoice_id"`
	ExtractedVendor string            `json:"extracted_vendor"`
	Matches         []VendorCandidate `json:"matches"`
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
}
