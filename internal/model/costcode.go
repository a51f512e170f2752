package model

import "time"

// CostCode is a builder-scoped taxonomy entry line items are classified to.
type CostCode struct {
	ID          string    `json:"id"`
	BuilderID   string    `json:"builder_id"`
	Code        string    `json:"code"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Trade       string    `json:"trade,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmbeddingText is the text embedded for similarity scoring.
func (c CostCode) EmbeddingText() string {
	text := c.Code + " " + c.Label
	if c.Description != "" {
		text += " " + c.Description
	}
	return text
}

// Suggestion is a per-line-item classification outcome.
type Suggestion struct {
	LineItemID    string  `json:"line_item_id"`
	Description   string  `json:"description"`
	SuggestedCode string  `json:"suggested_code,omitempty"`
	Confidence    float64 `json:"confidence"`
	NeedsReview   bool    `json:"needs_review"`
}
