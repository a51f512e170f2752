// Package compare reconciles the outputs of the two extraction strategies
// for one invoice. It is a read-only diagnostic and never mutates status.
package compare

import (
	"strings"

	"github.com/buildflow/invoicepipe/internal/model"
)

// Winner values. Empty means only one strategy ran.
const (
	WinnerTraditional = "traditional"
	WinnerVision      = "vision"
	WinnerTie         = "tie"
)

// Comparison holds the agreement diagnostics between the two strategies.
// Pointer fields are nil when the underlying inputs are absent.
type Comparison struct {
	FieldMatchRate       *float64 `json:"field_match_rate"`
	TimeDifferenceMS     *int64   `json:"time_difference_ms"`
	ConfidenceDifference *float64 `json:"confidence_difference"`
	Winner               string   `json:"winner,omitempty"`
}

// Report is the full side-by-side payload for one invoice.
type Report struct {
	InvoiceID   string                  `json:"invoice_id"`
	Filename    string                  `json:"invoice_filename,omitempty"`
	Traditional *model.ExtractionResult `json:"traditional"`
	Vision      *model.ExtractionResult `json:"vision"`
	Comparison  Comparison              `json:"comparison"`
}

// Compare computes agreement metrics between the latest rule-based and
// vision results. Either input may be nil.
//
// field_match_rate counts only the scalar fields present in both results:
// case-insensitive compare for text, exact value compare for the amount.
// Deltas are signed vision minus traditional. The winner is the strategy
// with strictly higher confidence.
func Compare(traditional, vision *model.ExtractionResult) Comparison {
	var c Comparison
	if traditional == nil || vision == nil {
		return c
	}

	rate := fieldMatchRate(traditional.Fields, vision.Fields)
	c.FieldMatchRate = &rate

	timeDiff := vision.ProcessingTimeMS - traditional.ProcessingTimeMS
	c.TimeDifferenceMS = &timeDiff

	confDiff := vision.Confidence - traditional.Confidence
	c.ConfidenceDifference = &confDiff

	switch {
	case vision.Confidence > traditional.Confidence:
		c.Winner = WinnerVision
	case traditional.Confidence > vision.Confidence:
		c.Winner = WinnerTraditional
	default:
		c.Winner = WinnerTie
	}
	return c
}

func fieldMatchRate(a, b model.ExtractedFields) float64 {
	matches, total := 0, 0

	textField := func(av, bv string) {
		if av == "" || bv == "" {
			return
		}
		total++
		if strings.EqualFold(av, bv) {
			matches++
		}
	}
	textField(a.VendorName, b.VendorName)
	textField(a.InvoiceNumber, b.InvoiceNumber)
	textField(a.InvoiceDate, b.InvoiceDate)

	if a.TotalAmount != nil && b.TotalAmount != nil {
		total++
		if a.TotalAmount.Equal(*b.TotalAmount) {
			matches++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}
