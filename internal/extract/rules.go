package extract

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/ocr"
)

var (
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:total|amount\s+due|balance\s+due)[\s:$]*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?i)(?:grand\s+total|invoice\s+total)[\s:$]*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?i)\$\s*(\d{1,3}(?:,\d{3})*\.\d{2})\s*(?:total|due)`),
	}

	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*(?:#|no|number)[\s:]*([A-Z0-9-]+)`),
		regexp.MustCompile(`(?i)inv[\s#:]+([A-Z0-9-]+)`),
		regexp.MustCompile(`#\s*([A-Z0-9-]{3,})`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:invoice\s+)?date[\s:]*(\d{4}-\d{1,2}-\d{1,2})`),
		regexp.MustCompile(`(?i)(?:invoice\s+)?date[\s:]*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
		regexp.MustCompile(`(?i)date[\s:]*(\d{1,2}/\d{1,2}/\d{2,4})`),
		regexp.MustCompile(`(\d{4}-\d{1,2}-\d{1,2})`),
		regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
	}

	// Vendor names live in the top few lines. The entity-suffix pattern is
	// tried first, then any leading capitalized run.
	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^([A-Z][A-Za-z\s&,.]+(?:LLC|Inc|Corp|Co|Company|Ltd|Limited))`),
		regexp.MustCompile(`^([A-Z][A-Za-z\s&,.]+)`),
	}

	// Strict line-item pattern: description, quantity, unit price, total.
	strictItemPattern = regexp.MustCompile(`([A-Za-z][A-Za-z\s-]+)\s+(\d+(?:\.\d{2})?)\s+\$?(\d+\.\d{2})\s+\$?(\d+\.\d{2})`)
	// Looser fallback: description and amount, tolerating dashes and commas.
	flexibleItemPattern = regexp.MustCompile(`([A-Za-z][A-Za-z\s\-–—,]+)\s+\$?([\d,]+\.\d{2})`)
	// Last resort: plain description and amount.
	simpleItemPattern = regexp.MustCompile(`([A-Za-z][A-Za-z\s-]{10,})\s+\$?(\d+\.\d{2})`)

	summaryRowPattern = regexp.MustCompile(`(?i)(invoice|total|subtotal|tax|balance|due)`)
)

// RuleBased extracts invoice fields from OCR text with pattern rules. Fast
// but fragile: a bad scan collapses every field at once, since all of them
// come from the same noisy text.
type RuleBased struct {
	ocr ocr.Extractor
}

// NewRuleBased creates the rule-based strategy over an OCR extractor.
func NewRuleBased(extractor ocr.Extractor) *RuleBased {
	return &RuleBased{ocr: extractor}
}

func (r *RuleBased) Method() model.ProcessingMethod {
	return model.MethodTraditional
}

func (r *RuleBased) Extract(ctx context.Context, doc Document) *model.ExtractionResult {
	start := time.Now()

	text, err := r.ocr.ExtractText(ctx, doc.Path)
	if err != nil {
		zap.L().Warn("rule-based extraction failed",
			zap.String("invoice_id", doc.InvoiceID),
			zap.Error(err))
		return failedResult(doc.InvoiceID, model.MethodTraditional, time.Since(start).Milliseconds(), err.Error())
	}

	fields := parseFields(text)
	items := parseLineItems(text)
	confidence := scoreConfidence(fields, items)

	snippet := text
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}

	return &model.ExtractionResult{
		InvoiceID:        doc.InvoiceID,
		Method:           model.MethodTraditional,
		Status:           model.StatusForConfidence(confidence),
		Fields:           fields,
		LineItems:        items,
		Confidence:       confidence,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		RawOutput:        map[string]any{"ocr_text": snippet},
	}
}

func parseFields(text string) model.ExtractedFields {
	var fields model.ExtractedFields

	// Vendor: scan the first three non-empty lines.
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > 3 {
		lines = lines[:3]
	}
vendorScan:
	for _, line := range lines {
		for _, p := range vendorPatterns {
			if m := p.FindStringSubmatch(line); m != nil {
				fields.VendorName = strings.TrimSpace(m[1])
				break vendorScan
			}
		}
	}

	for _, p := range invoiceNumberPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			fields.InvoiceNumber = strings.TrimSpace(m[1])
			break
		}
	}

	for _, p := range datePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			fields.InvoiceDate = strings.TrimSpace(m[1])
			break
		}
	}

	for _, p := range totalPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
			if err != nil {
				continue
			}
			fields.TotalAmount = &amount
			break
		}
	}

	return fields
}

func parseLineItems(text string) []model.LineItem {
	var items []model.LineItem

	for _, m := range strictItemPattern.FindAllStringSubmatch(text, -1) {
		qty, err1 := decimal.NewFromString(m[2])
		price, err2 := decimal.NewFromString(m[3])
		amount, err3 := decimal.NewFromString(m[4])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		items = append(items, model.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    &qty,
			UnitPrice:   &price,
			Amount:      amount,
		})
	}
	if len(items) > 0 {
		return items
	}

	for _, m := range flexibleItemPattern.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(m[1])
		// Skip header and summary rows; require a real description.
		if len(desc) <= 10 || summaryRowPattern.MatchString(desc) {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
		if err != nil {
			continue
		}
		// Reject implausible amounts that are usually parse noise.
		if amount.LessThan(decimal.NewFromInt(10)) || amount.GreaterThan(decimal.NewFromInt(1_000_000)) {
			continue
		}
		items = append(items, model.LineItem{Description: desc, Amount: amount})
	}
	if len(items) > 0 {
		return items
	}

	for _, m := range simpleItemPattern.FindAllStringSubmatch(text, -1) {
		amount, err := decimal.NewFromString(m[2])
		if err != nil {
			continue
		}
		items = append(items, model.LineItem{
			Description: strings.TrimSpace(m[1]),
			Amount:      amount,
		})
	}
	return items
}

// scoreConfidence awards each field's full weight when extracted, nothing
// otherwise. No partial credit within a field.
func scoreConfidence(fields model.ExtractedFields, items []model.LineItem) float64 {
	score := 0.0
	if fields.VendorName != "" {
		score += model.WeightVendor
	}
	if fields.InvoiceNumber != "" {
		score += model.WeightInvoiceNumber
	}
	if fields.InvoiceDate != "" {
		score += model.WeightInvoiceDate
	}
	if fields.TotalAmount != nil {
		score += model.WeightTotal
	}
	if len(items) > 0 {
		score += model.WeightLineItems
	}
	return math.Round(score*100) / 100
}
