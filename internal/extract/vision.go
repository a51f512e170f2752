package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/pkg/anthropic"
)

const visionPrompt = `Analyze this invoice and extract the following information in JSON format:

{
  "vendor_name": "exact vendor/company name",
  "invoice_number": "invoice number",
  "invoice_date": "YYYY-MM-DD format",
  "total_amount": numeric value only,
  "line_items": [
    {
      "description": "item description",
      "quantity": numeric or null,
      "unit_price": numeric or null,
      "total": numeric value
    }
  ],
  "confidence": 0.0 to 1.0
}

Return ONLY valid JSON, no additional text.`

// defaultVisionConfidence is assumed when the model omits its self-report.
const defaultVisionConfidence = 0.85

// Vision extracts invoice fields by sending the document to a vision-capable
// model. Slower than the rule-based strategy but tolerant of visual noise.
type Vision struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	timeout   time.Duration
}

// VisionConfig tunes the vision strategy.
type VisionConfig struct {
	Model          string
	MaxTokens      int64
	RequestsPerMin float64
	Timeout        time.Duration
}

// NewVision creates the vision strategy over an Anthropic client.
func NewVision(client anthropic.Client, cfg VisionConfig) *Vision {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Vision{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60.0), 1),
		timeout:   cfg.Timeout,
	}
}

func (v *Vision) Method() model.ProcessingMethod {
	return model.MethodVision
}

func (v *Vision) Extract(ctx context.Context, doc Document) *model.ExtractionResult {
	start := time.Now()
	fail := func(msg string, extra map[string]any) *model.ExtractionResult {
		zap.L().Warn("vision extraction failed",
			zap.String("invoice_id", doc.InvoiceID),
			zap.String("reason", msg))
		res := failedResult(doc.InvoiceID, model.MethodVision, time.Since(start).Milliseconds(), msg)
		for k, val := range extra {
			res.RawOutput[k] = val
		}
		return res
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return fail(err.Error(), nil)
	}
	block, err := contentBlock(doc.Path, data)
	if err != nil {
		return fail(err.Error(), nil)
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return fail(err.Error(), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		System:    anthropic.CachedSystemBlocks("You extract structured data from construction invoices."),
		Messages: []anthropic.Message{
			{Role: "user", Content: []anthropic.Block{
				block,
				{Type: "text", Text: visionPrompt},
			}},
		},
	})
	if err != nil {
		return fail(err.Error(), nil)
	}
	resp.Usage.LogCost(v.model, "vision_extraction")

	raw := resp.Text()
	var parsed map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return fail("JSON parsing failed: "+err.Error(), map[string]any{"raw": raw})
	}

	fields := model.ExtractedFields{
		VendorName:    stringField(parsed, "vendor_name"),
		InvoiceNumber: stringField(parsed, "invoice_number"),
		InvoiceDate:   stringField(parsed, "invoice_date"),
		TotalAmount:   decimalField(parsed, "total_amount"),
	}

	var items []model.LineItem
	if rawItems, ok := parsed["line_items"].([]any); ok {
		for _, ri := range rawItems {
			entry, ok := ri.(map[string]any)
			if !ok {
				continue
			}
			amount := decimalField(entry, "total")
			if amount == nil {
				continue
			}
			items = append(items, model.LineItem{
				Description: stringField(entry, "description"),
				Quantity:    decimalField(entry, "quantity"),
				UnitPrice:   decimalField(entry, "unit_price"),
				Amount:      *amount,
			})
		}
	}

	// Self-reported confidence is untrusted input: clamp to [0,1] so a wild
	// report can never outrank legitimate results in BestResult ordering.
	confidence := defaultVisionConfidence
	if c, ok := parsed["confidence"].(float64); ok {
		confidence = math.Max(0, math.Min(1, c))
	}

	return &model.ExtractionResult{
		InvoiceID:        doc.InvoiceID,
		Method:           model.MethodVision,
		Status:           model.StatusForConfidence(confidence),
		Fields:           fields,
		LineItems:        items,
		Confidence:       confidence,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		RawOutput:        parsed,
	}
}

// contentBlock picks a document block for PDFs and an image block otherwise.
func contentBlock(path string, data []byte) (anthropic.Block, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return anthropic.DocumentBlock(encoded), nil
	case ".png":
		return anthropic.ImageBlock("image/png", encoded), nil
	case ".jpg", ".jpeg":
		return anthropic.ImageBlock("image/jpeg", encoded), nil
	case ".webp":
		return anthropic.ImageBlock("image/webp", encoded), nil
	default:
		return anthropic.Block{}, eris.Errorf("extract: unsupported document format %q", filepath.Ext(path))
	}
}

// extractJSON pulls the JSON object out of a model response. Strips markdown
// code fences and trims to the outermost brace pair.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 2 {
			lines = lines[1 : len(lines)-1]
		} else if len(lines) > 1 {
			lines = lines[1:]
		}
		text = strings.Join(lines, "\n")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// decimalField coerces a JSON number or numeric string into a decimal.
func decimalField(m map[string]any, key string) *decimal.Decimal {
	switch v := m[key].(type) {
	case float64:
		d := decimal.NewFromFloat(v)
		return &d
	case string:
		d, err := decimal.NewFromString(strings.TrimPrefix(strings.ReplaceAll(v, ",", ""), "$"))
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}
