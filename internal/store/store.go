package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/buildflow/invoicepipe/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// InvoiceFilter specifies criteria for listing invoices.
type InvoiceFilter struct {
	BuilderID string              `json:"builder_id,omitempty"`
	Status    model.InvoiceStatus `json:"status,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the invoice pipeline.
// Every vendor and cost-code read is keyed by builder id; tenant scoping is
// structural, not an optional filter.
type Store interface {
	// Invoices
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error
	SetProcessingMethod(ctx context.Context, id string, method model.ProcessingMethod) error
	DeleteInvoice(ctx context.Context, id string) error

	// Extraction results (append-only; re-runs create new rows)
	CreateExtractionResult(ctx context.Context, res *model.ExtractionResult) error
	LatestResultByMethod(ctx context.Context, invoiceID string, method model.ProcessingMethod) (*model.ExtractionResult, error)
	BestResult(ctx context.Context, invoiceID string) (*model.ExtractionResult, error)
	UpdateResultFields(ctx context.Context, resultID string, fields model.ExtractedFields) error

	// Line items
	ListLineItemsByResult(ctx context.Context, resultID string) ([]model.LineItem, error)
	UpdateLineItemSuggestion(ctx context.Context, lineItemID, code string, confidence float64) error
	ConfirmLineItemCode(ctx context.Context, lineItemID, code string) error

	// Vendor registry and matches
	CreateSubcontractor(ctx context.Context, sub *model.Subcontractor) error
	ListSubcontractors(ctx context.Context, builderID string) ([]model.Subcontractor, error)
	SaveVendorMatch(ctx context.Context, m *model.VendorMatch) error
	GetVendorMatch(ctx context.Context, invoiceID string) (*model.VendorMatch, error)
	ConfirmVendorMatch(ctx context.Context, invoiceID, subcontractorID string) error

	// Cost code taxonomy
	CreateCostCode(ctx context.Context, cc *model.CostCode) error
	ListCostCodes(ctx context.Context, builderID string) ([]model.CostCode, error)

	// Audit trail and metrics (append-only)
	AppendCorrection(ctx context.Context, c *model.CorrectionHistory) error
	ListCorrections(ctx context.Context, invoiceID string) ([]model.CorrectionHistory, error)
	AppendMetric(ctx context.Context, m *model.ProcessingMetric) error
	ListMetrics(ctx context.Context, invoiceID string) ([]model.ProcessingMetric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
