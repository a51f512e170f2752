// Package review implements the invoice status state machine and the human
// correction workflow. All status writes go through Transition so illegal
// moves are rejected in one place.
package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/store"
)

// ErrInvalidTransition is returned for a status move the table does not allow.
var ErrInvalidTransition = eris.New("review: invalid status transition")

// transitions is the legal-move table. Terminal states have no exits;
// re-applying a terminal state is handled as an idempotent no-op, not a move.
var transitions = map[model.InvoiceStatus][]model.InvoiceStatus{
	model.StatusUploaded:   {model.StatusProcessing},
	model.StatusProcessing: {model.StatusExtracted, model.StatusNeedsReview, model.StatusUploaded},
	model.StatusExtracted: {
		model.StatusProcessing, model.StatusMatched, model.StatusClassified,
		model.StatusNeedsReview, model.StatusApproved, model.StatusRejected,
	},
	model.StatusMatched: {
		model.StatusClassified, model.StatusNeedsReview,
		model.StatusApproved, model.StatusRejected,
	},
	model.StatusClassified: {
		model.StatusNeedsReview, model.StatusApproved, model.StatusRejected,
	},
	model.StatusNeedsReview: {
		model.StatusProcessing, model.StatusMatched, model.StatusClassified,
		model.StatusApproved, model.StatusRejected,
	},
	model.StatusApproved: {},
	model.StatusRejected: {},
}

// Allowed reports whether the table permits moving from one status to another.
func Allowed(from, to model.InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Engine drives status transitions and the correction audit trail.
type Engine struct {
	store store.Store
}

// NewEngine creates a review engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Transition moves an invoice to a new status, enforcing the legal-move
// table. Re-applying the current status of a terminal invoice is an
// idempotent no-op.
func (e *Engine) Transition(ctx context.Context, invoiceID string, to model.InvoiceStatus) (*model.Invoice, error) {
	if _, err := model.ParseInvoiceStatus(string(to)); err != nil {
		return nil, err
	}

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	// Same-status writes are no-ops; this is what makes re-approving an
	// approved invoice idempotent.
	if inv.Status == to {
		return inv, nil
	}
	if !Allowed(inv.Status, to) {
		return nil, eris.Wrapf(ErrInvalidTransition, "%s -> %s", inv.Status, to)
	}

	if err := e.store.UpdateInvoiceStatus(ctx, invoiceID, to); err != nil {
		return nil, err
	}
	zap.L().Info("invoice status changed",
		zap.String("invoice_id", invoiceID),
		zap.String("from", string(inv.Status)),
		zap.String("to", string(to)))

	inv.Status = to
	return inv, nil
}

// Approve marks an invoice approved. Terminal and human-gated: legal from any
// post-extraction state, idempotent when already approved.
func (e *Engine) Approve(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	return e.Transition(ctx, invoiceID, model.StatusApproved)
}

// Reject marks an invoice rejected. Same rules as Approve.
func (e *Engine) Reject(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	return e.Transition(ctx, invoiceID, model.StatusRejected)
}

// RouteAfterExtraction applies an extraction outcome to the invoice status:
// success advances to extracted, partial routes to needs_review, and failure
// rolls back to the pre-attempt status so the invoice is never stuck.
func (e *Engine) RouteAfterExtraction(ctx context.Context, invoiceID string, res *model.ExtractionResult, prior model.InvoiceStatus) (*model.Invoice, error) {
	switch res.Status {
	case model.ExtractionSuccess:
		return e.Transition(ctx, invoiceID, model.StatusExtracted)
	case model.ExtractionPartial:
		return e.Transition(ctx, invoiceID, model.StatusNeedsReview)
	default:
		return e.Transition(ctx, invoiceID, prior)
	}
}

// correctableFields are the scalar fields a human may edit.
var correctableFields = map[string]bool{
	"vendor_name":    true,
	"invoice_number": true,
	"invoice_date":   true,
	"total_amount":   true,
}

// SaveCorrections records human field edits against the invoice's latest
// vision result, falling back to the latest traditional result when no
// vision run exists. Each changed field appends exactly one audit row;
// unchanged fields are skipped. Terminal invoices cannot be corrected.
func (e *Engine) SaveCorrections(ctx context.Context, invoiceID string, corrections map[string]any, correctedBy string) (*model.CorrectionsResponse, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, eris.Wrapf(ErrInvalidTransition, "cannot correct %s invoice", inv.Status)
	}

	// Prefer the vision result, fall back to traditional.
	res, err := e.store.LatestResultByMethod(ctx, invoiceID, model.MethodVision)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res, err = e.store.LatestResultByMethod(ctx, invoiceID, model.MethodTraditional)
		if err != nil {
			return nil, err
		}
	}
	if res == nil {
		return &model.CorrectionsResponse{
			InvoiceID: invoiceID,
			Message:   "no extracted fields to correct",
		}, nil
	}

	names := make([]string, 0, len(corrections))
	for name := range corrections {
		if correctableFields[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := res.Fields
	var saved []model.CorrectionHistory
	for _, name := range names {
		original := fieldValue(fields, name)
		corrected, ok := coerceValue(name, corrections[name])
		if !ok || original == corrected {
			continue
		}
		if err := applyField(&fields, name, corrected); err != nil {
			return nil, err
		}

		record := model.CorrectionHistory{
			InvoiceID:      invoiceID,
			FieldName:      name,
			OriginalValue:  original,
			CorrectedValue: corrected,
			CorrectedBy:    correctedBy,
			CorrectionType: "manual_review",
		}
		if err := e.store.AppendCorrection(ctx, &record); err != nil {
			return nil, err
		}
		saved = append(saved, record)
	}

	if len(saved) > 0 {
		if err := e.store.UpdateResultFields(ctx, res.ID, fields); err != nil {
			return nil, err
		}
	}

	return &model.CorrectionsResponse{
		InvoiceID:        invoiceID,
		CorrectionsSaved: len(saved),
		Corrections:      saved,
		Message:          fmt.Sprintf("%d correction(s) saved", len(saved)),
	}, nil
}

func fieldValue(f model.ExtractedFields, name string) string {
	switch name {
	case "vendor_name":
		return f.VendorName
	case "invoice_number":
		return f.InvoiceNumber
	case "invoice_date":
		return f.InvoiceDate
	case "total_amount":
		if f.TotalAmount == nil {
			return ""
		}
		return f.TotalAmount.String()
	}
	return ""
}

func applyField(f *model.ExtractedFields, name, value string) error {
	switch name {
	case "vendor_name":
		f.VendorName = value
	case "invoice_number":
		f.InvoiceNumber = value
	case "invoice_date":
		f.InvoiceDate = value
	case "total_amount":
		if value == "" {
			f.TotalAmount = nil
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return eris.Wrapf(err, "review: invalid total_amount %q", value)
		}
		f.TotalAmount = &d
	}
	return nil
}

// coerceValue normalizes a submitted correction to its string form. Numeric
// totals are normalized through decimal so "100.0" and 100 compare equal.
func coerceValue(name string, v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		s = ""
	case string:
		s = strings.TrimSpace(val)
	case float64:
		s = decimal.NewFromFloat(val).String()
	default:
		return "", false
	}
	if name == "total_amount" && s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", false
		}
		s = d.String()
	}
	return s, true
}
