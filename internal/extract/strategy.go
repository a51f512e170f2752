// Package extract implements the two invoice extraction strategies. Both
// produce the same result shape so downstream stages are strategy-agnostic.
package extract

import (
	"context"

	"github.com/buildflow/invoicepipe/internal/model"
)

// Document is the input to an extraction strategy.
type Document struct {
	InvoiceID string
	Path      string
}

// Strategy extracts structured invoice data from a document. Extract never
// returns an error: upstream failures are encoded as a failed result with
// confidence 0 so the caller can roll the invoice back instead of crashing.
type Strategy interface {
	Method() model.ProcessingMethod
	Extract(ctx context.Context, doc Document) *model.ExtractionResult
}

// Registry holds the closed set of strategies keyed by processing method.
type Registry struct {
	strategies map[model.ProcessingMethod]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[model.ProcessingMethod]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Method()] = s
	}
	return r
}

// Get returns the strategy for a method, or nil if not registered.
func (r *Registry) Get(method model.ProcessingMethod) Strategy {
	return r.strategies[method]
}

// Methods lists the registered processing methods.
func (r *Registry) Methods() []model.ProcessingMethod {
	out := make([]model.ProcessingMethod, 0, len(r.strategies))
	for m := range r.strategies {
		out = append(out, m)
	}
	return out
}

func failedResult(invoiceID string, method model.ProcessingMethod, elapsed int64, errMsg string) *model.ExtractionResult {
	return &model.ExtractionResult{
		InvoiceID:        invoiceID,
		Method:           method,
		Status:           model.ExtractionFailed,
		Confidence:       0,
		ProcessingTimeMS: elapsed,
		RawOutput:        map[string]any{"error": errMsg},
	}
}
