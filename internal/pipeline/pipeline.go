// Package pipeline orchestrates invoice extraction runs. It owns the
// processing lifecycle: status moves, result persistence, and timing metrics.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/buildflow/invoicepipe/internal/extract"
	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
)

// Pipeline runs extraction strategies against stored invoices.
type Pipeline struct {
	store    store.Store
	registry *extract.Registry
	engine   *review.Engine
}

// New creates a pipeline over the given store and strategy registry.
func New(st store.Store, registry *extract.Registry, engine *review.Engine) *Pipeline {
	return &Pipeline{store: st, registry: registry, engine: engine}
}

// Process runs one strategy on an invoice. The invoice moves to processing
// for the duration of the run; afterwards the extraction outcome routes it
// forward, or back to its pre-run status when extraction failed. The result
// row is appended either way.
func (p *Pipeline) Process(ctx context.Context, invoiceID string, method model.ProcessingMethod) (*model.ExtractionResult, error) {
	strategy := p.registry.Get(method)
	if strategy == nil {
		return nil, eris.Errorf("pipeline: unknown processing method %q", method)
	}

	inv, prior, err := p.begin(ctx, invoiceID, method)
	if err != nil {
		return nil, err
	}

	res, err := p.runStrategy(ctx, inv, strategy)
	if err != nil {
		return nil, err
	}

	if _, err := p.engine.RouteAfterExtraction(ctx, invoiceID, res, prior); err != nil {
		return nil, err
	}
	return res, nil
}

// ProcessBoth runs both strategies concurrently for a side-by-side
// comparison. Each strategy appends its own result and metric; the invoice
// is routed once, from the higher-confidence result.
func (p *Pipeline) ProcessBoth(ctx context.Context, invoiceID string) (traditional, vision *model.ExtractionResult, err error) {
	tradStrategy := p.registry.Get(model.MethodTraditional)
	visStrategy := p.registry.Get(model.MethodVision)
	if tradStrategy == nil || visStrategy == nil {
		return nil, nil, eris.New("pipeline: comparison runs require both strategies")
	}

	inv, prior, err := p.begin(ctx, invoiceID, model.MethodBoth)
	if err != nil {
		return nil, nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		traditional, err = p.runStrategy(gctx, inv, tradStrategy)
		return err
	})
	g.Go(func() error {
		var err error
		vision, err = p.runStrategy(gctx, inv, visStrategy)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := traditional
	if vision.Confidence > traditional.Confidence {
		best = vision
	}
	if _, err := p.engine.RouteAfterExtraction(ctx, invoiceID, best, prior); err != nil {
		return nil, nil, err
	}
	return traditional, vision, nil
}

// begin moves the invoice into processing and records the requested method.
// It returns the invoice and the status to roll back to on failure.
func (p *Pipeline) begin(ctx context.Context, invoiceID string, method model.ProcessingMethod) (*model.Invoice, model.InvoiceStatus, error) {
	inv, err := p.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, "", err
	}
	prior := inv.Status

	if _, err := p.engine.Transition(ctx, invoiceID, model.StatusProcessing); err != nil {
		return nil, "", err
	}
	if err := p.store.SetProcessingMethod(ctx, invoiceID, method); err != nil {
		return nil, "", err
	}
	return inv, prior, nil
}

// runStrategy executes one strategy and persists its result and timing.
// Strategy failures surface as failed results, not errors.
func (p *Pipeline) runStrategy(ctx context.Context, inv *model.Invoice, strategy extract.Strategy) (*model.ExtractionResult, error) {
	res := strategy.Extract(ctx, extract.Document{InvoiceID: inv.ID, Path: inv.FilePath})

	if err := p.store.CreateExtractionResult(ctx, res); err != nil {
		return nil, err
	}
	if err := p.store.AppendMetric(ctx, &model.ProcessingMetric{
		InvoiceID:        inv.ID,
		Method:           res.Method,
		ProcessingTimeMS: res.ProcessingTimeMS,
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	zap.L().Info("extraction run finished",
		zap.String("invoice_id", inv.ID),
		zap.String("method", string(res.Method)),
		zap.String("status", string(res.Status)),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("elapsed_ms", res.ProcessingTimeMS))
	return res, nil
}
