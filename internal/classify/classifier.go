// Package classify suggests builder cost codes for invoice line items using
// embedding similarity. Every suggestion is tentative until a human confirms
// or the invoice is approved.
package classify

import (
	"context"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
)

// Embedder produces one vector per input text. pkg/jina's client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Result is the classification outcome for one invoice.
type Result struct {
	InvoiceID   string             `json:"invoice_id"`
	Suggestions []model.Suggestion `json:"suggestions"`
	Status      string             `json:"status"`
	Message     string             `json:"message,omitempty"`
}

// taxonomy is a builder's cost codes with their embeddings, cached together
// so codes and vectors can never drift apart.
type taxonomy struct {
	codes   []model.CostCode
	vectors [][]float64
}

// Classifier scores line items against a builder's cost-code taxonomy.
// Taxonomy embeddings are cached per builder; line item descriptions are
// embedded fresh on every call.
type Classifier struct {
	store    store.Store
	embedder Embedder
	engine   *review.Engine
	floor    float64

	cache *gocache.Cache
	group singleflight.Group
}

// NewClassifier creates a classifier with the default confidence floor.
func NewClassifier(st store.Store, emb Embedder, engine *review.Engine) *Classifier {
	return &Classifier{
		store:    st,
		embedder: emb,
		engine:   engine,
		floor:    model.CostCodeFloor,
		cache:    gocache.New(time.Hour, 10*time.Minute),
	}
}

// Invalidate drops the cached taxonomy embeddings for a builder. Call after
// any in-process cost-code change so new codes take effect immediately.
// Edits made by another process (the seed command, a direct DB write) are
// only picked up when the cache TTL expires.
func (c *Classifier) Invalidate(builderID string) {
	c.cache.Delete(builderID)
}

// Classify suggests a cost code for every line item of the invoice's best
// extraction result and persists the suggestions. The invoice advances to
// classified only when every item clears the confidence floor; otherwise it
// routes to needs_review.
func (c *Classifier) Classify(ctx context.Context, invoiceID string) (*Result, error) {
	inv, err := c.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	res, err := c.store.BestResult(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		if _, err := c.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		return &Result{InvoiceID: invoiceID, Status: "needs_review", Message: "no extraction result to classify"}, nil
	}

	items, err := c.store.ListLineItemsByResult(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if _, err := c.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		return &Result{InvoiceID: invoiceID, Status: "needs_review", Message: "no line items to classify"}, nil
	}

	tax, err := c.taxonomyFor(ctx, inv.BuilderID)
	if err != nil {
		return nil, err
	}

	result := &Result{InvoiceID: invoiceID, Suggestions: make([]model.Suggestion, 0, len(items))}

	if len(tax.codes) == 0 {
		for _, item := range items {
			result.Suggestions = append(result.Suggestions, model.Suggestion{
				LineItemID:  item.ID,
				Description: item.Description,
				NeedsReview: true,
			})
		}
		if _, err := c.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		result.Status = "needs_review"
		result.Message = "no cost codes defined for this builder"
		return result, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Description
	}
	itemVectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "classify: embed line items")
	}
	if len(itemVectors) != len(items) {
		return nil, eris.Errorf("classify: expected %d embeddings, got %d", len(items), len(itemVectors))
	}

	allConfident := true
	for i, item := range items {
		code, confidence := bestCode(itemVectors[i], tax)
		suggestion := model.Suggestion{
			LineItemID:    item.ID,
			Description:   item.Description,
			SuggestedCode: code,
			Confidence:    confidence,
			NeedsReview:   confidence < c.floor,
		}
		if suggestion.NeedsReview {
			allConfident = false
		}
		if err := c.store.UpdateLineItemSuggestion(ctx, item.ID, code, confidence); err != nil {
			return nil, err
		}
		result.Suggestions = append(result.Suggestions, suggestion)
	}

	zap.L().Info("line items classified",
		zap.String("invoice_id", invoiceID),
		zap.Int("items", len(items)),
		zap.Bool("all_confident", allConfident))

	if allConfident {
		if _, err := c.engine.Transition(ctx, invoiceID, model.StatusClassified); err != nil {
			return nil, err
		}
		result.Status = "classified"
	} else {
		if _, err := c.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		result.Status = "needs_review"
		result.Message = "one or more line items need cost code review"
	}
	return result, nil
}

// taxonomyFor returns the builder's cost codes with embeddings, loading and
// embedding them at most once per cache window. Concurrent callers for the
// same builder share one load.
func (c *Classifier) taxonomyFor(ctx context.Context, builderID string) (*taxonomy, error) {
	if cached, ok := c.cache.Get(builderID); ok {
		return cached.(*taxonomy), nil
	}

	v, err, _ := c.group.Do(builderID, func() (any, error) {
		if cached, ok := c.cache.Get(builderID); ok {
			return cached.(*taxonomy), nil
		}

		codes, err := c.store.ListCostCodes(ctx, builderID)
		if err != nil {
			return nil, err
		}

		tax := &taxonomy{codes: codes}
		if len(codes) > 0 {
			texts := make([]string, len(codes))
			for i, code := range codes {
				texts[i] = code.EmbeddingText()
			}
			vectors, err := c.embedder.Embed(ctx, texts)
			if err != nil {
				return nil, eris.Wrapf(err, "classify: embed taxonomy for builder %s", builderID)
			}
			if len(vectors) != len(codes) {
				return nil, eris.Errorf("classify: expected %d embeddings, got %d", len(codes), len(vectors))
			}
			tax.vectors = vectors
		}

		c.cache.SetDefault(builderID, tax)
		return tax, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*taxonomy), nil
}

// bestCode returns the highest-similarity code for a line item vector.
func bestCode(vec []float64, tax *taxonomy) (string, float64) {
	best := ""
	bestScore := math.Inf(-1)
	for i, code := range tax.codes {
		if score := cosine(vec, tax.vectors[i]); score > bestScore {
			best = code.Code
			bestScore = score
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return best, math.Round(bestScore*10000) / 10000
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
