package classify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
)

// stubEmbedder maps known texts to fixed vectors; unknown texts get a vector
// orthogonal to everything else.
type stubEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	s.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			v = []float64{0, 0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func newTestClassifier(t *testing.T, emb Embedder) (*Classifier, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewClassifier(st, emb, review.NewEngine(st)), st
}

func addCode(t *testing.T, st store.Store, builderID, code, label string) model.CostCode {
	t.Helper()
	cc := model.CostCode{BuilderID: builderID, Code: code, Label: label}
	require.NoError(t, st.CreateCostCode(context.Background(), &cc))
	return cc
}

func seedInvoiceWithItems(t *testing.T, st store.Store, builderID string, descriptions ...string) (*model.Invoice, []model.LineItem) {
	t.Helper()
	ctx := context.Background()
	inv := &model.Invoice{BuilderID: builderID, Filename: "inv.pdf", FilePath: "/tmp/inv.pdf"}
	require.NoError(t, st.CreateInvoice(ctx, inv))
	require.NoError(t, st.UpdateInvoiceStatus(ctx, inv.ID, model.StatusMatched))

	items := make([]model.LineItem, len(descriptions))
	for i, desc := range descriptions {
		items[i] = model.LineItem{Description: desc, Amount: decimal.NewFromInt(int64(100 * (i + 1)))}
	}
	res := &model.ExtractionResult{
		InvoiceID:  inv.ID,
		Method:     model.MethodVision,
		Status:     model.ExtractionSuccess,
		Fields:     model.ExtractedFields{VendorName: "ABC Plumbing LLC"},
		LineItems:  items,
		Confidence: 0.95,
	}
	require.NoError(t, st.CreateExtractionResult(ctx, res))

	persisted, err := st.ListLineItemsByResult(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, persisted, len(descriptions))
	return inv, persisted
}

func TestClassify_AllConfidentAdvancesToClassified(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"Framing lumber 2x4":     {1, 0, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")
	inv, _ := seedInvoiceWithItems(t, st, "builder-1", "Framing lumber 2x4")

	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "classified", result.Status)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "06-100", result.Suggestions[0].SuggestedCode)
	assert.Equal(t, 1.0, result.Suggestions[0].Confidence)
	assert.False(t, result.Suggestions[0].NeedsReview)

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, got.Status)
}

func TestClassify_LowConfidenceRoutesToReview(t *testing.T) {
	// cos([3,4,0,0], [1,0,0,0]) = 0.6, below the 0.80 floor.
	emb := &stubEmbedder{vectors: map[string][]float64{
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"Porta potty rental":     {3, 4, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")
	inv, _ := seedInvoiceWithItems(t, st, "builder-1", "Porta potty rental")

	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)
	require.Len(t, result.Suggestions, 1)
	// A best-effort suggestion is still attached, flagged for review.
	assert.Equal(t, "06-100", result.Suggestions[0].SuggestedCode)
	assert.Equal(t, 0.6, result.Suggestions[0].Confidence)
	assert.True(t, result.Suggestions[0].NeedsReview)

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsReview, got.Status)
}

func TestClassify_FloorIsInclusive(t *testing.T) {
	// cos([4,3,0,0], [1,0,0,0]) = 0.8, exactly at the floor.
	emb := &stubEmbedder{vectors: map[string][]float64{
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"Blocking and backing":   {4, 3, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")
	inv, _ := seedInvoiceWithItems(t, st, "builder-1", "Blocking and backing")

	result, err := c.Classify(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "classified", result.Status)
	assert.False(t, result.Suggestions[0].NeedsReview)
}

func TestClassify_PersistsSuggestions(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"Framing lumber 2x4":     {1, 0, 0, 0},
		"Porta potty rental":     {0, 1, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")
	inv, items := seedInvoiceWithItems(t, st, "builder-1", "Framing lumber 2x4", "Porta potty rental")

	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)

	persisted, err := st.ListLineItemsByResult(ctx, items[0].ResultID)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, "06-100", persisted[0].SuggestedCode)
	require.NotNil(t, persisted[0].Confidence)
	assert.Equal(t, 1.0, *persisted[0].Confidence)
	require.NotNil(t, persisted[1].Confidence)
	assert.Zero(t, *persisted[1].Confidence)
}

func TestClassify_TaxonomyIsTenantScoped(t *testing.T) {
	// The same description classifies differently depending on whose
	// taxonomy is in play.
	emb := &stubEmbedder{vectors: map[string][]float64{
		"23-800 Furnace Service": {0, 1, 0, 0},
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"Furnace repair":         {0, 1, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-hvac", "23-800", "Furnace Service")
	addCode(t, st, "builder-carp", "06-100", "Rough Carpentry")

	hvacInv, _ := seedInvoiceWithItems(t, st, "builder-hvac", "Furnace repair")
	result, err := c.Classify(ctx, hvacInv.ID)
	require.NoError(t, err)
	assert.Equal(t, "classified", result.Status)
	assert.Equal(t, "23-800", result.Suggestions[0].SuggestedCode)

	carpInv, _ := seedInvoiceWithItems(t, st, "builder-carp", "Furnace repair")
	result, err = c.Classify(ctx, carpInv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)
	assert.Equal(t, "06-100", result.Suggestions[0].SuggestedCode)
	assert.Zero(t, result.Suggestions[0].Confidence)
}

func TestClassify_CachesTaxonomyUntilInvalidated(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"06-100 Rough Carpentry": {1, 0, 0, 0},
		"23-800 Furnace Service": {0, 1, 0, 0},
		"Furnace repair":         {0, 1, 0, 0},
	}}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")

	inv, _ := seedInvoiceWithItems(t, st, "builder-1", "Furnace repair")
	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)
	assert.Equal(t, 2, emb.calls) // taxonomy + items

	// Second call reuses the cached taxonomy embeddings.
	inv2, _ := seedInvoiceWithItems(t, st, "builder-1", "Furnace repair")
	_, err = c.Classify(ctx, inv2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls) // items only

	// A new cost code takes effect only after invalidation.
	addCode(t, st, "builder-1", "23-800", "Furnace Service")
	inv3, _ := seedInvoiceWithItems(t, st, "builder-1", "Furnace repair")
	result, err = c.Classify(ctx, inv3.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)

	c.Invalidate("builder-1")
	inv4, _ := seedInvoiceWithItems(t, st, "builder-1", "Furnace repair")
	result, err = c.Classify(ctx, inv4.ID)
	require.NoError(t, err)
	assert.Equal(t, "classified", result.Status)
	assert.Equal(t, "23-800", result.Suggestions[0].SuggestedCode)
}

func TestClassify_EmptyTaxonomy(t *testing.T) {
	emb := &stubEmbedder{}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	inv, _ := seedInvoiceWithItems(t, st, "builder-1", "Framing lumber 2x4")

	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)
	assert.Contains(t, result.Message, "no cost codes")
	require.Len(t, result.Suggestions, 1)
	assert.Empty(t, result.Suggestions[0].SuggestedCode)
	assert.True(t, result.Suggestions[0].NeedsReview)
	assert.Zero(t, emb.calls)
}

func TestClassify_NoLineItems(t *testing.T) {
	emb := &stubEmbedder{}
	c, st := newTestClassifier(t, emb)
	ctx := context.Background()
	addCode(t, st, "builder-1", "06-100", "Rough Carpentry")
	inv, _ := seedInvoiceWithItems(t, st, "builder-1")

	result, err := c.Classify(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "needs_review", result.Status)
	assert.Contains(t, result.Message, "no line items")
	assert.Empty(t, result.Suggestions)
}
