package review

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewEngine(st), st
}

func seedInvoiceAt(t *testing.T, st store.Store, status model.InvoiceStatus) *model.Invoice {
	t.Helper()
	ctx := context.Background()
	inv := &model.Invoice{BuilderID: "builder-1", Filename: "inv.pdf", FilePath: "/tmp/inv.pdf"}
	require.NoError(t, st.CreateInvoice(ctx, inv))
	if status != model.StatusUploaded {
		require.NoError(t, st.UpdateInvoiceStatus(ctx, inv.ID, status))
		inv.Status = status
	}
	return inv
}

func TestAllowed_Table(t *testing.T) {
	cases := []struct {
		from, to model.InvoiceStatus
		want     bool
	}{
		{model.StatusUploaded, model.StatusProcessing, true},
		{model.StatusUploaded, model.StatusApproved, false},
		{model.StatusProcessing, model.StatusExtracted, true},
		{model.StatusProcessing, model.StatusUploaded, true}, // rollback
		{model.StatusExtracted, model.StatusMatched, true},
		{model.StatusExtracted, model.StatusProcessing, true}, // rerun
		{model.StatusMatched, model.StatusProcessing, false},
		{model.StatusExtracted, model.StatusRejected, true},
		{model.StatusMatched, model.StatusClassified, true},
		{model.StatusClassified, model.StatusApproved, true},
		{model.StatusNeedsReview, model.StatusApproved, true},
		{model.StatusNeedsReview, model.StatusProcessing, true}, // re-extract
		{model.StatusApproved, model.StatusRejected, false},     // terminal
		{model.StatusRejected, model.StatusNeedsReview, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusUploaded)

	_, err := e.Transition(context.Background(), inv.ID, model.StatusClassified)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))

	got, err := st.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, got.Status)
}

func TestTransition_RejectsUnknownStatus(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusUploaded)

	_, err := e.Transition(context.Background(), inv.ID, model.InvoiceStatus("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown invoice status")
}

func TestApprove_FromPostExtractionStates(t *testing.T) {
	for _, from := range []model.InvoiceStatus{
		model.StatusExtracted, model.StatusMatched, model.StatusClassified, model.StatusNeedsReview,
	} {
		e, st := newTestEngine(t)
		inv := seedInvoiceAt(t, st, from)

		got, err := e.Approve(context.Background(), inv.ID)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, model.StatusApproved, got.Status)
	}
}

func TestApprove_BeforeExtractionRejected(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusUploaded)

	_, err := e.Approve(context.Background(), inv.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))
}

func TestApprove_Idempotent(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	inv := seedInvoiceAt(t, st, model.StatusClassified)

	_, err := e.Approve(ctx, inv.ID)
	require.NoError(t, err)

	// Second approve is a no-op success with no new audit rows.
	got, err := e.Approve(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	corrections, err := st.ListCorrections(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestReject_ThenApproveFails(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	inv := seedInvoiceAt(t, st, model.StatusExtracted)

	_, err := e.Reject(ctx, inv.ID)
	require.NoError(t, err)

	_, err = e.Approve(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))
}

func TestRouteAfterExtraction(t *testing.T) {
	ctx := context.Background()

	t.Run("success advances to extracted", func(t *testing.T) {
		e, st := newTestEngine(t)
		inv := seedInvoiceAt(t, st, model.StatusProcessing)

		got, err := e.RouteAfterExtraction(ctx, inv.ID,
			&model.ExtractionResult{Status: model.ExtractionSuccess}, model.StatusUploaded)
		require.NoError(t, err)
		assert.Equal(t, model.StatusExtracted, got.Status)
	})

	t.Run("partial routes to needs_review", func(t *testing.T) {
		e, st := newTestEngine(t)
		inv := seedInvoiceAt(t, st, model.StatusProcessing)

		got, err := e.RouteAfterExtraction(ctx, inv.ID,
			&model.ExtractionResult{Status: model.ExtractionPartial}, model.StatusUploaded)
		require.NoError(t, err)
		assert.Equal(t, model.StatusNeedsReview, got.Status)
	})

	t.Run("failure rolls back to prior status", func(t *testing.T) {
		e, st := newTestEngine(t)
		inv := seedInvoiceAt(t, st, model.StatusProcessing)

		got, err := e.RouteAfterExtraction(ctx, inv.ID,
			&model.ExtractionResult{Status: model.ExtractionFailed}, model.StatusUploaded)
		require.NoError(t, err)
		assert.Equal(t, model.StatusUploaded, got.Status)
	})
}

func seedResult(t *testing.T, st store.Store, invoiceID string, method model.ProcessingMethod, fields model.ExtractedFields) *model.ExtractionResult {
	t.Helper()
	res := &model.ExtractionResult{
		InvoiceID:  invoiceID,
		Method:     method,
		Status:     model.ExtractionSuccess,
		Fields:     fields,
		Confidence: 0.9,
	}
	require.NoError(t, st.CreateExtractionResult(context.Background(), res))
	return res
}

func TestSaveCorrections_RoundTrip(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	inv := seedInvoiceAt(t, st, model.StatusNeedsReview)
	total := decimal.RequireFromString("1200.00")
	seedResult(t, st, inv.ID, model.MethodVision, model.ExtractedFields{
		VendorName:  "AAB Plumbing",
		TotalAmount: &total,
	})

	resp, err := e.SaveCorrections(ctx, inv.ID, map[string]any{
		"vendor_name":  "ABC Plumbing LLC",
		"total_amount": 1250.00,
	}, "reviewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CorrectionsSaved)

	// Reading the field back yields the corrected value.
	res, err := st.LatestResultByMethod(ctx, inv.ID, model.MethodVision)
	require.NoError(t, err)
	assert.Equal(t, "ABC Plumbing LLC", res.Fields.VendorName)
	require.NotNil(t, res.Fields.TotalAmount)
	assert.Equal(t, "1250", res.Fields.TotalAmount.String())

	// Exactly one audit row per changed field, with the pre-correction value.
	corrections, err := st.ListCorrections(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, corrections, 2)
	byField := map[string]model.CorrectionHistory{}
	for _, c := range corrections {
		byField[c.FieldName] = c
	}
	assert.Equal(t, "AAB Plumbing", byField["vendor_name"].OriginalValue)
	assert.Equal(t, "ABC Plumbing LLC", byField["vendor_name"].CorrectedValue)
	assert.Equal(t, "1200", byField["total_amount"].OriginalValue)
	assert.Equal(t, "reviewer@example.com", byField["vendor_name"].CorrectedBy)
}

func TestSaveCorrections_UnchangedIsNoOp(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	inv := seedInvoiceAt(t, st, model.StatusNeedsReview)
	seedResult(t, st, inv.ID, model.MethodVision, model.ExtractedFields{VendorName: "ABC Plumbing LLC"})

	resp, err := e.SaveCorrections(ctx, inv.ID, map[string]any{
		"vendor_name": "ABC Plumbing LLC",
	}, "")
	require.NoError(t, err)
	assert.Zero(t, resp.CorrectionsSaved)

	corrections, err := st.ListCorrections(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestSaveCorrections_PrefersVisionResult(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	inv := seedInvoiceAt(t, st, model.StatusNeedsReview)
	seedResult(t, st, inv.ID, model.MethodTraditional, model.ExtractedFields{VendorName: "Trad Vendor"})
	visRes := seedResult(t, st, inv.ID, model.MethodVision, model.ExtractedFields{VendorName: "Vis Vendor"})

	resp, err := e.SaveCorrections(ctx, inv.ID, map[string]any{"vendor_name": "Corrected"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.CorrectionsSaved)
	assert.Equal(t, "Vis Vendor", resp.Corrections[0].OriginalValue)

	res, err := st.LatestResultByMethod(ctx, inv.ID, model.MethodVision)
	require.NoError(t, err)
	assert.Equal(t, visRes.ID, res.ID)
	assert.Equal(t, "Corrected", res.Fields.VendorName)

	tradRes, err := st.LatestResultByMethod(ctx, inv.ID, model.MethodTraditional)
	require.NoError(t, err)
	assert.Equal(t, "Trad Vendor", tradRes.Fields.VendorName)
}

func TestSaveCorrections_NoExtractionYet(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusNeedsReview)

	resp, err := e.SaveCorrections(context.Background(), inv.ID, map[string]any{"vendor_name": "X"}, "")
	require.NoError(t, err)
	assert.Zero(t, resp.CorrectionsSaved)
	assert.Contains(t, resp.Message, "no extracted fields")
}

func TestSaveCorrections_TerminalInvoiceRejected(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusApproved)

	_, err := e.SaveCorrections(context.Background(), inv.ID, map[string]any{"vendor_name": "X"}, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))
}

func TestSaveCorrections_IgnoresUnknownFields(t *testing.T) {
	e, st := newTestEngine(t)
	inv := seedInvoiceAt(t, st, model.StatusNeedsReview)
	seedResult(t, st, inv.ID, model.MethodVision, model.ExtractedFields{VendorName: "ABC"})

	resp, err := e.SaveCorrections(context.Background(), inv.ID, map[string]any{
		"not_a_field": "value",
	}, "")
	require.NoError(t, err)
	assert.Zero(t, resp.CorrectionsSaved)
}
