// Package match fuzzy-resolves extracted vendor names against a builder's
// subcontractor registry.
package match

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
)

// maxCandidates limits how many ranked candidates are returned.
const maxCandidates = 3

// ErrUnknownSubcontractor is returned when a confirmation names a
// subcontractor outside the invoice's builder registry.
var ErrUnknownSubcontractor = eris.New("match: subcontractor not registered for builder")

// Resolver ranks registry vendors against an extracted name and persists the
// top candidate. The candidate pool is always scoped to one builder.
type Resolver struct {
	store  store.Store
	engine *review.Engine
}

// NewResolver creates a vendor resolver.
func NewResolver(st store.Store, engine *review.Engine) *Resolver {
	return &Resolver{store: st, engine: engine}
}

// Score computes a normalized edit-distance ratio between two vendor names
// on a 0-100 scale, case-insensitively.
func Score(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 100
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * float64(la+lb-d) / float64(la+lb)))
}

// Match returns up to three ranked candidates for the extracted name from
// the builder's registry. Ties keep registry insertion order. Low-scoring
// candidates are included so the UI can offer "did you mean" suggestions.
func (r *Resolver) Match(ctx context.Context, extractedName, builderID string) ([]model.VendorCandidate, error) {
	if builderID == "" {
		return nil, eris.New("match: builder id is required")
	}
	extractedName = strings.TrimSpace(extractedName)
	if extractedName == "" {
		return nil, nil
	}

	subs, err := r.store.ListSubcontractors(ctx, builderID)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.VendorCandidate, 0, len(subs))
	for _, sub := range subs {
		score := Score(extractedName, sub.Name)
		candidates = append(candidates, model.VendorCandidate{
			SubcontractorID:   sub.ID,
			SubcontractorName: sub.Name,
			Score:             score,
			ConfidenceLevel:   model.LevelForScore(score),
			ContactInfo:       sub.ContactInfo,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates, nil
}

// Resolve matches the invoice's best extracted vendor name, persists the top
// candidate, and routes the invoice: score >= 90 advances to matched,
// anything lower (or an empty registry) routes to needs_review.
func (r *Resolver) Resolve(ctx context.Context, invoiceID string) (*model.VendorMatchResult, error) {
	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	res, err := r.store.BestResult(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Fields.VendorName) == "" {
		if _, err := r.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		return &model.VendorMatchResult{
			InvoiceID: invoiceID,
			Status:    "needs_review",
			Message:   "no vendor name extracted",
		}, nil
	}
	extracted := res.Fields.VendorName

	candidates, err := r.Match(ctx, extracted, inv.BuilderID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if _, err := r.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		return &model.VendorMatchResult{
			InvoiceID:       invoiceID,
			ExtractedVendor: extracted,
			Status:          "needs_review",
			Message:         "no registered subcontractors for this builder",
		}, nil
	}

	top := candidates[0]
	if err := r.store.SaveVendorMatch(ctx, &model.VendorMatch{
		InvoiceID:       invoiceID,
		SubcontractorID: top.SubcontractorID,
		MatchScore:      top.Score,
	}); err != nil {
		return nil, err
	}
	zap.L().Info("vendor matched",
		zap.String("invoice_id", invoiceID),
		zap.String("subcontractor", top.SubcontractorName),
		zap.Int("score", top.Score))

	result := &model.VendorMatchResult{
		InvoiceID:       invoiceID,
		ExtractedVendor: extracted,
		Matches:         candidates,
	}

	switch {
	case top.Score >= model.VendorHighThreshold:
		if _, err := r.engine.Transition(ctx, invoiceID, model.StatusMatched); err != nil {
			return nil, err
		}
		result.Status = "matched"
		result.Message = "high-confidence match"
	case top.Score >= model.VendorReviewThreshold:
		if _, err := r.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		result.Status = "needs_review"
		result.Message = "candidate match requires confirmation"
	default:
		if _, err := r.engine.Transition(ctx, invoiceID, model.StatusNeedsReview); err != nil {
			return nil, err
		}
		result.Status = "low"
		result.Message = "no close match; consider adding a new vendor"
	}
	return result, nil
}

// Confirm records a human vendor selection and advances the invoice to
// matched. The subcontractor must belong to the invoice's builder.
func (r *Resolver) Confirm(ctx context.Context, invoiceID, subcontractorID string) (*model.Invoice, error) {
	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	subs, err := r.store.ListSubcontractors(ctx, inv.BuilderID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, sub := range subs {
		if sub.ID == subcontractorID {
			found = true
			break
		}
	}
	if !found {
		return nil, eris.Wrapf(ErrUnknownSubcontractor, "%s for builder %s", subcontractorID, inv.BuilderID)
	}

	if err := r.store.ConfirmVendorMatch(ctx, invoiceID, subcontractorID); err != nil {
		return nil, err
	}
	return r.engine.Transition(ctx, invoiceID, model.StatusMatched)
}
