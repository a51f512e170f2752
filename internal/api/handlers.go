package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/compare"
	"github.com/buildflow/invoicepipe/internal/match"
	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/store"
)

const maxUploadBytes = 32 << 20

var allowedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}

	builderID := strings.TrimSpace(r.FormValue("builder_id"))
	if builderID == "" {
		badRequest(w, "builder_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		badRequest(w, "unsupported file type "+ext)
		return
	}

	dest := filepath.Join(s.uploadDir, uuid.New().String()+ext)
	out, err := os.Create(dest)
	if err != nil {
		writeError(w, eris.Wrap(err, "api: create upload file"))
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		writeError(w, eris.Wrap(err, "api: write upload file"))
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, eris.Wrap(err, "api: close upload file"))
		return
	}

	inv := &model.Invoice{
		BuilderID: builderID,
		Filename:  header.Filename,
		FilePath:  dest,
	}
	if err := s.store.CreateInvoice(r.Context(), inv); err != nil {
		os.Remove(dest)
		writeError(w, err)
		return
	}

	zap.L().Info("invoice uploaded",
		zap.String("invoice_id", inv.ID),
		zap.String("builder_id", builderID),
		zap.String("filename", header.Filename))
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := store.InvoiceFilter{
		BuilderID: r.URL.Query().Get("builder_id"),
		Limit:     50,
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseInvoiceStatus(raw)
		if err != nil {
			badRequest(w, "invalid status "+raw)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			badRequest(w, "limit must be between 1 and 200")
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	invoices, err := s.store.ListInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// invoiceDetail is the GET response: the invoice plus its latest result per
// strategy and the current vendor match, when present.
type invoiceDetail struct {
	Invoice     *model.Invoice          `json:"invoice"`
	Traditional *model.ExtractionResult `json:"traditional,omitempty"`
	Vision      *model.ExtractionResult `json:"vision,omitempty"`
	VendorMatch *model.VendorMatch      `json:"vendor_match,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := invoiceDetail{Invoice: inv}
	if detail.Traditional, err = s.store.LatestResultByMethod(ctx, id, model.MethodTraditional); err != nil {
		writeError(w, err)
		return
	}
	if detail.Vision, err = s.store.LatestResultByMethod(ctx, id, model.MethodVision); err != nil {
		writeError(w, err)
		return
	}
	if detail.VendorMatch, err = s.store.GetVendorMatch(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	if err := os.Remove(inv.FilePath); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("remove invoice file", zap.String("path", inv.FilePath), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	switch model.ProcessingMethod(req.Method) {
	case model.MethodTraditional, model.MethodVision:
		res, err := s.pipeline.Process(ctx, id, model.ProcessingMethod(req.Method))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case model.MethodBoth:
		trad, vis, err := s.pipeline.ProcessBoth(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, compare.Report{
			InvoiceID:   id,
			Traditional: trad,
			Vision:      vis,
			Comparison:  compare.Compare(trad, vis),
		})
	default:
		badRequest(w, "method must be traditional, vision, or both")
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	trad, err := s.store.LatestResultByMethod(ctx, id, model.MethodTraditional)
	if err != nil {
		writeError(w, err)
		return
	}
	vis, err := s.store.LatestResultByMethod(ctx, id, model.MethodVision)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, compare.Report{
		InvoiceID:   id,
		Filename:    inv.Filename,
		Traditional: trad,
		Vision:      vis,
		Comparison:  compare.Compare(trad, vis),
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.resolver.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubcontractorID string `json:"subcontractor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.SubcontractorID == "" {
		badRequest(w, "subcontractor_id is required")
		return
	}

	inv, err := s.resolver.Confirm(r.Context(), chi.URLParam(r, "id"), req.SubcontractorID)
	if err != nil {
		if eris.Is(err, match.ErrUnknownSubcontractor) {
			badRequest(w, "subcontractor not registered for this builder")
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.classifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "classification is not configured"})
		return
	}
	result, err := s.classifier.Classify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	inv, err := s.engine.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	inv, err := s.engine.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetInvoice(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	corrections, err := s.store.ListCorrections(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id":  id,
		"corrections": corrections,
	})
}

func (s *Server) handleSaveCorrections(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Corrections map[string]any `json:"corrections"`
		CorrectedBy string         `json:"corrected_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.Corrections) == 0 {
		badRequest(w, "corrections are required")
		return
	}

	resp, err := s.engine.SaveCorrections(r.Context(), chi.URLParam(r, "id"), req.Corrections, req.CorrectedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
