// Package api exposes the invoice pipeline over REST.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/classify"
	"github.com/buildflow/invoicepipe/internal/match"
	"github.com/buildflow/invoicepipe/internal/pipeline"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
)

// Server wires the pipeline services to HTTP handlers.
type Server struct {
	store      store.Store
	pipeline   *pipeline.Pipeline
	resolver   *match.Resolver
	classifier *classify.Classifier
	engine     *review.Engine
	uploadDir  string
	origins    []string
}

// NewServer creates the REST server. uploadDir must exist and be writable.
func NewServer(
	st store.Store,
	p *pipeline.Pipeline,
	resolver *match.Resolver,
	classifier *classify.Classifier,
	engine *review.Engine,
	uploadDir string,
	origins []string,
) *Server {
	return &Server{
		store:      st,
		pipeline:   p,
		resolver:   resolver,
		classifier: classifier,
		engine:     engine,
		uploadDir:  uploadDir,
		origins:    origins,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/invoices", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/process", s.handleProcess)
			r.Get("/compare", s.handleCompare)
			r.Post("/match", s.handleMatch)
			r.Post("/match/confirm", s.handleConfirmMatch)
			r.Post("/classify", s.handleClassify)
			r.Post("/approve", s.handleApprove)
			r.Post("/reject", s.handleReject)
			r.Get("/corrections", s.handleListCorrections)
			r.Post("/corrections", s.handleSaveCorrections)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors to HTTP statuses: missing entities to 404,
// illegal status moves to 409, everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case eris.Is(err, review.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
