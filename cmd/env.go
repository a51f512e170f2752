package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/classify"
	"github.com/buildflow/invoicepipe/internal/extract"
	"github.com/buildflow/invoicepipe/internal/match"
	"github.com/buildflow/invoicepipe/internal/model"
	"github.com/buildflow/invoicepipe/internal/ocr"
	"github.com/buildflow/invoicepipe/internal/pipeline"
	"github.com/buildflow/invoicepipe/internal/review"
	"github.com/buildflow/invoicepipe/internal/store"
	anthropicpkg "github.com/buildflow/invoicepipe/pkg/anthropic"
	"github.com/buildflow/invoicepipe/pkg/jina"
)

// appEnv holds the initialized store and services shared by the serve and
// process commands.
type appEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Resolver   *match.Resolver
	Classifier *classify.Classifier
	Engine     *review.Engine
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// applyThresholds pushes configured routing thresholds into the model
// package. Must run before any service captures a threshold value.
func applyThresholds() {
	t := cfg.Thresholds
	if t.ExtractionSuccess > 0 {
		model.SuccessThreshold = t.ExtractionSuccess
	}
	if t.ExtractionPartial > 0 {
		model.PartialThreshold = t.ExtractionPartial
	}
	if t.VendorAutoMatch > 0 {
		model.VendorHighThreshold = t.VendorAutoMatch
	}
	if t.CostCodeFloor > 0 {
		model.CostCodeFloor = t.CostCodeFloor
	}
}

// initEnv sets up the store, both extraction strategies, and the workflow
// services. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	applyThresholds()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "create upload dir")
	}

	ocrExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	strategies := []extract.Strategy{extract.NewRuleBased(ocrExtractor)}
	if cfg.Anthropic.Key != "" {
		vision := extract.NewVision(anthropicpkg.NewClient(cfg.Anthropic.Key), extract.VisionConfig{
			Model:          cfg.Anthropic.VisionModel,
			MaxTokens:      cfg.Anthropic.MaxTokens,
			RequestsPerMin: cfg.Anthropic.RequestsPerMin,
			Timeout:        time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		})
		strategies = append(strategies, vision)
	} else {
		zap.L().Warn("INVOICEPIPE_ANTHROPIC_KEY not set, vision strategy disabled")
	}

	engine := review.NewEngine(st)
	env := &appEnv{
		Store:    st,
		Pipeline: pipeline.New(st, extract.NewRegistry(strategies...), engine),
		Resolver: match.NewResolver(st, engine),
		Engine:   engine,
	}

	if cfg.Jina.Key != "" {
		jinaClient := jina.NewClient(cfg.Jina.Key,
			jina.WithBaseURL(cfg.Jina.BaseURL),
			jina.WithModel(cfg.Jina.Model))
		env.Classifier = classify.NewClassifier(st, jinaClient, engine)
	} else {
		zap.L().Warn("INVOICEPIPE_JINA_KEY not set, cost code classification disabled")
	}

	return env, nil
}
