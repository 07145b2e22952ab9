// Package pipeline wires the run phases together: load model sources,
// build and enrich the denormalized table, execute the configured
// operations, verify the output store, and serialize the investigation
// file.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"invgen/internal/dataset"
	"invgen/internal/engine"
	"invgen/internal/source"
	"invgen/internal/store"
	"invgen/pkg/types"
)

// Pipeline is one investigation run. Prepare then Run, then Close on
// every exit path.
type Pipeline struct {
	cfg types.Config
	log *zap.Logger

	sources *source.Set
	surface *dataset.Surface
	store   *store.Store
	doc     *types.OperationsDoc
}

// New returns an unprepared pipeline for the given configuration.
func New(cfg types.Config, log *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// Prepare loads the model sources, builds and enriches the
// denormalized table, and reads the operations document. Any failure
// here is fatal for the run.
func (p *Pipeline) Prepare() error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}

	set, err := source.Load(p.cfg.ModelFiles, p.log)
	if err != nil {
		return fmt.Errorf("loading model sources: %w", err)
	}
	p.sources = set

	surface, err := dataset.NewSurface(p.log)
	if err != nil {
		return err
	}
	p.surface = surface

	builder := dataset.NewBuilder(set, surface, p.cfg.EffectiveBatchSize(), p.log)
	if err := builder.Build(); err != nil {
		return err
	}
	if err := builder.Enrich(p.cfg.InvestigationID); err != nil {
		return err
	}

	doc, err := types.LoadOperations(p.cfg.OperationsFile)
	if err != nil {
		return err
	}
	p.doc = doc

	p.store = store.New()
	p.store.SetOrder(doc.ItemOrder)

	p.log.Info("pipeline prepared",
		zap.String("investigation_id", p.cfg.InvestigationID),
		zap.Int("sources", len(p.cfg.ModelFiles)),
		zap.Int("operations", len(doc.Operations)))
	return nil
}

// Run executes the operations, checks the store's equal-length
// invariant, and serializes the investigation file. Integrity
// mismatches are logged per item and abort serialization. Returns the
// written file path.
func (p *Pipeline) Run() (string, error) {
	if p.store == nil {
		return "", fmt.Errorf("pipeline not prepared: %w", types.ErrInvalidConfig)
	}

	eng := engine.New(p.store, p.sources, p.surface, p.log)
	if err := eng.Execute(p.doc.Operations); err != nil {
		return "", err
	}

	if mismatches := p.store.IntegrityCheck(); len(mismatches) > 0 {
		for _, m := range mismatches {
			p.log.Error("integrity mismatch",
				zap.String("category", m.Category),
				zap.String("item", m.Item),
				zap.Int("length", m.Length),
				zap.Int("expected", m.Expected))
		}
		return "", fmt.Errorf("%d mismatched items: %w", len(mismatches), types.ErrIntegrity)
	}

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(p.cfg.OutputDir, p.cfg.InvestigationID+".cif")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if err := p.store.Write(f, p.cfg.InvestigationID); err != nil {
		return "", fmt.Errorf("serializing %s: %w", path, err)
	}
	p.log.Info("investigation file written", zap.String("path", path))
	return path, nil
}

// Close releases the query surface.
func (p *Pipeline) Close() error {
	if p.surface == nil {
		return nil
	}
	return p.surface.Close()
}
