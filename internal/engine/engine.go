// Package engine executes the configured operation list against the
// output store, the model source set and the relational query surface.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"invgen/internal/dataset"
	"invgen/internal/source"
	"invgen/internal/store"
	"invgen/pkg/types"
)

// operation performs one descriptor. Implementations read only the
// descriptor fields their kind documents.
type operation func(e *Engine, d types.Descriptor) error

// operations is the kind strategy table.
var operations = map[string]operation{
	types.OpCopy:                   (*Engine).copy,
	types.OpCopyFill:               (*Engine).copyFill,
	types.OpCopyForEachRow:         (*Engine).copyForEachRow,
	types.OpCopyConditionalModify:  (*Engine).copyConditionalModify,
	types.OpStaticValue:            (*Engine).staticValue,
	types.OpAutoIncrement:          (*Engine).autoIncrement,
	types.OpIntersection:           (*Engine).intersection,
	types.OpModifyIntersection:     (*Engine).modifyIntersection,
	types.OpConditionalUnion:       (*Engine).conditionalUnion,
	types.OpConditionalDistinctUni: (*Engine).conditionalDistinctUnion,
	types.OpDistinctUnion:          (*Engine).distinctUnion,
	types.OpDeletion:               (*Engine).deletion,
	types.OpExternalInformation:    (*Engine).externalInformation,
	types.OpSQLQuery:               (*Engine).sqlQuery,
	types.OpNoop:                   (*Engine).noop,
}

// Engine runs descriptors in order against one store, one model source
// set and one surface.
type Engine struct {
	store   *store.Store
	sources *source.Set
	surface *dataset.Surface
	log     *zap.Logger

	// csvTables caches external_information lookup files for the run.
	csvTables map[string]map[string]string
}

// New returns an engine bound to the given store, model sources and
// surface.
func New(st *store.Store, sources *source.Set, surface *dataset.Surface, log *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		sources:   sources,
		surface:   surface,
		log:       log,
		csvTables: make(map[string]map[string]string),
	}
}

// Execute resolves every descriptor's kind, then runs the descriptors
// in order. An unknown kind anywhere in the list is fatal before any
// operation runs. A descriptor that fails during execution is logged
// with its full payload and the remaining descriptors still run.
func (e *Engine) Execute(descriptors []types.Descriptor) error {
	resolved := make([]operation, len(descriptors))
	for i, d := range descriptors {
		op, ok := operations[d.Operation]
		if !ok {
			return fmt.Errorf("descriptor %d: %q: %w", i, d.Operation, types.ErrUnknownOperation)
		}
		resolved[i] = op
	}

	failures := 0
	for i, d := range descriptors {
		if err := resolved[i](e, d); err != nil {
			failures++
			e.log.Error("operation failed",
				zap.Int("index", i),
				zap.String("operation", d.Operation),
				zap.String("category", d.TargetCategory),
				zap.String("descriptor", d.Payload()),
				zap.Error(err))
			continue
		}
		e.log.Debug("operation applied",
			zap.Int("index", i),
			zap.String("operation", d.Operation),
			zap.String("category", d.TargetCategory))
	}
	e.log.Info("operations executed",
		zap.Int("total", len(descriptors)),
		zap.Int("failed", failures))
	return nil
}
