// Package source exposes parsed structural-model documents to the rest
// of the pipeline as a read-only adapter: category existence checks,
// per-source row access, and item collation across all sources.
package source

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"invgen/internal/mmcif"
	"invgen/pkg/types"
)

// Source is one loaded model document addressed by a stable key (its
// file name).
type Source struct {
	name  string
	block *mmcif.Block
}

// Name returns the source key.
func (s *Source) Name() string { return s.name }

// Category returns the named category of this source, or nil.
func (s *Source) Category(name string) *mmcif.Category {
	return s.block.Category(name)
}

// Set is an ordered collection of sources. Order is the load order and
// is significant: ordinal and group assignment downstream iterate it.
type Set struct {
	sources []*Source
	log     *zap.Logger
}

// Load parses every path into a Set. Any unreadable or unparsable file
// is fatal.
func Load(paths []string, log *zap.Logger) (*Set, error) {
	if len(paths) == 0 {
		return nil, types.ErrNoSources
	}
	set := &Set{log: log}
	for _, path := range paths {
		block, err := mmcif.ParseFile(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		set.sources = append(set.sources, &Source{name: name, block: block})
		log.Debug("loaded model source", zap.String("file", name))
	}
	return set, nil
}

// NewSet wraps pre-parsed blocks; used by tests.
func NewSet(log *zap.Logger, named map[string]*mmcif.Block, order []string) *Set {
	set := &Set{log: log}
	for _, name := range order {
		set.sources = append(set.sources, &Source{name: name, block: named[name]})
	}
	return set
}

// Sources returns the sources in load order.
func (s *Set) Sources() []*Source { return s.sources }

// HasCategory reports whether any source carries the category.
func (s *Set) HasCategory(name string) bool {
	for _, src := range s.sources {
		if src.block.HasCategory(name) {
			return true
		}
	}
	return false
}

// Column collates one item of one category across all sources that have
// the category, in source order. A source carrying the category without
// the item is an error: downstream copies would silently misalign.
func (s *Set) Column(category, item string) ([]string, error) {
	var out []string
	for _, src := range s.sources {
		cat := src.block.Category(category)
		if cat == nil {
			continue
		}
		col, ok := cat.Column(item)
		if !ok {
			return nil, fmt.Errorf("source %s, %s.%s: %w", src.name, category, item, types.ErrMissingItem)
		}
		out = append(out, col...)
	}
	return out, nil
}

// Columns collates several items of one category; all returned slices
// have equal length.
func (s *Set) Columns(category string, items []string) (map[string][]string, error) {
	out := make(map[string][]string, len(items))
	for _, item := range items {
		col, err := s.Column(category, item)
		if err != nil {
			return nil, err
		}
		out[item] = col
	}
	return out, nil
}

// CategoryData collates every item present in the category across all
// sources. Items absent from some source contribute empty strings for
// that source's rows, keeping all slices equal-length.
func (s *Set) CategoryData(category string) map[string][]string {
	// First pass: the union of tags in source order.
	var tags []string
	seen := make(map[string]bool)
	for _, src := range s.sources {
		cat := src.block.Category(category)
		if cat == nil {
			continue
		}
		for _, tag := range cat.Tags() {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	out := make(map[string][]string, len(tags))
	for _, src := range s.sources {
		cat := src.block.Category(category)
		if cat == nil {
			continue
		}
		n := cat.Len()
		for _, tag := range tags {
			col, ok := cat.Column(tag)
			if !ok {
				col = make([]string, n)
			}
			out[tag] = append(out[tag], col...)
		}
	}
	return out
}

// RowCount returns the number of collated rows of a category across all
// sources.
func (s *Set) RowCount(category string) int {
	n := 0
	for _, src := range s.sources {
		if cat := src.block.Category(category); cat != nil {
			n += cat.Len()
		}
	}
	return n
}
