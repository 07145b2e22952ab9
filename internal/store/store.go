// Package store holds the categories and item columns the operation
// engine produces, and serializes them as a single-block mmCIF
// document. Item writes append: repeated writes to the same item
// accumulate rows, so descriptor order determines row order.
package store

import (
	"fmt"
	"io"
	"sort"

	"invgen/internal/mmcif"
	"invgen/pkg/types"
)

// Mismatch is one equal-length invariant violation: an item whose
// column is shorter or longer than the longest column of its category.
type Mismatch struct {
	Category string
	Item     string
	Length   int
	Expected int
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s.%s has %d values, expected %d", m.Category, m.Item, m.Length, m.Expected)
}

type category struct {
	items map[string][]string
	order []string
}

// Store accumulates output categories. Categories and items remember
// first-insertion order; a per-category declared order, when set,
// takes precedence at serialization time.
type Store struct {
	categories map[string]*category
	order      []string
	declared   map[string][]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		categories: make(map[string]*category),
		declared:   make(map[string][]string),
	}
}

// AddCategory registers a category. Adding an existing category is a
// no-op, so operations can call it unconditionally.
func (s *Store) AddCategory(name string) {
	if _, ok := s.categories[name]; ok {
		return
	}
	s.categories[name] = &category{items: make(map[string][]string)}
	s.order = append(s.order, name)
}

// SetItem appends values to an item, creating the category and the
// item as needed. It never overwrites.
func (s *Store) SetItem(categoryName, item string, values []string) {
	s.AddCategory(categoryName)
	cat := s.categories[categoryName]
	if _, ok := cat.items[item]; !ok {
		cat.order = append(cat.order, item)
	}
	cat.items[item] = append(cat.items[item], values...)
}

// SetItems appends several items at once. Items are applied in sorted
// name order so insertion order stays deterministic; callers that care
// about a specific item order use SetItem directly.
func (s *Store) SetItems(categoryName string, items map[string][]string) {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.SetItem(categoryName, name, items[name])
	}
}

// HasCategory reports whether a category exists.
func (s *Store) HasCategory(name string) bool {
	_, ok := s.categories[name]
	return ok
}

// Categories returns the category names in first-insertion order.
func (s *Store) Categories() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Item returns one item's values.
func (s *Store) Item(categoryName, item string) ([]string, bool) {
	cat, ok := s.categories[categoryName]
	if !ok {
		return nil, false
	}
	values, ok := cat.items[item]
	return values, ok
}

// Items returns the item names of a category in insertion order.
func (s *Store) Items(categoryName string) []string {
	cat, ok := s.categories[categoryName]
	if !ok {
		return nil
	}
	out := make([]string, len(cat.order))
	copy(out, cat.order)
	return out
}

// RowCount returns the longest column length of a category.
func (s *Store) RowCount(categoryName string) int {
	cat, ok := s.categories[categoryName]
	if !ok {
		return 0
	}
	max := 0
	for _, values := range cat.items {
		if len(values) > max {
			max = len(values)
		}
	}
	return max
}

// DeleteItem removes an item from a category.
func (s *Store) DeleteItem(categoryName, item string) {
	cat, ok := s.categories[categoryName]
	if !ok {
		return
	}
	if _, present := cat.items[item]; !present {
		return
	}
	delete(cat.items, item)
	for i, name := range cat.order {
		if name == item {
			cat.order = append(cat.order[:i], cat.order[i+1:]...)
			break
		}
	}
}

// DeleteRows removes the rows at the given indices from every item of
// a category. Indices outside an item's range are ignored for that
// item.
func (s *Store) DeleteRows(categoryName string, indices []int) {
	cat, ok := s.categories[categoryName]
	if !ok || len(indices) == 0 {
		return
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	for item, values := range cat.items {
		kept := values[:0]
		for i, v := range values {
			if !drop[i] {
				kept = append(kept, v)
			}
		}
		cat.items[item] = kept
	}
}

// SetOrder installs the declared per-category item order used at
// serialization time.
func (s *Store) SetOrder(order map[string][]string) {
	for categoryName, items := range order {
		s.declared[categoryName] = items
	}
}

// ItemOrder returns the serialization order for a category: declared
// items that exist first, in declared order, then the rest in
// first-insertion order.
func (s *Store) ItemOrder(categoryName string) []string {
	cat, ok := s.categories[categoryName]
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, item := range s.declared[categoryName] {
		if _, present := cat.items[item]; present && !seen[item] {
			out = append(out, item)
			seen[item] = true
		}
	}
	for _, item := range cat.order {
		if !seen[item] {
			out = append(out, item)
			seen[item] = true
		}
	}
	return out
}

// IntegrityCheck reports every item whose column length differs from
// the longest column of its category. Mismatches are diagnostic; the
// store never pads or truncates.
func (s *Store) IntegrityCheck() []Mismatch {
	var mismatches []Mismatch
	for _, categoryName := range s.order {
		cat := s.categories[categoryName]
		expected := s.RowCount(categoryName)
		for _, item := range cat.order {
			if n := len(cat.items[item]); n != expected {
				mismatches = append(mismatches, Mismatch{
					Category: categoryName,
					Item:     item,
					Length:   n,
					Expected: expected,
				})
			}
		}
	}
	return mismatches
}

// Write serializes the store as one mmCIF data block. Empty categories
// are skipped.
func (s *Store) Write(w io.Writer, blockName string) error {
	if len(s.order) == 0 {
		return types.ErrEmptyStore
	}
	var categories []mmcif.CategoryData
	for _, categoryName := range s.order {
		cat := s.categories[categoryName]
		if len(cat.order) == 0 {
			continue
		}
		categories = append(categories, mmcif.CategoryData{
			Name:    categoryName,
			Items:   s.ItemOrder(categoryName),
			Columns: cat.items,
		})
	}
	return mmcif.Write(w, blockName, categories)
}
