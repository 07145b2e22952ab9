package engine

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"invgen/pkg/types"
)

// defaultMissingValue is written by external_information for keys the
// lookup file does not carry.
const defaultMissingValue = "?"

// column resolves a category.item reference for an operation. Output
// categories built by earlier descriptors win; anything else falls back
// to the model sources, collated across files in load order.
func (e *Engine) column(category, item string) ([]string, error) {
	if e.store.HasCategory(category) {
		values, ok := e.store.Item(category, item)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", category, item, types.ErrMissingItem)
		}
		return values, nil
	}
	if e.sources != nil && e.sources.HasCategory(category) {
		return e.sources.Column(category, item)
	}
	return nil, fmt.Errorf("%s.%s: %w", category, item, types.ErrMissingItem)
}

// sourceColumns resolves the descriptor's source items to their value
// columns, validating the target/source item pairing.
func (e *Engine) sourceColumns(d types.Descriptor) ([][]string, error) {
	if len(d.TargetItems) != len(d.SourceItems) {
		return nil, fmt.Errorf("%d target items for %d source items: %w",
			len(d.TargetItems), len(d.SourceItems), types.ErrInvalidConfig)
	}
	columns := make([][]string, len(d.SourceItems))
	for i, item := range d.SourceItems {
		values, err := e.column(d.SourceCategory, item)
		if err != nil {
			return nil, err
		}
		columns[i] = values
	}
	return columns, nil
}

// copy writes the source items' values into the target items 1:1.
func (e *Engine) copy(d types.Descriptor) error {
	columns, err := e.sourceColumns(d)
	if err != nil {
		return err
	}
	for i, item := range d.TargetItems {
		e.store.SetItem(d.TargetCategory, item, columns[i])
	}
	return nil
}

// copyFill copies, then pads each written item with the fill value up
// to the target category's longest column.
func (e *Engine) copyFill(d types.Descriptor) error {
	if err := e.copy(d); err != nil {
		return err
	}
	expected := e.store.RowCount(d.TargetCategory)
	for _, item := range d.TargetItems {
		values, _ := e.store.Item(d.TargetCategory, item)
		if missing := expected - len(values); missing > 0 {
			pad := make([]string, missing)
			for i := range pad {
				pad[i] = d.Parameters.FillValue
			}
			e.store.SetItem(d.TargetCategory, item, pad)
		}
	}
	return nil
}

// copyForEachRow copies the source items and expands each scalar in
// the values parameter across every emitted row. Target items beyond
// the source items must be named in the values parameter.
func (e *Engine) copyForEachRow(d types.Descriptor) error {
	if len(d.SourceItems) == 0 {
		return fmt.Errorf("copy_for_each_row needs source items: %w", types.ErrInvalidConfig)
	}
	first, err := e.column(d.SourceCategory, d.SourceItems[0])
	if err != nil {
		return err
	}
	rows := len(first)

	for i, item := range d.TargetItems {
		if i < len(d.SourceItems) {
			values, err := e.column(d.SourceCategory, d.SourceItems[i])
			if err != nil {
				return err
			}
			e.store.SetItem(d.TargetCategory, item, values)
			continue
		}
		scalar, ok := d.Parameters.Values[item]
		if !ok {
			return fmt.Errorf("no value parameter for target item %s: %w", item, types.ErrInvalidConfig)
		}
		e.store.SetItem(d.TargetCategory, item, repeat(scalar, rows))
	}
	return nil
}

// copyConditionalModify copies, replacing any value found in the match
// list with the replacement value.
func (e *Engine) copyConditionalModify(d types.Descriptor) error {
	columns, err := e.sourceColumns(d)
	if err != nil {
		return err
	}
	match := make(map[string]bool, len(d.Parameters.MatchValues))
	for _, v := range d.Parameters.MatchValues {
		match[v] = true
	}
	for i, item := range d.TargetItems {
		out := make([]string, len(columns[i]))
		for j, v := range columns[i] {
			if match[v] {
				out[j] = d.Parameters.ReplaceWith
			} else {
				out[j] = v
			}
		}
		e.store.SetItem(d.TargetCategory, item, out)
	}
	return nil
}

// staticValue fills each target item with the constant, replicated to
// the category's current row count. The count parameter seeds a row
// count for categories still empty; without it a single row is
// written.
func (e *Engine) staticValue(d types.Descriptor) error {
	rows := e.store.RowCount(d.TargetCategory)
	if rows == 0 {
		rows = d.Parameters.Count
	}
	if rows == 0 {
		rows = 1
	}
	for _, item := range d.TargetItems {
		e.store.SetItem(d.TargetCategory, item, repeat(d.Parameters.Value, rows))
	}
	return nil
}

// autoIncrement writes a dense 1-based sequence sized to the category's
// current row count, or to the count parameter for an empty category.
func (e *Engine) autoIncrement(d types.Descriptor) error {
	rows := e.store.RowCount(d.TargetCategory)
	if rows == 0 {
		rows = d.Parameters.Count
	}
	if rows == 0 {
		return fmt.Errorf("auto_increment on empty category %s without count: %w",
			d.TargetCategory, types.ErrInvalidConfig)
	}
	sequence := make([]string, rows)
	for i := range sequence {
		sequence[i] = strconv.Itoa(i + 1)
	}
	for _, item := range d.TargetItems {
		e.store.SetItem(d.TargetCategory, item, sequence)
	}
	return nil
}

// intersection keeps the source rows whose key value also appears in
// the reference column, and copies the survivors into the target.
func (e *Engine) intersection(d types.Descriptor) error {
	return e.intersect(d, nil)
}

// modifyIntersection is intersection with surviving values rewritten
// through the replacements map.
func (e *Engine) modifyIntersection(d types.Descriptor) error {
	return e.intersect(d, d.Parameters.Replacements)
}

func (e *Engine) intersect(d types.Descriptor, replacements map[string]string) error {
	columns, err := e.sourceColumns(d)
	if err != nil {
		return err
	}
	keyItem := d.Parameters.KeyItem
	if keyItem == "" && len(d.SourceItems) > 0 {
		keyItem = d.SourceItems[0]
	}
	keys, err := e.column(d.SourceCategory, keyItem)
	if err != nil {
		return err
	}
	reference, err := e.column(d.Parameters.OtherCategory, d.Parameters.OtherItem)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(reference))
	for _, v := range reference {
		allowed[v] = true
	}

	var surviving []int
	for i, key := range keys {
		if allowed[key] {
			surviving = append(surviving, i)
		}
	}
	for i, item := range d.TargetItems {
		out := make([]string, 0, len(surviving))
		for _, row := range surviving {
			v := columns[i][row]
			if replacement, ok := replacements[v]; ok {
				v = replacement
			}
			out = append(out, v)
		}
		e.store.SetItem(d.TargetCategory, item, out)
	}
	return nil
}

// conditionalUnion appends the rows of the source and the secondary
// category that satisfy the condition.
func (e *Engine) conditionalUnion(d types.Descriptor) error {
	return e.union(d, d.Parameters.Condition, false)
}

// conditionalDistinctUnion is conditionalUnion with first-seen
// deduplication by the key item.
func (e *Engine) conditionalDistinctUnion(d types.Descriptor) error {
	return e.union(d, d.Parameters.Condition, true)
}

// distinctUnion unions the two operands with first-seen deduplication
// and no row predicate.
func (e *Engine) distinctUnion(d types.Descriptor) error {
	return e.union(d, nil, true)
}

// union merges the source operand and, when configured, the secondary
// operand into the target. Rows failing the condition are skipped;
// with distinct set, rows repeating an already-seen key are skipped
// too. Key and condition values are read from each operand's own
// columns.
func (e *Engine) union(d types.Descriptor, cond *types.Condition, distinct bool) error {
	seen := make(map[string]bool)
	if err := e.unionOperand(d, d.SourceCategory, d.SourceItems, cond, distinct, seen); err != nil {
		return err
	}
	if d.Parameters.SecondaryCategory == "" {
		return nil
	}
	items := d.Parameters.SecondaryItems
	if len(items) == 0 {
		items = d.SourceItems
	}
	return e.unionOperand(d, d.Parameters.SecondaryCategory, items, cond, distinct, seen)
}

func (e *Engine) unionOperand(d types.Descriptor, category string, items []string, cond *types.Condition, distinct bool, seen map[string]bool) error {
	if len(items) != len(d.TargetItems) {
		return fmt.Errorf("%d target items for %d operand items in %s: %w",
			len(d.TargetItems), len(items), category, types.ErrInvalidConfig)
	}
	columns := make([][]string, len(items))
	rows := 0
	for i, item := range items {
		values, err := e.column(category, item)
		if err != nil {
			return err
		}
		columns[i] = values
		if len(values) > rows {
			rows = len(values)
		}
	}

	keyIdx := 0
	if d.Parameters.KeyItem != "" {
		keyIdx = indexOf(items, d.Parameters.KeyItem)
		if keyIdx < 0 {
			return fmt.Errorf("key item %s not among operand items of %s: %w",
				d.Parameters.KeyItem, category, types.ErrInvalidConfig)
		}
	}
	condIdx := -1
	if cond != nil {
		condIdx = indexOf(items, cond.Item)
		if condIdx < 0 {
			return fmt.Errorf("condition item %s not among operand items of %s: %w",
				cond.Item, category, types.ErrInvalidConfig)
		}
	}

	out := make([][]string, len(d.TargetItems))
	for row := 0; row < rows; row++ {
		if condIdx >= 0 && !cond.Match(value(columns[condIdx], row)) {
			continue
		}
		if distinct {
			key := value(columns[keyIdx], row)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		for i := range d.TargetItems {
			out[i] = append(out[i], value(columns[i], row))
		}
	}
	for i, item := range d.TargetItems {
		e.store.SetItem(d.TargetCategory, item, out[i])
	}
	return nil
}

// deletion drops whole items named in drop_items and, when a condition
// is configured, the rows of the target category matching it.
func (e *Engine) deletion(d types.Descriptor) error {
	for _, item := range d.Parameters.DropItems {
		e.store.DeleteItem(d.TargetCategory, item)
	}
	cond := d.Parameters.Condition
	if cond == nil {
		return nil
	}
	values, ok := e.store.Item(d.TargetCategory, cond.Item)
	if !ok {
		return fmt.Errorf("%s.%s: %w", d.TargetCategory, cond.Item, types.ErrMissingItem)
	}
	var doomed []int
	for i, v := range values {
		if cond.Match(v) {
			doomed = append(doomed, i)
		}
	}
	e.store.DeleteRows(d.TargetCategory, doomed)
	return nil
}

// externalInformation maps a key column through a cached two-column
// CSV lookup into the target item. Keys absent from the file yield the
// missing-value parameter.
func (e *Engine) externalInformation(d types.Descriptor) error {
	if len(d.TargetItems) != 1 {
		return fmt.Errorf("external_information writes exactly one target item: %w", types.ErrInvalidConfig)
	}
	keyCategory := d.SourceCategory
	if keyCategory == "" {
		keyCategory = d.TargetCategory
	}
	keyItem := d.Parameters.KeyItem
	if keyItem == "" && len(d.SourceItems) > 0 {
		keyItem = d.SourceItems[0]
	}
	keys, err := e.column(keyCategory, keyItem)
	if err != nil {
		return err
	}
	table, err := e.csvTable(d.Parameters.CSVFile)
	if err != nil {
		return err
	}
	missing := d.Parameters.MissingValue
	if missing == "" {
		missing = defaultMissingValue
	}

	out := make([]string, len(keys))
	for i, key := range keys {
		if v, ok := table[key]; ok {
			out[i] = v
		} else {
			out[i] = missing
		}
	}
	e.store.SetItem(d.TargetCategory, d.TargetItems[0], out)
	return nil
}

// csvTable loads a two-column lookup file, caching it for the run.
func (e *Engine) csvTable(path string) (map[string]string, error) {
	if table, ok := e.csvTables[path]; ok {
		return table, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lookup file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading lookup file %s: %w", path, err)
	}
	table := make(map[string]string, len(records))
	for _, record := range records {
		table[record[0]] = record[1]
	}
	e.csvTables[path] = table
	e.log.Debug("loaded lookup file", zap.String("path", path), zap.Int("keys", len(table)))
	return table, nil
}

// sqlQuery runs the configured statement against the query surface
// exactly once and binds its result columns to the target items
// positionally. The column count of that execution is validated before
// anything is written, so a mismatched binding leaves the store
// untouched even for a side-effecting statement.
func (e *Engine) sqlQuery(d types.Descriptor) error {
	cols, rows, err := e.surface.QueryTable(d.Parameters.Query)
	if err != nil {
		return err
	}
	if len(cols) != len(d.TargetItems) {
		return fmt.Errorf("query returns %d columns for %d target items: %w",
			len(cols), len(d.TargetItems), types.ErrColumnCountMismatch)
	}
	columns := make([][]string, len(d.TargetItems))
	for _, row := range rows {
		for i := range d.TargetItems {
			columns[i] = append(columns[i], row[i])
		}
	}
	for i, item := range d.TargetItems {
		e.store.SetItem(d.TargetCategory, item, columns[i])
	}
	return nil
}

// noop documents an intentionally skipped step.
func (e *Engine) noop(d types.Descriptor) error {
	e.log.Debug("noop", zap.String("category", d.TargetCategory))
	return nil
}

func repeat(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func indexOf(items []string, item string) int {
	for i, x := range items {
		if x == item {
			return i
		}
	}
	return -1
}

// value indexes a column without panicking on ragged operands.
func value(column []string, i int) string {
	if i >= len(column) {
		return ""
	}
	return column[i]
}
