package types

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Operation kinds accepted in descriptor documents.
const (
	OpCopy                   = "copy"
	OpCopyFill               = "copy_fill"
	OpCopyForEachRow         = "copy_for_each_row"
	OpCopyConditionalModify  = "copy_conditional_modify"
	OpStaticValue            = "static_value"
	OpAutoIncrement          = "auto_increment"
	OpIntersection           = "intersection"
	OpModifyIntersection     = "modify_intersection"
	OpConditionalUnion       = "conditional_union"
	OpConditionalDistinctUni = "conditional_distinct_union"
	OpDistinctUnion          = "distinct_union"
	OpDeletion               = "deletion"
	OpExternalInformation    = "external_information"
	OpSQLQuery               = "sql_query"
	OpNoop                   = "noop"
)

// Descriptor is one configured transformation step. Descriptors are read
// once from the operations document and executed exactly once, in file
// order. They are never mutated after loading.
type Descriptor struct {
	Operation      string     `json:"operation"`
	TargetCategory string     `json:"target_category"`
	TargetItems    []string   `json:"target_items"`
	SourceCategory string     `json:"source_category,omitempty"`
	SourceItems    []string   `json:"source_items,omitempty"`
	Parameters     Parameters `json:"operation_parameters,omitempty"`
}

// Payload renders the descriptor as compact JSON for failure logging, so
// the operator can locate the offending step without re-running.
func (d Descriptor) Payload() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%+v", d)
	}
	return string(b)
}

// Parameters is the documented mini-DSL carried in "operation_parameters".
// Each operation kind reads only the fields it names; unknown fields in
// the JSON are ignored.
type Parameters struct {
	// Value is the constant written by static_value.
	Value string `json:"value,omitempty"`

	// Values maps target items to scalars expanded across every emitted
	// row by copy_for_each_row.
	Values map[string]string `json:"values,omitempty"`

	// Count is the row-count fallback for static_value and
	// auto_increment when the target category is still empty.
	Count int `json:"count,omitempty"`

	// FillValue pads shorter items in copy_fill.
	FillValue string `json:"fill_value,omitempty"`

	// MatchValues/ReplaceWith drive copy_conditional_modify: any copied
	// value equal to a member of MatchValues becomes ReplaceWith.
	MatchValues []string `json:"match_values,omitempty"`
	ReplaceWith string   `json:"replace_with,omitempty"`

	// Replacements rewrites surviving values in modify_intersection.
	Replacements map[string]string `json:"replacements,omitempty"`

	// KeyItem names the dedup key for conditional_distinct_union and the
	// lookup key for external_information.
	KeyItem string `json:"key_item,omitempty"`

	// OtherCategory/OtherItem name the reference column intersected
	// against by intersection and modify_intersection.
	OtherCategory string `json:"other_category,omitempty"`
	OtherItem     string `json:"other_item,omitempty"`

	// SecondaryCategory/SecondaryItems name the second operand of the
	// union operations. Items are matched to source items by position.
	SecondaryCategory string   `json:"secondary_category,omitempty"`
	SecondaryItems    []string `json:"secondary_items,omitempty"`

	// Condition filters rows in the conditional operations and deletion.
	Condition *Condition `json:"condition,omitempty"`

	// DropItems removes whole items from the target category (deletion).
	DropItems []string `json:"drop_items,omitempty"`

	// CSVFile and MissingValue configure external_information. The CSV
	// has two columns: key, descriptor. MissingValue (default "?") is
	// written for keys absent from the file.
	CSVFile      string `json:"csv_file,omitempty"`
	MissingValue string `json:"missing_value,omitempty"`

	// Query is the SQL statement issued by sql_query against the
	// denormalized table.
	Query string `json:"query,omitempty"`
}

// Condition is an exact-value membership predicate over one item.
type Condition struct {
	Item  string   `json:"item"`
	In    []string `json:"in,omitempty"`
	NotIn []string `json:"not_in,omitempty"`
}

// Match reports whether v satisfies the predicate. An empty In list
// matches everything not excluded by NotIn.
func (c *Condition) Match(v string) bool {
	for _, x := range c.NotIn {
		if v == x {
			return false
		}
	}
	if len(c.In) == 0 {
		return true
	}
	for _, x := range c.In {
		if v == x {
			return true
		}
	}
	return false
}

// OperationsDoc is the top-level shape of the operations JSON document.
type OperationsDoc struct {
	Operations []Descriptor        `json:"operations"`
	ItemOrder  map[string][]string `json:"mmcif_order"`
}

// ReadOperations decodes an operations document from r.
func ReadOperations(r io.Reader) (*OperationsDoc, error) {
	var doc OperationsDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding operations document: %w", err)
	}
	return &doc, nil
}

// LoadOperations reads an operations document from a file path.
func LoadOperations(path string) (*OperationsDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening operations file: %w", err)
	}
	defer f.Close()
	doc, err := ReadOperations(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return doc, nil
}
