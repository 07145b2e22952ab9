// Package mmcif reads and writes the subset of the mmCIF format the
// investigation pipeline needs: one data block per document, key-value
// pairs, loop_ tables, quoted and semicolon-delimited values, and
// comments. Category and item names are matched case-insensitively.
package mmcif

import "strings"

// Block is one data block of an mmCIF document.
type Block struct {
	Name       string
	categories map[string]*Category
	order      []string
}

// Category holds the rows of one mmCIF category, for example "_entity".
type Category struct {
	Name  string
	tags  []string
	index map[string]int
	rows  [][]string
}

// NewBlock creates an empty data block.
func NewBlock(name string) *Block {
	return &Block{Name: name, categories: make(map[string]*Category)}
}

// Category returns the named category, or nil if the block does not have
// it. The leading underscore is required, case is not significant.
func (b *Block) Category(name string) *Category {
	return b.categories[strings.ToLower(name)]
}

// HasCategory reports whether the block contains the named category.
func (b *Block) HasCategory(name string) bool {
	return b.Category(name) != nil
}

// Categories returns category names in document order.
func (b *Block) Categories() []string {
	return append([]string(nil), b.order...)
}

func (b *Block) category(name string) *Category {
	key := strings.ToLower(name)
	c, ok := b.categories[key]
	if !ok {
		c = &Category{Name: name, index: make(map[string]int)}
		b.categories[key] = c
		b.order = append(b.order, name)
	}
	return c
}

// Tags returns the item names of the category, without the category
// prefix, in document order.
func (c *Category) Tags() []string {
	return append([]string(nil), c.tags...)
}

// Len returns the number of rows.
func (c *Category) Len() int {
	return len(c.rows)
}

// Rows returns all rows; each row has one value per tag.
func (c *Category) Rows() [][]string {
	return c.rows
}

// Column returns all values of one item, or false if the category does
// not carry the item.
func (c *Category) Column(item string) ([]string, bool) {
	i, ok := c.index[strings.ToLower(item)]
	if !ok {
		return nil, false
	}
	out := make([]string, len(c.rows))
	for r, row := range c.rows {
		out[r] = row[i]
	}
	return out, true
}

// ColumnIndex returns the position of item within rows, or false.
func (c *Category) ColumnIndex(item string) (int, bool) {
	i, ok := c.index[strings.ToLower(item)]
	return i, ok
}

// addTag registers an item name, extending existing rows with empty
// values when the tag arrives after rows already exist.
func (c *Category) addTag(item string) int {
	key := strings.ToLower(item)
	if i, ok := c.index[key]; ok {
		return i
	}
	c.tags = append(c.tags, item)
	i := len(c.tags) - 1
	c.index[key] = i
	for r := range c.rows {
		for len(c.rows[r]) < len(c.tags) {
			c.rows[r] = append(c.rows[r], "")
		}
	}
	return i
}

// splitTag splits "_entity.id" into category "_entity" and item "id".
func splitTag(tag string) (category, item string, ok bool) {
	dot := strings.IndexByte(tag, '.')
	if dot < 0 || !strings.HasPrefix(tag, "_") {
		return "", "", false
	}
	return tag[:dot], tag[dot+1:], true
}
