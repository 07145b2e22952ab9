package mmcif

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parse errors.
var (
	ErrNoDataBlock = errors.New("document contains no data block")
	ErrSyntax      = errors.New("cif syntax error")
)

// token is one lexical unit of a CIF document. text is true for values
// read from quoted or semicolon fields, which are never keywords.
type token struct {
	value string
	text  bool
	line  int
}

// ParseFile parses the sole data block of the file at path.
func ParseFile(path string) (*Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model file: %w", err)
	}
	defer f.Close()
	b, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return b, nil
}

// Parse reads the first data block from r. Content after a second
// data_ heading is ignored, matching the sole-block access pattern the
// pipeline uses.
func Parse(r io.Reader) (*Block, error) {
	tokens, err := tokenize(r)
	if err != nil {
		return nil, err
	}

	var block *Block
	i := 0
	for i < len(tokens) {
		t := tokens[i]
		switch {
		case !t.text && strings.HasPrefix(strings.ToLower(t.value), "data_"):
			if block != nil {
				return block, nil // sole-block: stop at the second heading
			}
			block = NewBlock(t.value[len("data_"):])
			i++
		case block == nil:
			return nil, fmt.Errorf("line %d: %q before data block: %w", t.line, t.value, ErrSyntax)
		case !t.text && strings.EqualFold(t.value, "loop_"):
			n, err := parseLoop(block, tokens[i+1:])
			if err != nil {
				return nil, err
			}
			i += 1 + n
		case !t.text && strings.HasPrefix(t.value, "_"):
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("line %d: tag %s without value: %w", t.line, t.value, ErrSyntax)
			}
			cat, item, ok := splitTag(t.value)
			if !ok {
				return nil, fmt.Errorf("line %d: malformed tag %q: %w", t.line, t.value, ErrSyntax)
			}
			setPair(block.category(cat), item, tokens[i+1].value)
			i += 2
		default:
			return nil, fmt.Errorf("line %d: unexpected value %q: %w", t.line, t.value, ErrSyntax)
		}
	}
	if block == nil {
		return nil, ErrNoDataBlock
	}
	return block, nil
}

// parseLoop consumes the tags and values of one loop_ construct and
// returns the number of tokens consumed.
func parseLoop(block *Block, tokens []token) (int, error) {
	var cat *Category
	ntags := 0
	i := 0
	for i < len(tokens) {
		t := tokens[i]
		if t.text || !strings.HasPrefix(t.value, "_") {
			break
		}
		catName, item, ok := splitTag(t.value)
		if !ok {
			return 0, fmt.Errorf("line %d: malformed loop tag %q: %w", t.line, t.value, ErrSyntax)
		}
		c := block.category(catName)
		if cat == nil {
			cat = c
		} else if c != cat {
			return 0, fmt.Errorf("line %d: loop mixes categories %s and %s: %w", t.line, cat.Name, c.Name, ErrSyntax)
		}
		cat.addTag(item)
		ntags++
		i++
	}
	if cat == nil || ntags == 0 {
		return 0, fmt.Errorf("loop_ without tags: %w", ErrSyntax)
	}

	var row []string
	for i < len(tokens) {
		t := tokens[i]
		if !t.text && (strings.HasPrefix(t.value, "_") ||
			strings.EqualFold(t.value, "loop_") ||
			strings.HasPrefix(strings.ToLower(t.value), "data_")) {
			break
		}
		row = append(row, t.value)
		if len(row) == ntags {
			cat.rows = append(cat.rows, padRow(row, len(cat.tags)))
			row = nil
		}
		i++
	}
	if len(row) != 0 {
		return 0, fmt.Errorf("loop over %s has a partial final row: %w", cat.Name, ErrSyntax)
	}
	return i, nil
}

// setPair records a key-value pair; pair categories hold a single row.
func setPair(c *Category, item, value string) {
	idx := c.addTag(item)
	if len(c.rows) == 0 {
		c.rows = append(c.rows, make([]string, len(c.tags)))
	}
	c.rows[0] = padRow(c.rows[0], len(c.tags))
	c.rows[0][idx] = value
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

// tokenize splits the document into tokens, resolving comments, quoted
// strings, and semicolon text fields.
func tokenize(r io.Reader) ([]token, error) {
	var tokens []token
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	var textLines []string
	inText := false
	textStart := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNo++

		if inText {
			if strings.HasPrefix(line, ";") {
				tokens = append(tokens, token{value: strings.Join(textLines, "\n"), text: true, line: textStart})
				textLines = nil
				inText = false
				rest := strings.TrimSpace(line[1:])
				if rest != "" {
					return nil, fmt.Errorf("line %d: content after closing semicolon: %w", lineNo, ErrSyntax)
				}
			} else {
				textLines = append(textLines, line)
			}
			continue
		}

		if strings.HasPrefix(line, ";") {
			inText = true
			textStart = lineNo
			if first := line[1:]; first != "" {
				textLines = append(textLines, first)
			}
			continue
		}

		ts, err := tokenizeLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, ts...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cif input: %w", err)
	}
	if inText {
		return nil, fmt.Errorf("line %d: unterminated text field: %w", textStart, ErrSyntax)
	}
	return tokens, nil
}

func tokenizeLine(line string, lineNo int) ([]token, error) {
	var tokens []token
	i := 0
	n := len(line)
	for i < n {
		switch c := line[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '#':
			return tokens, nil
		case c == '\'' || c == '"':
			end := i + 1
			for {
				j := strings.IndexByte(line[end:], c)
				if j < 0 {
					return nil, fmt.Errorf("line %d: unterminated quote: %w", lineNo, ErrSyntax)
				}
				end += j
				// A closing quote must be followed by whitespace or EOL.
				if end+1 >= n || line[end+1] == ' ' || line[end+1] == '\t' {
					break
				}
				end++
			}
			tokens = append(tokens, token{value: line[i+1 : end], text: true, line: lineNo})
			i = end + 1
		default:
			end := i
			for end < n && line[end] != ' ' && line[end] != '\t' {
				end++
			}
			tokens = append(tokens, token{value: line[i:end], line: lineNo})
			i = end
		}
	}
	return tokens, nil
}
