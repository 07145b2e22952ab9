package mmcif

import (
	"fmt"
	"io"
	"strings"
)

// CategoryData is the writer-side view of one category: named columns of
// equal length, emitted in Items order.
type CategoryData struct {
	Name    string
	Items   []string
	Columns map[string][]string
}

// Write serializes categories as one data block. Single-row categories
// are written as key-value pairs, multi-row ones as loop_ tables with
// columns padded for alignment. Categories without items or without
// rows are skipped; a loop_ header with no values is not valid CIF.
func Write(w io.Writer, blockName string, categories []CategoryData) error {
	if _, err := fmt.Fprintf(w, "data_%s\n#\n", blockName); err != nil {
		return err
	}
	for _, cat := range categories {
		if len(cat.Items) == 0 {
			continue
		}
		rowCount := len(cat.Columns[cat.Items[0]])
		if rowCount == 0 {
			continue
		}
		var err error
		if rowCount == 1 {
			err = writePairs(w, cat)
		} else {
			err = writeLoop(w, cat, rowCount)
		}
		if err != nil {
			return fmt.Errorf("writing category %s: %w", cat.Name, err)
		}
		if _, err := io.WriteString(w, "#\n"); err != nil {
			return err
		}
	}
	return nil
}

func writePairs(w io.Writer, cat CategoryData) error {
	width := 0
	for _, item := range cat.Items {
		if l := len(cat.Name) + 1 + len(item); l > width {
			width = l
		}
	}
	for _, item := range cat.Items {
		tag := cat.Name + "." + item
		value := quote(cat.Columns[item][0])
		if strings.HasPrefix(value, ";") {
			if _, err := fmt.Fprintf(w, "%s\n%s\n", tag, value); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%-*s %s\n", width+2, tag, value); err != nil {
			return err
		}
	}
	return nil
}

func writeLoop(w io.Writer, cat CategoryData, rowCount int) error {
	if _, err := io.WriteString(w, "loop_\n"); err != nil {
		return err
	}
	for _, item := range cat.Items {
		if _, err := fmt.Fprintf(w, "%s.%s\n", cat.Name, item); err != nil {
			return err
		}
	}

	// Quote once, then pad columns so the table lines up.
	quoted := make([][]string, len(cat.Items))
	widths := make([]int, len(cat.Items))
	multiline := false
	for i, item := range cat.Items {
		col := cat.Columns[item]
		quoted[i] = make([]string, rowCount)
		for r := 0; r < rowCount; r++ {
			v := quote(col[r])
			quoted[i][r] = v
			if strings.HasPrefix(v, ";") {
				multiline = true
			} else if len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	for r := 0; r < rowCount; r++ {
		var sb strings.Builder
		for i := range cat.Items {
			v := quoted[i][r]
			if strings.HasPrefix(v, ";") {
				// Flush the line so far, then the text field on its own lines.
				if sb.Len() > 0 {
					if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
						return err
					}
					sb.Reset()
				}
				if _, err := fmt.Fprintln(w, v); err != nil {
					return err
				}
				continue
			}
			if multiline {
				sb.WriteString(v)
				sb.WriteByte(' ')
			} else {
				sb.WriteString(fmt.Sprintf("%-*s ", widths[i], v))
			}
		}
		if sb.Len() > 0 {
			if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
				return err
			}
		}
	}
	return nil
}

// quote renders a value in the simplest CIF form that round-trips it.
// Empty values become "?" per mmCIF convention for missing data.
func quote(v string) string {
	if v == "" {
		return "?"
	}
	if strings.ContainsRune(v, '\n') {
		return ";" + v + "\n;"
	}
	if !needsQuoting(v) {
		return v
	}
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	return ";" + v + "\n;"
}

func needsQuoting(v string) bool {
	if strings.ContainsAny(v, " \t'\"") {
		return true
	}
	switch v[0] {
	case '_', '#', '$', '[', ']', ';':
		return true
	}
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "data_") || lower == "loop_"
}
