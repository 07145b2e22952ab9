// Package dataset builds and owns the denormalized entity table: an
// in-memory SQLite database holding one row per structural entity
// across all model sources, enriched with grouping, experimental, and
// cross-reference metadata. The rest of the pipeline reads it through
// the Surface query API.
package dataset

import (
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Surface owns the single shared database connection used for the whole
// run. It is built once by the Builder and read-mostly afterwards; it is
// not safe for concurrent callers and the pipeline never shares it.
type Surface struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSurface opens an in-memory SQLite database. MaxOpenConns is pinned
// to one so the in-memory database is not silently duplicated per pool
// connection.
func NewSurface(log *zap.Logger) (*Surface, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Surface{db: db, log: log}, nil
}

// Exec runs a statement that returns no rows.
func (s *Surface) Exec(query string, args ...any) error {
	s.log.Debug("executing statement", zap.String("query", query))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

// Begin starts a transaction on the shared connection.
func (s *Surface) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// QueryStrings runs a query and renders every value as a string: NULL
// becomes the empty string, numbers are formatted without a trailing
// ".0" for integral floats. The output store is text-typed, so this is
// the shape every caller wants.
func (s *Surface) QueryStrings(query string, args ...any) ([][]string, error) {
	_, rows, err := s.QueryTable(query, args...)
	return rows, err
}

// QueryTable runs a query once and returns its column names alongside
// the stringified rows. sql_query validates its item binding against
// the columns of the same execution, so side-effecting statements are
// never applied twice.
func (s *Surface) QueryTable(query string, args ...any) ([]string, [][]string, error) {
	s.log.Debug("executing query", zap.String("query", query))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("reading result columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scanning result row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			row[i] = formatValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return cols, out, nil
}

// Close releases the database. Safe to call more than once.
func (s *Surface) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", x)
	}
}
