package dataset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store wraps the fixed read-mostly SQLite dataset: schema introspection,
// query execution and the lowercase compatibility views. The schema string
// and table list are captured once and shared safely across runs.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	path   string
}

// Open connects to the SQLite database at path. The file must already exist;
// this store never creates or populates the dataset.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("database not found: %s: %w", path, err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// table-lock errors when views are created at startup.
	db.SetMaxOpenConns(1)

	logger.Info("Dataset opened", zap.String("path", path))
	return &Store{db: db, logger: logger, path: path}, nil
}

// NewFromDB wraps an existing database handle. Used by tests.
func NewFromDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TableNames returns all table names in the dataset, sorted.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Schema renders the dataset schema as one block per table:
//
//	Table: Orders
//	  OrderID INTEGER
//	  CustomerID TEXT
//
// The string is captured once at startup and handed to the SQL collaborators.
func (s *Store) Schema(ctx context.Context) (string, error) {
	tables, err := s.TableNames(ctx)
	if err != nil {
		return "", err
	}

	var blocks []string
	for _, table := range tables {
		rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
		if err != nil {
			return "", fmt.Errorf("table info %s: %w", table, err)
		}

		var cols []string
		for rows.Next() {
			var (
				cid       int
				name      string
				ctype     string
				notNull   int
				dfltValue interface{}
				pk        int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
				rows.Close()
				return "", fmt.Errorf("scan table info %s: %w", table, err)
			}
			cols = append(cols, fmt.Sprintf("  %s %s", name, ctype))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", fmt.Errorf("table info %s: %w", table, err)
		}
		rows.Close()

		blocks = append(blocks, fmt.Sprintf("Table: %s\n%s", table, strings.Join(cols, "\n")))
	}

	return strings.Join(blocks, "\n\n"), nil
}

// ExecResult is one query attempt's outcome. Error is the empty string on
// success; a failed query is a normal outcome here, not a Go error.
type ExecResult struct {
	Rows    [][]interface{}
	Columns []string
	Error   string
}

// Execute runs a query and returns rows, columns and an error text. SQL-level
// failures (bad column, syntax error) land in ExecResult.Error so callers can
// feed them to the repair loop; only infrastructure faults (cancellation,
// closed handle) return a Go error.
func (s *Store) Execute(ctx context.Context, query string) (ExecResult, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return ExecResult{}, ctx.Err()
		}
		return ExecResult{Columns: []string{}, Error: err.Error()}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ExecResult{Columns: []string{}, Error: err.Error()}, nil
	}

	var data [][]interface{}
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return ExecResult{Columns: []string{}, Error: err.Error()}, nil
		}
		data = append(data, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return ExecResult{}, ctx.Err()
		}
		return ExecResult{Columns: []string{}, Error: err.Error()}, nil
	}

	return ExecResult{Rows: data, Columns: columns}, nil
}

// SampleRows returns up to limit rows from a table as column->value maps.
func (s *Store) SampleRows(ctx context.Context, table string, limit int) ([]map[string]interface{}, error) {
	res, err := s.Execute(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, table, limit))
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("sample %s: %s", table, res.Error)
	}

	out := make([]map[string]interface{}, 0, len(res.Rows))
	for _, row := range res.Rows {
		m := make(map[string]interface{}, len(res.Columns))
		for i, col := range res.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// normalizeRow converts driver byte slices to strings so rows serialize as
// JSON text rather than base64.
func normalizeRow(row []interface{}) []interface{} {
	for i, v := range row {
		if b, ok := v.([]byte); ok {
			row[i] = string(b)
		}
	}
	return row
}
