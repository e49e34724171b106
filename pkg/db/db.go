// Package db owns the bounded Postgres connection pool and the safe query
// execution path. Queries are written with :name parameters and rebound to
// positional placeholders at execution time; results are serialized to
// JSON-safe values before leaving this package.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/finsightai/finsight/pkg/config"
	"github.com/finsightai/finsight/pkg/model"
)

// Querier is the read surface the resolver, profile builder and executor
// depend on. *Pool implements it; tests substitute fakes.
type Querier interface {
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Pool wraps database/sql with bounded connections. Connections are leased
// for the duration of a single query and returned on all paths.
type Pool struct {
	db *sql.DB
}

// Open connects to Postgres using the configured bounds and verifies the
// connection.
func Open(cfg *config.Config) (*Pool, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxConns)
	db.SetMaxIdleConns(cfg.DBMinConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database pool initialized", "min", cfg.DBMinConns, "max", cfg.DBMaxConns)
	return &Pool{db: db}, nil
}

// NewPool wraps an existing *sql.DB (used by tests with sqlite).
func NewPool(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// DB exposes the underlying handle for stores that manage their own schema.
func (p *Pool) DB() *sql.DB { return p.db }

// Close releases all connections.
func (p *Pool) Close() error {
	slog.Info("database pool closed")
	return p.db.Close()
}

// Query runs a :name parameterized query and returns rows as column->value
// maps with JSON-safe values.
func (p *Pool) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	bound, args, err := Rebind(query, params)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = Serialize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// OrderedQuerier preserves the statement's column order. *Pool implements
// it; plain Querier fakes fall back to a sorted ordering.
type OrderedQuerier interface {
	QueryOrdered(ctx context.Context, query string, params map[string]any) (columns []string, rows [][]any, err error)
}

// QueryOrdered runs a :name parameterized query and returns columns in
// statement order plus serialized row values.
func (p *Pool) QueryOrdered(ctx context.Context, query string, params map[string]any) ([]string, [][]any, error) {
	bound, args, err := Rebind(query, params)
	if err != nil {
		return nil, nil, err
	}

	rows, err := p.db.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i := range values {
			values[i] = Serialize(values[i])
		}
		out = append(out, values)
	}
	return cols, out, rows.Err()
}

// ExecuteSafe runs an already-sanitized query and shapes the result for the
// modeling engine, enforcing the row cap.
func ExecuteSafe(ctx context.Context, q Querier, query string, params map[string]any, maxRows int) (*model.ExecutionResult, *model.Error) {
	start := time.Now()

	var (
		columns []string
		data    [][]any
		err     error
	)

	if oq, ok := q.(OrderedQuerier); ok {
		columns, data, err = oq.QueryOrdered(ctx, query, params)
	} else {
		var rows []map[string]any
		rows, err = q.Query(ctx, query, params)
		if err == nil && len(rows) > 0 {
			columns = columnOrder(rows[0])
			for _, row := range rows {
				vals := make([]any, len(columns))
				for i, col := range columns {
					vals[i] = row[col]
				}
				data = append(data, vals)
			}
		}
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, model.WrapError(model.KindUpstreamTimeout, err, "query exceeded its deadline")
		}
		return nil, model.WrapError(model.KindSQLExecutionFailed, err, "query execution failed")
	}

	if maxRows > 0 && len(data) > maxRows {
		data = data[:maxRows]
	}

	return &model.ExecutionResult{
		Columns:         columns,
		Rows:            data,
		RowCount:        len(data),
		ExecutionTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// Serialize converts driver values to JSON-safe ones: timestamps become ISO
// strings, integers and decimals reported as text become float64, and other
// byte slices become strings.
func Serialize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		// lib/pq returns NUMERIC as []byte; numeric text becomes a float,
		// anything else keeps its text form.
		s := string(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case int64:
		return float64(t)
	default:
		return v
	}
}
