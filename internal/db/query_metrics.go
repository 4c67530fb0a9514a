package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fr0stylo/synclink/internal/db/queries"
	"github.com/fr0stylo/synclink/internal/observability"
)

// instrumentedDBTX wraps each sqlc call in a span and a latency sample.
// Postgres statements get $n placeholders.
type instrumentedDBTX struct {
	inner   queries.DBTX
	stats   *queryStats
	dialect Dialect
}

func newInstrumentedDBTX(inner queries.DBTX, stats *queryStats, dialect Dialect) queries.DBTX {
	if stats == nil && dialect != DialectPostgres {
		return inner
	}
	return &instrumentedDBTX{inner: inner, stats: stats, dialect: dialect}
}

func (d *instrumentedDBTX) statement(query string) string {
	if d.dialect == DialectPostgres {
		return rebindPostgres(query)
	}
	return query
}

func (d *instrumentedDBTX) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, string(d.dialect), name, "exec")
	defer span.End()

	start := time.Now()
	result, err := d.inner.ExecContext(ctx, d.statement(query), args...)
	d.stats.record(name, time.Since(start), err)
	span.RecordError(err)
	return result, err
}

func (d *instrumentedDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, string(d.dialect), name, "prepare")
	defer span.End()

	start := time.Now()
	stmt, err := d.inner.PrepareContext(ctx, d.statement(query))
	d.stats.record(name, time.Since(start), err)
	span.RecordError(err)
	return stmt, err
}

func (d *instrumentedDBTX) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, string(d.dialect), name, "query")
	defer span.End()

	start := time.Now()
	rows, err := d.inner.QueryContext(ctx, d.statement(query), args...)
	d.stats.record(name, time.Since(start), err)
	span.RecordError(err)
	return rows, err
}

func (d *instrumentedDBTX) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, string(d.dialect), name, "query_row")
	start := time.Now()
	row := d.inner.QueryRowContext(ctx, d.statement(query), args...)
	err := row.Err()
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	d.stats.record(name, time.Since(start), err)
	span.RecordError(err)
	span.End()
	return row
}

func queryName(query string) string {
	lines := strings.Split(strings.TrimSpace(query), "\n")
	if len(lines) == 0 {
		return "unknown"
	}
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "-- name:") {
		return "unknown"
	}
	parts := strings.Fields(first)
	if len(parts) < 3 {
		return "unknown"
	}
	return strings.TrimSpace(parts[2])
}

// rebindPostgres rewrites ? placeholders to $n outside quoted literals.
func rebindPostgres(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
