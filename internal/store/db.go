package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// ErrUnsupportedDSN is returned for connection strings no driver handles
var ErrUnsupportedDSN = errors.New("unsupported database url")

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// DB wraps a database handle with the SQL dialect it speaks.
// Queries are written with ? placeholders and rebound for Postgres.
type DB struct {
	*sql.DB
	dialect dialect
	now     func() time.Time
}

// NewDB opens and pings the database behind dsn.
//
//	postgres://...            lib/pq
//	libsql://..., https://... libsql (Turso)
//	sqlite://path, file:...   modernc sqlite
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	driver, source, d, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: d, now: time.Now}, nil
}

func parseDSN(dsn string) (driver, source string, d dialect, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, dialectPostgres, nil
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "https://"), strings.HasPrefix(dsn, "http://"):
		return "libsql", dsn, dialectSQLite, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), dialectSQLite, nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return "sqlite", dsn, dialectSQLite, nil
	}
	return "", "", 0, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
}

// Migrate creates the tables and indexes if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// SetClock replaces the clock used for created_at and detected_at
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

// rebind rewrites ? placeholders into $n for Postgres
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// whereBuilder accumulates AND-ed conditions with ? placeholders
type whereBuilder struct {
	conditions []string
	args       []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

// Add appends "column = ?" when value is non-empty
func (w *whereBuilder) Add(column string, value string) {
	if value == "" {
		return
	}
	w.AddRaw(column+" = ?", value)
}

// AddRaw appends an arbitrary condition
func (w *whereBuilder) AddRaw(condition string, args ...any) {
	w.conditions = append(w.conditions, condition)
	w.args = append(w.args, args...)
}

// Build returns the WHERE clause (with a leading space) and its args
func (w *whereBuilder) Build() (string, []any) {
	if len(w.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(w.conditions, " AND "), w.args
}
