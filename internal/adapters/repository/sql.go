package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a backend name onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlQueries implements Queries on a connection or a transaction.
type sqlQueries struct {
	db      dbtx
	dialect Dialect
	now     func() time.Time
}

// SQLStore is a Store over database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	*sqlQueries
	conn *sql.DB
	log  logger.Logger
}

// OpenSQL opens a database for dialect d and returns a store over it.
func OpenSQL(ctx context.Context, d Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	if d == DialectSQLite {
		// in-memory databases live and die with their single connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(o.maxOpenConns)
		conn.SetConnMaxLifetime(o.connMaxLifetime)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}

	s := NewSQLStore(conn, d, opts...)
	if o.migrate {
		if err := Migrate(ctx, conn, d); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(conn *sql.DB, d Dialect, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{
		sqlQueries: &sqlQueries{db: conn, dialect: d, now: o.now},
		conn:       conn,
		log:        logger.Get().Named("repository"),
	}
}

// DB exposes the underlying pool for migrations and health checks.
func (s *SQLStore) DB() *sql.DB { return s.conn }

// Close closes the underlying pool.
func (s *SQLStore) Close() error { return s.conn.Close() }

// InTx runs fn inside one database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(q Queries) error) (err error) {
	start := time.Now()
	isolation := sql.LevelReadCommitted
	if s.dialect == DialectSQLite {
		isolation = sql.LevelDefault
	}
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		metrics.RecordErrorByComponent("repository", "begin")
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error(ctx, "rollback failed", logger.Error(rbErr))
		}
		status := "commit"
		if err != nil {
			status = "rollback"
		}
		metrics.RecordRepositoryTx(string(s.dialect), status, time.Since(start).Seconds())
	}()

	if err = fn(&sqlQueries{db: tx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (q *sqlQueries) rebind(query string) string {
	if q.dialect != DialectPostgres {
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

func (q *sqlQueries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.db.ExecContext(ctx, q.rebind(query), args...)
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return res, mapError(err)
}

func (q *sqlQueries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.db.QueryContext(ctx, q.rebind(query), args...)
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return rows, mapError(err)
}

func (q *sqlQueries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.db.QueryRowContext(ctx, q.rebind(query), args...)
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return row
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func (q *sqlQueries) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// expectOne turns a zero-row write into ErrNotFound.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// mapError converts driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(liteErr.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %s", ErrConflict, liteErr.Error())
	}
	return err
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
