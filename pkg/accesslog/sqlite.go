package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend persists records to a SQLite database. It uses WAL mode for
// concurrent read performance and a single write connection, which is all
// SQLite supports anyway.
type SQLiteBackend struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// NewSQLiteBackend opens (or creates) the database at path and prepares the
// schema.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("access log db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open access log database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize access log schema: %w", err)
	}
	if err := b.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare access log statements: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_log (
		id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		client_ip TEXT,
		class TEXT,
		pool TEXT,
		target TEXT,
		status INTEGER NOT NULL,
		cache_status TEXT,
		attempts INTEGER NOT NULL,
		duration_us INTEGER NOT NULL,
		bytes_out INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts);
	CREATE INDEX IF NOT EXISTS idx_access_log_class ON access_log(class, ts);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) prepareStatements() error {
	insert, err := b.db.Prepare(`
		INSERT INTO access_log
		(id, ts, method, path, client_ip, class, pool, target, status, cache_status, attempts, duration_us, bytes_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	prune, err := b.db.Prepare(`DELETE FROM access_log WHERE ts < ?`)
	if err != nil {
		insert.Close()
		return err
	}
	b.insertStmt = insert
	b.pruneStmt = prune
	return nil
}

// Insert stores one record.
func (b *SQLiteBackend) Insert(ctx context.Context, rec Record) error {
	_, err := b.insertStmt.ExecContext(ctx,
		rec.ID,
		rec.Time.UnixMicro(),
		rec.Method,
		rec.Path,
		rec.ClientIP,
		rec.Class,
		rec.Pool,
		rec.Target,
		rec.Status,
		rec.CacheStatus,
		rec.Attempts,
		rec.Duration.Microseconds(),
		rec.BytesOut,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access record: %w", err)
	}
	return nil
}

// Prune deletes records older than the cutoff.
func (b *SQLiteBackend) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := b.pruneStmt.ExecContext(ctx, olderThan.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("failed to prune access records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the stored record count. Used by the admin status surface.
func (b *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_log`).Scan(&n)
	return n, err
}

// Close closes the prepared statements and the database.
func (b *SQLiteBackend) Close() error {
	if b.insertStmt != nil {
		b.insertStmt.Close()
	}
	if b.pruneStmt != nil {
		b.pruneStmt.Close()
	}
	return b.db.Close()
}
