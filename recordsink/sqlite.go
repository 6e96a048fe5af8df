package recordsink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/papermake/papermake/digest"
)

// SQLiteBackend is the durable append-only backing store for render
// records, a pure-Go SQLite database opened in WAL mode.
type SQLiteBackend struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if absent) a SQLite database at dsn and
// ensures the render_records table exists.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	conn, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("recordsink: open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recordsink: ping: %w", err)
	}

	b := &SQLiteBackend{conn: conn}
	if err := b.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS render_records (
		render_id         TEXT PRIMARY KEY,
		timestamp         DATETIME NOT NULL,
		template_ref_text TEXT NOT NULL,
		manifest_digest   TEXT NOT NULL,
		data_digest       TEXT NOT NULL,
		pdf_digest        TEXT,
		success           BOOLEAN NOT NULL,
		duration_ms       INTEGER NOT NULL,
		pdf_size_bytes    INTEGER,
		error_kind        TEXT,
		error_message     TEXT
	)`
	_, err := b.conn.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("recordsink: migrate: %w", err)
	}
	return nil
}

// Append implements Backend: inserts r. render_id is the primary key, so
// a retried write for an already-inserted record is a harmless no-op
// rather than a duplicate row (spec §4.10 allows at-least-once delivery
// into the backend; the schema's own append-only invariant requires
// idempotent retries).
func (b *SQLiteBackend) Append(ctx context.Context, r Record) error {
	const stmt = `INSERT INTO render_records (
		render_id, timestamp, template_ref_text, manifest_digest, data_digest,
		pdf_digest, success, duration_ms, pdf_size_bytes, error_kind, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(render_id) DO NOTHING`

	_, err := b.conn.ExecContext(ctx, stmt,
		r.RenderID, r.Timestamp, r.TemplateRefText, r.ManifestDigest.String(), r.DataDigest.String(),
		nullableDigest(r.PDFDigest), r.Success, r.DurationMS, nullableSize(r.PDFSizeBytes),
		nullableString(r.ErrorKind), nullableString(r.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("recordsink: append: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (b *SQLiteBackend) Close() error {
	return b.conn.Close()
}

func nullableDigest(d digest.Digest) any {
	if d == "" {
		return nil
	}
	return d.String()
}

func nullableSize(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
