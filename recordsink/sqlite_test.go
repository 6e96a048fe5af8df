package recordsink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/papermake/papermake/digest"
)

func TestSQLiteBackendAppendAndIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "records.db")

	backend, err := OpenSQLite(ctx, dsn)
	if err != nil {
		t.Fatalf("unexpected error opening backend: %v", err)
	}
	defer backend.Close()

	r := Record{
		RenderID:        "r-1",
		Timestamp:       time.Now(),
		TemplateRefText: "acme/invoice:latest",
		ManifestDigest:  digest.FromBytes([]byte("manifest")),
		DataDigest:      digest.FromBytes([]byte("data")),
		PDFDigest:       digest.FromBytes([]byte("pdf")),
		Success:         true,
		DurationMS:      10,
		PDFSizeBytes:    1024,
	}

	if err := backend.Append(ctx, r); err != nil {
		t.Fatalf("unexpected error on first append: %v", err)
	}

	// A retried append for the same render_id must be a no-op, not an
	// error or a duplicate row (spec §4.10's append-only invariant
	// combined with at-least-once delivery into the backend).
	if err := backend.Append(ctx, r); err != nil {
		t.Fatalf("unexpected error on retried append: %v", err)
	}

	var count int
	row := backend.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM render_records WHERE render_id = ?", r.RenderID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("unexpected error counting rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row for render_id %s, got %d", r.RenderID, count)
	}
}

func TestSQLiteBackendAppendWithoutPDF(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "records.db")

	backend, err := OpenSQLite(ctx, dsn)
	if err != nil {
		t.Fatalf("unexpected error opening backend: %v", err)
	}
	defer backend.Close()

	r := Record{
		RenderID:        "r-failed",
		Timestamp:       time.Now(),
		TemplateRefText: "acme/invoice:latest",
		ManifestDigest:  digest.FromBytes([]byte("manifest")),
		DataDigest:      digest.FromBytes([]byte("data")),
		Success:         false,
		DurationMS:      5,
		ErrorKind:       "CompileFailed",
		ErrorMessage:    "syntax error on line 3",
	}

	if err := backend.Append(ctx, r); err != nil {
		t.Fatalf("unexpected error appending a failed render: %v", err)
	}
}
