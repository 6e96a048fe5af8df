// Package recordsink implements the render record sink (spec §4.10): an
// append-only audit log of render attempts, written asynchronously off
// a bounded queue so a slow or saturated backing store never blocks a
// render's response to its caller.
package recordsink

import (
	"time"

	"github.com/papermake/papermake/digest"
)

// Record is one render attempt (spec §3, "Render Record"). Created
// exactly once per render, after completion; never modified or deleted
// thereafter.
type Record struct {
	RenderID        string
	Timestamp       time.Time
	TemplateRefText string
	ManifestDigest  digest.Digest
	DataDigest      digest.Digest
	PDFDigest       digest.Digest // zero value if the render did not succeed
	Success         bool
	DurationMS      int64
	PDFSizeBytes    int64 // zero if the render did not succeed
	ErrorKind       string
	ErrorMessage    string
}
