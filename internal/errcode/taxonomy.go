package errcode

// The error kinds from spec §7. Each is a sentinel Descriptor; wrap it
// with WithDetail or WithCause at the call site to attach specifics.
var (
	ErrInvalidReference = Register(Descriptor{
		Value:   "InvalidReference",
		Message: "malformed textual reference or digest",
	})

	ErrTemplateNotFound = Register(Descriptor{
		Value:   "TemplateNotFound",
		Message: "unknown namespace/name/tag",
	})

	ErrHashMismatch = Register(Descriptor{
		Value:   "HashMismatch",
		Message: "reference-specified digest does not match resolved digest",
	})

	ErrImmutableTagExists = Register(Descriptor{
		Value:   "ImmutableTagExists",
		Message: "immutable tag already points to a manifest",
	})

	ErrTagUpdateConflict = Register(Descriptor{
		Value:   "TagUpdateConflict",
		Message: "concurrent update raced the tag's compare-and-swap",
	})

	ErrInvalidManifest = Register(Descriptor{
		Value:   "InvalidManifest",
		Message: "manifest failed validation after decode",
	})

	ErrInvalidData = Register(Descriptor{
		Value:   "InvalidData",
		Message: "input JSON failed canonicalization or exceeded limits",
	})

	ErrCompileFailed = Register(Descriptor{
		Value:   "CompileFailed",
		Message: "the typesetting engine reported diagnostics",
	})

	ErrStorageUnavailable = Register(Descriptor{
		Value:   "StorageUnavailable",
		Message: "transient infrastructure failure",
	})

	ErrCorrupt = Register(Descriptor{
		Value:   "Corrupt",
		Message: "digest mismatch, missing referenced blob, or undecodable manifest",
	})

	ErrTimeout = Register(Descriptor{
		Value:   "Timeout",
		Message: "deadline exceeded",
	})

	ErrCancelled = Register(Descriptor{
		Value:   "Cancelled",
		Message: "caller cancelled the operation",
	})
)

// CompileFailureKind is the CompileFailed sub-kind taxonomy (spec §7).
type CompileFailureKind string

const (
	SyntaxError   CompileFailureKind = "SyntaxError"
	RuntimeError  CompileFailureKind = "RuntimeError"
	MissingFile   CompileFailureKind = "MissingFile"
	EmptyOutput   CompileFailureKind = "EmptyOutput"
	InternalError CompileFailureKind = "InternalError"
)

// Diagnostic is one entry of a CompileFailed error's detail payload: a
// compiler-reported message, optionally located within the bundle's
// logical paths. Locations are always relative to the bundle, never to
// a host filesystem path (spec §7, "User-visible behavior").
type Diagnostic struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

// CompileFailure is the detail payload attached to ErrCompileFailed.
type CompileFailure struct {
	Sub         CompileFailureKind `json:"sub_kind"`
	Diagnostics []Diagnostic       `json:"diagnostics"`
}
