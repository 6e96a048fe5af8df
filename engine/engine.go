// Package engine defines papermake's compile engine binding (spec §4.8):
// the narrow interface the render pipeline uses to invoke a typesetting
// compiler against a bundle's files and a canonical JSON data value, plus
// a subprocess-based implementation for compilers that ship as an
// external binary.
package engine

import (
	"context"

	"github.com/papermake/papermake/internal/errcode"
)

// FileSystem is the capability the render pipeline binds for a compiler
// to resolve a bundle's files (spec §4.7, §4.8 step 2-3). vfs.FS
// satisfies this.
type FileSystem interface {
	// Read returns the bytes at path, relative to the directory that
	// holds the bundle's entrypoint.
	Read(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether path resolves to a file.
	Exists(path string) bool

	// Paths lists every file the bundle carries, for engines that must
	// materialize the whole bundle rather than read lazily.
	Paths() []string

	// EntrypointPath is the logical path the compiler should open
	// first.
	EntrypointPath() string
}

// Request is one compile invocation (spec §4.8): a bundle's files, the
// canonical JSON text of the render's input data, and the font set to
// supply for assets the bundle itself doesn't carry.
type Request struct {
	Files FileSystem
	Data  []byte
	Fonts map[string][]byte

	// WarmState is whatever a prior Warmer.Warm call returned for this
	// manifest, or nil if the engine isn't a Warmer or the render
	// pipeline has no warm entry yet. Most engines ignore it.
	WarmState any
}

// Warmer is optionally implemented by engines that can prepare reusable
// state for a manifest ahead of a specific Compile call — e.g. an
// in-process compiler that parses a template once and compiles many
// different data inputs against the same parse tree. Engines with no
// such reusable state, like ExecEngine's one-shot subprocess model,
// need not implement it; the render pipeline skips warming for them.
type Warmer interface {
	Warm(ctx context.Context, files FileSystem) (any, error)
}

// Result is a successful compile's output.
type Result struct {
	PDF []byte
}

// Engine compiles a Request into a PDF. Implementations report compiler
// failures as errcode.ErrCompileFailed carrying an errcode.CompileFailure
// detail (spec §7); anything else is a transport/infrastructure error.
type Engine interface {
	Compile(ctx context.Context, req Request) (Result, error)
}

// emptyOutput builds the CompileFailed error for zero-byte compiler
// output (spec §4.9, "Empty PDF output").
func emptyOutput() error {
	return errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{
		Sub: errcode.EmptyOutput,
		Diagnostics: []errcode.Diagnostic{
			{Message: "compiler produced zero-byte output"},
		},
	})
}
