package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/papermake/papermake/internal/dcontext"
	"github.com/papermake/papermake/internal/errcode"
)

// ExecEngine compiles by materializing a Request onto a scratch
// directory and invoking an external compiler binary against it. This
// is grounded on spec.md's Engine configuration (command, args,
// timeout): the compiler itself is an external collaborator, not
// something this core implements (spec §1 Non-goals).
type ExecEngine struct {
	// Command is the compiler binary to invoke, e.g. "typst".
	Command string

	// Args are additional arguments inserted before the entrypoint,
	// output, and data-file arguments ExecEngine appends itself.
	Args []string

	// Timeout bounds a single compile invocation. Zero means no
	// additional deadline beyond ctx's own.
	Timeout time.Duration
}

const (
	dataFileName   = "data.json"
	outputFileName = "output.pdf"
	fontsDirName   = "__papermake_fonts__"
)

// Compile implements Engine.
func (e *ExecEngine) Compile(ctx context.Context, req Request) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	scratch, err := os.MkdirTemp("", "papermake-compile-*")
	if err != nil {
		return Result{}, fmt.Errorf("engine: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := materialize(ctx, scratch, req); err != nil {
		return Result{}, err
	}

	entrypoint := filepath.Join(scratch, req.Files.EntrypointPath())
	dataPath := filepath.Join(scratch, dataFileName)
	outputPath := filepath.Join(scratch, outputFileName)

	args := append(append([]string{}, e.Args...), entrypoint, "--input", "data="+dataPath, outputPath)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Dir = scratch

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, errcode.ErrTimeout.WithCause(ctx.Err())
	}
	if ctx.Err() == context.Canceled {
		return Result{}, errcode.ErrCancelled.WithCause(ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return Result{}, errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{
				Sub: errcode.RuntimeError,
				Diagnostics: []errcode.Diagnostic{
					{Message: stderr.String()},
				},
			})
		}
		return Result{}, fmt.Errorf("engine: invoke %s: %w", e.Command, runErr)
	}

	pdf, err := os.ReadFile(outputPath)
	if err != nil {
		return Result{}, errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{
			Sub: errcode.RuntimeError,
			Diagnostics: []errcode.Diagnostic{
				{Message: fmt.Sprintf("reading compiler output: %v", err)},
			},
		})
	}
	if len(pdf) == 0 {
		return Result{}, emptyOutput()
	}

	dcontext.GetLogger(ctx).Debugf("engine: compiled %s -> %d bytes", req.Files.EntrypointPath(), len(pdf))
	return Result{PDF: pdf}, nil
}

// materialize writes every bundle file, the data value, and the font
// set onto disk under root, preserving the logical directory structure
// the compiler expects.
func materialize(ctx context.Context, root string, req Request) error {
	for _, p := range req.Files.Paths() {
		content, err := req.Files.Read(ctx, p)
		if err != nil {
			return errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{
				Sub: errcode.MissingFile,
				Diagnostics: []errcode.Diagnostic{
					{Message: fmt.Sprintf("resolving %q: %v", p, err), Path: p},
				},
			})
		}
		if err := writeFile(filepath.Join(root, p), content); err != nil {
			return fmt.Errorf("engine: materialize %q: %w", p, err)
		}
	}

	if err := os.WriteFile(filepath.Join(root, dataFileName), req.Data, 0o600); err != nil {
		return fmt.Errorf("engine: write data file: %w", err)
	}

	for name, content := range req.Fonts {
		if err := writeFile(filepath.Join(root, fontsDirName, name), content); err != nil {
			return fmt.Errorf("engine: materialize font %q: %w", name, err)
		}
	}

	return nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
