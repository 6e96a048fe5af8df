package engine

import "context"

// FakeEngine is a deterministic Engine for tests: it calls Fn and
// returns whatever it returns, with no subprocess, filesystem, or
// timing involved.
type FakeEngine struct {
	Fn func(ctx context.Context, req Request) (Result, error)
}

// Compile implements Engine.
func (e *FakeEngine) Compile(ctx context.Context, req Request) (Result, error) {
	return e.Fn(ctx, req)
}

// EchoEngine is a FakeEngine that "compiles" by concatenating the
// entrypoint's bytes with the request's data, framed with a fixed
// header. It exists so render-pipeline tests can assert on PDF digest
// stability without depending on a real typesetting compiler being
// present.
func EchoEngine() *FakeEngine {
	return &FakeEngine{
		Fn: func(ctx context.Context, req Request) (Result, error) {
			entry, err := req.Files.Read(ctx, req.Files.EntrypointPath())
			if err != nil {
				return Result{}, err
			}
			if len(entry) == 0 && len(req.Data) == 0 {
				return Result{}, emptyOutput()
			}
			out := make([]byte, 0, len(entry)+len(req.Data)+5)
			out = append(out, "%PDF-"...)
			out = append(out, entry...)
			out = append(out, req.Data...)
			return Result{PDF: out}, nil
		},
	}
}
