package errcode

import (
	"errors"
	"testing"
)

func TestRegisteredKindsAreStable(t *testing.T) {
	if len(codeToDescriptor) == 0 {
		t.Fatal("no error kinds registered")
	}

	for code, desc := range codeToDescriptor {
		if code != desc.Code {
			t.Fatalf("code mismatch: %v != %v", code, desc.Code)
		}
		if valueToDescriptor[desc.Value].Code != code {
			t.Fatalf("value->code mismatch for %q", desc.Value)
		}
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register(Descriptor{Value: "InvalidReference"})
}

func TestWithDetailAndKind(t *testing.T) {
	err := ErrCompileFailed.WithDetail(CompileFailure{Sub: SyntaxError})
	if Kind(err) != "CompileFailed" {
		t.Fatalf("expected Kind CompileFailed, got %q", Kind(err))
	}

	detail, ok := err.Detail.(CompileFailure)
	if !ok || detail.Sub != SyntaxError {
		t.Fatalf("expected detail to round trip, got %#v", err.Detail)
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrStorageUnavailable.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if Kind(err) != "StorageUnavailable" {
		t.Fatalf("expected Kind StorageUnavailable, got %q", Kind(err))
	}
}

func TestDescriptorIs(t *testing.T) {
	err := ErrTemplateNotFound.WithDetail("acme/invoice:latest")
	if !ErrTemplateNotFound.Is(err) {
		t.Fatalf("expected ErrTemplateNotFound.Is to match its own Error")
	}
	if ErrCorrupt.Is(err) {
		t.Fatalf("expected ErrCorrupt.Is to not match a TemplateNotFound error")
	}
}
