package manifest

import (
	"testing"

	"github.com/papermake/papermake/digest"
)

func sampleFiles(t *testing.T) map[string]digest.Digest {
	t.Helper()
	return map[string]digest.Digest{
		"main.typ":       digest.FromBytes([]byte("hello #data.name")),
		"assets/logo.png": digest.FromBytes([]byte("fake-png-bytes")),
	}
}

func TestFromStructRoundTrip(t *testing.T) {
	m := Manifest{
		Entrypoint: "main.typ",
		Files:      sampleFiles(t),
		Metadata:   Metadata{Name: "greeter", Author: "a@b"},
	}

	dm, err := FromStruct(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := FromCanonicalBytes(dm.Canonical())
	if err != nil {
		t.Fatalf("unexpected error decoding canonical bytes: %v", err)
	}

	if decoded.Digest() != dm.Digest() {
		t.Fatalf("digest mismatch after round trip: %q != %q", decoded.Digest(), dm.Digest())
	}
	if decoded.Entrypoint != m.Entrypoint {
		t.Fatalf("entrypoint mismatch: %q != %q", decoded.Entrypoint, m.Entrypoint)
	}
}

func TestManifestMerkleProperty(t *testing.T) {
	base := Manifest{
		Entrypoint: "main.typ",
		Files:      sampleFiles(t),
		Metadata:   Metadata{Name: "greeter", Author: "a@b"},
	}
	baseDigest, err := FromStruct(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changedFile := base
	changedFile.Files = map[string]digest.Digest{
		"main.typ":        digest.FromBytes([]byte("different content")),
		"assets/logo.png": base.Files["assets/logo.png"],
	}
	changedDigest, err := FromStruct(changedFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changedDigest.Digest() == baseDigest.Digest() {
		t.Fatalf("expected digest to change when file content changes")
	}

	changedMeta := base
	changedMeta.Metadata = Metadata{Name: "greeter", Author: "someone-else@b"}
	changedMetaDigest, err := FromStruct(changedMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changedMetaDigest.Digest() == baseDigest.Digest() {
		t.Fatalf("expected digest to change when metadata changes")
	}
}

func TestValidateEmptyManifest(t *testing.T) {
	m := Manifest{Entrypoint: "main.typ", Metadata: Metadata{Name: "x", Author: "y"}}
	if err := m.Validate(); err != ErrEmptyManifest {
		t.Fatalf("expected ErrEmptyManifest, got %v", err)
	}
}

func TestValidateEntrypointMissing(t *testing.T) {
	m := Manifest{
		Entrypoint: "missing.typ",
		Files:      sampleFiles(t),
		Metadata:   Metadata{Name: "x", Author: "y"},
	}
	if err := m.Validate(); err != ErrEntrypointMissing {
		t.Fatalf("expected ErrEntrypointMissing, got %v", err)
	}
}

func TestValidatePath(t *testing.T) {
	for _, tc := range []struct {
		path  string
		valid bool
	}{
		{"main.typ", true},
		{"assets/logo.png", true},
		{"/abs.typ", false},
		{"../escape.typ", false},
		{"a/../b.typ", false},
		{"a\\b.typ", false},
		{"a//b.typ", false},
		{"", false},
	} {
		err := ValidatePath(tc.path)
		if tc.valid && err != nil {
			t.Errorf("ValidatePath(%q): unexpected error: %v", tc.path, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidatePath(%q): expected error, got none", tc.path)
		}
	}
}

func TestValidateMetadataBounds(t *testing.T) {
	m := Manifest{
		Entrypoint: "main.typ",
		Files:      sampleFiles(t),
		Metadata:   Metadata{Name: "", Author: "a@b"},
	}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for empty metadata name")
	}
}

func TestMetadataExtraFieldsRoundTrip(t *testing.T) {
	m := Manifest{
		Entrypoint: "main.typ",
		Files:      sampleFiles(t),
		Metadata: Metadata{
			Name:   "greeter",
			Author: "a@b",
			Extra:  map[string]any{"license": "MIT"},
		},
	}

	dm, err := FromStruct(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := FromCanonicalBytes(dm.Canonical())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Metadata.Extra["license"] != "MIT" {
		t.Fatalf("expected extra field to round trip, got %#v", decoded.Metadata.Extra)
	}
}
