// Package manifest implements papermake's Manifest: the in-memory
// structure plus canonical JSON encoding that describes a template
// bundle (spec §3/§4.3). A manifest is the merkle root of a published
// bundle — altering any file, path, the entrypoint, or any metadata
// field changes its digest; key order and whitespace do not.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/papermake/papermake/canon"
	"github.com/papermake/papermake/digest"
)

// MaxPathBytes is the maximum length, in bytes, of a File Entry's
// logical path (spec §3).
const MaxPathBytes = 512

// MaxMetadataFieldBytes is the maximum length, in bytes, of the
// required Template Metadata string fields.
const MaxMetadataFieldBytes = 200

var (
	// ErrEmptyManifest is returned when a manifest has no files.
	ErrEmptyManifest = errors.New("manifest: files must be non-empty")

	// ErrEntrypointMissing is returned when the entrypoint is not a key
	// in files.
	ErrEntrypointMissing = errors.New("manifest: entrypoint not present in files")

	// ErrInvalidPath is returned when a logical path fails the File Entry
	// rules in spec §3.
	ErrInvalidPath = errors.New("manifest: invalid file path")

	// ErrInvalidDigest is returned when a file digest is malformed.
	ErrInvalidDigest = errors.New("manifest: invalid file digest")

	// ErrInvalidMetadata is returned when required metadata fields are
	// missing or out of bounds.
	ErrInvalidMetadata = errors.New("manifest: invalid metadata")
)

// Metadata is the human-oriented descriptor of a template bundle (spec
// §3, "Template Metadata"). Name and Author are required; Extra carries
// any additional fields, which are opaque to the core.
type Metadata struct {
	Name   string `json:"name"`
	Author string `json:"author"`

	// Extra holds any additional metadata fields verbatim; they
	// round-trip through canonical encoding but are never interpreted
	// by papermake itself.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Name, Author, and Extra into a single JSON
// object, so that additional caller-supplied fields sit alongside the
// required ones rather than nested under a reserved key.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["name"] = m.Name
	out["author"] = m.Author
	return json.Marshal(out)
}

// UnmarshalJSON reads Name and Author from the required fields and
// stashes any remaining keys in Extra.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	name, _ := raw["name"].(string)
	author, _ := raw["author"].(string)
	m.Name = name
	m.Author = author
	delete(raw, "name")
	delete(raw, "author")
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

func (m Metadata) validate() error {
	if m.Name == "" || utf8.RuneCountInString(m.Name) == 0 {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if len(m.Name) > MaxMetadataFieldBytes {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidMetadata, MaxMetadataFieldBytes)
	}
	if m.Author == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidMetadata)
	}
	if len(m.Author) > MaxMetadataFieldBytes {
		return fmt.Errorf("%w: author exceeds %d bytes", ErrInvalidMetadata, MaxMetadataFieldBytes)
	}
	return nil
}

// Manifest is the tuple (entrypoint, files, metadata) describing a
// template bundle (spec §3).
type Manifest struct {
	Entrypoint string                   `json:"entrypoint"`
	Files      map[string]digest.Digest `json:"files"`
	Metadata   Metadata                 `json:"metadata"`
}

// Validate checks the decode-time invariants from spec §4.3: entrypoint
// present and a key of files, files non-empty, all digests well-formed,
// all paths legal File Entries with no duplicates after normalization,
// and metadata within bounds.
func (m Manifest) Validate() error {
	if len(m.Files) == 0 {
		return ErrEmptyManifest
	}

	seen := make(map[string]struct{}, len(m.Files))
	for path, d := range m.Files {
		if err := ValidatePath(path); err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidDigest, path, err)
		}
		norm := normalizePath(path)
		if _, dup := seen[norm]; dup {
			return fmt.Errorf("%w: duplicate path after normalization: %q", ErrInvalidPath, path)
		}
		seen[norm] = struct{}{}
	}

	if m.Entrypoint == "" {
		return ErrEntrypointMissing
	}
	if _, ok := m.Files[m.Entrypoint]; !ok {
		return ErrEntrypointMissing
	}

	if err := m.Metadata.validate(); err != nil {
		return err
	}

	return nil
}

// ValidatePath reports whether path is a legal File Entry logical path
// per spec §3: POSIX-style, '/'-separated, no leading '/', no "..", no
// backslashes, no empty segments, NFC-normalized, at most MaxPathBytes
// bytes.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if len(path) > MaxPathBytes {
		return fmt.Errorf("%w: exceeds %d bytes: %q", ErrInvalidPath, MaxPathBytes, path)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: leading slash: %q", ErrInvalidPath, path)
	}
	if strings.Contains(path, "\\") {
		return fmt.Errorf("%w: backslash: %q", ErrInvalidPath, path)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("%w: not valid UTF-8: %q", ErrInvalidPath, path)
	}
	if !norm.NFC.IsNormalString(path) {
		return fmt.Errorf("%w: not NFC-normalized: %q", ErrInvalidPath, path)
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty path segment: %q", ErrInvalidPath, path)
		}
		if seg == ".." {
			return fmt.Errorf("%w: contains \"..\": %q", ErrInvalidPath, path)
		}
	}

	return nil
}

// normalizePath is the key used for duplicate-path detection: the NFC
// form of path. ValidatePath already requires path to be NFC, so this
// is currently an identity function kept as a distinct step in case
// future callers feed pre-normalization candidates through Validate.
func normalizePath(path string) string {
	return norm.NFC.String(path)
}

// DeserializedManifest wraps a Manifest with the exact canonical bytes
// it was decoded from (or encoded to), so that re-serialization never
// perturbs the digest: the digest is always computed over these bytes,
// never over a fresh re-marshal.
type DeserializedManifest struct {
	Manifest

	canonical []byte
	digest    digest.Digest
}

// FromStruct canonicalizes m, validates it, and returns a
// DeserializedManifest carrying both the struct and its canonical bytes
// plus digest.
func FromStruct(m Manifest) (*DeserializedManifest, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	canonical, err := canon.Canonicalize(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: canonicalize: %w", err)
	}

	return &DeserializedManifest{
		Manifest:  m,
		canonical: canonical,
		digest:    digest.FromBytes(canonical),
	}, nil
}

// FromCanonicalBytes decodes and validates b as a manifest. b is
// retained verbatim as the canonical form: the caller is responsible
// for having obtained it from manifest storage, i.e. already in
// canonical form, so Digest() reflects the bytes actually stored.
func FromCanonicalBytes(b []byte) (*DeserializedManifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	canonical := make([]byte, len(b))
	copy(canonical, b)

	return &DeserializedManifest{
		Manifest:  m,
		canonical: canonical,
		digest:    digest.FromBytes(canonical),
	}, nil
}

// Canonical returns the exact canonical JSON bytes of the manifest:
// the content whose digest is Digest().
func (m *DeserializedManifest) Canonical() []byte {
	return m.canonical
}

// Digest returns the content address of the manifest's canonical bytes,
// i.e. the key under which it is stored at manifests/sha256/<hex>.
func (m *DeserializedManifest) Digest() digest.Digest {
	return m.digest
}

// MarshalJSON returns the canonical bytes verbatim.
func (m *DeserializedManifest) MarshalJSON() ([]byte, error) {
	if len(m.canonical) == 0 {
		return nil, errors.New("manifest: canonical representation not initialized")
	}
	return m.canonical, nil
}

// UnmarshalJSON decodes b as the manifest's canonical representation.
// It does not independently re-canonicalize b; callers that need a
// digest computed over arbitrary (non-canonical) input JSON should
// canonicalize first and call FromCanonicalBytes.
func (m *DeserializedManifest) UnmarshalJSON(b []byte) error {
	decoded, err := FromCanonicalBytes(b)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}
