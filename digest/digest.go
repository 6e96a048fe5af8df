// Package digest provides the content address used throughout papermake:
// the SHA-256 of a byte sequence, rendered as "sha256:<64 lowercase hex>".
//
// Digest allows simple protection of hex formatted digest strings, prefixed
// by their algorithm. Strings of type Digest have some guarantee of being in
// the correct format. Unlike github.com/opencontainers/go-digest, which this
// package uses internally to do the actual hashing, papermake recognizes
// exactly one algorithm: sha256. Any other algorithm prefix is rejected with
// ErrDigestUnsupported so that every digest compared in this codebase is
// directly comparable as a string.
package digest

import (
	"fmt"
	"regexp"

	godigest "github.com/opencontainers/go-digest"
)

// Algorithm is the only digest algorithm papermake supports.
const Algorithm = "sha256"

// Digest identifies content by the SHA-256 of its exact byte sequence, in
// the canonical textual form "sha256:<hex>".
type Digest string

var (
	// ErrDigestInvalidFormat is returned when a digest string is not of the
	// form "sha256:<64 lowercase hex>".
	ErrDigestInvalidFormat = fmt.Errorf("invalid checksum digest format")

	// ErrDigestUnsupported is returned when the digest algorithm is anything
	// other than sha256.
	ErrDigestUnsupported = fmt.Errorf("unsupported digest algorithm")
)

// anchoredHex matches exactly 64 lowercase hex characters, nothing more.
var anchoredHex = regexp.MustCompile(`^[a-f0-9]{64}$`)

// FromBytes digests p and returns its Digest.
func FromBytes(p []byte) Digest {
	return Digest(godigest.Canonical.FromBytes(p).String())
}

// Parse validates s and returns it as a Digest. Uppercase hex, short
// digests, and non-sha256 algorithms are all rejected; callers that need to
// accept those should normalize before calling Parse.
func Parse(s string) (Digest, error) {
	i := -1
	for j, c := range s {
		if c == ':' {
			i = j
			break
		}
	}
	if i < 0 {
		return "", ErrDigestInvalidFormat
	}

	if s[:i] != Algorithm {
		return "", ErrDigestUnsupported
	}

	hex := s[i+1:]
	if !anchoredHex.MatchString(hex) {
		return "", ErrDigestInvalidFormat
	}

	return Digest(s), nil
}

// Validate reports whether d is a well-formed sha256 digest.
func (d Digest) Validate() error {
	_, err := Parse(string(d))
	return err
}

// Algorithm returns the algorithm portion of the digest, always "sha256"
// for any Digest that has passed Validate.
func (d Digest) Algorithm() string {
	return Algorithm
}

// Hex returns the hex-encoded portion of the digest.
func (d Digest) Hex() string {
	for i, c := range d {
		if c == ':' {
			return string(d[i+1:])
		}
	}
	return ""
}

// String returns the canonical textual form of the digest.
func (d Digest) String() string {
	return string(d)
}
