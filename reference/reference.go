// Package reference parses and serializes papermake's Template Reference
// grammar (spec §3/§4.4): "[namespace/]name[:tag][@sha256:hex]". A
// reference always carries a name, and optionally a tag and/or digest.
// Resolving a parsed reference into a concrete manifest digest is the
// registry core's job, not this package's: reference only parses,
// validates, and re-serializes the textual form.
package reference

import (
	"errors"
	"fmt"

	"github.com/papermake/papermake/digest"
)

// NameTotalLengthMax is the maximum total number of characters in the
// namespace-qualified name portion of a reference.
const NameTotalLengthMax = 255

var (
	// ErrReferenceInvalidFormat represents an error while trying to parse
	// a string as a reference.
	ErrReferenceInvalidFormat = errors.New("invalid reference format")

	// ErrTagInvalidFormat represents an error while trying to parse a
	// string as a tag.
	ErrTagInvalidFormat = errors.New("invalid tag format")

	// ErrNameEmpty is returned for empty, invalid names.
	ErrNameEmpty = errors.New("name must have at least one component")

	// ErrNameTooLong is returned when a name is longer than
	// NameTotalLengthMax.
	ErrNameTooLong = fmt.Errorf("name must not be more than %v characters", NameTotalLengthMax)

	// ErrNameDisallowed is returned when a name cannot be added or
	// replaced on a reference.
	ErrNameDisallowed = errors.New("reference: cannot name reference")

	// ErrTagDisallowed is returned when a reference cannot be tagged.
	ErrTagDisallowed = errors.New("reference: cannot tag reference")

	// ErrDigestDisallowed is returned when adding a digest to a reference
	// that already has a digest. Callers must first restrict the
	// reference to only the name, via NameOnly, then add the digest.
	ErrDigestDisallowed = errors.New("reference: cannot add digest")
)

// Reference is an opaque object reference identifier that may include
// modifiers such as a namespace, name, tag, and digest.
type Reference interface {
	// String returns the full reference, in its original textual form.
	String() string
}

// Field provides a wrapper type for resolving the correct reference type
// when working with encoding.
type Field struct {
	reference Reference
}

// AsField wraps a reference in a Field for encoding.
func AsField(reference Reference) Field {
	return Field{reference}
}

// Reference unwraps the reference type from the field to return the
// Reference object. This object should be of the appropriate type to
// further check for different reference types.
func (f Field) Reference() Reference {
	return f.reference
}

// MarshalText serializes the field to the byte text of the reference.
func (f Field) MarshalText() (p []byte, err error) {
	return []byte(f.reference.String()), nil
}

// UnmarshalText parses text bytes by invoking the reference parser, so
// the appropriately typed reference object is wrapped by Field.
func (f *Field) UnmarshalText(p []byte) error {
	r, err := Parse(string(p))
	if err != nil {
		return err
	}

	f.reference = r
	return nil
}

// Named is an object with a full, namespace-qualified name.
type Named interface {
	Reference
	Name() string
}

// Tagged is an object including a name and a mutable or immutable tag.
type Tagged interface {
	Named
	Tag() string
}

// Digested is an object which has a digest it can be referenced by.
type Digested interface {
	Reference
	Digest() digest.Digest
}

// Canonical is a reference with a fully unique, digest-pinned identity:
// the only reference form that resolves without a tag lookup.
type Canonical interface {
	Named
	Digest() digest.Digest
}

// SplitNamespace splits a named reference's name into a namespace
// (everything but the final path component) and the final name
// component. If the name has no namespace, ns is empty.
func SplitNamespace(named Named) (ns string, base string) {
	name := named.Name()
	match := anchoredNameRegexp.FindStringSubmatch(name)
	if match == nil || len(match) != 3 {
		return "", name
	}
	return match[1], match[2]
}

// Parse parses s and returns a syntactically valid Reference. If an
// error is encountered it is returned, along with a nil Reference.
func Parse(s string) (Reference, error) {
	matches := ReferenceRegexp.FindStringSubmatch(s)
	if matches == nil {
		if s == "" {
			return nil, ErrNameEmpty
		}
		return nil, ErrReferenceInvalidFormat
	}

	if len(matches[1]) > NameTotalLengthMax {
		return nil, ErrNameTooLong
	}

	ref := reference{
		name: matches[1],
		tag:  matches[2],
	}
	if matches[3] != "" {
		var err error
		ref.digest, err = digest.Parse(matches[3])
		if err != nil {
			return nil, err
		}
	}

	r := getBestReferenceType(ref)
	if r == nil {
		return nil, ErrNameEmpty
	}

	return r, nil
}

// ParseNamed parses s and returns a syntactically valid reference
// implementing the Named interface. The reference must have a name,
// otherwise an error is returned. Papermake has no default-registry
// concept to normalize against, so ParseNamed is otherwise equivalent to
// Parse.
func ParseNamed(s string) (Named, error) {
	ref, err := Parse(s)
	if err != nil {
		return nil, err
	}
	named, isNamed := ref.(Named)
	if !isNamed {
		return nil, fmt.Errorf("reference %s has no name", ref.String())
	}
	return named, nil
}

// IsImmutableTag reports whether tag matches papermake's immutable
// version-tag grammar (spec §3). A ref under a tag of this shape is
// rejected on any attempt to change it once set; a tag that doesn't
// match, such as "latest", is always mutable.
func IsImmutableTag(tag string) bool {
	return immutableTagRegexp.MatchString(tag)
}

// NamedOnly returns true if ref only contains a name and not other
// modifiers.
func NamedOnly(ref Named) bool {
	switch ref.(type) {
	case Tagged:
		return false
	case Canonical:
		return false
	case Digested:
		return false
	}

	return true
}

// NameOnly drops other reference information and only retains the name.
func NameOnly(ref Named) Named {
	return repository(ref.Name())
}

// WithName returns a Named object representing name.
func WithName(name string) (Named, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}

	if len(name) > NameTotalLengthMax {
		return nil, ErrNameTooLong
	}

	if !anchoredFullNameRegexp.MatchString(name) {
		return nil, ErrReferenceInvalidFormat
	}

	return repository(name), nil
}

// WithTag combines the name from "named" and the tag from "tag" to form
// a reference incorporating both the name and the tag.
func WithTag(named Named, tag string) (Tagged, error) {
	if !anchoredTagRegexp.MatchString(tag) {
		return nil, ErrTagInvalidFormat
	}

	switch v := named.(type) {
	case reference:
		v.tag = tag
		return v, nil
	case taggedReference:
		v.tag = tag
		return v, nil
	case Canonical:
		return reference{
			name:   v.Name(),
			tag:    tag,
			digest: v.Digest(),
		}, nil
	default:
		return taggedReference{
			name: named.Name(),
			tag:  tag,
		}, nil
	}
}

// WithDigest combines the name from "named" and d to form a reference
// incorporating both the name and the digest. A reference with an
// existing digest cannot have the digest replaced: restrict to the name
// first with NameOnly.
func WithDigest(named Named, d digest.Digest) (Canonical, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if NamedOnly(named) {
		return canonicalReference{
			name:   named.Name(),
			digest: d,
		}, nil
	}

	switch v := named.(type) {
	case reference:
		v.digest = d
		return v, nil
	case Tagged:
		return reference{
			name:   v.Name(),
			tag:    v.Tag(),
			digest: d,
		}, nil
	}

	return nil, ErrDigestDisallowed
}

func getBestReferenceType(ref reference) Reference {
	if ref.name == "" {
		// Allow digest-only references.
		if ref.digest != "" {
			return digestReference(ref.digest)
		}
		return nil
	}
	if ref.tag == "" {
		if ref.digest != "" {
			return canonicalReference{
				name:   ref.name,
				digest: ref.digest,
			}
		}
		return repository(ref.name)
	}
	if ref.digest == "" {
		return taggedReference{
			name: ref.name,
			tag:  ref.tag,
		}
	}

	return ref
}

// reference is a name+tag+digest reference: all three components
// present at once.
type reference struct {
	name   string
	tag    string
	digest digest.Digest
}

func (r reference) String() string {
	return r.name + ":" + r.tag + "@" + r.digest.String()
}

func (r reference) Name() string {
	return r.name
}

func (r reference) Tag() string {
	return r.tag
}

func (r reference) Digest() digest.Digest {
	return r.digest
}

// repository is a name-only reference.
type repository string

func (r repository) String() string {
	return string(r)
}

func (r repository) Name() string {
	return string(r)
}

// digestReference is a bare digest with no name attached, e.g. as
// recovered from a render record's manifest_digest field.
type digestReference digest.Digest

func (d digestReference) String() string {
	return digest.Digest(d).String()
}

func (d digestReference) Digest() digest.Digest {
	return digest.Digest(d)
}

// taggedReference is a name+tag reference with no digest pinned.
type taggedReference struct {
	name string
	tag  string
}

func (t taggedReference) String() string {
	return t.name + ":" + t.tag
}

func (t taggedReference) Name() string {
	return t.name
}

func (t taggedReference) Tag() string {
	return t.tag
}

// canonicalReference is a name+digest reference with no tag: the only
// self-verifying reference form, since resolving it never touches the
// tag store.
type canonicalReference struct {
	name   string
	digest digest.Digest
}

func (c canonicalReference) String() string {
	return c.name + "@" + c.digest.String()
}

func (c canonicalReference) Name() string {
	return c.name
}

func (c canonicalReference) Digest() digest.Digest {
	return c.digest
}
