package reference

import "regexp"

const (
	// alphanumeric defines the alphanumeric atom, typically a component of
	// names. This only allows lower case characters and digits.
	alphanumeric = `[a-z0-9]+`

	// separator defines the separators allowed to be embedded in name
	// components. This allows one period, one or two underscores and
	// multiple dashes.
	separator = `(?:[._]|__|[-]*)`

	// tagPat matches valid tag names: lowercase alphanumeric with optional
	// internal '.', '_' or '-' (e.g. "v1.2.3-rc.1"), per papermake's Tag
	// grammar (stricter than Docker's tag format, which permits uppercase
	// and a leading dot).
	tagPat = `[a-z0-9][a-z0-9._-]{0,62}`

	// hexPat matches exactly 64 lowercase hex characters: the hex portion
	// of a sha256 digest.
	hexPat = `[a-f0-9]{64}`

	// digestPat matches a well-formed papermake digest: "sha256:" followed
	// by 64 lowercase hex characters. Papermake recognizes only sha256.
	digestPat = `sha256:` + hexPat

	// immutableTagPat matches papermake's immutable version-tag grammar
	// (spec §3): "v" followed by 1-3 dot-separated numeric groups and an
	// optional pre-release suffix. Any tag not matching this, such as
	// "latest", is mutable.
	immutableTagPat = `v[0-9]+(?:\.[0-9]+){0,2}(?:-[a-z0-9.-]+)?`
)

var (
	// nameComponent restricts namespace/name path components to start with
	// at least one lowercase letter or digit, with following parts
	// separated by a single period, one or two underscores, or dashes.
	nameComponent = expression(alphanumeric, optional(repeated(separator, alphanumeric)))

	namePat = expression(nameComponent, optional(repeated(literal(`/`), nameComponent)))

	// NameRegexp matches the namespace+name portion of a reference, with no
	// tag or digest.
	NameRegexp = regexp.MustCompile(anchored(namePat))

	// TagRegexp matches a bare tag name.
	TagRegexp = regexp.MustCompile(anchored(tagPat))

	// DigestRegexp matches a bare papermake digest.
	DigestRegexp = regexp.MustCompile(anchored(digestPat))

	// anchoredNameRegexp captures the namespace (everything but the final
	// path component, if any) and the name (the final component).
	anchoredNameRegexp = regexp.MustCompile(anchored(optional(capture(expression(nameComponent, optional(repeated(literal(`/`), nameComponent)))), literal(`/`)), capture(nameComponent)))

	// anchoredFullNameRegexp matches a complete namespace+name string with
	// no capturing groups, for validating a name in isolation.
	anchoredFullNameRegexp = regexp.MustCompile(anchored(namePat))

	// anchoredTagRegexp matches a complete, standalone tag string.
	anchoredTagRegexp = regexp.MustCompile(anchored(tagPat))

	// immutableTagRegexp matches a standalone immutable version tag.
	immutableTagRegexp = regexp.MustCompile(anchored(immutableTagPat))

	referencePat = anchored(capture(namePat), optional(literal(":"), capture(tagPat)), optional(literal("@"), capture(digestPat)))

	// ReferenceRegexp is the full supported textual reference format,
	// anchored, with capturing groups for the namespace+name, tag, and
	// digest components.
	ReferenceRegexp = regexp.MustCompile(referencePat)
)

// literal compiles s into a literal regular expression, escaping any
// regexp-reserved characters.
func literal(s string) string {
	re := regexp.MustCompile(regexp.QuoteMeta(s))

	if _, complete := re.LiteralPrefix(); !complete {
		panic("must be a literal")
	}

	return re.String()
}

// expression defines a full expression, where each regular expression must
// follow the previous.
func expression(res ...string) string {
	var s string
	for _, re := range res {
		s += re
	}

	return s
}

// optional wraps the expression in a non-capturing group and makes the
// production optional.
func optional(res ...string) string {
	return group(expression(res...)) + `?`
}

// repeated wraps the regexp in a non-capturing group to get one or more
// matches.
func repeated(res ...string) string {
	return group(expression(res...)) + `+`
}

// group wraps the regexp in a non-capturing group.
func group(res ...string) string {
	return `(?:` + expression(res...) + `)`
}

// capture wraps the expression in a capturing group.
func capture(res ...string) string {
	return `(` + expression(res...) + `)`
}

// anchored anchors the regular expression by adding start and end
// delimiters.
func anchored(res ...string) string {
	return `^` + expression(res...) + `$`
}
