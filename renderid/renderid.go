// Package renderid generates time-ordered render identifiers (spec §3
// Render Record, §5 lexicographic tie-break ordering).
package renderid

import "github.com/google/uuid"

// ID is a render's identifier: a UUIDv7 string. UUIDv7 embeds a
// millisecond timestamp in its high bits, so two IDs generated in
// increasing time order also sort in increasing lexicographic order,
// which is what spec §5's tie-break rule on concurrent renders relies
// on.
type ID string

// New returns a fresh ID. Panics on entropy-source failure, matching
// google/uuid's own Must/NewString contract — there is no meaningful
// way to recover from a broken random source.
func New() ID {
	return ID(uuid.Must(uuid.NewV7()).String())
}

func (id ID) String() string {
	return string(id)
}
