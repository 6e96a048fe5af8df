package renderid

import (
	"sort"
	"testing"
	"time"
)

func TestNewProducesDistinctIDs(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewIsLexicographicallyTimeOrdered(t *testing.T) {
	var ids []ID
	for i := 0; i < 5; i++ {
		ids = append(ids, New())
		time.Sleep(2 * time.Millisecond)
	}

	sorted := make([]ID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("IDs not in lexicographic generation order: %v", ids)
		}
	}
}
