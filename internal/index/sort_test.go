package index

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func entriesFromKeys(keys ...string) []SortEntry {
	out := make([]SortEntry, len(keys))
	for i, k := range keys {
		out[i] = SortEntry{SecondaryKey: []byte(k), PrimaryKey: []byte{byte(i)}, Position: i}
	}
	return out
}

func TestSortEntries(t *testing.T) {
	entries := entriesFromKeys("C", "A", "B")
	SortEntries(entries, 1)

	assert.Equal(t, "A", string(entries[0].SecondaryKey))
	assert.Equal(t, "B", string(entries[1].SecondaryKey))
	assert.Equal(t, "C", string(entries[2].SecondaryKey))
	assert.Equal(t, []int{1, 2, 0}, []int{entries[0].Position, entries[1].Position, entries[2].Position})
}

func TestSortEntriesComparesRawBytes(t *testing.T) {
	// 0x80 sorts after ASCII even though it is negative as a signed byte.
	entries := entriesFromKeys("\x80\x00", "\x7f\xff", "\x00\x01")
	SortEntries(entries, 2)
	assert.True(t, IsSorted(entries, 2))
	assert.Equal(t, []byte{0x80, 0x00}, entries[2].SecondaryKey)
}

func TestSortEntriesKeyLenBoundsComparison(t *testing.T) {
	entries := entriesFromKeys("bz", "ba", "aq")
	SortEntries(entries, 1)
	assert.Equal(t, "aq", string(entries[0].SecondaryKey))
	assert.True(t, IsSorted(entries, 1))
}

func TestSortEntriesEmpty(t *testing.T) {
	var entries []SortEntry
	SortEntries(entries, 4)
	assert.True(t, IsSorted(entries, 4))
}

func TestProperty_SortEntriesOrdersKeys(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sorted entries are in non-decreasing key order", prop.ForAll(
		func(keys [][]byte) bool {
			entries := make([]SortEntry, len(keys))
			for i, k := range keys {
				key := make([]byte, 4)
				copy(key, k)
				entries[i] = SortEntry{SecondaryKey: key, Position: i}
			}
			SortEntries(entries, 4)
			for i := 1; i < len(entries); i++ {
				if bytes.Compare(entries[i-1].SecondaryKey, entries[i].SecondaryKey) > 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOfN(4, gen.UInt8())),
	))

	properties.Property("sorting keeps every entry exactly once", prop.ForAll(
		func(keys []string) bool {
			entries := make([]SortEntry, len(keys))
			for i, k := range keys {
				key := make([]byte, 3)
				copy(key, k)
				entries[i] = SortEntry{SecondaryKey: key, Position: i}
			}
			SortEntries(entries, 3)
			seen := make(map[int]bool, len(entries))
			for _, e := range entries {
				if seen[e.Position] {
					return false
				}
				seen[e.Position] = true
			}
			return len(seen) == len(keys)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
