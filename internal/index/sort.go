package index

import (
	"bytes"
	"slices"
)

// SortEntries orders entries by the first keyLen bytes of their secondary
// key. The sort is not stable; entries with equal keys end up in no
// particular order.
func SortEntries(entries []SortEntry, keyLen int) {
	slices.SortFunc(entries, func(a, b SortEntry) int {
		return bytes.Compare(a.SecondaryKey[:keyLen], b.SecondaryKey[:keyLen])
	})
}

// IsSorted reports whether entries are in SortEntries order.
func IsSorted(entries []SortEntry, keyLen int) bool {
	return slices.IsSortedFunc(entries, func(a, b SortEntry) int {
		return bytes.Compare(a.SecondaryKey[:keyLen], b.SecondaryKey[:keyLen])
	})
}
