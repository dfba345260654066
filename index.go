package ewf

import (
	"sort"

	"github.com/caseforge/ewfgo/internal/format"
)

// indexedTable pairs a table's first chunk id with its metadata and its
// decoded entry array. entries carries one synthetic sentinel appended
// after the real entries (entries[-1] + chunk_size) so that every real
// chunk's on-disk length, including the last, is computed by the same
// "next offset minus this offset" rule. See spec §4.5/§9.
type indexedTable struct {
	firstChunkID uint64
	header       format.TableHeader
	entries      []uint32 // raw little-endian table entries, flag bit intact
}

// sortedTableIndex stores tables in ascending firstChunkID order, appended
// during open-time traversal, and answers findLE(chunkID) with a binary
// search. Grounded on the original source's utils.SortedCollection /
// find_le.
type sortedTableIndex struct {
	tables []indexedTable
}

// append registers a new table. Callers must append in increasing
// firstChunkID order, which the reader's sequential section walk already
// guarantees.
func (idx *sortedTableIndex) append(t indexedTable) {
	idx.tables = append(idx.tables, t)
}

// findLE returns the table with the largest firstChunkID <= chunkID, or
// false if chunkID precedes every registered table.
func (idx *sortedTableIndex) findLE(chunkID uint64) (indexedTable, bool) {
	n := len(idx.tables)
	if n == 0 {
		return indexedTable{}, false
	}
	i := sort.Search(n, func(i int) bool {
		return idx.tables[i].firstChunkID > chunkID
	})
	if i == 0 {
		return indexedTable{}, false
	}
	return idx.tables[i-1], true
}
