package handoff

import (
	"sort"
)

// exclusionKey identifies one (module, partition) pair barred from
// inbound handoff.
type exclusionKey struct {
	module string
	index  uint64
}

// exclusionSet is the manager's registry of excluded pairs. It is a plain
// map: the manager's event loop is the only accessor, so no locking is
// needed here. The set holds no duplicates by construction and supports
// membership plus per-module listing, nothing more.
type exclusionSet map[exclusionKey]struct{}

// add inserts the pair. Adding an existing pair is a no-op; the return
// value reports whether the set changed.
func (e exclusionSet) add(module string, index uint64) bool {
	key := exclusionKey{module: module, index: index}
	if _, ok := e[key]; ok {
		return false
	}
	e[key] = struct{}{}
	return true
}

// remove deletes the pair if present. Idempotent.
func (e exclusionSet) remove(module string, index uint64) {
	delete(e, exclusionKey{module: module, index: index})
}

// forModule returns the sorted partition indices excluded for module.
func (e exclusionSet) forModule(module string) []uint64 {
	indices := make([]uint64, 0)
	for key := range e {
		if key.module == module {
			indices = append(indices, key.index)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}
