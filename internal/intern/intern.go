// Package intern maps record identities to dense uint32 indices.
//
// Blocking and clustering work over packed pairs of small integers instead
// of full record ids: two interned ids pack into one uint64 for roaring
// bitmap membership, and union-find arrays index directly by the dense id.
package intern

import (
	"fmt"

	"github.com/hupe1980/linkgo/core"
)

// Factorizer assigns dense, insertion-ordered uint32 indices to record ids.
// Not safe for concurrent use; each pipeline pass owns its own Factorizer.
type Factorizer struct {
	byID  map[core.RecordID]uint32
	order []core.RecordID
}

// NewFactorizer creates an empty Factorizer.
func NewFactorizer() *Factorizer {
	return &Factorizer{byID: make(map[core.RecordID]uint32)}
}

// Intern returns the dense index for id, assigning the next free one on
// first sight.
func (f *Factorizer) Intern(id core.RecordID) uint32 {
	if idx, ok := f.byID[id]; ok {
		return idx
	}
	idx := uint32(len(f.order))
	f.byID[id] = idx
	f.order = append(f.order, id)
	return idx
}

// Lookup returns the dense index for id without assigning one.
func (f *Factorizer) Lookup(id core.RecordID) (uint32, bool) {
	idx, ok := f.byID[id]
	return idx, ok
}

// ID returns the record id behind a dense index.
func (f *Factorizer) ID(idx uint32) core.RecordID {
	return f.order[idx]
}

// Len returns the number of interned ids.
func (f *Factorizer) Len() int {
	return len(f.order)
}

// PackPair packs two dense indices into one uint64 key, smaller index in
// the high bits so packed keys sort like canonical pairs.
func PackPair(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

// UnpackPair reverses PackPair.
func UnpackPair(key uint64) (a, b uint32) {
	return uint32(key >> 32), uint32(key)
}

// PairOf resolves a packed key back to a canonical record pair.
func (f *Factorizer) PairOf(key uint64) (core.Pair, error) {
	a, b := UnpackPair(key)
	if int(a) >= len(f.order) || int(b) >= len(f.order) {
		return core.Pair{}, fmt.Errorf("packed pair %d references unknown index", key)
	}
	return core.NewPair(f.order[a], f.order[b]), nil
}
