package core

import (
	"fmt"
	"strconv"
)

// RecordID is the stable, user-facing identifier of a record.
//
// Dataset disambiguates records that come from different tables: when linking
// two tables, a record with Key 5 on the left and a record with Key 5 on the
// right are different records. For dedupe within a single table every record
// shares the table's dataset and pairs canonicalize on the key alone.
type RecordID struct {
	Dataset string
	Key     uint64
}

// ID is a convenience constructor for a RecordID without a dataset. Table
// backends stamp their name as the dataset on scan, so ids read back from a
// pipeline are dataset-qualified even when the rows went in bare.
func ID(key uint64) RecordID {
	return RecordID{Key: key}
}

// String returns "dataset:key", or just the key for single-dataset ids.
func (id RecordID) String() string {
	if id.Dataset == "" {
		return strconv.FormatUint(id.Key, 10)
	}
	return id.Dataset + ":" + strconv.FormatUint(id.Key, 10)
}

// Less orders ids by (Dataset, Key). Used to canonicalize dedupe pairs.
func (id RecordID) Less(other RecordID) bool {
	if id.Dataset != other.Dataset {
		return id.Dataset < other.Dataset
	}
	return id.Key < other.Key
}

// Record is a read-only view of a row from the relational source.
//
// Fields is an open set of typed values. A field that is absent, or present
// with a nil value, is treated as null by the comparison engine.
type Record struct {
	ID     RecordID
	Fields map[string]any
}

// Field returns the named field value. The second result is false when the
// field is absent or null.
func (r Record) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Pair identifies two records selected by blocking for detailed comparison.
type Pair struct {
	Left  RecordID
	Right RecordID
}

// NewPair builds a canonical pair. When both ids come from the same dataset
// (dedupe), the smaller id is always on the left, so that (a,b) and (b,a)
// are the same pair.
func NewPair(a, b RecordID) Pair {
	if a.Dataset == b.Dataset && b.Less(a) {
		a, b = b, a
	}
	return Pair{Left: a, Right: b}
}

// String returns "left<->right".
func (p Pair) String() string {
	return fmt.Sprintf("%s<->%s", p.Left, p.Right)
}

// CandidatePair carries the two full records of a candidate pair through the
// comparison stage, so downstream consumers never re-fetch rows.
type CandidatePair struct {
	Left  Record
	Right Record
}

// Pair returns the canonical id pair of the candidate.
func (c CandidatePair) Pair() Pair {
	return NewPair(c.Left.ID, c.Right.ID)
}

// ScoredPair is a candidate pair plus its total Fellegi-Sunter match score
// in log10-odds space. Higher score means more likely to be a match.
type ScoredPair struct {
	Pair  Pair
	Score float64
}
