// Package testutil generates synthetic person datasets with known
// duplicates for linkage tests and benchmarks.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(seed)
//	ds := testutil.GeneratePeople(rng, testutil.PeopleOptions{
//	    Entities:      1000,
//	    DuplicateRate: 0.3,
//	})
//	table := source.NewMemoryTable("people", ds.Records)
//
// Every generated record carries its hidden entity in ds.Truth, so tests
// can score a clustering against an exact ground truth.
package testutil
