package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/hupe1980/linkgo/core"
)

// RNG is a seeded, thread-safe random number generator. The same seed
// always produces the same dataset.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 { return r.seed }

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

var (
	firstNames = []string{
		"james", "mary", "robert", "patricia", "john", "jennifer", "michael",
		"linda", "david", "elizabeth", "william", "barbara", "richard",
		"susan", "joseph", "jessica", "thomas", "sarah", "charles", "karen",
	}
	lastNames = []string{
		"smith", "johnson", "williams", "brown", "jones", "garcia", "miller",
		"davis", "rodriguez", "martinez", "hernandez", "lopez", "gonzalez",
		"wilson", "anderson", "thomas", "taylor", "moore", "jackson", "martin",
	}
	cities = []string{
		"springfield", "franklin", "clinton", "greenville", "bristol",
		"fairview", "salem", "madison", "georgetown", "arlington",
	}
)

// PeopleOptions tunes GeneratePeople.
type PeopleOptions struct {
	// Entities is the number of distinct people. Required.
	Entities int

	// DuplicateRate is the chance an entity gets a second, corrupted
	// record. Default 0.3.
	DuplicateRate float64

	// CorruptionRate is the chance each field of a duplicate is corrupted
	// (typo in the name, missing zip, moved city). Default 0.3.
	CorruptionRate float64

	// Dataset tags the generated record ids, empty for dedupe datasets.
	Dataset string
}

// Dataset is a generated table plus its hidden ground truth.
type Dataset struct {
	// Records in randomized order, fields "first", "last", "city", "zip".
	Records []core.Record

	// Truth maps every record to its entity number. Records of the same
	// entity are true duplicates.
	Truth map[core.RecordID]uint32
}

// GeneratePeople builds a person table with injected duplicates. Duplicate
// records keep the entity's identity but suffer field corruptions, the way
// real dirty data does.
func GeneratePeople(rng *RNG, opts PeopleOptions) *Dataset {
	if opts.Entities <= 0 {
		panic(fmt.Sprintf("testutil: invalid entity count %d", opts.Entities))
	}
	if opts.DuplicateRate == 0 {
		opts.DuplicateRate = 0.3
	}
	if opts.CorruptionRate == 0 {
		opts.CorruptionRate = 0.3
	}

	ds := &Dataset{Truth: make(map[core.RecordID]uint32)}
	key := uint64(1)

	add := func(entity uint32, fields map[string]any) {
		id := core.RecordID{Dataset: opts.Dataset, Key: key}
		key++
		ds.Records = append(ds.Records, core.Record{ID: id, Fields: fields})
		ds.Truth[id] = entity
	}

	for e := 0; e < opts.Entities; e++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		city := cities[rng.Intn(len(cities))]
		zip := fmt.Sprintf("%05d", 10000+rng.Intn(90000))

		clean := map[string]any{"first": first, "last": last, "city": city, "zip": zip}
		add(uint32(e), clean)

		if rng.Float64() < opts.DuplicateRate {
			add(uint32(e), corrupt(rng, clean, opts.CorruptionRate))
		}
	}

	// Shuffle so record order carries no entity signal.
	rng.mu.Lock()
	rng.rand.Shuffle(len(ds.Records), func(i, j int) {
		ds.Records[i], ds.Records[j] = ds.Records[j], ds.Records[i]
	})
	rng.mu.Unlock()
	return ds
}

// corrupt damages a copy of fields, one independent roll per field.
func corrupt(rng *RNG, fields map[string]any, rate float64) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	if rng.Float64() < rate {
		out["first"] = typo(rng, out["first"].(string))
	}
	if rng.Float64() < rate {
		out["last"] = typo(rng, out["last"].(string))
	}
	if rng.Float64() < rate {
		out["city"] = cities[rng.Intn(len(cities))]
	}
	if rng.Float64() < rate {
		out["zip"] = nil // gone missing
	}
	return out
}

// typo swaps one character for another lowercase letter.
func typo(rng *RNG, s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	i := rng.Intn(len(b))
	b[i] = byte('a' + rng.Intn(26))
	return string(b)
}

// TrueGroups inverts the truth labeling into entity member lists, handy
// for building expected clusterings.
func (ds *Dataset) TrueGroups() map[uint32][]core.RecordID {
	groups := make(map[uint32][]core.RecordID)
	for id, e := range ds.Truth {
		groups[e] = append(groups[e], id)
	}
	return groups
}

// FullName joins the name fields of a record, "" when either is missing.
func FullName(r core.Record) string {
	first, fok := r.Field("first")
	last, lok := r.Field("last")
	if !fok || !lok {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v %v", first, last))
}
