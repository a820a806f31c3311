// Package minhash implements seeded MinHash signatures and LSH banding for
// approximate Jaccard blocking.
//
// A signature of numBands*bandSize minimum hashes is split into bands; two
// records collide when any band hashes identically. The probability of a
// collision given Jaccard similarity j is 1 - (1 - j^bandSize)^numBands,
// the classic S-curve tuned by the two parameters.
package minhash

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Hasher computes MinHash signatures with a fixed seed. Safe for concurrent
// use once constructed.
type Hasher struct {
	numBands int
	bandSize int
	mixers   []uint64
	bandSalt []uint64
}

// New creates a Hasher with numBands bands of bandSize hashes each. The
// same seed always derives the same hash family.
func New(numBands, bandSize int, seed uint64) (*Hasher, error) {
	if numBands <= 0 || bandSize <= 0 {
		return nil, fmt.Errorf("minhash: bands=%d bandSize=%d, both must be positive", numBands, bandSize)
	}

	h := &Hasher{
		numBands: numBands,
		bandSize: bandSize,
		mixers:   make([]uint64, numBands*bandSize),
		bandSalt: make([]uint64, numBands),
	}

	// splitmix64 stream keyed by the seed; or-ing 1 keeps mixers odd so the
	// multiply in mix is a bijection.
	state := seed
	for i := range h.mixers {
		h.mixers[i] = splitmix64(&state) | 1
	}
	for i := range h.bandSalt {
		h.bandSalt[i] = splitmix64(&state)
	}
	return h, nil
}

// NumBands returns the number of bands.
func (h *Hasher) NumBands() int { return h.numBands }

// BandSize returns the number of hashes per band.
func (h *Hasher) BandSize() int { return h.bandSize }

// Signature returns the minhash signature of a token set. An empty token
// set has no signature; callers treat it as null and never block on it.
func (h *Hasher) Signature(tokens []string) []uint64 {
	if len(tokens) == 0 {
		return nil
	}

	base := make([]uint64, 0, len(tokens))
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		base = append(base, f.Sum64())
	}

	sig := make([]uint64, len(h.mixers))
	for i, mixer := range h.mixers {
		min := uint64(math.MaxUint64)
		for _, b := range base {
			if v := mix(b, mixer); v < min {
				min = v
			}
		}
		sig[i] = min
	}
	return sig
}

// BandKeys collapses a signature into one key per band. Keys incorporate
// the band index, so equal keys imply the same band matched.
func (h *Hasher) BandKeys(sig []uint64) []uint64 {
	if len(sig) == 0 {
		return nil
	}

	keys := make([]uint64, h.numBands)
	for b := 0; b < h.numBands; b++ {
		acc := h.bandSalt[b]
		for i := b * h.bandSize; i < (b+1)*h.bandSize; i++ {
			acc = mix(acc^sig[i], h.mixers[i])
		}
		keys[b] = acc
	}
	return keys
}

// BlockProbability returns the chance that two records with Jaccard
// similarity j share at least one band: 1 - (1 - j^bandSize)^numBands.
func BlockProbability(j float64, numBands, bandSize int) float64 {
	if j <= 0 {
		return 0
	}
	if j >= 1 {
		return 1
	}
	return 1 - math.Pow(1-math.Pow(j, float64(bandSize)), float64(numBands))
}

// MissProbability is the complement of BlockProbability: the chance a true
// pair with similarity j is never blocked.
func MissProbability(j float64, numBands, bandSize int) float64 {
	return 1 - BlockProbability(j, numBands, bandSize)
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func mix(v, mixer uint64) uint64 {
	v *= mixer
	v ^= v >> 29
	v *= 0xbf58476d1ce4e5b9
	return v ^ (v >> 32)
}
