package minhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(0, 4, 1)
	require.Error(t, err)
	_, err = New(4, 0, 1)
	require.Error(t, err)
}

func TestSignatureDeterministicForSeed(t *testing.T) {
	tokens := []string{"main", "st", "springfield"}

	a, err := New(8, 4, 42)
	require.NoError(t, err)
	b, err := New(8, 4, 42)
	require.NoError(t, err)
	c, err := New(8, 4, 43)
	require.NoError(t, err)

	require.Equal(t, a.Signature(tokens), b.Signature(tokens))
	require.NotEqual(t, a.Signature(tokens), c.Signature(tokens))
	require.Len(t, a.Signature(tokens), 32)
}

func TestSignatureOrderIndependent(t *testing.T) {
	h, err := New(4, 2, 1)
	require.NoError(t, err)

	require.Equal(t,
		h.Signature([]string{"a", "b", "c"}),
		h.Signature([]string{"c", "a", "b"}))
}

func TestEmptyTokensHaveNoSignature(t *testing.T) {
	h, err := New(4, 2, 1)
	require.NoError(t, err)
	require.Nil(t, h.Signature(nil))
	require.Nil(t, h.BandKeys(nil))
}

func TestBandKeys(t *testing.T) {
	h, err := New(8, 4, 42)
	require.NoError(t, err)

	same := h.BandKeys(h.Signature([]string{"a", "b", "c", "d"}))
	require.Len(t, same, 8)
	require.Equal(t, same, h.BandKeys(h.Signature([]string{"a", "b", "c", "d"})))

	// Disjoint sets should share none.
	far := h.BandKeys(h.Signature([]string{"x", "y", "z"}))
	for i := range same {
		require.NotEqual(t, same[i], far[i])
	}
}

func TestBandCollisionRateTracksSCurve(t *testing.T) {
	// {a,b,c,d} vs {a,b,c,e} has Jaccard 3/5. Whether a given seed yields a
	// shared band is a coin flip weighted by the S-curve, so assert the rate
	// over many seeds, not one draw.
	left := []string{"a", "b", "c", "d"}
	right := []string{"a", "b", "c", "e"}
	const trials = 400

	collisions := 0
	for seed := uint64(0); seed < trials; seed++ {
		h, err := New(8, 4, seed)
		require.NoError(t, err)
		lk := h.BandKeys(h.Signature(left))
		rk := h.BandKeys(h.Signature(right))
		for i := range lk {
			if lk[i] == rk[i] {
				collisions++
				break
			}
		}
	}

	want := BlockProbability(0.6, 8, 4)
	require.InDelta(t, want, float64(collisions)/trials, 0.12)
}

func TestBlockProbability(t *testing.T) {
	require.Equal(t, 0.0, BlockProbability(0, 8, 4))
	require.Equal(t, 1.0, BlockProbability(1, 8, 4))

	// The S-curve is monotone in similarity.
	prev := 0.0
	for _, j := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		p := BlockProbability(j, 8, 4)
		require.Greater(t, p, prev)
		prev = p
	}

	// More bands raise the block probability at fixed similarity.
	require.Greater(t, BlockProbability(0.5, 16, 4), BlockProbability(0.5, 8, 4))
	// Longer bands lower it.
	require.Less(t, BlockProbability(0.5, 8, 8), BlockProbability(0.5, 8, 4))

	require.InDelta(t, 1.0, BlockProbability(0.4, 8, 4)+MissProbability(0.4, 8, 4), 1e-12)
}
