package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordIDString(t *testing.T) {
	require.Equal(t, "42", ID(42).String())
	require.Equal(t, "crm:42", RecordID{Dataset: "crm", Key: 42}.String())
}

func TestRecordIDLess(t *testing.T) {
	require.True(t, ID(1).Less(ID(2)))
	require.False(t, ID(2).Less(ID(1)))
	require.False(t, ID(1).Less(ID(1)))

	// Dataset orders before key.
	a := RecordID{Dataset: "a", Key: 9}
	b := RecordID{Dataset: "b", Key: 1}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestNewPairCanonicalizesSameDataset(t *testing.T) {
	p := NewPair(ID(7), ID(3))
	require.Equal(t, ID(3), p.Left)
	require.Equal(t, ID(7), p.Right)
	require.Equal(t, NewPair(ID(3), ID(7)), p)
}

func TestNewPairKeepsCrossDatasetOrder(t *testing.T) {
	left := RecordID{Dataset: "crm", Key: 9}
	right := RecordID{Dataset: "billing", Key: 1}

	// Linking two tables keeps left on the left even when right sorts lower.
	p := NewPair(left, right)
	require.Equal(t, left, p.Left)
	require.Equal(t, right, p.Right)
}

func TestPairString(t *testing.T) {
	p := NewPair(RecordID{Dataset: "a", Key: 1}, RecordID{Dataset: "b", Key: 2})
	require.Equal(t, "a:1<->b:2", p.String())
}

func TestRecordField(t *testing.T) {
	r := Record{ID: ID(1), Fields: map[string]any{
		"name": "ann",
		"zip":  nil,
	}}

	v, ok := r.Field("name")
	require.True(t, ok)
	require.Equal(t, "ann", v)

	_, ok = r.Field("zip")
	require.False(t, ok, "nil value reads as null")

	_, ok = r.Field("missing")
	require.False(t, ok)

	_, ok = Record{ID: ID(2)}.Field("name")
	require.False(t, ok, "nil field map is a valid empty record")
}

func TestCandidatePairPair(t *testing.T) {
	c := CandidatePair{
		Left:  Record{ID: ID(9)},
		Right: Record{ID: ID(4)},
	}
	require.Equal(t, NewPair(ID(4), ID(9)), c.Pair())
}
