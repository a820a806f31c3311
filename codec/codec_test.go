package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name   string    `json:"name" yaml:"name"`
	Score  float64   `json:"score" yaml:"score"`
	Labels []string  `json:"labels" yaml:"labels"`
	Probs  []float64 `json:"probs" yaml:"probs"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json", "yaml"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		require.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	require.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	doc := testDoc{
		Name:   "surname",
		Score:  4.25,
		Labels: []string{"exact", "jaccard", "else"},
		Probs:  []float64{0.81, 0.14, 0.05},
	}

	for _, name := range []string{"json", "go-json", "yaml"} {
		t.Run(name, func(t *testing.T) {
			c, ok := ByName(name)
			require.True(t, ok)

			data, err := c.Marshal(doc)
			require.NoError(t, err)

			var got testDoc
			require.NoError(t, c.Unmarshal(data, &got))
			require.Equal(t, doc, got)
		})
	}
}

func TestGoJSONMatchesStdlib(t *testing.T) {
	doc := testDoc{Name: "city", Probs: []float64{0.5, 0.5}}

	std, err := JSON{}.Marshal(doc)
	require.NoError(t, err)
	fast, err := GoJSON{}.Marshal(doc)
	require.NoError(t, err)
	require.Equal(t, string(std), string(fast))
}
