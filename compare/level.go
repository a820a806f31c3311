package compare

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ElseLevel is the name of the implicit catch-all level. Every dimension ends
// with it, so labeling is total: any pair no prior predicate claims lands
// here.
const ElseLevel = "else"

// Predicate decides whether two non-null field values agree at some level.
type Predicate func(left, right any) bool

// Level is one discrete bucket of agreement for a dimension, defined by a
// deterministic predicate over a pair's two field values.
type Level struct {
	Name    string
	Matches Predicate
}

// Tokenizer splits a field value into a token set.
type Tokenizer func(v any) []string

// DefaultTokenizer lowercases, applies NFKC normalization and splits on
// whitespace.
func DefaultTokenizer(v any) []string {
	s, ok := asString(v)
	if !ok {
		return nil
	}
	return strings.Fields(strings.ToLower(norm.NFKC.String(s)))
}

// Exact matches when both values are equal after canonicalization: strings
// byte-wise, numbers by value (so int64(3) equals float64(3)).
func Exact() Predicate {
	return func(left, right any) bool {
		if lf, lok := asFloat(left); lok {
			rf, rok := asFloat(right)
			return rok && lf == rf
		}
		ls, lok := asString(left)
		rs, rok := asString(right)
		return lok && rok && ls == rs
	}
}

// JaccardAtLeast matches when the Jaccard similarity of the two token sets
// is at least threshold. A nil tokenizer means DefaultTokenizer.
func JaccardAtLeast(threshold float64, tokenize Tokenizer) Predicate {
	if tokenize == nil {
		tokenize = DefaultTokenizer
	}
	return func(left, right any) bool {
		return Jaccard(tokenize(left), tokenize(right)) >= threshold
	}
}

// OverlapAtLeast matches when the two token sets share at least n tokens.
func OverlapAtLeast(n int, tokenize Tokenizer) Predicate {
	if tokenize == nil {
		tokenize = DefaultTokenizer
	}
	return func(left, right any) bool {
		return intersectionSize(tokenize(left), tokenize(right)) >= n
	}
}

// AbsDiffWithin matches when both values are numeric and their absolute
// difference is at most eps.
func AbsDiffWithin(eps float64) Predicate {
	return func(left, right any) bool {
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		return lok && rok && math.Abs(lf-rf) <= eps
	}
}

// GeoWithinKM matches when both values are coordinates (LatLon, [2]float64
// or []float64 of length 2, in degrees) within km kilometers of each other
// by haversine distance.
func GeoWithinKM(km float64) Predicate {
	return func(left, right any) bool {
		lp, lok := asLatLon(left)
		rp, rok := asLatLon(right)
		return lok && rok && haversineKM(lp, rp) <= km
	}
}

// LatLon is a geographic coordinate in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the distinct tokens of a and b.
// Two empty sets have similarity 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func intersectionSize(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
			delete(set, t)
		}
	}
	return n
}

const earthRadiusKM = 6371.0

func haversineKM(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asLatLon(v any) (LatLon, bool) {
	switch p := v.(type) {
	case LatLon:
		return p, true
	case [2]float64:
		return LatLon{Lat: p[0], Lon: p[1]}, true
	case []float64:
		if len(p) == 2 {
			return LatLon{Lat: p[0], Lon: p[1]}, true
		}
	}
	return LatLon{}, false
}
