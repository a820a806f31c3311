package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/linkgo/blobstore"
	"github.com/hupe1980/linkgo/codec"
	"github.com/hupe1980/linkgo/compare"
)

// Document is the persisted form of trained weights. Dimensions and levels
// are ordered lists of named objects, so files diff cleanly and survive
// hand-editing. The catch-all level is not stored: its probabilities are
// the complement of the stored ones and are recomputed on load, which keeps
// edited documents consistent.
type Document struct {
	// Prior is the overall match probability, not log odds: probabilities
	// stay finite and readable in serialized form.
	Prior      float64             `json:"prior" yaml:"prior"`
	Dimensions []DimensionDocument `json:"dimensions" yaml:"dimensions"`
}

// DimensionDocument is one dimension's stored weights.
type DimensionDocument struct {
	Name   string          `json:"name" yaml:"name"`
	Levels []LevelDocument `json:"levels" yaml:"levels"`
}

// LevelDocument is one level's stored m/u probabilities.
type LevelDocument struct {
	Name string  `json:"name" yaml:"name"`
	M    float64 `json:"m" yaml:"m"`
	U    float64 `json:"u" yaml:"u"`
}

// Document converts weights to their persisted form.
func (w *Weights) Document() *Document {
	doc := &Document{
		Prior:      LogOddsToProb(w.PriorLogOdds()),
		Dimensions: make([]DimensionDocument, 0, w.Len()),
	}
	for d := 0; d < w.Len(); d++ {
		dim := w.Dimension(d)
		dd := DimensionDocument{
			Name:   dim.Name(),
			Levels: make([]LevelDocument, 0, dim.Len()-1),
		}
		for l := 0; l < dim.Len(); l++ {
			lv := dim.Level(l)
			if lv.Name == compare.ElseLevel {
				continue
			}
			dd.Levels = append(dd.Levels, LevelDocument{Name: lv.Name, M: lv.M, U: lv.U})
		}
		doc.Dimensions = append(doc.Dimensions, dd)
	}
	return doc
}

// FromDocument reconstructs weights from their persisted form, deriving
// every dimension's catch-all level and validating probability ranges.
func FromDocument(doc *Document) (*Weights, error) {
	if doc.Prior <= 0 || doc.Prior > 1 {
		return nil, fmt.Errorf("document prior %v outside (0, 1]", doc.Prior)
	}

	dims := make([]*DimensionWeights, len(doc.Dimensions))
	for i, dd := range doc.Dimensions {
		levels := make([]LevelWeights, len(dd.Levels))
		for l, ld := range dd.Levels {
			levels[l] = LevelWeights{Name: ld.Name, M: ld.M, U: ld.U}
		}
		dw, err := NewDimensionWeights(dd.Name, levels)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", dd.Name, err)
		}
		dims[i] = dw
	}
	return New(PriorFromProbability(doc.Prior), dims...)
}

// format holds what a document file name implies: a codec plus optional
// compression, e.g. "model.yaml", "model.json.gz", "model.yaml.zst".
type format struct {
	codec    codec.Codec
	compress string
}

func formatFor(name string) (format, error) {
	var f format

	base := name
	switch ext := path.Ext(base); ext {
	case ".gz", ".zst":
		f.compress = strings.TrimPrefix(ext, ".")
		base = strings.TrimSuffix(base, ext)
	}

	switch path.Ext(base) {
	case ".json":
		f.codec = codec.Default
	case ".yaml", ".yml":
		f.codec = codec.YAML{}
	default:
		return format{}, fmt.Errorf("weights file %q: unknown extension, want .json, .yaml or .yml with optional .gz or .zst", name)
	}
	return f, nil
}

// EncodeDocument writes the document to w in the format implied by name.
func EncodeDocument(w io.Writer, doc *Document, name string) error {
	f, err := formatFor(name)
	if err != nil {
		return err
	}

	data, err := f.codec.Marshal(doc)
	if err != nil {
		return err
	}

	switch f.compress {
	case "gz":
		zw := gzip.NewWriter(w)
		if _, err := zw.Write(data); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	case "zst":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(data); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	default:
		_, err := w.Write(data)
		return err
	}
}

// DecodeDocument reads a document from r in the format implied by name.
func DecodeDocument(r io.Reader, name string) (*Document, error) {
	f, err := formatFor(name)
	if err != nil {
		return nil, err
	}

	switch f.compress {
	case "gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		r = zr
	case "zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := f.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode weights document %q: %w", name, err)
	}
	return &doc, nil
}

// Save persists weights to a blob store under the given name. The name's
// extension selects the serialization, e.g. "models/person.yaml" or
// "models/person.json.zst".
func Save(ctx context.Context, store blobstore.Store, name string, w *Weights) error {
	blob, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := EncodeDocument(blob, w.Document(), name); err != nil {
		_ = blob.Close()
		return err
	}
	return blob.Close()
}

// Load reads weights persisted by Save.
func Load(ctx context.Context, store blobstore.Store, name string) (*Weights, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("weights %q: %w", name, err)
		}
		return nil, err
	}
	defer func() { _ = r.Close() }()

	doc, err := DecodeDocument(r, name)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}
