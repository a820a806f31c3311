package linkgo

import (
	"fmt"
	"strings"

	"github.com/hupe1980/linkgo/block"
	"github.com/hupe1980/linkgo/codec"
	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/source"
)

// Config is the declarative form of a linkage project, the shape the CLI
// reads from YAML or JSON. Programmatic callers usually construct blockers
// and dimensions directly instead.
type Config struct {
	// Blocking lists the blocking rules to union.
	Blocking []BlockingConfig `json:"blocking" yaml:"blocking"`

	// Dimensions lists the comparison dimensions of the model.
	Dimensions []DimensionConfig `json:"dimensions" yaml:"dimensions"`

	// Threshold is the default match threshold for resolve, in log10 odds.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MaxPairs is the estimated-pair ceiling, 0 for none.
	MaxPairs uint64 `json:"max_pairs" yaml:"max_pairs"`

	// OnSlow is the slow-join policy: "error", "warn" or "ignore".
	OnSlow string `json:"on_slow" yaml:"on_slow"`

	// Workers is the comparison/training parallelism, 0 for sequential.
	Workers int `json:"workers" yaml:"workers"`

	// Seed fixes training randomness for reproducible runs.
	Seed int64 `json:"seed" yaml:"seed"`
}

// BlockingConfig describes one blocking rule. Exactly one of Columns or
// Minhash must be set.
type BlockingConfig struct {
	// Columns makes a key rule joining on equal values of these columns.
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`

	// Minhash makes an LSH rule over a free-text field.
	Minhash *MinhashConfig `json:"minhash,omitempty" yaml:"minhash,omitempty"`
}

// MinhashConfig tunes an LSH blocking rule.
type MinhashConfig struct {
	Field    string `json:"field" yaml:"field"`
	Bands    int    `json:"bands,omitempty" yaml:"bands,omitempty"`
	BandSize int    `json:"band_size,omitempty" yaml:"band_size,omitempty"`
	Seed     uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DimensionConfig describes one comparison dimension.
type DimensionConfig struct {
	Name string `json:"name" yaml:"name"`

	// Field is the column compared, on both sides unless LeftField and
	// RightField override it.
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	LeftField  string `json:"left_field,omitempty" yaml:"left_field,omitempty"`
	RightField string `json:"right_field,omitempty" yaml:"right_field,omitempty"`

	// Levels are ordered from strongest agreement to weakest; the engine
	// adds the catch-all disagreement level itself.
	Levels []LevelConfig `json:"levels" yaml:"levels"`
}

// LevelConfig describes one agreement level. Kind selects the predicate:
// "exact", "jaccard", "overlap", "absdiff" or "geo".
type LevelConfig struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`

	// Threshold parametrizes jaccard (minimum similarity), overlap
	// (minimum shared tokens), absdiff (maximum difference) and geo
	// (maximum distance in km).
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// ParseConfig decodes a Config with the named codec ("yaml", "json",
// "go-json"). An empty name uses codec.Default.
func ParseConfig(data []byte, codecName string) (*Config, error) {
	c := codec.Default
	if codecName != "" {
		var ok bool
		c, ok = codec.ByName(codecName)
		if !ok {
			return nil, fmt.Errorf("linkgo: unknown codec %q", codecName)
		}
	}
	var cfg Config
	if err := c.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("linkgo: parse config: %w", err)
	}
	return &cfg, nil
}

// Blockers materializes the configured blocking rules.
func (cfg *Config) Blockers() ([]block.Blocker, error) {
	out := make([]block.Blocker, 0, len(cfg.Blocking))
	for i, bc := range cfg.Blocking {
		switch {
		case len(bc.Columns) > 0 && bc.Minhash != nil:
			return nil, fmt.Errorf("linkgo: blocking rule %d sets both columns and minhash", i)
		case len(bc.Columns) > 0:
			b, err := block.NewKey(bc.Columns...)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		case bc.Minhash != nil:
			var opts []block.MinhashOption
			if bc.Minhash.Bands > 0 || bc.Minhash.BandSize > 0 {
				if bc.Minhash.Bands <= 0 || bc.Minhash.BandSize <= 0 {
					return nil, fmt.Errorf("linkgo: blocking rule %d: bands and band_size must be set together", i)
				}
				opts = append(opts, block.WithBands(bc.Minhash.Bands, bc.Minhash.BandSize))
			}
			if bc.Minhash.Seed != 0 {
				opts = append(opts, block.WithSeed(bc.Minhash.Seed))
			}
			b, err := block.NewMinhashLSH(bc.Minhash.Field, opts...)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		default:
			return nil, fmt.Errorf("linkgo: blocking rule %d is empty", i)
		}
	}
	return out, nil
}

// Comparers materializes the configured comparison dimensions.
func (cfg *Config) Comparers() ([]compare.Comparer, error) {
	out := make([]compare.Comparer, 0, len(cfg.Dimensions))
	for _, dc := range cfg.Dimensions {
		levels := make([]compare.Level, 0, len(dc.Levels))
		for _, lc := range dc.Levels {
			pred, err := lc.predicate()
			if err != nil {
				return nil, fmt.Errorf("linkgo: dimension %q level %q: %w", dc.Name, lc.Name, err)
			}
			levels = append(levels, compare.Level{Name: lc.Name, Matches: pred})
		}

		field := dc.Field
		var opts []compare.DimensionOption
		if dc.LeftField != "" || dc.RightField != "" {
			if dc.LeftField == "" || dc.RightField == "" {
				return nil, fmt.Errorf("linkgo: dimension %q: left_field and right_field must be set together", dc.Name)
			}
			field = dc.LeftField
			opts = append(opts, compare.WithFields(dc.LeftField, dc.RightField))
		}

		d, err := compare.NewDimension(dc.Name, field, levels, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (lc LevelConfig) predicate() (compare.Predicate, error) {
	switch strings.ToLower(lc.Kind) {
	case "exact", "":
		return compare.Exact(), nil
	case "jaccard":
		return compare.JaccardAtLeast(lc.Threshold, nil), nil
	case "overlap":
		return compare.OverlapAtLeast(int(lc.Threshold), nil), nil
	case "absdiff":
		return compare.AbsDiffWithin(lc.Threshold), nil
	case "geo":
		return compare.GeoWithinKM(lc.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown level kind %q", lc.Kind)
	}
}

func (cfg *Config) onSlow() (block.OnSlow, error) {
	switch strings.ToLower(cfg.OnSlow) {
	case "", "error":
		return block.OnSlowError, nil
	case "warn":
		return block.OnSlowWarn, nil
	case "ignore":
		return block.OnSlowIgnore, nil
	default:
		return 0, fmt.Errorf("linkgo: unknown on_slow policy %q", cfg.OnSlow)
	}
}

// Build assembles a Linker from the config. A nil right table means
// dedupe. Options given here override the config's tuning fields.
func (cfg *Config) Build(left, right source.Table, opts ...Option) (*Linker, error) {
	blockers, err := cfg.Blockers()
	if err != nil {
		return nil, err
	}
	comparers, err := cfg.Comparers()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.onSlow()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithMaxPairs(cfg.MaxPairs),
		WithOnSlow(policy),
		WithWorkers(cfg.Workers),
		WithSeed(cfg.Seed),
	}
	return newLinker(left, right, blockers, comparers, append(base, opts...))
}
