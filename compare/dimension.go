package compare

import (
	"fmt"
	"slices"

	"github.com/hupe1980/linkgo/core"
)

// Comparer is the extension point of the comparison engine: a named axis
// that assigns every candidate pair exactly one agreement level.
//
// Label must be total and deterministic: any pair yields exactly one level
// index in [0, len(Levels())), the last level is the catch-all, and
// re-running yields the same index.
type Comparer interface {
	Name() string
	// Levels returns the ordered level names. The catch-all is last.
	Levels() []string
	Label(pair core.CandidatePair) int
}

// Dimension is the built-in Comparer: an ordered list of levels over one
// field of each record, evaluated first-match-wins, with an implicit "else"
// catch-all appended and explicit null routing.
type Dimension struct {
	name       string
	leftField  string
	rightField string
	levels     []Level // trailing catch-all has a nil predicate
	levelNames []string
	nullIndex  int
	nullName   string
}

var _ Comparer = (*Dimension)(nil)

// DimensionOption configures a Dimension at construction.
type DimensionOption func(*Dimension)

// WithFields sets different field names on the left and right table.
// By default both sides use the field the dimension was built with.
func WithFields(left, right string) DimensionOption {
	return func(d *Dimension) {
		d.leftField = left
		d.rightField = right
	}
}

// WithNullLevel routes pairs with a null on either side to the named level
// instead of the catch-all. The level must exist (it may be "else").
func WithNullLevel(name string) DimensionOption {
	return func(d *Dimension) {
		d.nullName = name
	}
}

// NewDimension creates a dimension over the named field.
//
// The supplied levels are evaluated in order; the first predicate that
// matches wins. A level named "else" must not be supplied: the catch-all is
// appended automatically so that labeling covers 100% of inputs. Pairs where
// either side's field is null never reach the predicates; they are routed to
// the null level (default: the catch-all), never to the first level.
func NewDimension(name, field string, levels []Level, opts ...DimensionOption) (*Dimension, error) {
	if name == "" {
		return nil, fmt.Errorf("dimension: name must not be empty")
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("dimension %q: at least one level is required", name)
	}

	d := &Dimension{
		name:       name,
		leftField:  field,
		rightField: field,
	}
	for _, opt := range opts {
		opt(d)
	}

	seen := make(map[string]bool, len(levels)+1)
	for _, lv := range levels {
		if lv.Name == ElseLevel {
			return nil, fmt.Errorf("dimension %q: level name %q is reserved for the catch-all", name, ElseLevel)
		}
		if lv.Name == "" {
			return nil, fmt.Errorf("dimension %q: level name must not be empty", name)
		}
		if seen[lv.Name] {
			return nil, fmt.Errorf("dimension %q: duplicate level name %q", name, lv.Name)
		}
		if lv.Matches == nil {
			return nil, fmt.Errorf("dimension %q: level %q has no predicate", name, lv.Name)
		}
		seen[lv.Name] = true
	}

	d.levels = append(slices.Clone(levels), Level{Name: ElseLevel})
	d.levelNames = make([]string, len(d.levels))
	for i, lv := range d.levels {
		d.levelNames[i] = lv.Name
	}

	if d.nullName == "" {
		d.nullIndex = len(d.levels) - 1 // catch-all
	} else {
		idx := slices.Index(d.levelNames, d.nullName)
		if idx < 0 {
			return nil, fmt.Errorf("dimension %q: null level %q does not exist", name, d.nullName)
		}
		d.nullIndex = idx
	}

	return d, nil
}

// Name returns the dimension name, e.g. "name" or "address".
func (d *Dimension) Name() string { return d.name }

// Levels returns the ordered level names including the trailing catch-all.
func (d *Dimension) Levels() []string { return d.levelNames }

// NullLevel returns the index nulls are routed to.
func (d *Dimension) NullLevel() int { return d.nullIndex }

// Fields returns the left and right field names the dimension reads.
func (d *Dimension) Fields() (left, right string) { return d.leftField, d.rightField }

// Label assigns the pair its agreement level: nulls route to the null level,
// otherwise predicates run in priority order and the first match wins, with
// the catch-all claiming whatever remains.
func (d *Dimension) Label(pair core.CandidatePair) int {
	lv, lok := pair.Left.Field(d.leftField)
	rv, rok := pair.Right.Field(d.rightField)
	if !lok || !rok {
		return d.nullIndex
	}
	for i, level := range d.levels[:len(d.levels)-1] {
		if level.Matches(lv, rv) {
			return i
		}
	}
	return len(d.levels) - 1
}

// Validate checks the dimension's fields against the column sets of the
// tables it will run over. It fails fast, before any data is touched.
func (d *Dimension) Validate(leftColumns, rightColumns []string) error {
	if !slices.Contains(leftColumns, d.leftField) {
		return fmt.Errorf("dimension %q: field %q not found in left table", d.name, d.leftField)
	}
	if !slices.Contains(rightColumns, d.rightField) {
		return fmt.Errorf("dimension %q: field %q not found in right table", d.name, d.rightField)
	}
	return nil
}
