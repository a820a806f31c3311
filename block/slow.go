package block

import (
	"context"
	"fmt"

	"github.com/hupe1980/linkgo/source"
)

// OnSlow is the policy applied when a blocking rule's pre-flight check
// finds a join that would exceed the configured ceiling.
type OnSlow int

const (
	// OnSlowError refuses to run the rule. The default.
	OnSlowError OnSlow = iota
	// OnSlowWarn runs the rule but surfaces a SlowJoinError as a warning.
	OnSlowWarn
	// OnSlowIgnore skips the check entirely.
	OnSlowIgnore
)

// String returns the policy name.
func (p OnSlow) String() string {
	switch p {
	case OnSlowError:
		return "error"
	case OnSlowWarn:
		return "warn"
	case OnSlowIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// SlowJoinError reports a blocking rule whose estimated cost exceeds the
// caller's ceiling, naming the rule, the join shape, the estimate and the
// violated threshold. Under OnSlowWarn the same value is returned as an
// advisory warning instead of an error.
type SlowJoinError struct {
	Rule     string
	Shape    JoinShape
	Estimate Estimate
	MaxPairs uint64
}

// Error implements the error interface.
func (e *SlowJoinError) Error() string {
	if e.Estimate.Indeterminate {
		return fmt.Sprintf("blocking rule %q: %s join cost is indeterminate (estimate overflow), ceiling is %d pairs", e.Rule, e.Shape, e.MaxPairs)
	}
	return fmt.Sprintf("blocking rule %q: %s join estimated at %d candidate pairs, exceeds ceiling of %d", e.Rule, e.Shape, e.Estimate.Pairs, e.MaxPairs)
}

// CheckJoin pre-flights one blocking rule against the tables before any
// pairs are generated. maxPairs == 0 means no ceiling. An indeterminate
// estimate counts as exceeding the ceiling: a cost that cannot be proven
// cheap is treated as expensive.
//
// The return contract follows the policy: under OnSlowError a violation
// comes back as the error; under OnSlowWarn it comes back as the warning
// with a nil error; under OnSlowIgnore both are nil.
func CheckJoin(ctx context.Context, b Blocker, left, right source.Table, maxPairs uint64, policy OnSlow) (warning *SlowJoinError, err error) {
	if err := b.Validate(left, right); err != nil {
		return nil, err
	}
	if policy == OnSlowIgnore || maxPairs == 0 {
		return nil, nil
	}

	est, err := b.EstimateCost(ctx, left, right)
	if err != nil {
		return nil, fmt.Errorf("blocking rule %q: estimate cost: %w", b.Name(), err)
	}
	if !est.Indeterminate && est.Pairs <= maxPairs {
		return nil, nil
	}

	slow := &SlowJoinError{
		Rule:     b.Name(),
		Shape:    b.JoinShape(),
		Estimate: est,
		MaxPairs: maxPairs,
	}
	if policy == OnSlowWarn {
		return slow, nil
	}
	return nil, slow
}
