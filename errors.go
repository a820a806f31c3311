package linkgo

import (
	"errors"
)

var (
	// ErrNoTable is returned when a Linker is constructed without a left
	// table.
	ErrNoTable = errors.New("linkgo: a left table is required")

	// ErrNoBlockers is returned when a Linker is constructed without any
	// blocking rule. Running without blocking would silently compare n^2
	// pairs; the cross blocker exists for callers who truly want that.
	ErrNoBlockers = errors.New("linkgo: at least one blocking rule is required")

	// ErrNoComparers is returned when a Linker is constructed without any
	// comparison dimension.
	ErrNoComparers = errors.New("linkgo: at least one comparison dimension is required")

	// ErrNoWeights is returned by scoring operations before weights have
	// been trained, loaded, or set.
	ErrNoWeights = errors.New("linkgo: no model weights, train or load first")

	// ErrNoSpillStore is returned by spill operations when no blob store
	// was configured.
	ErrNoSpillStore = errors.New("linkgo: no spill store configured")

	// ErrWeightsMismatch is returned when installed weights do not match
	// the configured comparison dimensions in name or level count.
	ErrWeightsMismatch = errors.New("linkgo: weights do not match the comparison dimensions")
)
