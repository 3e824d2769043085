// © 2025 computeregistry authors. MIT License.
package registry

import (
	"errors"

	"github.com/Voskan/computeregistry/internal/weakpool"
)

// ErrWrongComputedState is returned when a caller attempts an operation
// that requires a Computed value to be in a state it currently is not in
// (for example, registering a computed value that has already transitioned
// to Invalidated).
var ErrWrongComputedState = errors.New("registry: wrong computed state")

// ErrInvalidConfiguration is returned transitively from the internal
// weak-handle pool when New is asked for an unsupported reachability
// strength. Config validation failures specific to the registry itself
// (a non-positive shard count, an out-of-range sample rate, a negative
// prune interval) return their own sentinels from config.go instead.
var ErrInvalidConfiguration = weakpool.ErrInvalidConfiguration

// ErrClosed is returned by Register when it is invoked after Dispose.
// TryGet and Unregister do not check for Dispose.
var ErrClosed = errors.New("registry: closed")
