// Package registry implements a concurrent, weakly-referenced registry of
// memoized computations keyed by input fingerprint.
//
// It is the direct generalization of the teacher's sharded concurrent cache
// (pkg/cache.go, pkg/shard.go): same shard-by-hash layout, same per-shard
// sync.RWMutex discipline guarding structural map changes, but with each
// slot holding an atomic.Pointer to its current entry so that replace and
// remove operations are genuine lock-free compare-and-swap/compare-and-
// delete, not just critical sections — matching the lock-free-read
// contract a reactive computed-value cache needs.
//
// © 2025 computeregistry authors. MIT License.
package registry

import (
	"hash/maphash"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Voskan/computeregistry/internal/lockset"
	"github.com/Voskan/computeregistry/internal/primesize"
	"github.com/Voskan/computeregistry/internal/stochcounter"
	"github.com/Voskan/computeregistry/internal/weakpool"
)

// maxPruneThreshold bounds pruneCounterThreshold regardless of map size, per
// spec.md's "min(INT_MAX/2, mapCapacity)".
const maxPruneThreshold = math.MaxInt32 / 2

// State describes where a Computed value sits in its lifecycle.
type State int

const (
	// Computing means the value's computation is still running; it must
	// never be handed out by TryGet.
	Computing State = iota
	// Consistent means the value is up to date and safe to serve.
	Consistent
	// Invalidated means the value has been superseded and must be removed
	// from the registry (never re-inserted).
	Invalidated
)

func (s State) String() string {
	switch s {
	case Computing:
		return "Computing"
	case Consistent:
		return "Consistent"
	case Invalidated:
		return "Invalidated"
	default:
		return "Unknown"
	}
}

// Computed is implemented by the concrete computation type a Registry
// stores. Implementations must use a pointer receiver, which New enforces
// via its PC type parameter.
type Computed[I comparable] interface {
	// Input returns the fingerprint this computation is keyed by.
	Input() I
	// ComputedState returns the current lifecycle state.
	ComputedState() State
	// LastAccessTime returns the last time Touch was called.
	LastAccessTime() time.Time
	// KeepAliveTime returns how long the pruner should hold a strong
	// reference after the last access before allowing collection.
	KeepAliveTime() time.Duration
	// Touch records an access at now.
	Touch(now time.Time)
	// Invalidate transitions the value to Invalidated.
	Invalidate()
}

// entry is the unit of storage inside a slot: the strongly-typed computed
// value plus the weak handle the pruner uses to demote it.
type entry[I comparable, C any, PC interface {
	*C
	Computed[I]
}] struct {
	// computed is non-nil while a strong reference is retained. The
	// pruner demotes an entry by swapping in a replacement whose
	// computed field is nil, leaving only the weak handle.
	computed PC
	handle   weakpool.Handle[C]
}

// resolve returns the entry's computation, preferring the strong
// reference and falling back to the weak handle (which may itself have
// been collected, in which case resolve returns nil).
func (e *entry[I, C, PC]) resolve() PC {
	if e.computed != nil {
		return e.computed
	}
	v := e.handle.Value()
	if v == nil {
		return nil
	}
	return PC(v)
}

type slot[I comparable, C any, PC interface {
	*C
	Computed[I]
}] struct {
	current atomic.Pointer[entry[I, C, PC]]
}

type shard[I comparable, C any, PC interface {
	*C
	Computed[I]
}] struct {
	mu sync.RWMutex
	m  map[I]*slot[I, C, PC]
}

// Registry is a concurrent map from input fingerprint I to a weakly-held
// computation of concrete type C, accessed through its pointer type PC.
//
// The two-type-parameter shape (C plus PC constrained to *C and
// Computed[I]) exists so the registry can hold a weak.Pointer[C] directly
// at the concrete struct, which interface-boxing would defeat: a weak
// pointer to an interface value only tracks the ephemeral interface box,
// not the object behind it.
type Registry[I comparable, C any, PC interface {
	*C
	Computed[I]
}] struct {
	cfg config[I, C, PC]

	seed   maphash.Seed
	shards []shard[I, C, PC]

	pool    *weakpool.Pool[C]
	locks   *lockset.Set[I]
	sampler *stochcounter.Counter

	pruneGate atomic.Bool // true while a prune pass is in flight
	closed    atomic.Bool

	pruneMu        sync.Mutex // brackets the threshold re-check/reset/schedule in maybePrune
	pruneThreshold atomic.Int64

	metrics metricsSink

	pruneStop chan struct{}
	pruneDone chan struct{}

	totalHits        atomic.Int64
	totalMisses      atomic.Int64
	totalRegistered  atomic.Int64
	totalPrunePasses atomic.Int64
	totalDemotions   atomic.Int64
	totalCollections atomic.Int64
}

// New builds a Registry configured by opts. It fails only on invalid
// configuration (for example a negative shard count), never on resource
// exhaustion.
func New[I comparable, C any, PC interface {
	*C
	Computed[I]
}](opts ...Option[I, C, PC]) (*Registry[I, C, PC], error) {
	cfg := defaultConfig[I, C, PC]()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pool, err := weakpool.New[C](weakpool.Weak)
	if err != nil {
		return nil, err
	}

	shardCount := cfg.shardCount
	perShardCap := primesize.DefaultCapacity(shardCount) / shardCount
	if perShardCap < 1 {
		perShardCap = 1
	}

	r := &Registry[I, C, PC]{
		cfg:     cfg,
		seed:    maphash.MakeSeed(),
		shards:  make([]shard[I, C, PC], shardCount),
		pool:    pool,
		locks:   lockset.New[I](lockset.ReentryModeCheckedFail),
		sampler: stochcounter.New(cfg.pruneSampleRate),
	}
	r.metrics = newMetricsSink(cfg.metricsRegisterer, gaugeSources{
		entries:      r.Len,
		strongPinned: r.strongPinnedCount,
		handlePool:   r.pool.Len,
	})
	for i := range r.shards {
		r.shards[i].m = make(map[I]*slot[I, C, PC], perShardCap)
	}
	initialCapacity := perShardCap * shardCount
	if initialCapacity > maxPruneThreshold {
		initialCapacity = maxPruneThreshold
	}
	r.pruneThreshold.Store(int64(initialCapacity))
	if cfg.pruneInterval > 0 {
		r.startBackgroundPruning(cfg.pruneInterval)
	}
	return r, nil
}

func (r *Registry[I, C, PC]) hashOf(input I) uint64 {
	return maphash.Comparable(r.seed, input)
}

func (r *Registry[I, C, PC]) shardFor(hash uint64) *shard[I, C, PC] {
	return &r.shards[hash%uint64(len(r.shards))]
}

// TryGet returns the current Consistent computation registered for input,
// if any. A value found in Computing or Invalidated state is treated as
// absent: the caller must produce its own and Register it.
//
// Per spec.md §4.4 step 1, the op-counter is sampled first, before the
// lookup even happens — a miss counts towards the prune trigger exactly
// like a hit does.
//
// Three cases, per spec.md §4.4: a strong-pinned entry is the fast path
// (just touch and return); a weak-only entry whose handle still resolves
// is touched and the entry is CAS-promoted back to a strong pin (a lost
// CAS just means a concurrent writer already promoted or replaced it, and
// either way the resolved computation is still returned); a weak-only
// entry whose handle has been collected is removed from the map and its
// handle returned to the pool.
func (r *Registry[I, C, PC]) TryGet(input I) (PC, bool) {
	hash := r.hashOf(input)
	r.sampleOp(hash)
	s := r.shardFor(hash)

	s.mu.RLock()
	sl, ok := s.m[input]
	s.mu.RUnlock()
	if !ok {
		r.recordMiss()
		return nil, false
	}

	e := sl.current.Load()
	if e == nil {
		r.recordMiss()
		return nil, false
	}

	var c PC
	if e.computed != nil {
		c = e.computed
	} else {
		v := e.handle.Value()
		if v == nil {
			// Already collected by the GC: nothing to recycle, just drop
			// the now-dead slot entry and return its handle to the pool.
			if sl.current.CompareAndSwap(e, nil) {
				r.releaseHandle(e.handle, hash)
				r.recordCollection()
			}
			r.recordMiss()
			return nil, false
		}
		c = PC(v)
		promoted := &entry[I, C, PC]{computed: c, handle: e.handle}
		sl.current.CompareAndSwap(e, promoted)
	}

	if c.ComputedState() != Consistent {
		r.recordMiss()
		return nil, false
	}

	c.Touch(r.now())
	r.recordHit()
	return c, true
}

// Register publishes computed as the live entry for its Input(), evicting
// any predecessor. It is a spin-based retry loop, bounded by a maximum spin
// budget (after which it yields via runtime.Gosched to avoid pathological
// contention on one key):
//
//   - if the existing entry's weak target is already computed, it is done;
//   - if the existing target is nil (collected) or Invalidated, the stale
//     entry is removed and the loop retries;
//   - if the existing target is a different, still-live computation, that
//     computation is invalidated (its own Invalidate is expected to call
//     back into Unregister, but Register does not depend on that — it
//     clears the slot itself) and the loop retries;
//   - if no entry is present, a new one is installed; if computed's state
//     flips to Invalidated before the install is observed, it is removed
//     again immediately.
//
// The loop terminates when either the map reflects computed or computed's
// state has become Invalidated — never on a map CAS loss, which is always
// retried silently.
func (r *Registry[I, C, PC]) Register(computed PC) (actual PC, err error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if computed.ComputedState() == Invalidated {
		if r.cfg.logger != nil {
			r.cfg.logger.wrongState("Register")
		}
		return nil, ErrWrongComputedState
	}

	input := computed.Input()
	hash := r.hashOf(input)
	r.sampleOp(hash)
	s := r.shardFor(hash)

	s.mu.Lock()
	sl, ok := s.m[input]
	if !ok {
		sl = &slot[I, C, PC]{}
		s.m[input] = sl
	}
	s.mu.Unlock()

	spins := 0
	for {
		if computed.ComputedState() == Invalidated {
			return computed, nil
		}

		prev := sl.current.Load()
		if prev != nil {
			prevComputed := prev.resolve()
			switch {
			case prevComputed == PC(computed):
				// Already installed by a concurrent Register of the same value.
				return computed, nil
			case prevComputed == nil || prevComputed.ComputedState() == Invalidated:
				// Collected or already-invalidated predecessor: clear it and retry.
				if sl.current.CompareAndSwap(prev, nil) {
					r.releaseHandle(prev.handle, hash)
				}
			default:
				// A different, still-live computation owns the slot: evict it.
				prevComputed.Invalidate()
				if sl.current.CompareAndSwap(prev, nil) {
					r.releaseHandle(prev.handle, hash)
				}
			}
			spins++
			if spins > 32 {
				runtime.Gosched()
				spins = 0
			}
			continue
		}

		newHandle := r.pool.Handle((*C)(computed), hash)
		newEntry := &entry[I, C, PC]{computed: computed, handle: newHandle}
		if sl.current.CompareAndSwap(nil, newEntry) {
			if computed.ComputedState() == Invalidated {
				// Raced with an invalidation that happened after the install
				// check above but before the CAS: remove it again.
				if sl.current.CompareAndSwap(newEntry, nil) {
					r.releaseHandle(newHandle, hash)
				}
				return computed, nil
			}
			r.recordRegistered()
			return computed, nil
		}
		spins++
		if spins > 32 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// Unregister removes computed from the registry. Its precondition is that
// computed.ComputedState() == Invalidated; removing a reachable entry would
// break the at-most-one-live-per-key invariant other callers rely on, so
// violating the precondition returns ErrWrongComputedState instead of
// mutating the map.
//
// If the current entry's weak target is neither computed nor nil (a
// replacement already owns the slot), Unregister does nothing and reports
// false. Otherwise it tries to remove the exact entry and reports whether
// the removal happened.
func (r *Registry[I, C, PC]) Unregister(computed PC) (bool, error) {
	if computed.ComputedState() != Invalidated {
		if r.cfg.logger != nil {
			r.cfg.logger.wrongState("Unregister")
		}
		return false, ErrWrongComputedState
	}

	input := computed.Input()
	hash := r.hashOf(input)
	s := r.shardFor(hash)

	s.mu.RLock()
	sl, ok := s.m[input]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	prev := sl.current.Load()
	if prev == nil {
		return false, nil
	}
	target := prev.resolve()
	if target != nil && target != PC(computed) {
		return false, nil
	}
	if !sl.current.CompareAndSwap(prev, nil) {
		return false, nil
	}
	r.releaseHandle(prev.handle, hash)
	r.recordUnregistered()
	return true, nil
}

// GetLocksFor returns the lock set used to serialize concurrent producers
// of the same input. The registry keeps a single lock set shared across all
// functions by default; the function parameter exists for interface parity
// with callers that may want per-function isolation in the future, but is
// not otherwise consulted today.
func (r *Registry[I, C, PC]) GetLocksFor(function any) *lockset.Set[I] {
	return r.locks
}

// Stats is a point-in-time snapshot of the registry's running counters,
// exposed for debugging and for snapshotstore persistence.
type Stats struct {
	Entries      int
	StrongPinned int
	Hits         int64
	Misses       int64
	Registered   int64
	PrunePasses  int64
	Demotions    int64
	Collections  int64
	HandlePool   int
}

// Stats returns a snapshot of the registry's aggregate counters. It is safe
// to call concurrently with any other operation.
func (r *Registry[I, C, PC]) Stats() Stats {
	return Stats{
		Entries:      r.Len(),
		StrongPinned: r.strongPinnedCount(),
		Hits:         r.totalHits.Load(),
		Misses:       r.totalMisses.Load(),
		Registered:   r.totalRegistered.Load(),
		PrunePasses:  r.totalPrunePasses.Load(),
		Demotions:    r.totalDemotions.Load(),
		Collections:  r.totalCollections.Load(),
		HandlePool:   r.pool.Len(),
	}
}

// Len returns the approximate number of entries across all shards.
func (r *Registry[I, C, PC]) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// strongPinnedCount walks every shard counting entries that still hold a
// strong reference (as opposed to weak-only, post-demotion entries). Like
// Len, this is for Stats/snapshot reporting, never the hot path.
func (r *Registry[I, C, PC]) strongPinnedCount() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, sl := range s.m {
			if e := sl.current.Load(); e != nil && e.computed != nil {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Dispose releases registry resources. It does not block waiting for
// in-flight Register/TryGet calls; callers should stop using the registry
// after calling Dispose.
func (r *Registry[I, C, PC]) Dispose() {
	if r.closed.Swap(true) {
		return
	}
	if r.pruneStop != nil {
		close(r.pruneStop)
		<-r.pruneDone
	}
}

func (r *Registry[I, C, PC]) now() time.Time {
	if r.cfg.clock != nil {
		return r.cfg.clock.Now()
	}
	return time.Now()
}

// sampleOp samples the stochastic op-counter for hash, per spec.md §4.5
// ("every op samples the stochastic counter"). It is called by every
// TryGet and Register, regardless of hit/miss outcome, since the counter
// drives the only prune trigger a registry with pruneInterval=0 (the
// default) ever gets.
func (r *Registry[I, C, PC]) sampleOp(hash uint64) {
	if sampled, _ := r.sampler.Increment(hash); sampled {
		r.maybePrune()
	}
}

// maybePrune implements the spec's prune trigger: a sampled TryGet or
// Register checks the approximate counter against pruneThreshold outside
// the mutex first (cheap, racy, fine to miss once); only once over
// threshold does it take pruneMu to re-check, reset the counter, and — if
// no pass is already in flight — start one on a background goroutine so the
// caller never blocks on a sweep.
func (r *Registry[I, C, PC]) maybePrune() {
	if r.sampler.Value() <= r.pruneThreshold.Load() {
		return
	}
	r.pruneMu.Lock()
	defer r.pruneMu.Unlock()
	if r.sampler.Value() <= r.pruneThreshold.Load() {
		return
	}
	r.sampler.Reset(0)
	if r.pruneGate.Load() {
		return
	}
	go r.triggerPrune()
}

func (r *Registry[I, C, PC]) recordHit() {
	r.totalHits.Add(1)
	r.metrics.hit()
}

func (r *Registry[I, C, PC]) recordMiss() {
	r.totalMisses.Add(1)
	r.metrics.miss()
}

func (r *Registry[I, C, PC]) recordRegistered() {
	r.totalRegistered.Add(1)
	r.metrics.registered()
}

func (r *Registry[I, C, PC]) recordUnregistered() {
	r.metrics.unregistered()
}

func (r *Registry[I, C, PC]) recordCollection() {
	r.totalCollections.Add(1)
	r.metrics.collect()
}

// releaseHandle returns h to the pool and logs (at debug level) when the
// target shard was already at capacity and the handle had to be discarded.
func (r *Registry[I, C, PC]) releaseHandle(h weakpool.Handle[C], hash uint64) {
	if !r.pool.Release(h, hash) && r.cfg.logger != nil {
		r.cfg.logger.poolOverflow()
	}
}

func (r *Registry[I, C, PC]) recordPrunePass(demotions, collections int64) {
	r.totalPrunePasses.Add(1)
	r.totalDemotions.Add(demotions)
	r.totalCollections.Add(collections)
	r.metrics.prunePass(demotions, collections)
}
