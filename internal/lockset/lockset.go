// Package lockset provides a keyed, context-aware async lock: exactly one
// caller at a time may hold the lock for a given key, others wait (or fail
// fast, depending on ReentryMode) until it is released.
//
// The teacher's pkg/loader.go already de-duplicates concurrent misses for
// the same key, but it does so with golang.org/x/sync/singleflight, which
// only runs a single opaque function once — it cannot express "hold this
// key exclusively while I call TryGet, then Register, then release",
// because the work done under the hold is not a single function the lock
// set itself invokes. lockset generalizes the teacher's singleflight-based
// dedup idiom from "run once" to "hold exclusively".
//
// © 2025 computeregistry authors. MIT License.
package lockset

import (
	"context"
	"errors"
	"sync"
)

// ReentryMode controls what happens when the calling goroutine already
// holds the lock for the same key (detected via a context marker).
type ReentryMode int

const (
	// ReentryModeAllow performs no reentrancy check: a nested Acquire of a
	// key the caller already holds is not detected and waits like any
	// other Acquire, so it blocks until the outer hold is released or ctx
	// is done. Recursive holding is not supported.
	ReentryModeAllow ReentryMode = iota
	// ReentryModeCheckedFail returns ErrReentrant immediately when the
	// context already carries this Set's marker for the same key.
	ReentryModeCheckedFail
)

// ErrReentrant is returned by Acquire under ReentryModeCheckedFail when the
// calling goroutine already holds the lock for key.
var ErrReentrant = errors.New("lockset: reentrant acquire")

type markerKey struct {
	set any
	key any
}

// Set is a keyed mutex map: Acquire(ctx, key) blocks until no other caller
// holds key, then returns a Guard that must be released exactly once.
type Set[K comparable] struct {
	mode ReentryMode

	mu      sync.Mutex
	entries map[K]*entry
}

type entry struct {
	mu      sync.Mutex
	waiters int
}

// New builds an empty Set using mode for reentrancy detection.
func New[K comparable](mode ReentryMode) *Set[K] {
	return &Set[K]{mode: mode, entries: make(map[K]*entry)}
}

// Guard represents a held lock for one key; Release must be called exactly
// once to hand the key back to waiting callers.
type Guard[K comparable] struct {
	set *Set[K]
	key K
	ctx context.Context
}

// Context returns a context carrying this Set's reentrancy marker for key,
// so that a nested Acquire call on the same logical path can be detected.
func (g *Guard[K]) Context() context.Context { return g.ctx }

// Acquire blocks until the calling goroutine exclusively holds key, or ctx
// is done, or (under ReentryModeCheckedFail) the context already shows this
// Set holds key on the same call path.
func (s *Set[K]) Acquire(ctx context.Context, key K) (*Guard[K], error) {
	if s.mode == ReentryModeCheckedFail {
		if v, _ := ctx.Value(markerKey{set: s, key: key}).(bool); v {
			return nil, ErrReentrant
		}
	}

	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry{}
			s.entries[key] = e
		}
		e.waiters++
		s.mu.Unlock()

		locked := make(chan struct{})
		go func() {
			e.mu.Lock()
			close(locked)
		}()

		select {
		case <-locked:
			childCtx := context.WithValue(ctx, markerKey{set: s, key: key}, true)
			return &Guard[K]{set: s, key: key, ctx: childCtx}, nil
		case <-ctx.Done():
			go func() {
				<-locked
				e.mu.Unlock()
				s.release(key, e)
			}()
			return nil, ctx.Err()
		}
	}
}

// Release hands key back to the next waiter, or removes its bookkeeping
// entry if no one else is waiting.
func (g *Guard[K]) Release() {
	e := g.set.lookup(g.key)
	if e == nil {
		return
	}
	e.mu.Unlock()
	g.set.release(g.key, e)
}

func (s *Set[K]) lookup(key K) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key]
}

func (s *Set[K]) release(key K, e *entry) {
	s.mu.Lock()
	e.waiters--
	if e.waiters <= 0 {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}

// Len reports how many keys currently have in-flight waiters or holders, for
// metrics/debugging only.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
