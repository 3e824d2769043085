// Package stochcounter implements an approximate, low-contention event
// counter: only a sampled fraction of increments touch the shared atomic
// value, the rest are discarded. Exact counts are never required by callers
// (prune scheduling only cares about crossing a threshold eventually).
//
// Grounded on the atomic hit/miss/eviction counters the teacher keeps
// per-shard in pkg/cache.go (`hits atomic.Uint64`, ...); this package lifts
// that idiom into a reusable, samplable primitive.
//
// © 2025 computeregistry authors. MIT License.
package stochcounter

import "sync/atomic"

// Counter approximates a monotonically increasing count under concurrent
// writers by sampling increments. SampleRate of N means roughly 1-in-N
// increments are applied.
type Counter struct {
	value atomic.Int64
	mask  uint32 // sampleRate-1, rounded up to a power of two; 0 means sample always
	step  int64  // value added per sampled increment (1/sampleRate of a "real" unit, inverted: mask+1)
}

// New builds a Counter that samples roughly 1-in-sampleRate increments. A
// sampleRate <= 1 samples every increment exactly.
func New(sampleRate int) *Counter {
	if sampleRate <= 1 {
		return &Counter{mask: 0, step: 1}
	}
	pow := 1
	for pow < sampleRate {
		pow <<= 1
	}
	return &Counter{mask: uint32(pow - 1), step: int64(pow)}
}

// Increment samples the event using the caller-supplied randomized hash (the
// registry passes the randomized hash of the input key, per spec). It
// reports whether this call was sampled and the resulting approximate value.
func (c *Counter) Increment(hash uint64) (sampled bool, approxValue int64) {
	if c.mask != 0 && uint32(hash)&c.mask != 0 {
		return false, c.value.Load()
	}
	return true, c.value.Add(c.step)
}

// Value reads the current approximate value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Reset overwrites the approximate value, typically after a prune pass.
func (c *Counter) Reset(v int64) { c.value.Store(v) }
