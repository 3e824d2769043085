// Package bench provides reproducible micro-benchmarks for computeregistry.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks intentionally use a single input/computation shape so
// results are comparable across versions:
//   - Input      – uint64 (cheap hashing, fits in a register)
//   - Computed   – a small struct carrying a payload plus the state/
//     timestamp bookkeeping Registry requires of every computation.
//
// We measure:
//  1. Register        – write-only workload, fresh key every call
//  2. TryGet           – read-only workload (after warm-up)
//  3. TryGetParallel   – highly concurrent reads (b.RunParallel)
//  4. RegisterTryGet   – 90% hits, 10% fresh-Register misses
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
//
// NOTE: correctness tests live in pkg/*_test.go; this file is only for
// performance.
//
// © 2025 computeregistry authors. MIT License.
package bench

import (
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Voskan/computeregistry/internal/datasetgen"
	registry "github.com/Voskan/computeregistry/pkg"
)

/* -------------------------------------------------------------------------
   Test harness helpers
   ------------------------------------------------------------------------- */

const (
	shards = 16
	keys   = 1 << 20 // 1M keys for dataset
)

// benchComputed is the minimal Computed[uint64] implementation exercised by
// every benchmark below. State and lastAccess are atomics because the
// background pruner may touch a computation concurrently with the
// benchmark loop.
type benchComputed struct {
	input      uint64
	state      atomic.Int32
	lastAccess atomic.Int64 // unix nanoseconds
	keepAlive  time.Duration
	payload    [64]byte
}

func newBenchComputed(input uint64) *benchComputed {
	c := &benchComputed{input: input, keepAlive: time.Minute}
	c.state.Store(int32(registry.Consistent))
	return c
}

func (c *benchComputed) Input() uint64                { return c.input }
func (c *benchComputed) ComputedState() registry.State { return registry.State(c.state.Load()) }
func (c *benchComputed) LastAccessTime() time.Time     { return time.Unix(0, c.lastAccess.Load()) }
func (c *benchComputed) KeepAliveTime() time.Duration  { return c.keepAlive }
func (c *benchComputed) Touch(now time.Time)           { c.lastAccess.Store(now.UnixNano()) }
func (c *benchComputed) Invalidate()                   { c.state.Store(int32(registry.Invalidated)) }

func newBenchRegistry(b *testing.B) *registry.Registry[uint64, benchComputed, *benchComputed] {
	b.Helper()
	r, err := registry.New[uint64, benchComputed, *benchComputed](
		registry.WithShardCount[uint64, benchComputed, *benchComputed](shards),
	)
	if err != nil {
		b.Fatalf("registry.New: %v", err)
	}
	b.Cleanup(r.Dispose)
	return r
}

// global dataset reused across benches to avoid reallocating large slices.
// Drawn from internal/datasetgen so the bench harness and the
// tools/dataset_gen CLI generate keys the same way.
var ds = func() []uint64 {
	arr, err := datasetgen.Slice(datasetgen.Params{Dist: datasetgen.Uniform, Seed: 42}, keys)
	if err != nil {
		panic(err)
	}
	return arr
}()

/* -------------------------------------------------------------------------
   Benchmarks
   ------------------------------------------------------------------------- */

func BenchmarkRegister(b *testing.B) {
	r := newBenchRegistry(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := ds[i&(keys-1)]
		if _, err := r.Register(newBenchComputed(key)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTryGet(b *testing.B) {
	r := newBenchRegistry(b)
	for _, k := range ds {
		if _, err := r.Register(newBenchComputed(k)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		r.TryGet(k)
	}
}

func BenchmarkTryGetParallel(b *testing.B) {
	r := newBenchRegistry(b)
	for _, k := range ds {
		if _, err := r.Register(newBenchComputed(k)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			r.TryGet(ds[idx])
		}
	})
}

func BenchmarkRegisterTryGetMixed(b *testing.B) {
	r := newBenchRegistry(b)
	// Preload 90% of keys to simulate a mixed hit/miss workload; a TryGet
	// on one of the remaining 10% misses and is followed by a fresh Register.
	for i, k := range ds {
		if i%10 != 0 {
			if _, err := r.Register(newBenchComputed(k)); err != nil {
				b.Fatal(err)
			}
		}
	}
	var misses atomic.Uint64
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		if _, ok := r.TryGet(k); !ok {
			misses.Add(1)
			if _, err := r.Register(newBenchComputed(k)); err != nil {
				b.Fatal(err)
			}
		}
	}
	b.ReportMetric(float64(misses.Load())/float64(b.N)*100, "miss-%")
}

// zipfDS is a Zipf-skewed dataset (a small fraction of hot keys drawing
// most of the traffic), used to benchmark TryGet under realistic
// hot/cold access patterns rather than ds's uniform spread.
var zipfDS = func() []uint64 {
	arr, err := datasetgen.Slice(datasetgen.Params{Dist: datasetgen.Zipf, Seed: 7, ZipfS: 1.2, ZipfV: 1.0}, keys)
	if err != nil {
		panic(err)
	}
	return arr
}()

func BenchmarkTryGetZipf(b *testing.B) {
	r := newBenchRegistry(b)
	for _, k := range zipfDS {
		if _, err := r.Register(newBenchComputed(k)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := zipfDS[i&(keys-1)]
		r.TryGet(k)
	}
}

/* -------------------------------------------------------------------------
   Utility - run benchmarks with GOMAXPROCS set to the machine's CPU count
   ------------------------------------------------------------------------- */

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}
