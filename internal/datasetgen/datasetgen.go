// Package datasetgen builds synthetic uint64 key streams shaped like the
// registry's own ComputedInput fingerprints, for use by both the
// tools/dataset_gen CLI and the bench harness — one generator, two
// consumers, instead of each reimplementing the distribution logic.
//
// Uniform mode approximates cache-unfriendly traffic (every key equally
// likely); Zipf mode approximates the hot/cold skew a real deployment
// sees, so prune/demotion behavior can be exercised against a realistic
// access pattern rather than pure uniform noise.
//
// © 2025 computeregistry authors. MIT License.
package datasetgen

import (
	"errors"
	"math/rand"
)

// Distribution selects the shape of the generated key stream.
type Distribution string

const (
	Uniform Distribution = "uniform"
	Zipf    Distribution = "zipf"
)

// ErrInvalidZipfParams is returned by New when asked for Zipf parameters
// outside the domain rand.NewZipf requires (s > 1, v > 0).
var ErrInvalidZipfParams = errors.New("datasetgen: zipfS must be >1 and zipfV must be >0")

// Params configures a generator.
type Params struct {
	Dist  Distribution
	Seed  int64
	ZipfS float64 // >1, required when Dist == Zipf
	ZipfV float64 // >0, required when Dist == Zipf
}

// New returns a deterministic key generator for the given params. The
// returned func is not safe for concurrent use; callers wanting a shared
// dataset should draw once into a slice, as bench does.
func New(p Params) (func() uint64, error) {
	rnd := rand.New(rand.NewSource(p.Seed))
	switch p.Dist {
	case "", Uniform:
		return rnd.Uint64, nil
	case Zipf:
		if p.ZipfS <= 1.0 || p.ZipfV <= 0 {
			return nil, ErrInvalidZipfParams
		}
		z := rand.NewZipf(rnd, p.ZipfS, p.ZipfV, ^uint64(0))
		return z.Uint64, nil
	default:
		return nil, errors.New("datasetgen: unknown distribution " + string(p.Dist))
	}
}

// Slice draws n keys from a fresh generator built from p.
func Slice(p Params, n int) ([]uint64, error) {
	gen, err := New(p)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = gen()
	}
	return out, nil
}
