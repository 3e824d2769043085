package stochcounter

import (
	"sync"
	"testing"
)

func TestNewSampleRateOne(t *testing.T) {
	c := New(1)
	for i := uint64(0); i < 100; i++ {
		sampled, v := c.Increment(i)
		if !sampled {
			t.Fatalf("sampleRate=1 must always sample")
		}
		if v != int64(i)+1 {
			t.Fatalf("value = %d, want %d", v, i+1)
		}
	}
}

func TestNewSampleRatePowerOfTwoRounding(t *testing.T) {
	c := New(5) // rounds up to 8
	if c.mask != 7 || c.step != 8 {
		t.Fatalf("mask=%d step=%d, want mask=7 step=8", c.mask, c.step)
	}
}

func TestIncrementOnlySamplesMatchingHashes(t *testing.T) {
	c := New(4) // mask = 3
	var sampledCount int
	for i := uint64(0); i < 40; i++ {
		if sampled, _ := c.Increment(i); sampled {
			sampledCount++
		}
	}
	if sampledCount != 10 {
		t.Fatalf("sampledCount = %d, want 10", sampledCount)
	}
	if c.Value() != int64(sampledCount)*4 {
		t.Fatalf("Value() = %d, want %d", c.Value(), int64(sampledCount)*4)
	}
}

func TestResetAndValue(t *testing.T) {
	c := New(1)
	c.Increment(0)
	c.Increment(1)
	c.Reset(0)
	if c.Value() != 0 {
		t.Fatalf("Value() after Reset = %d, want 0", c.Value())
	}
}

func TestConcurrentIncrement(t *testing.T) {
	c := New(1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i uint64) {
			defer wg.Done()
			c.Increment(i)
		}(uint64(i))
	}
	wg.Wait()
	if c.Value() != 50 {
		t.Fatalf("Value() = %d, want 50", c.Value())
	}
}
