package lockset

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestAcquireReleaseSerializesSameKey(t *testing.T) {
	s := New[string](ReentryModeCheckedFail)
	var active atomic.Int32
	var maxActive atomic.Int32

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			guard, err := s.Acquire(context.Background(), "k")
			if err != nil {
				return err
			}
			defer guard.Release()
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if maxActive.Load() != 1 {
		t.Fatalf("maxActive = %d, want 1 (exclusive access)", maxActive.Load())
	}
}

func TestDifferentKeysDoNotBlockEachOther(t *testing.T) {
	s := New[string](ReentryModeCheckedFail)
	g1, err := s.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer g1.Release()

	done := make(chan struct{})
	go func() {
		g2, err := s.Acquire(context.Background(), "b")
		if err != nil {
			t.Error(err)
			return
		}
		g2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different key should not block")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	s := New[string](ReentryModeCheckedFail)
	holder, err := s.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "k")
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	holder.Release()
}

func TestReentrantCheckedFail(t *testing.T) {
	s := New[string](ReentryModeCheckedFail)
	guard, err := s.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	defer guard.Release()

	_, err = s.Acquire(guard.Context(), "k")
	if err != ErrReentrant {
		t.Fatalf("err = %v, want ErrReentrant", err)
	}
}

func TestLenTracksInFlightKeys(t *testing.T) {
	s := New[string](ReentryModeCheckedFail)
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	guard, err := s.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	guard.Release()
	if s.Len() != 0 {
		t.Fatalf("Len() after release = %d, want 0", s.Len())
	}
}

func TestManyKeysConcurrently(t *testing.T) {
	s := New[int](ReentryModeCheckedFail)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			guard, err := s.Acquire(context.Background(), k%10)
			if err != nil {
				t.Error(err)
				return
			}
			guard.Release()
		}(i)
	}
	wg.Wait()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after all released", s.Len())
	}
}
