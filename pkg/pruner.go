// © 2025 computeregistry authors. MIT License.
package registry

import "time"

// triggerPrune runs a single prune pass if one is not already in flight. It
// mirrors the teacher's internal/clockpro.evictIfNeeded single-threaded
// sweep, generalized to iterate every shard of the registry instead of one
// CLOCK-Pro ring, and to two independent actions per entry: demotion
// (dropping the strong reference once an entry has been idle past its
// KeepAliveTime) and collection (removing slots whose weak handle has
// already been reclaimed by the garbage collector).
func (r *Registry[I, C, PC]) triggerPrune() {
	if !r.pruneGate.CompareAndSwap(false, true) {
		return
	}
	defer r.pruneGate.Store(false)
	r.sweepOnce()
}

func (r *Registry[I, C, PC]) sweepOnce() {
	if cc, ok := r.cfg.clock.(*CoarseClock); ok {
		cc.Refresh()
	}
	now := r.now()
	var demotions, collections int64

	for i := range r.shards {
		s := &r.shards[i]

		s.mu.RLock()
		slots := make([]struct {
			key I
			sl  *slot[I, C, PC]
		}, 0, len(s.m))
		for k, sl := range s.m {
			slots = append(slots, struct {
				key I
				sl  *slot[I, C, PC]
			}{k, sl})
		}
		s.mu.RUnlock()

		for _, item := range slots {
			switch r.sweepSlot(item.sl, r.hashOf(item.key), now) {
			case sweepDemoted:
				demotions++
			case sweepCollected:
				collections++
				s.mu.Lock()
				if cur, ok := s.m[item.key]; ok && cur == item.sl && cur.current.Load() == nil {
					delete(s.m, item.key)
				}
				s.mu.Unlock()
			}
		}
	}

	r.recordPrunePass(demotions, collections)
	if r.cfg.logger != nil {
		r.cfg.logger.prunePass(demotions, collections)
	}
	if r.cfg.snapshots != nil {
		r.recordSnapshot(now)
	}
	r.refreshPruneThreshold()
}

// refreshPruneThreshold tracks registry growth by re-deriving
// pruneCounterThreshold from the current entry count after each pass, so a
// registry that has grown well past its initial capacity doesn't keep
// triggering sweeps at the old, now-tiny threshold.
func (r *Registry[I, C, PC]) refreshPruneThreshold() {
	n := r.Len()
	if n > maxPruneThreshold {
		n = maxPruneThreshold
	}
	if int64(n) > r.pruneThreshold.Load() {
		r.pruneThreshold.Store(int64(n))
	}
}

type sweepOutcome int

const (
	sweepNoop sweepOutcome = iota
	sweepDemoted
	sweepCollected
)

func (r *Registry[I, C, PC]) sweepSlot(sl *slot[I, C, PC], hash uint64, now time.Time) sweepOutcome {
	prev := sl.current.Load()
	if prev == nil {
		return sweepNoop
	}

	if prev.computed == nil {
		// Already weak-only: check whether the target has been collected.
		if prev.handle.Value() == nil {
			if sl.current.CompareAndSwap(prev, nil) {
				r.releaseHandle(prev.handle, hash)
				return sweepCollected
			}
		}
		return sweepNoop
	}

	c := prev.computed
	if c.ComputedState() == Invalidated {
		if sl.current.CompareAndSwap(prev, nil) {
			r.releaseHandle(prev.handle, hash)
			return sweepCollected
		}
		return sweepNoop
	}

	if now.Sub(c.LastAccessTime()) < c.KeepAliveTime() {
		return sweepNoop
	}

	demoted := &entry[I, C, PC]{computed: nil, handle: prev.handle}
	if sl.current.CompareAndSwap(prev, demoted) {
		return sweepDemoted
	}
	return sweepNoop
}

func (r *Registry[I, C, PC]) startBackgroundPruning(interval time.Duration) {
	r.pruneStop = make(chan struct{})
	r.pruneDone = make(chan struct{})
	go func() {
		defer close(r.pruneDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.triggerPrune()
			case <-r.pruneStop:
				return
			}
		}
	}()
}
