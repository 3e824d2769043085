// snapshot.go bridges the registry's running counters into periodic
// snapshotstore.Snapshot records, emitted after each prune sweep when a
// store has been attached via WithSnapshotStore. Only aggregate
// statistics ever leave the process this way; no computed value is
// touched.
//
// © 2025 computeregistry authors. MIT License.
package registry

import (
	"time"

	"github.com/Voskan/computeregistry/internal/snapshotstore"
)

func (r *Registry[I, C, PC]) recordSnapshot(now time.Time) {
	stats := r.Stats()
	snap := snapshotstore.Snapshot{
		UnixNanoTime: now.UnixNano(),
		Entries:      int64(stats.Entries),
		StrongPinned: int64(stats.StrongPinned),
		Hits:         stats.Hits,
		Misses:       stats.Misses,
		PrunePasses:  stats.PrunePasses,
		Demotions:    stats.Demotions,
		Collections:  stats.Collections,
		HandlePool:   int64(stats.HandlePool),
	}
	if err := r.cfg.snapshots.Append(snap); err != nil {
		if r.cfg.logger != nil {
			r.cfg.logger.snapshotWriteFailed(err)
		}
		return
	}
	r.metrics.snapshotWrite()
}
