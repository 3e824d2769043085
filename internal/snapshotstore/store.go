// Package snapshotstore persists periodic point-in-time *statistics*
// snapshots of a registry — entry counts, strong/weak splits, prune
// counters — never computed values, so that registry behavior can be
// inspected across process restarts without violating the registry's
// memory-only, no-persisted-computations contract.
//
// Grounded on the teacher's examples/disk_eject, which uses BadgerDB as an
// embedded second-level store behind a narrow interface; this package keeps
// that "Badger as an append-only side channel" shape but applies it to
// observability data rather than cache values.
//
// © 2025 computeregistry authors. MIT License.
package snapshotstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Snapshot is one point-in-time statistics record.
type Snapshot struct {
	UnixNanoTime int64   `json:"t"`
	Entries      int64   `json:"entries"`
	StrongPinned int64   `json:"strong_pinned"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	PrunePasses  int64   `json:"prune_passes"`
	Demotions    int64   `json:"demotions"`
	Collections  int64   `json:"collections"`
	HandlePool   int64   `json:"handle_pool_size"`
	PruneRateHz  float64 `json:"prune_rate_hz,omitempty"`
}

// Store appends and reads Snapshot records keyed by their timestamp.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Badger database rooted at dir,
// dedicated to snapshot data. Badger's own logger is silenced, matching the
// teacher's examples/disk_eject setup (`WithLogger(nil)`), since snapshot
// writes are not on any hot path that needs Badger-level diagnostics.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes snap, keyed by its UnixNanoTime so that reads come back in
// chronological order (Badger iterates keys in lexical byte order, hence
// the fixed-width big-endian encoding).
func (s *Store) Append(snap Snapshot) error {
	key := timeKey(snap.UnixNanoTime)
	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshotstore: marshal: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Recent returns up to limit of the most recently appended snapshots,
// newest first.
func (s *Store) Recent(limit int) ([]Snapshot, error) {
	var out []Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
		for it.Seek(seekKey); it.Valid() && len(out) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(b []byte) error {
				var snap Snapshot
				if err := json.Unmarshal(b, &snap); err != nil {
					return err
				}
				out = append(out, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: recent: %w", err)
	}
	return out, nil
}

func timeKey(unixNano int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(unixNano))
	return b
}
