// registry-inspect reads a registry's on-disk statistics snapshot store
// (internal/snapshotstore, a Badger database written by WithSnapshotStore)
// and prints it either as pretty text or JSON. It supports periodic watch
// mode so an operator can tail a long-running process's prune behavior
// without instrumenting it further.
//
// The store only ever contains aggregate counters — entry counts,
// hit/miss/prune/demotion/collection totals, handle pool size — never a
// computed value, so this tool is safe to point at a production snapshot
// directory.
//
// © 2025 computeregistry authors. MIT License.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Voskan/computeregistry/internal/snapshotstore"
)

var version = "dev"

type options struct {
	dbPath   string
	recent   int
	json     bool
	watch    bool
	interval time.Duration
	showVer  bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.dbPath, "db", "", "path to a snapshotstore Badger directory (required)")
	flag.IntVar(&opts.recent, "recent", 10, "number of most recent snapshots to print")
	flag.BoolVar(&opts.json, "json", false, "print JSON instead of a text table")
	flag.BoolVar(&opts.watch, "watch", false, "re-read the store on an interval instead of exiting after one read")
	flag.DurationVar(&opts.interval, "interval", 5*time.Second, "watch mode poll interval")
	flag.BoolVar(&opts.showVer, "version", false, "print the tool version and exit")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.showVer {
		fmt.Println(version)
		return
	}
	if opts.dbPath == "" {
		fatal(fmt.Errorf("missing required -db flag"))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	store, err := snapshotstore.Open(opts.dbPath)
	if err != nil {
		fatal(fmt.Errorf("open snapshot store: %w", err))
	}
	defer store.Close()

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := dumpOnce(store, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			select {
			case <-ticker.C:
				continue
			case <-sig:
				return
			}
		}
	}

	if err := dumpOnce(store, opts); err != nil {
		fatal(err)
	}
}

func dumpOnce(store *snapshotstore.Store, opts *options) error {
	snaps, err := store.Recent(opts.recent)
	if err != nil {
		return fmt.Errorf("read recent snapshots: %w", err)
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	}
	return prettyPrint(snaps)
}

func prettyPrint(snaps []snapshotstore.Snapshot) error {
	if len(snaps) == 0 {
		fmt.Println("(no snapshots recorded yet)")
		return nil
	}
	fmt.Printf("%-24s %8s %8s %8s %10s %10s %8s %8s\n",
		"time", "entries", "strong", "hits", "misses", "prunes", "demoted", "collect")
	for _, s := range snaps {
		t := time.Unix(0, s.UnixNanoTime).Format(time.RFC3339)
		fmt.Printf("%-24s %8d %8d %8d %10d %10d %8d %8d\n",
			t, s.Entries, s.StrongPinned, s.Hits, s.Misses, s.PrunePasses, s.Demotions, s.Collections)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "registry-inspect:", err)
	os.Exit(1)
}
