// dataset_gen is a CLI wrapper around internal/datasetgen, for generating
// deterministic key datasets for standalone benchmarking of
// computeregistry outside `go test` (external load-testers, offline
// bench replays). The generation logic itself lives in
// internal/datasetgen so bench/bench_test.go can share it instead of
// keeping a second, divergent copy.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out keys.txt
//
// Flags:
//
//	-n       number of keys to generate (default 1e6)
//	-dist    distribution: "uniform" or "zipf" (default uniform)
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>0)  (default 1.0)
//	-seed    RNG seed (default current time)
//	-out     output file (default stdout)
//
// © 2025 computeregistry authors. MIT License.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Voskan/computeregistry/internal/datasetgen"
)

func main() {
	n := flag.Int("n", 1_000_000, "number of keys to generate")
	dist := flag.String("dist", "uniform", "distribution: uniform or zipf")
	zipfS := flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
	zipfV := flag.Float64("zipfv", 1.0, "zipf v parameter (>0)")
	seedVal := flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
	outPath := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	gen, err := datasetgen.New(datasetgen.Params{
		Dist:  datasetgen.Distribution(*dist),
		Seed:  *seedVal,
		ZipfS: *zipfS,
		ZipfV: *zipfV,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var out *os.File
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		fmt.Fprintln(w, gen())
	}
}
