// Command genfixture writes a synthetic nested station archive: one inner
// zip per station, each holding a daily series CSV in export format.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -out data/fixture/stations.zip \
//	  -stations 6 -days 90 -coverage 1,0.8,0.4
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/station-pivot-etl/internal/fixture"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the nested zip")
	stations := flag.Int("stations", 5, "number of stations (one inner archive each)")
	days := flag.Int("days", 30, "length of each daily series")
	start := flag.String("start", "2024-01-01", "first date of the series (YYYY-MM-DD)")
	coverage := flag.String("coverage", "1,0.75,0.4", "comma-separated per-station probability of a value on a given day")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *stations <= 0 || *days <= 0 {
		return fmt.Errorf("-stations and -days must be positive")
	}

	first, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	cov, err := parseCoverage(*coverage)
	if err != nil {
		return err
	}

	archives := fixture.Generate(fixture.Options{
		Stations: *stations,
		Days:     *days,
		Start:    first,
		Coverage: cov,
		Seed:     *seed,
	})
	data, err := fixture.NestedZip(archives)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	log.Printf("Wrote %s: %d inner archives, %d days, %d bytes", *out, len(archives), *days, len(data))
	for i, a := range archives {
		log.Printf("  %s coverage=%.2f", a.Name, cov[i%len(cov)])
	}
	return nil
}

func parseCoverage(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 || v > 1 {
			return nil, fmt.Errorf("invalid coverage %q: want a number in [0,1]", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("-coverage is empty")
	}
	return out, nil
}
