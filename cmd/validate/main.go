// Command validate performs integrity checks on a snapshot file produced by
// the etl job: it decodes every row, then reports duplicate (region, date)
// pairs, non-ASCII text, rows without any measurement, out-of-range values
// and, when a catalog is given, regions missing from the snapshot.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -snapshot data/store/climate_data.csv \
//	  -catalog data/african_regions_with_coordinates.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "path to the snapshot CSV file")
	catalogPath := flag.String("catalog", "", "optional path to the region catalog for coverage checks")
	flag.Parse()

	if *snapshotPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *snapshotPath, *catalogPath); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, snapshotPath, catalogPath string) int {
	fmt.Fprintln(out, "=== Climate Snapshot Integrity Validation ===")
	fmt.Fprintln(out)

	rows, err := loadSnapshot(snapshotPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load snapshot: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateUniqueness(rows),
		validateText(rows),
		validateMeasurements(rows),
		validateRanges(rows),
	}
	if catalogPath != "" {
		regions, err := loadCatalog(catalogPath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: load catalog: %v\n", err)
			return 1
		}
		phases = append(phases, validateCoverage(rows, regions))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d, dates: %d, regions: %d\n", len(rows), countDates(rows), countRegions(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}
