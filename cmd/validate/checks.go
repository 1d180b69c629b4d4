package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/climate-data-etl/internal/catalog"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/snapshot"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// ── Data loading ──

func loadSnapshot(path string) ([]domain.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return snapshot.Decode(data)
}

func loadCatalog(path string) ([]domain.Region, error) {
	return catalog.Load(path)
}

func countDates(rows []domain.Observation) int {
	seen := map[string]bool{}
	for _, o := range rows {
		seen[o.Date.Format(domain.DateLayout)] = true
	}
	return len(seen)
}

func countRegions(rows []domain.Observation) int {
	seen := map[string]bool{}
	for _, o := range rows {
		seen[o.Country+"|"+o.Region] = true
	}
	return len(seen)
}

// ── Phase 1: Uniqueness ──
// Append-only merges repeat a (region, date) pair whenever two runs cover the same day.

func validateUniqueness(rows []domain.Observation) *phase {
	p := &phase{name: "Phase 1: Unique (region, date) pairs"}

	dups := domain.DuplicateKeys(rows)
	keys := make([]string, 0, len(dups))
	for k := range dups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.errorf("%s appears %d times", k, dups[k])
	}
	return p
}

// ── Phase 2: Text ──

func validateText(rows []domain.Observation) *phase {
	p := &phase{name: "Phase 2: ASCII-folded text"}

	for i, o := range rows {
		if n := domain.NormalizeText(o.Country); n != o.Country {
			p.errorf("row %d: country %q is not normalized (want %q)", i+2, o.Country, n)
		}
		if n := domain.NormalizeText(o.Region); n != o.Region {
			p.errorf("row %d: region %q is not normalized (want %q)", i+2, o.Region, n)
		}
	}
	return p
}

// ── Phase 3: Measurements ──

func validateMeasurements(rows []domain.Observation) *phase {
	p := &phase{name: "Phase 3: Rows carry measurements"}

	for i, o := range rows {
		present := 0
		for _, param := range domain.Parameters {
			if param.Get(&o.Measurements) != nil {
				present++
			}
		}
		if present == 0 {
			p.errorf("row %d (%s): every measurement is missing", i+2, o.Key())
		}
	}
	return p
}

// ── Phase 4: Ranges ──

func validateRanges(rows []domain.Observation) *phase {
	p := &phase{name: "Phase 4: Value ranges"}

	for i, o := range rows {
		line := i + 2
		if o.Latitude < -90 || o.Latitude > 90 {
			p.errorf("row %d: latitude %v out of range", line, o.Latitude)
		}
		if o.Longitude < -180 || o.Longitude > 180 {
			p.errorf("row %d: longitude %v out of range", line, o.Longitude)
		}
		if h := o.Humidity; h != nil && (*h < 0 || *h > 100) {
			p.errorf("row %d: humidity %v outside [0, 100]", line, *h)
		}
		if v := o.Precipitation; v != nil && *v < 0 {
			p.errorf("row %d: negative precipitation %v", line, *v)
		}
		if d := o.WindDirection; d != nil && (*d < 0 || *d > 360) {
			p.errorf("row %d: wind direction %v outside [0, 360]", line, *d)
		}
		if o.TempMin != nil && o.TempMax != nil && *o.TempMin > *o.TempMax {
			p.errorf("row %d: temp_min %v above temp_max %v", line, *o.TempMin, *o.TempMax)
		}
	}
	return p
}

// ── Phase 5: Catalog coverage ──
// Every catalog region should appear at least once, and every snapshot region should come from the catalog.

func validateCoverage(rows []domain.Observation, regions []domain.Region) *phase {
	p := &phase{name: "Phase 5: Catalog coverage"}

	inSnapshot := map[string]bool{}
	for _, o := range rows {
		inSnapshot[o.Country+"|"+o.Region] = true
	}
	inCatalog := map[string]bool{}
	for _, r := range regions {
		key := domain.NormalizeText(r.Country) + "|" + domain.NormalizeText(r.Name)
		inCatalog[key] = true
		if !inSnapshot[key] {
			p.errorf("catalog region %s has no rows", key)
		}
	}

	unknown := make([]string, 0)
	for key := range inSnapshot {
		if !inCatalog[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		p.errorf("snapshot region %s is not in the catalog", key)
	}
	return p
}
