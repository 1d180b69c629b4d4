// Package catalog reads the region catalog: the fixed list of geographic
// points whose daily climate is collected on every run.
//
// The file is semicolon-separated with a header row naming at least the
// columns Country, Region, Latitude and Longitude (any order, extra columns
// ignored). Coordinates use a period as decimal separator.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

var validate = validator.New()

var requiredColumns = []string{"Country", "Region", "Latitude", "Longitude"}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing catalog column")

// Parse reads a semicolon-separated catalog. Rows are returned in file order.
func Parse(r io.Reader) ([]domain.Region, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var regions []domain.Region
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row: %w", err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)

		region, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// Load reads the catalog file at path.
func Load(path string) ([]domain.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// FileSource serves the catalog from a file on disk. The file is re-read on
// every call so an updated catalog is picked up by the next run.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Regions returns the catalog rows.
func (s *FileSource) Regions(_ context.Context) ([]domain.Region, error) {
	return Load(s.path)
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		idx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}
	return idx, nil
}

func parseRow(rec []string, idx map[string]int) (domain.Region, error) {
	field := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	lat, err := strconv.ParseFloat(field("Latitude"), 64)
	if err != nil {
		return domain.Region{}, fmt.Errorf("parse latitude %q: %w", field("Latitude"), err)
	}
	lon, err := strconv.ParseFloat(field("Longitude"), 64)
	if err != nil {
		return domain.Region{}, fmt.Errorf("parse longitude %q: %w", field("Longitude"), err)
	}

	region := domain.Region{
		Country:   field("Country"),
		Name:      field("Region"),
		Latitude:  lat,
		Longitude: lon,
	}
	if err := validate.Struct(region); err != nil {
		return domain.Region{}, fmt.Errorf("validate region %q: %w", region.Key(), err)
	}
	return region, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
