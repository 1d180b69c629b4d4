// Package snapshot persists the accumulated dataset as a single
// semicolon-separated file in a blob store.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// Fixed leading columns; the measurement columns follow in domain.Parameters order.
const (
	colDate      = "Date"
	colCountry   = "Country"
	colRegion    = "Region"
	colLatitude  = "Latitude"
	colLongitude = "Longitude"
)

var dateLayouts = []string{domain.DateLayout, "2006-01-02 15:04:05", time.RFC3339}

// Header returns the snapshot columns in order.
func Header() []string {
	h := []string{colDate, colCountry, colRegion, colLatitude, colLongitude}
	for _, p := range domain.Parameters {
		h = append(h, p.Column)
	}
	return h
}

// Encode renders rows as a semicolon-separated table with a header row.
// Missing measurements are written as empty cells.
func Encode(rows []domain.Observation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, 0, 5+len(domain.Parameters))
	for _, o := range rows {
		rec = append(rec[:0],
			o.Date.Format(domain.DateLayout),
			o.Country,
			o.Region,
			formatFloat(o.Latitude),
			formatFloat(o.Longitude),
		)
		for _, p := range domain.Parameters {
			v := p.Get(&o.Measurements)
			if v == nil {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, formatFloat(*v))
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a snapshot written by Encode. Columns are located by header
// name; unknown columns are ignored and absent measurement columns decode as
// missing values.
func Decode(data []byte) ([]domain.Observation, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range []string{colDate, colCountry, colRegion, colLatitude, colLongitude} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []domain.Observation
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := r.FieldPos(0)

		o, err := decodeRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, o)
	}
	return rows, nil
}

func decodeRow(rec []string, idx map[string]int) (domain.Observation, error) {
	cell := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseDate(cell(colDate))
	if err != nil {
		return domain.Observation{}, err
	}
	lat, err := strconv.ParseFloat(cell(colLatitude), 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("parse %s: %w", colLatitude, err)
	}
	lon, err := strconv.ParseFloat(cell(colLongitude), 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("parse %s: %w", colLongitude, err)
	}

	o := domain.Observation{
		Date:      date,
		Country:   cell(colCountry),
		Region:    cell(colRegion),
		Latitude:  lat,
		Longitude: lon,
	}
	for _, p := range domain.Parameters {
		s := cell(p.Column)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("parse %s: %w", p.Column, err)
		}
		p.Set(&o.Measurements, &v)
	}
	return o, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse %s %q: unrecognized layout", colDate, s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
