package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dateKeyLayout is the compact upstream date key format.
const dateKeyLayout = "20060102"

// NormalizeText decomposes s (NFKD) and removes every non-ASCII code point.
// Accented letters lose their accent; letters without an ASCII base are dropped.
func NormalizeText(s string) string {
	// transform.Chain keeps state, so each call gets its own chain.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(isNonASCII)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if isNonASCII(r) {
				return -1
			}
			return r
		}, norm.NFKD.String(s))
	}
	return out
}

func isNonASCII(r rune) bool {
	return r > unicode.MaxASCII
}

// ParseDateKey converts an integer-like YYYYMMDD key into a UTC calendar date.
// Keys rendered as floats ("20240615.0") are accepted when integral.
func ParseDateKey(key string) (time.Time, error) {
	key = strings.TrimSpace(key)
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(key, 64)
		if ferr != nil || f != math.Trunc(f) {
			return time.Time{}, fmt.Errorf("parse date key %q: not an integer", key)
		}
		n = int64(f)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("parse date key %q: want 8 digits, got %d", key, len(s))
	}

	d, err := time.ParseInLocation(dateKeyLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return d, nil
}

// FormatDateKey renders a date as a compact YYYYMMDD key.
func FormatDateKey(t time.Time) string {
	return t.UTC().Format(dateKeyLayout)
}

// Normalize turns a raw fetched record into a dataset row: text fields are
// ASCII-folded and the date key is parsed. Measurements are copied as-is.
func Normalize(raw RawObservation) (Observation, error) {
	date, err := ParseDateKey(raw.DateKey)
	if err != nil {
		return Observation{}, fmt.Errorf("normalize %s: %w", raw.Region.Key(), err)
	}

	return Observation{
		Date:         date,
		Country:      NormalizeText(raw.Region.Country),
		Region:       NormalizeText(raw.Region.Name),
		Latitude:     raw.Region.Latitude,
		Longitude:    raw.Region.Longitude,
		Measurements: raw.Measurements,
	}, nil
}

// NormalizeObservation re-applies text normalization to an existing row.
// It is idempotent and leaves the date untouched.
func NormalizeObservation(o Observation) Observation {
	o.Country = NormalizeText(o.Country)
	o.Region = NormalizeText(o.Region)
	return o
}
