package domain

// Merge concatenates the previous snapshot and the freshly fetched rows,
// previous rows first, both in their original order.
//
// Without dedup the result keeps every row, so repeated runs over the same
// day accumulate duplicate (region, date) pairs. With dedup, rows sharing a
// Key collapse into one: the latest row (fresh over previous, later over
// earlier) wins and takes the position of the first occurrence.
func Merge(previous, fresh []Observation, dedup bool) []Observation {
	merged := make([]Observation, 0, len(previous)+len(fresh))
	merged = append(merged, previous...)
	merged = append(merged, fresh...)
	if !dedup {
		return merged
	}

	index := make(map[string]int, len(merged))
	out := make([]Observation, 0, len(merged))
	for _, o := range merged {
		k := o.Key()
		if i, ok := index[k]; ok {
			out[i] = o
			continue
		}
		index[k] = len(out)
		out = append(out, o)
	}
	return out
}

// DuplicateKeys returns each (region, date) key that appears more than once,
// with its number of occurrences.
func DuplicateKeys(rows []Observation) map[string]int {
	counts := make(map[string]int, len(rows))
	for _, o := range rows {
		counts[o.Key()]++
	}
	for k, n := range counts {
		if n < 2 {
			delete(counts, k)
		}
	}
	return counts
}
