package dataset

import (
	"sort"
	"strconv"
)

// FormatFloat renders a value the way level labels are printed: integers
// without a decimal point, everything else in shortest form.
func FormatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// sortedLevels orders numeric levels numerically and string levels lexically.
func sortedLevels(c *Column, labels []string) []string {
	seen := make(map[string]float64)
	for i, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		if c.Kind == Float {
			seen[l] = c.Floats[i]
		} else {
			seen[l] = 0
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	if c.Kind == Float {
		sort.Slice(out, func(i, j int) bool { return seen[out[i]] < seen[out[j]] })
	} else {
		sort.Strings(out)
	}
	return out
}
