package sdproto

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// maxPatternCombinations guards the Cartesian enumeration in
// PatternExists. Real frames stay far below this; anything above it is
// noise and treated as no match.
const maxPatternCombinations = 10000

// Tolerance returns the matching tolerance for a nominal normalized
// pulse value: 1.0 for small values, 30% up to 16, 18% beyond.
func Tolerance(v float64) float64 {
	a := math.Abs(v)
	if a > 3 {
		if a > 16 {
			return a * 0.18
		}
		return a * 0.3
	}
	return 1.0
}

// InTolerance reports whether two values are within tol of each other.
func InTolerance(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// PatternExists searches rawData for an occurrence of the logical pulse
// sequence search, where each symbol of rawData indexes patterns. For
// every distinct search value it collects the pattern IDs within
// tolerance (closest first), then enumerates assignments — rejecting
// any that bind one pattern ID to two different search values — until
// the substituted string occurs in rawData.
//
// It returns the matching substring and true, or "" and false when no
// assignment matches. Deterministic for identical inputs.
func (d *Decoder) PatternExists(search []float64, patterns map[int]float64, rawData string) (string, bool) {
	if len(search) == 0 {
		return "", false
	}

	// Distinct search values in order of first appearance.
	var unique []float64
	seen := make(map[float64]bool, len(search))
	for _, v := range search {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}

	// Candidate pattern IDs per unique value, closest first.
	type weighted struct {
		gap float64
		id  int
	}
	candidates := make([][]int, len(unique))
	total := 1
	for i, v := range unique {
		tol := Tolerance(v)
		d.logf(LevelTrace, "PatternExists: looking for (%v +- %v)", v, tol)

		var ws []weighted
		for id, pv := range patterns {
			gap := math.Abs(pv - v)
			if gap <= 0.001 || gap <= tol {
				ws = append(ws, weighted{gap: gap, id: id})
			}
		}
		if len(ws) == 0 {
			return "", false
		}
		sort.Slice(ws, func(a, b int) bool {
			if ws[a].gap != ws[b].gap {
				return ws[a].gap < ws[b].gap
			}
			return ws[a].id < ws[b].id
		})
		ids := make([]int, len(ws))
		for j, w := range ws {
			ids[j] = w.id
		}
		candidates[i] = ids
		total *= len(ids)
	}

	if total > maxPatternCombinations {
		d.logf(LevelTrace, "PatternExists: too many combinations: %d, aborting", total)
		return "", false
	}

	// Enumerate the Cartesian product with an odometer.
	idx := make([]int, len(unique))
	assignment := make(map[float64]int, len(unique))
	for {
		valid := true
		used := make(map[int]bool, len(unique))
		for i := range unique {
			id := candidates[i][idx[i]]
			if used[id] {
				valid = false
				break
			}
			used[id] = true
			assignment[unique[i]] = id
		}

		if valid {
			var b strings.Builder
			for _, v := range search {
				b.WriteString(strconv.Itoa(assignment[v]))
			}
			target := b.String()
			if strings.Contains(rawData, target) {
				return target, true
			}
		}

		// Advance the odometer, least significant position last.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(candidates[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return "", false
		}
	}
}
