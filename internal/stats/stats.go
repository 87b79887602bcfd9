// Package stats computes the aggregate numbers disclosed at reveal time. It
// is a pure function over the round's raw votes.
package stats

import (
	"github.com/pointdeck/pointdeck/internal/deck"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

// Compute derives statistics from raw vote values keyed by participant id.
// Non-numeric cards ("?", "coffee", size labels) are excluded from the
// numeric aggregates but still count toward mode and consensus.
func Compute(votes map[string]string) protocol.Statistics {
	var s protocol.Statistics
	if len(votes) == 0 {
		return s
	}

	var numeric []float64
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v]++
		if f, ok := deck.NumericValue(v); ok {
			numeric = append(numeric, f)
		}
	}

	if len(numeric) > 0 {
		var sum float64
		min, max := numeric[0], numeric[0]
		for _, f := range numeric {
			sum += f
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		avg := sum / float64(len(numeric))
		rng := max - min
		s.Average, s.Min, s.Max, s.Range = &avg, &min, &max, &rng
	}

	mode := pickMode(counts)
	s.Mode = &mode
	s.Consensus = len(votes) > 1 && len(counts) == 1
	return s
}

// pickMode returns the most frequent vote value. Ties go to the smallest
// value: numerically when both candidates are numbers, numbers before
// labels, labels by byte order. The rule exists so mode never depends on map
// iteration order.
func pickMode(counts map[string]int) string {
	var best string
	bestCount := 0
	for v, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount = v, n
		case n == bestCount && valueLess(v, best):
			best = v
		}
	}
	return best
}

func valueLess(a, b string) bool {
	fa, okA := deck.NumericValue(a)
	fb, okB := deck.NumericValue(b)
	switch {
	case okA && okB:
		return fa < fb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}
