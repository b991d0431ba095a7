package color

import (
	"math"
	"sort"
)

// maxRareFraction caps the rarity threshold so a bin holding 5% of the
// frame is never considered rare.
const maxRareFraction = 0.05

// histogram counts pixels per bin.
type histogram struct {
	counts []int
	total  int
	masked bool
}

func buildHistogram(q quantized) histogram {
	h := histogram{counts: make([]int, q.bins), total: q.total, masked: q.masked}
	for _, idx := range q.index {
		if int(idx) < len(h.counts) {
			h.counts[idx]++
		}
	}
	return h
}

// rarityThreshold returns min(percentile(nonzero counts), 5% of total).
// Bin 0 takes part in the percentile unless it holds masked pixels. ok is
// false when no bin is populated.
func (h histogram) rarityThreshold(percentile float64) (float64, bool) {
	if h.total == 0 {
		return 0, false
	}

	first := 0
	if h.masked {
		first = 1
	}

	nonzero := make([]float64, 0, 64)
	for bin := first; bin < len(h.counts); bin++ {
		if h.counts[bin] > 0 {
			nonzero = append(nonzero, float64(h.counts[bin]))
		}
	}
	if len(nonzero) == 0 {
		return 0, false
	}

	sort.Float64s(nonzero)
	threshold := percentileOf(nonzero, percentile)

	return min(threshold, maxRareFraction*float64(h.total)), true
}

// rareMask marks every pixel whose bin count is below threshold.
func (h histogram) rareMask(q quantized, threshold float64) ([]byte, int) {
	mask := make([]byte, len(q.index))
	rare := 0
	for i, idx := range q.index {
		if idx == 0 {
			continue
		}
		if float64(h.counts[idx]) < threshold {
			mask[i] = 255
			rare++
		}
	}
	return mask, rare
}

// confidence maps a bin count to [0,1]: rarer bins score higher.
func (h histogram) confidence(count int) float64 {
	if h.total == 0 {
		return 0.5
	}
	return min(1.0, 2*(1-float64(count)/float64(h.total)))
}

// percentileOf interpolates linearly between the closest ranks of sorted,
// placing rank 0 at the minimum and rank n-1 at the maximum.
func percentileOf(sorted []float64, percentile float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	p := max(0, min(100, percentile)) / 100
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	frac := rank - float64(lo)

	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
