package aggregate

import "math"

// Arrival delays in the published data are integral minutes, so a fixed
//-range one-minute histogram gives exact medians without keeping rows
// around. The range covers everything the feed actually produces; the rare
// value outside it lands in an edge bucket and quantiles clamp to the range
// boundary (exact min and max are tracked separately in the stats record).
const (
	histMin  = -180
	histMax  = 1980
	histBins = histMax - histMin
)

// delayHist counts one value per observed arrival delay. Plain vector
// addition merges two of them, which keeps parallel workers cheap.
type delayHist struct {
	bins  [histBins]int64
	under int64
	over  int64
	n     int64
}

func (h *delayHist) observe(min float64) {
	h.n++
	m := int(math.Floor(min))
	switch {
	case m < histMin:
		h.under++
	case m >= histMax:
		h.over++
	default:
		h.bins[m-histMin]++
	}
}

func (h *delayHist) merge(o *delayHist) {
	for i := range h.bins {
		h.bins[i] += o.bins[i]
	}
	h.under += o.under
	h.over += o.over
	h.n += o.n
}

// kth returns the value at rank k (0-based) in the sorted multiset of
// observations, clamped to the histogram range for edge-bucket hits.
func (h *delayHist) kth(k int64) float64 {
	if k < h.under {
		return histMin
	}
	cum := h.under
	for i := range h.bins {
		cum += h.bins[i]
		if k < cum {
			return float64(histMin + i)
		}
	}
	return histMax
}

// median averages the two middle ranks for even counts, matching the usual
// statistical convention for integral data.
func (h *delayHist) median() float64 {
	if h.n == 0 {
		return 0
	}
	mid := h.n / 2
	if h.n%2 == 1 {
		return h.kth(mid)
	}
	return (h.kth(mid-1) + h.kth(mid)) / 2
}
