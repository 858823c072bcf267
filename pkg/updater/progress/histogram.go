package progress

import "time"

// DefaultWindow is the span rates are averaged over.
const DefaultWindow = 5 * time.Second

// Rates are per-second speeds of each counter.
type Rates struct {
	DownloadedFiles    float64
	DownloadedBytes    float64
	AppliedFiles       float64
	AppliedInputBytes  float64
	AppliedOutputBytes float64
}

type sample struct {
	at       time.Time
	counters Counters
}

// Histogram keeps timestamped counter samples over a sliding window.
// It is not safe for concurrent use.
type Histogram struct {
	window  time.Duration
	samples []sample
}

// NewHistogram creates a histogram averaging over window.
func NewHistogram(window time.Duration) *Histogram {
	return &Histogram{window: window}
}

// Add records a sample and evicts samples older than the window. The most
// recent sample before the window edge is kept as the baseline.
func (h *Histogram) Add(at time.Time, c Counters) {
	if n := len(h.samples); n > 0 && at.Before(h.samples[n-1].at) {
		at = h.samples[n-1].at
	}
	h.samples = append(h.samples, sample{at: at, counters: c})

	edge := at.Add(-h.window)
	drop := 0
	for drop < len(h.samples)-1 && !h.samples[drop+1].at.After(edge) {
		drop++
	}
	if drop > 0 {
		h.samples = append(h.samples[:0], h.samples[drop:]...)
	}
}

// Progress returns the latest counters.
func (h *Histogram) Progress() Counters {
	if len(h.samples) == 0 {
		return Counters{}
	}
	return h.samples[len(h.samples)-1].counters
}

// Speed averages each counter over the retained samples.
func (h *Histogram) Speed() Rates {
	if len(h.samples) < 2 {
		return Rates{}
	}
	first, last := h.samples[0], h.samples[len(h.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return Rates{}
	}
	d := last.counters.sub(first.counters)
	return Rates{
		DownloadedFiles:    float64(d.DownloadedFiles) / elapsed,
		DownloadedBytes:    float64(d.DownloadedBytes) / elapsed,
		AppliedFiles:       float64(d.AppliedFiles) / elapsed,
		AppliedInputBytes:  float64(d.AppliedInputBytes) / elapsed,
		AppliedOutputBytes: float64(d.AppliedOutputBytes) / elapsed,
	}
}
