// Package stats keeps bounded rolling windows of numeric samples and the
// summaries derived from them.
package stats

import (
	"time"

	mstats "github.com/montanaflynn/stats"
)

// Sample is a single timestamped observation
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Summary is the cached aggregate of a window.
// All fields are zero for an empty window.
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Window is a bounded FIFO of samples. Once full, appending drops the oldest
// sample. The summary is recomputed on every append.
//
// Window is not safe for concurrent use; owners guard it with their own lock.
type Window struct {
	capacity int
	samples  []Sample
	summary  Summary
}

// NewWindow creates a window holding at most capacity samples.
// A non-positive capacity is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		samples:  make([]Sample, 0, capacity),
	}
}

// Add appends a value observed at ts
func (w *Window) Add(ts time.Time, value float64) {
	w.Append(Sample{Timestamp: ts, Value: value})
}

// Append appends a sample, dropping the oldest one when the window is full
func (w *Window) Append(s Sample) {
	if len(w.samples) >= w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)
	w.recompute()
}

// Len returns the number of samples currently held
func (w *Window) Len() int {
	return len(w.samples)
}

// Capacity returns the maximum number of samples
func (w *Window) Capacity() int {
	return w.capacity
}

// Summary returns the cached aggregate
func (w *Window) Summary() Summary {
	return w.summary
}

// Last returns the most recent sample
func (w *Window) Last() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// Samples returns a copy of the samples, oldest first
func (w *Window) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Between returns the samples with start <= Timestamp <= end.
// A zero start or end leaves that side open.
func (w *Window) Between(start, end time.Time) []Sample {
	out := make([]Sample, 0, len(w.samples))
	for _, s := range w.samples {
		if !start.IsZero() && s.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && s.Timestamp.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reset drops all samples
func (w *Window) Reset() {
	w.samples = w.samples[:0]
	w.summary = Summary{}
}

func (w *Window) recompute() {
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = s.Value
	}
	w.summary = Summarize(values)
}

// Summarize computes the aggregate of an arbitrary value set
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	data := mstats.Float64Data(values)
	min, _ := data.Min()
	max, _ := data.Max()
	avg, _ := data.Mean()
	return Summary{
		Count: len(values),
		Min:   min,
		Max:   max,
		Avg:   avg,
		P50:   Percentile(values, 50),
		P95:   Percentile(values, 95),
		P99:   Percentile(values, 99),
	}
}

// Percentile returns the nearest-rank percentile of values: the element at
// index ceil(n*p/100)-1 of the sorted set, clamped to the first element.
// It returns 0 for an empty set or p outside [0, 100].
func Percentile(values []float64, p float64) float64 {
	v, err := mstats.PercentileNearestRank(values, p)
	if err != nil {
		return 0
	}
	return v
}
