package sonar

import (
	"sort"
	"time"

	"hapticscan/internal/clock"
)

// Pinger yields one raw distance reading.
type Pinger interface {
	Ping() float64
}

// Filter takes a burst of pings and rejects the extremes.
type Filter struct {
	src     Pinger
	clk     clock.Clock
	samples int
	pause   time.Duration
}

// NewFilter returns a filter taking samples pings per Sample, sleeping pause
// after each one. samples below 3 is raised to 3 so that one value survives
// trimming.
func NewFilter(src Pinger, clk clock.Clock, samples int, pause time.Duration) *Filter {
	if clk == nil {
		clk = clock.System{}
	}
	if samples < 3 {
		samples = 3
	}
	return &Filter{src: src, clk: clk, samples: samples, pause: pause}
}

// Sample returns the trimmed mean of a fresh burst of readings.
func (f *Filter) Sample() float64 {
	vals := make([]float64, f.samples)
	for i := range vals {
		vals[i] = f.src.Ping()
		f.clk.Sleep(f.pause)
	}
	return TrimmedMean(vals)
}

// TrimmedMean sorts a copy of vals, drops exactly one minimum and one maximum
// and averages the rest. With fewer than three values it averages them all.
func TrimmedMean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if len(sorted) >= 3 {
		sorted = sorted[1 : len(sorted)-1]
	}
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}
