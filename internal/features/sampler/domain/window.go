package domain

import (
	"container/ring"
	"time"
)

// Sample is one observation produced by the sampler each tick.
// Temperature rides along when the thermal zone is readable.
type Sample struct {
	Timestamp   time.Time
	Utilization int
	FreqKHz     int64
	TempMilliC  int64
	TempValid   bool
}

// Window is a fixed-capacity rolling window of samples. The oldest
// sample is evicted on overflow. It is owned exclusively by the sampler;
// consumers receive read-only snapshots. Window counts ticks, not
// wall-clock time: a delayed tick simply lands as the next slot.
type Window struct {
	samples *ring.Ring
	size    int
}

// NewWindow creates a rolling window holding up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{samples: ring.New(capacity)}
}

// Add appends a sample, evicting the oldest when the window is full.
func (w *Window) Add(sample Sample) {
	w.samples.Value = sample
	w.samples = w.samples.Next()
	if w.size < w.samples.Len() {
		w.size++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.size
}

// Values returns the held samples, oldest first.
func (w *Window) Values() []Sample {
	values := make([]Sample, 0, w.size)
	w.samples.Do(func(value interface{}) {
		if sample, ok := value.(Sample); ok {
			values = append(values, sample)
		}
	})
	return values
}

// Average returns the mean utilization over the most recent k samples.
// Fewer than k held samples average over what is there; an empty window
// reports zero load.
func (w *Window) Average(k int) float64 {
	values := w.Values()
	if len(values) == 0 {
		return 0
	}
	if k < 1 {
		k = 1
	}
	if k > len(values) {
		k = len(values)
	}

	var sum int
	for _, sample := range values[len(values)-k:] {
		sum += sample.Utilization
	}
	return float64(sum) / float64(k)
}

// Snapshot returns a read-only copy of the window for the policy engine.
func (w *Window) Snapshot() Snapshot {
	return Snapshot{values: w.Values()}
}

// Snapshot is an immutable view of the window at one tick.
type Snapshot struct {
	values []Sample
}

// Len returns the number of samples in the snapshot.
func (s Snapshot) Len() int {
	return len(s.values)
}

// Values returns the snapshot's samples, oldest first.
func (s Snapshot) Values() []Sample {
	return s.values
}

// Average returns the mean utilization over the most recent k samples.
func (s Snapshot) Average(k int) float64 {
	if len(s.values) == 0 {
		return 0
	}
	if k < 1 {
		k = 1
	}
	if k > len(s.values) {
		k = len(s.values)
	}

	var sum int
	for _, sample := range s.values[len(s.values)-k:] {
		sum += sample.Utilization
	}
	return float64(sum) / float64(k)
}
