package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowEvictsOldestOnOverflow(t *testing.T) {
	window := NewWindow(3)

	for _, utilization := range []int{10, 20, 30, 40} {
		window.Add(Sample{Utilization: utilization})
	}

	assert.Equal(t, 3, window.Len())

	values := window.Values()
	utilizations := make([]int, 0, len(values))
	for _, sample := range values {
		utilizations = append(utilizations, sample.Utilization)
	}
	assert.Equal(t, []int{20, 30, 40}, utilizations, "oldest sample evicted, order preserved")
}

func TestWindowAverage(t *testing.T) {
	window := NewWindow(5)
	for _, utilization := range []int{10, 20, 90, 100} {
		window.Add(Sample{Utilization: utilization})
	}

	assert.InDelta(t, 95.0, window.Average(2), 0.001, "averages the most recent k")
	assert.InDelta(t, 70.0, window.Average(3), 0.001)
	assert.InDelta(t, 55.0, window.Average(4), 0.001)

	// k larger than the held count averages what is there
	assert.InDelta(t, 55.0, window.Average(10), 0.001)

	// k below one is treated as one
	assert.InDelta(t, 100.0, window.Average(0), 0.001)
}

func TestEmptyWindowAveragesToZero(t *testing.T) {
	window := NewWindow(4)
	assert.Equal(t, 0, window.Len())
	assert.InDelta(t, 0.0, window.Average(3), 0.001)
}

func TestSnapshotIsDetachedFromWindow(t *testing.T) {
	window := NewWindow(3)
	window.Add(Sample{Utilization: 50})

	snapshot := window.Snapshot()
	window.Add(Sample{Utilization: 100})
	window.Add(Sample{Utilization: 100})

	assert.Equal(t, 1, snapshot.Len(), "snapshot does not track later additions")
	assert.InDelta(t, 50.0, snapshot.Average(3), 0.001)
	assert.Equal(t, 3, window.Len())
}

func TestWindowMinimumCapacityIsOne(t *testing.T) {
	window := NewWindow(0)
	window.Add(Sample{Utilization: 42})
	window.Add(Sample{Utilization: 84})

	assert.Equal(t, 1, window.Len())
	assert.InDelta(t, 84.0, window.Average(1), 0.001, "single slot holds the latest sample")
}
