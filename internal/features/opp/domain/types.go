package domain

import "sort"

// OperatingPoint is one frequency/voltage pair the GPU can run at.
// Frequencies are in KHz and voltages in µV, the units the Mali gpufreq
// driver exposes. DDROPP carries the frequency's paired DRAM operating
// point from the table resource; it is informational only, the governor
// does not drive DDR.
type OperatingPoint struct {
	FreqKHz int64 `mapstructure:"freq"`
	VoltUV  int64 `mapstructure:"volt"`
	DDROPP  int64 `mapstructure:"ddr"`
	Index   int   `mapstructure:"-"`
}

// Table is the ordered, immutable set of operating points, sorted
// strictly ascending by frequency. It is loaded once at startup; the
// physical OPP set is a hardware property, so reload requires restart.
type Table struct {
	points []OperatingPoint
}

// NewTable wraps a validated slice of operating points. Callers go
// through service.Load, which enforces the ordering invariants.
func NewTable(points []OperatingPoint) *Table {
	return &Table{points: points}
}

// Len returns the number of operating points.
func (t *Table) Len() int {
	return len(t.points)
}

// At returns the operating point at the given index, clamped into range.
func (t *Table) At(index int) OperatingPoint {
	if index < 0 {
		index = 0
	}
	if index >= len(t.points) {
		index = len(t.points) - 1
	}
	return t.points[index]
}

// Points returns a copy of the table's operating points.
func (t *Table) Points() []OperatingPoint {
	points := make([]OperatingPoint, len(t.points))
	copy(points, t.points)
	return points
}

// NearestIndex maps a raw hardware frequency back to a table index.
// Ties between two neighboring points resolve to the lower index.
func (t *Table) NearestIndex(freqKHz int64) int {
	i := sort.Search(len(t.points), func(i int) bool {
		return t.points[i].FreqKHz >= freqKHz
	})
	if i == 0 {
		return 0
	}
	if i == len(t.points) {
		return len(t.points) - 1
	}

	below := freqKHz - t.points[i-1].FreqKHz
	above := t.points[i].FreqKHz - freqKHz
	if below <= above {
		return i - 1
	}
	return i
}

// MinFreq returns the lowest frequency in the table.
func (t *Table) MinFreq() int64 {
	return t.points[0].FreqKHz
}

// MaxFreq returns the highest frequency in the table.
func (t *Table) MaxFreq() int64 {
	return t.points[len(t.points)-1].FreqKHz
}

// MiddleFreq returns the frequency at the table's midpoint.
func (t *Table) MiddleFreq() int64 {
	return t.points[len(t.points)/2].FreqKHz
}

// SecondHighestFreq returns the second highest frequency, or the highest
// for a two-entry table's degenerate case.
func (t *Table) SecondHighestFreq() int64 {
	if len(t.points) < 2 {
		return t.MaxFreq()
	}
	return t.points[len(t.points)-2].FreqKHz
}
