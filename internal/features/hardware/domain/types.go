package domain

import (
	"context"

	"github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
)

// SourceFormat names the wire format of one utilization control file.
// The Mali stack exposes load through several nodes depending on kernel
// and driver generation; the governor is handed an ordered list of them.
type SourceFormat string

const (
	// FormatPlain is a bare integer load percentage
	FormatPlain SourceFormat = "plain"

	// FormatIdle is a bare integer idle percentage (load = 100 - idle)
	FormatIdle SourceFormat = "idle"

	// FormatIdleField is a whitespace-separated row whose third field is idle
	FormatIdleField SourceFormat = "idle-field"

	// FormatActive is the mtk_mali node's "ACTIVE=NN" line
	FormatActive SourceFormat = "active"

	// FormatLoading is the gpufreq node's "gpu_loading = NN" line
	FormatLoading SourceFormat = "loading"

	// FormatBusyIdle is the dvfs debug node's busy/idle/protm counter row,
	// converted to a percentage from deltas between consecutive reads
	FormatBusyIdle SourceFormat = "busy-idle"
)

// UtilizationSource is one configured load source in fallback order.
type UtilizationSource struct {
	Path   string       `mapstructure:"path"`
	Format SourceFormat `mapstructure:"format"`
}

// State is one raw observation of the GPU.
type State struct {
	// Utilization is the GPU load in percent, 0-100
	Utilization int

	// FreqKHz is the currently active frequency
	FreqKHz int64

	// TempMilliC is the thermal zone temperature in milli-degrees Celsius;
	// only meaningful when TempValid is set
	TempMilliC int64
	TempValid  bool
}

// Reader pulls one observation from the device control files.
type Reader interface {
	ReadState(ctx context.Context) (State, error)
}

// Writer applies an operating point to the device. Writes are
// synchronous and idempotent: applying the already-active point is a
// no-op observable only as a confirmation read.
type Writer interface {
	Apply(ctx context.Context, point domain.OperatingPoint) error
}
