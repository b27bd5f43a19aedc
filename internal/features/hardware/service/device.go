package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
	oppdomain "github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
	"github.com/Tools-cx-app/gpu-governor/pkg/sysfs"
)

// Paths holds the device control file locations. All of them are
// platform configuration; nothing in here is hardcoded to one SoC.
type Paths struct {
	// UtilizationSources is the ordered load-source fallback chain
	UtilizationSources []domain.UtilizationSource

	// FreqPaths are candidate files for the current frequency, in order
	FreqPaths []string

	// FreqSetPath receives the target frequency
	FreqSetPath string

	// VoltSetPath receives "freq volt" pairs; may be empty on devices
	// whose driver derives voltage itself
	VoltSetPath string

	// ThermalZonePath is the temperature node in milli-degrees C; optional
	ThermalZonePath string
}

// busyIdleCounters keeps the previous busy/idle/protm readings for the
// delta-based load sources.
type busyIdleCounters struct {
	busy  int64
	idle  int64
	protm int64
	valid bool
}

// Device reads and writes the GPU control files. It implements both
// domain.Reader and domain.Writer and is the only component touching
// hardware state directly. It is driven solely from the control loop
// goroutine; the availability cache needs no locking.
type Device struct {
	paths     Paths
	ioTimeout time.Duration
	logger    *slog.Logger

	// unavailable marks control files that failed a read; a broken node
	// stays skipped instead of being retried every tick
	unavailable map[string]bool

	counters map[string]*busyIdleCounters
}

// NewDevice creates the hardware interface over the configured paths.
func NewDevice(paths Paths, ioTimeout time.Duration, logger *slog.Logger) *Device {
	return &Device{
		paths:       paths,
		ioTimeout:   ioTimeout,
		logger:      logger,
		unavailable: make(map[string]bool),
		counters:    make(map[string]*busyIdleCounters),
	}
}

// ReadState pulls one utilization/frequency/temperature observation.
// Temperature is best-effort; utilization and frequency failures surface
// as a hardware read error the caller treats as a missed sample.
func (d *Device) ReadState(ctx context.Context) (domain.State, error) {
	state := domain.State{}

	utilization, err := d.readUtilization(ctx)
	if err != nil {
		return state, err
	}
	state.Utilization = utilization

	freq, err := d.readFrequency(ctx)
	if err != nil {
		return state, err
	}
	state.FreqKHz = freq

	if temp, ok := d.readTemperature(ctx); ok {
		state.TempMilliC = temp
		state.TempValid = true
	}

	return state, nil
}

// readUtilization walks the source chain in priority order. A source
// reporting zero load falls through to the next one: several Mali nodes
// report zero while a sibling node still sees activity, and trusting the
// zero would idle the GPU under real load.
func (d *Device) readUtilization(ctx context.Context) (int, error) {
	anyReadable := false

	for i := range d.paths.UtilizationSources {
		source := &d.paths.UtilizationSources[i]

		load, err := d.readSource(ctx, source)
		if err != nil {
			if common.IsContextCanceled(err) {
				return 0, err
			}
			if !common.IsSourceUnavailableError(err) {
				d.markUnavailable(source.Path, err)
			}
			continue
		}

		anyReadable = true
		if load > 0 {
			return clampPercent(load), nil
		}
	}

	if anyReadable {
		return 0, nil
	}
	return 0, common.HardwareReadError("no utilization source readable")
}

func (d *Device) readSource(ctx context.Context, source *domain.UtilizationSource) (int, error) {
	if d.unavailable[source.Path] {
		return 0, common.NewSourceUnavailableError(source.Path)
	}

	readCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()

	switch source.Format {
	case domain.FormatPlain:
		load, err := sysfs.ReadInt(readCtx, source.Path)
		return int(load), err

	case domain.FormatIdle:
		idle, err := sysfs.ReadInt(readCtx, source.Path)
		if err != nil {
			return 0, err
		}
		return 100 - int(idle), nil

	case domain.FormatIdleField:
		fields, err := sysfs.Fields(readCtx, source.Path)
		if err != nil {
			return 0, err
		}
		if len(fields) < 3 {
			return 0, fmt.Errorf("expected at least 3 fields in %s, got %d", source.Path, len(fields))
		}
		idle, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, err
		}
		return 100 - idle, nil

	case domain.FormatActive:
		content, err := sysfs.ReadString(readCtx, source.Path)
		if err != nil {
			return 0, err
		}
		return parseKeyedLoad(content, "ACTIVE=")

	case domain.FormatLoading:
		content, err := sysfs.ReadString(readCtx, source.Path)
		if err != nil {
			return 0, err
		}
		return parseKeyedLoad(content, "gpu_loading = ")

	case domain.FormatBusyIdle:
		content, err := sysfs.ReadString(readCtx, source.Path)
		if err != nil {
			return 0, err
		}
		return d.parseBusyIdle(source.Path, content)

	default:
		return 0, fmt.Errorf("unknown utilization source format %q", source.Format)
	}
}

// parseKeyedLoad extracts the integer following a key such as "ACTIVE="
// or "gpu_loading = " anywhere in the node's content.
func parseKeyedLoad(content, key string) (int, error) {
	pos := strings.Index(content, key)
	if pos < 0 {
		return 0, fmt.Errorf("key %q not found", key)
	}
	rest := content[pos+len(key):]
	if end := strings.IndexFunc(rest, func(r rune) bool {
		return r != '-' && (r < '0' || r > '9')
	}); end >= 0 {
		rest = rest[:end]
	}
	return strconv.Atoi(strings.TrimSpace(rest))
}

// parseBusyIdle computes load from the busy/idle/protm counter row on
// the node's second line. The first read only seeds the counters.
func (d *Device) parseBusyIdle(path, content string) (int, error) {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("expected counter row on second line of %s", path)
	}

	fields := strings.Fields(lines[1])
	if len(fields) < 3 {
		return 0, fmt.Errorf("expected 3 counters in %s, got %d fields", path, len(fields))
	}

	busy, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, err
	}
	idle, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	protm, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return 0, err
	}

	prev, exists := d.counters[path]
	if !exists {
		prev = &busyIdleCounters{}
		d.counters[path] = prev
	}

	diffBusy := busy - prev.busy
	diffIdle := idle - prev.idle
	diffProtm := protm - prev.protm
	seeded := prev.valid

	prev.busy, prev.idle, prev.protm, prev.valid = busy, idle, protm, true

	if !seeded {
		return 0, nil
	}

	total := diffBusy + diffIdle + diffProtm
	if total <= 0 {
		return 0, nil
	}

	load := int((diffBusy + diffProtm) * 100 / total)
	if load < 0 {
		load = 0
	}
	return load, nil
}

// readFrequency tries the configured frequency nodes in order. Nodes
// come in two shapes: a row whose second field is the frequency, and
// var-dump style listings with "freq:" / "Freq:" / "cur_freq = " lines.
func (d *Device) readFrequency(ctx context.Context) (int64, error) {
	for _, path := range d.paths.FreqPaths {
		if d.unavailable[path] {
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
		content, err := sysfs.ReadString(readCtx, path)
		cancel()
		if err != nil {
			if common.IsContextCanceled(err) {
				return 0, err
			}
			d.markUnavailable(path, err)
			continue
		}

		if freq, ok := parseFrequency(content); ok {
			return freq, nil
		}
	}

	return 0, common.HardwareReadError("no frequency path readable")
}

func parseFrequency(content string) (int64, bool) {
	fields := strings.Fields(content)
	if len(fields) == 1 {
		if freq, err := strconv.ParseInt(fields[0], 10, 64); err == nil && freq > 0 {
			return freq, true
		}
	}
	if len(fields) >= 2 {
		if freq, err := strconv.ParseInt(fields[1], 10, 64); err == nil && freq > 0 {
			return freq, true
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) <= 3 {
			continue
		}
		if strings.Contains(line, "idx:") && strings.Contains(line, "freq:") {
			if freq, ok := parseDelimitedValue(line, "freq:", ","); ok {
				return freq, true
			}
		} else if strings.HasPrefix(line, "Freq:") {
			if freq, ok := parseDelimitedValue(line, "Freq:", ","); ok {
				return freq, true
			}
		} else if pos := strings.Index(line, "cur_freq = "); pos >= 0 {
			if freq, err := strconv.ParseInt(strings.TrimSpace(line[pos+len("cur_freq = "):]), 10, 64); err == nil {
				return freq, true
			}
		}
	}

	return 0, false
}

func parseDelimitedValue(line, key, delimiter string) (int64, bool) {
	pos := strings.Index(line, key)
	if pos < 0 {
		return 0, false
	}
	rest := line[pos+len(key):]
	if end := strings.Index(rest, delimiter); end >= 0 {
		rest = rest[:end]
	}
	value, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// readTemperature is best-effort: devices without a usable thermal zone
// simply run without the thermal cap.
func (d *Device) readTemperature(ctx context.Context) (int64, bool) {
	path := d.paths.ThermalZonePath
	if path == "" || d.unavailable[path] {
		return 0, false
	}

	readCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()

	temp, err := sysfs.ReadInt(readCtx, path)
	if err != nil {
		if !common.IsContextCanceled(err) {
			d.markUnavailable(path, err)
		}
		return 0, false
	}
	return temp, true
}

// Apply writes the operating point to the device. The already-active
// frequency short-circuits after the confirmation read.
func (d *Device) Apply(ctx context.Context, point oppdomain.OperatingPoint) error {
	if current, err := d.readFrequency(ctx); err == nil && current == point.FreqKHz {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()

	if err := sysfs.WriteString(writeCtx, d.paths.FreqSetPath, strconv.FormatInt(point.FreqKHz, 10)); err != nil {
		return common.HardwareWriteError("writing frequency %d to %s: %v",
			point.FreqKHz, d.paths.FreqSetPath, err)
	}

	if d.paths.VoltSetPath != "" && point.VoltUV > 0 {
		pair := fmt.Sprintf("%d %d", point.FreqKHz, point.VoltUV)
		if err := sysfs.WriteString(writeCtx, d.paths.VoltSetPath, pair); err != nil {
			return common.HardwareWriteError("writing voltage pair %q to %s: %v",
				pair, d.paths.VoltSetPath, err)
		}
	}

	return nil
}

func (d *Device) markUnavailable(path string, err error) {
	d.unavailable[path] = true
	d.logger.Warn("control file disabled after read failure",
		"path", path, "error", err)
}

func clampPercent(load int) int {
	if load < 0 {
		return 0
	}
	if load > 100 {
		return 100
	}
	return load
}
