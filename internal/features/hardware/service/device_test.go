package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
	oppdomain "github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeNode(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestDevice(paths Paths) *Device {
	return NewDevice(paths, 100*time.Millisecond, testLogger())
}

func TestParseKeyedLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    int
		wantErr bool
	}{
		{"active format", "ACTIVE=67 BLOCK=1 IDLE=33", "ACTIVE=", 67, false},
		{"loading line among others", "freq = 431000\ngpu_loading = 42\n", "gpu_loading = ", 42, false},
		{"value at end of content", "gpu_loading = 7", "gpu_loading = ", 7, false},
		{"missing key", "IDLE=90", "ACTIVE=", 0, true},
		{"non-numeric value", "ACTIVE=high", "ACTIVE=", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseKeyedLoad(tt.content, tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int64
		ok      bool
	}{
		{"bare value", "431000\n", 431000, true},
		{"second field row", "2 350000 0\n", 350000, true},
		{"idx freq listing", "[GPU] idx: 3, freq: 280000, volt: 65000\n", 280000, true},
		{"freq prefix line", "Freq: 218000, Vgpu: 60000\n", 218000, true},
		{"cur freq assignment", "g_cur_opp_idx = 5\ncur_freq = 350000\n", 350000, true},
		{"garbage", "no numbers here at all\n", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseFrequency(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadStateWalksSourceChain(t *testing.T) {
	dir := t.TempDir()

	// First source reads fine but reports zero; the second sees the load
	idleNode := writeNode(t, dir, "gpu_loading", "0")
	activeNode := writeNode(t, dir, "utilization", "ACTIVE=57 IDLE=43")
	freqNode := writeNode(t, dir, "current_freqency", "1 350000")

	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: idleNode, Format: domain.FormatPlain},
			{Path: activeNode, Format: domain.FormatActive},
		},
		FreqPaths: []string{freqNode},
	})

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 57, state.Utilization, "zero reading falls through to the next source")
	assert.Equal(t, int64(350000), state.FreqKHz)
	assert.False(t, state.TempValid, "no thermal zone configured")
}

func TestReadStateAllSourcesZeroMeansIdle(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: writeNode(t, dir, "gpu_loading", "0"), Format: domain.FormatPlain},
		},
		FreqPaths: []string{writeNode(t, dir, "freq", "218000")},
	})

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, state.Utilization)
}

func TestReadStateDisablesBrokenSource(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does_not_exist")
	working := writeNode(t, dir, "gpu_loading", "64")
	freqNode := writeNode(t, dir, "freq", "431000")

	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: missing, Format: domain.FormatPlain},
			{Path: working, Format: domain.FormatPlain},
		},
		FreqPaths: []string{freqNode},
	})

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, state.Utilization)
	assert.True(t, device.unavailable[missing], "failed path cached as unavailable")

	// Second read skips the broken path without retrying it
	state, err = device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, state.Utilization)
}

func TestReadStateNoSourceReadable(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: filepath.Join(dir, "gone"), Format: domain.FormatPlain},
		},
		FreqPaths: []string{filepath.Join(dir, "also_gone")},
	})

	_, err := device.ReadState(context.Background())
	assert.True(t, common.IsHardwareRead(err))
}

func TestIdleFormatsInvertReading(t *testing.T) {
	dir := t.TempDir()
	freqNode := writeNode(t, dir, "freq", "280000")

	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: writeNode(t, dir, "gpu_idle", "25"), Format: domain.FormatIdle},
		},
		FreqPaths: []string{freqNode},
	})
	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, state.Utilization)

	device = newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: writeNode(t, dir, "gpu_utilization", "60 40 30"), Format: domain.FormatIdleField},
		},
		FreqPaths: []string{freqNode},
	})
	state, err = device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70, state.Utilization, "third field is the idle percentage")
}

func TestBusyIdleDeltaComputation(t *testing.T) {
	dir := t.TempDir()
	node := writeNode(t, dir, "dvfs_utilization", "busy idle protm\n1000 1000 0\n")
	freqNode := writeNode(t, dir, "freq", "350000")
	fallback := writeNode(t, dir, "gpu_loading", "0")

	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: node, Format: domain.FormatBusyIdle},
			{Path: fallback, Format: domain.FormatPlain},
		},
		FreqPaths: []string{freqNode},
	})

	// First read only seeds the counters and reports idle
	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, state.Utilization)

	// 300 busy of 400 total since the seed
	writeNode(t, dir, "dvfs_utilization", "busy idle protm\n1300 1100 0\n")
	state, err = device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, state.Utilization)
}

func TestReadStateReportsTemperature(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: writeNode(t, dir, "gpu_loading", "50"), Format: domain.FormatPlain},
		},
		FreqPaths:       []string{writeNode(t, dir, "freq", "350000")},
		ThermalZonePath: writeNode(t, dir, "temp", "48500"),
	})

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.TempValid)
	assert.Equal(t, int64(48500), state.TempMilliC)
}

func TestApplyWritesFrequencyAndVoltagePair(t *testing.T) {
	dir := t.TempDir()
	freqNode := writeNode(t, dir, "freq", "218000")
	setNode := filepath.Join(dir, "opp_freq")
	voltNode := filepath.Join(dir, "fixed_freq_volt")

	device := newTestDevice(Paths{
		FreqPaths:   []string{freqNode},
		FreqSetPath: setNode,
		VoltSetPath: voltNode,
	})

	point := oppdomain.OperatingPoint{FreqKHz: 350000, VoltUV: 65000, Index: 2}
	require.NoError(t, device.Apply(context.Background(), point))

	written, err := os.ReadFile(setNode)
	require.NoError(t, err)
	assert.Equal(t, "350000", string(written))

	pair, err := os.ReadFile(voltNode)
	require.NoError(t, err)
	assert.Equal(t, "350000 65000", string(pair))
}

func TestApplySkipsWhenFrequencyAlreadyActive(t *testing.T) {
	dir := t.TempDir()
	freqNode := writeNode(t, dir, "freq", "350000")
	setNode := filepath.Join(dir, "opp_freq")

	device := newTestDevice(Paths{
		FreqPaths:   []string{freqNode},
		FreqSetPath: setNode,
	})

	point := oppdomain.OperatingPoint{FreqKHz: 350000, Index: 2}
	require.NoError(t, device.Apply(context.Background(), point))

	_, err := os.Stat(setNode)
	assert.True(t, os.IsNotExist(err), "no write when the target is already active")
}

func TestApplyReportsWriteFailure(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		FreqPaths:   []string{writeNode(t, dir, "freq", "218000")},
		FreqSetPath: filepath.Join(dir, "no_such_dir", "opp_freq"),
	})

	err := device.Apply(context.Background(), oppdomain.OperatingPoint{FreqKHz: 350000})
	assert.True(t, common.IsHardwareWrite(err))
}
