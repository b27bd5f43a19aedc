package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
)

func TestProbeSucceedsWithPresentNodes(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: writeNode(t, dir, "gpu_loading", "30"), Format: domain.FormatPlain},
		},
		FreqPaths: []string{writeNode(t, dir, "freq", "280000")},
	})

	assert.NoError(t, device.Probe(context.Background(), 5*time.Second))
}

func TestProbeExhaustsBudgetWhenNodesNeverAppear(t *testing.T) {
	dir := t.TempDir()
	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: filepath.Join(dir, "never"), Format: domain.FormatPlain},
		},
		FreqPaths: []string{filepath.Join(dir, "never_either")},
	})

	err := device.Probe(context.Background(), 100*time.Millisecond)
	assert.True(t, common.IsHardwareRead(err))
}

func TestProbeClearsAvailabilityCache(t *testing.T) {
	dir := t.TempDir()
	late := filepath.Join(dir, "gpu_loading")
	freqNode := writeNode(t, dir, "freq", "280000")

	device := newTestDevice(Paths{
		UtilizationSources: []domain.UtilizationSource{
			{Path: late, Format: domain.FormatPlain},
		},
		FreqPaths: []string{freqNode},
	})

	// A failed read disables the path
	_, err := device.ReadState(context.Background())
	require.Error(t, err)
	require.True(t, device.unavailable[late])

	// The node appears, as it does mid-boot; the probe must see it
	writeNode(t, dir, "gpu_loading", "30")
	require.NoError(t, device.Probe(context.Background(), 5*time.Second))

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, state.Utilization)
}
