package common

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrapping(t *testing.T) {
	err := HardwareReadError("reading %s", "/proc/gpufreq/gpufreq_var_dump")
	assert.True(t, IsHardwareRead(err))
	assert.False(t, IsHardwareWrite(err))
	assert.Contains(t, err.Error(), "/proc/gpufreq/gpufreq_var_dump")

	// Further wrapping preserves the sentinel
	wrapped := fmt.Errorf("tick 42: %w", SampleMissedError("no data"))
	assert.True(t, IsSampleMissed(wrapped))
	assert.False(t, IsConfig(wrapped))
}

func TestTypedErrors(t *testing.T) {
	sourceErr := NewSourceUnavailableError("/sys/module/ged/parameters/gpu_loading")
	assert.True(t, IsSourceUnavailableError(sourceErr))
	assert.False(t, IsIndexOutOfRangeError(sourceErr))
	assert.Contains(t, sourceErr.Error(), "gpu_loading")

	indexErr := NewIndexOutOfRangeError(9, 8)
	assert.True(t, IsIndexOutOfRangeError(indexErr))
	assert.Contains(t, indexErr.Error(), "9")
	assert.Contains(t, indexErr.Error(), "8")

	wrapped := fmt.Errorf("actuation: %w", indexErr)
	assert.True(t, IsIndexOutOfRangeError(wrapped))
}
