package common

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrConfig indicates a malformed OPP table or policy file
	ErrConfig = errors.New("invalid configuration")

	// ErrHardwareRead indicates a device control file could not be read or parsed
	ErrHardwareRead = errors.New("hardware read failed")

	// ErrHardwareWrite indicates the device rejected a frequency/voltage write
	ErrHardwareWrite = errors.New("hardware write failed")

	// ErrSampleMissed indicates a tick produced no usable sample
	ErrSampleMissed = errors.New("sample missed")
)

// IsConfig checks if err is or wraps ErrConfig
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsHardwareRead checks if err is or wraps ErrHardwareRead
func IsHardwareRead(err error) bool {
	return errors.Is(err, ErrHardwareRead)
}

// IsHardwareWrite checks if err is or wraps ErrHardwareWrite
func IsHardwareWrite(err error) bool {
	return errors.Is(err, ErrHardwareWrite)
}

// IsSampleMissed checks if err is or wraps ErrSampleMissed
func IsSampleMissed(err error) bool {
	return errors.Is(err, ErrSampleMissed)
}

// ConfigError returns a wrapped configuration error with context
func ConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfig)
}

// HardwareReadError returns a wrapped hardware read error with context
func HardwareReadError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrHardwareRead)
}

// HardwareWriteError returns a wrapped hardware write error with context
func HardwareWriteError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrHardwareWrite)
}

// SampleMissedError returns a wrapped sample missed error with context
func SampleMissedError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrSampleMissed)
}

// ErrSourceUnavailable represents a utilization source that can no longer be read
type ErrSourceUnavailable struct {
	Path string
}

func (e ErrSourceUnavailable) Error() string {
	return fmt.Sprintf("utilization source unavailable: %s", e.Path)
}

// NewSourceUnavailableError creates a new source unavailable error
func NewSourceUnavailableError(path string) error {
	return ErrSourceUnavailable{Path: path}
}

// ErrIndexOutOfRange represents an OPP index outside the loaded table
type ErrIndexOutOfRange struct {
	Index     int
	TableSize int
}

func (e ErrIndexOutOfRange) Error() string {
	return fmt.Sprintf("operating point index %d out of range [0,%d)", e.Index, e.TableSize)
}

// NewIndexOutOfRangeError creates a new index out of range error
func NewIndexOutOfRangeError(index, tableSize int) error {
	return ErrIndexOutOfRange{Index: index, TableSize: tableSize}
}

// IsSourceUnavailableError checks whether err is an ErrSourceUnavailable
func IsSourceUnavailableError(err error) bool {
	var errSourceUnavailable ErrSourceUnavailable
	return errors.As(err, &errSourceUnavailable)
}

// IsIndexOutOfRangeError checks whether err is an ErrIndexOutOfRange
func IsIndexOutOfRangeError(err error) bool {
	var errIndexOutOfRange ErrIndexOutOfRange
	return errors.As(err, &errIndexOutOfRange)
}
