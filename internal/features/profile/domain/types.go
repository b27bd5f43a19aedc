package domain

import (
	"github.com/Tools-cx-app/gpu-governor/internal/common"
)

// Profile names a policy preset. The presets are pure configuration:
// each resolves to a full PolicyConfig the policy engine switches on.
type Profile string

const (
	ProfilePerformance Profile = "performance"
	ProfileBalanced    Profile = "balanced"
	ProfilePowersave   Profile = "powersave"
	ProfileFixed       Profile = "fixed"
)

// Valid reports whether the profile names a known preset.
func (p Profile) Valid() bool {
	switch p {
	case ProfilePerformance, ProfileBalanced, ProfilePowersave, ProfileFixed:
		return true
	}
	return false
}

// PolicyConfig is the active policy profile plus tunables. It is built
// fully before being published and replaced wholesale on reload, never
// mutated in place; readers always see a complete old or new record.
type PolicyConfig struct {
	Profile Profile `mapstructure:"profile" json:"profile"`

	// UpThreshold and DownThreshold bound the hysteresis band in
	// percent; utilization at or above UpThreshold counts as over,
	// strictly below DownThreshold counts as under
	UpThreshold   float64 `mapstructure:"up_threshold" json:"up_threshold"`
	DownThreshold float64 `mapstructure:"down_threshold" json:"down_threshold"`

	// UpHoldTicks and DownHoldTicks are the consecutive qualifying
	// ticks required before a single-step move
	UpHoldTicks   int `mapstructure:"up_hold_ticks" json:"up_hold_ticks"`
	DownHoldTicks int `mapstructure:"down_hold_ticks" json:"down_hold_ticks"`

	// MinIndex and MaxIndex clamp the commanded OPP index
	MinIndex int `mapstructure:"min_index" json:"min_index"`
	MaxIndex int `mapstructure:"max_index" json:"max_index"`

	// FixedIndex pins the target when Profile is fixed
	FixedIndex int `mapstructure:"fixed_index" json:"fixed_index"`

	// MinDwellTicks is the floor between two applied changes,
	// independent of the hold counters
	MinDwellTicks int `mapstructure:"min_dwell_ticks" json:"min_dwell_ticks"`

	// SampleAvgWindow is K, the number of recent samples averaged to
	// damp noise before thresholding
	SampleAvgWindow int `mapstructure:"sample_avg_window" json:"sample_avg_window"`

	// ThermalTripMilliC caps the index at ThermalIndexCap once the
	// thermal zone reports at or above this temperature; zero disables
	ThermalTripMilliC int64 `mapstructure:"thermal_trip_milli_c" json:"thermal_trip_milli_c"`
	ThermalIndexCap   int   `mapstructure:"thermal_index_cap" json:"thermal_index_cap"`

	// LogLevel lets the configuration UI raise verbosity without a restart
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Preset returns the named preset's tunables for a table of the given
// size. Balanced carries the project's packaged strategy: load at or
// above 90 percent steps up.
func Preset(profile Profile, tableSize int) PolicyConfig {
	config := PolicyConfig{
		Profile:         profile,
		MinIndex:        0,
		MaxIndex:        tableSize - 1,
		MinDwellTicks:   2,
		SampleAvgWindow: 3,
		LogLevel:        "info",
	}

	switch profile {
	case ProfilePerformance:
		config.UpThreshold = 60
		config.DownThreshold = 20
		config.UpHoldTicks = 1
		config.DownHoldTicks = 5
	case ProfilePowersave:
		config.UpThreshold = 95
		config.DownThreshold = 40
		config.UpHoldTicks = 3
		config.DownHoldTicks = 1
	case ProfileFixed:
		config.UpThreshold = 90
		config.DownThreshold = 30
		config.UpHoldTicks = 2
		config.DownHoldTicks = 3
	default: // balanced
		config.Profile = ProfileBalanced
		config.UpThreshold = 90
		config.DownThreshold = 30
		config.UpHoldTicks = 2
		config.DownHoldTicks = 3
	}

	return config
}

// SafeDefault is the built-in fallback used when no policy file has ever
// loaded successfully: balanced with conservative holds over the full
// index range.
func SafeDefault(tableSize int) PolicyConfig {
	config := Preset(ProfileBalanced, tableSize)
	config.UpHoldTicks = 3
	config.DownHoldTicks = 3
	return config
}

// Validate checks the config invariants against the loaded table size.
func (c *PolicyConfig) Validate(tableSize int) error {
	if !c.Profile.Valid() {
		return common.ConfigError("unknown profile %q", c.Profile)
	}
	if c.UpThreshold <= 0 || c.UpThreshold >= 100 {
		return common.ConfigError("up_threshold %.1f outside (0,100)", c.UpThreshold)
	}
	if c.DownThreshold <= 0 || c.DownThreshold >= 100 {
		return common.ConfigError("down_threshold %.1f outside (0,100)", c.DownThreshold)
	}
	if c.UpThreshold <= c.DownThreshold {
		return common.ConfigError("up_threshold %.1f must exceed down_threshold %.1f",
			c.UpThreshold, c.DownThreshold)
	}
	if c.UpHoldTicks < 1 || c.DownHoldTicks < 1 {
		return common.ConfigError("hold ticks must be at least 1, got up=%d down=%d",
			c.UpHoldTicks, c.DownHoldTicks)
	}
	if c.MinIndex < 0 || c.MinIndex > c.MaxIndex || c.MaxIndex >= tableSize {
		return common.ConfigError("index bounds [%d,%d] invalid for table of %d entries",
			c.MinIndex, c.MaxIndex, tableSize)
	}
	if c.Profile == ProfileFixed && (c.FixedIndex < 0 || c.FixedIndex >= tableSize) {
		return common.ConfigError("fixed_index %d invalid for table of %d entries",
			c.FixedIndex, tableSize)
	}
	if c.MinDwellTicks < 0 {
		return common.ConfigError("min_dwell_ticks must not be negative, got %d", c.MinDwellTicks)
	}
	if c.SampleAvgWindow < 1 {
		return common.ConfigError("sample_avg_window must be at least 1, got %d", c.SampleAvgWindow)
	}
	if c.ThermalIndexCap < 0 || c.ThermalIndexCap >= tableSize {
		return common.ConfigError("thermal_index_cap %d invalid for table of %d entries",
			c.ThermalIndexCap, tableSize)
	}
	return nil
}
