package domain

import (
	"time"

	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
	samplerdomain "github.com/Tools-cx-app/gpu-governor/internal/features/sampler/domain"
)

// GovernorState is the governor's mutable per-tick state. It is owned
// by the control loop and mutated only by the policy engine and the
// actuator inside a tick; nothing outside the loop touches it.
type GovernorState struct {
	// CurrentIndex is the commanded OPP index
	CurrentIndex int

	// TicksSinceChange counts ticks since the last applied change
	TicksSinceChange int

	// OverUpStreak counts consecutive ticks with average utilization at
	// or above the up threshold
	OverUpStreak int

	// UnderDownStreak counts consecutive ticks with average utilization
	// strictly below the down threshold
	UnderDownStreak int
}

// SafetyLimits is the thermal constraint derived fresh each tick from
// the latest temperature reading; it is never persisted.
type SafetyLimits struct {
	// ThermalIndexCap caps the target index while Active
	ThermalIndexCap int
	Active          bool
}

// Action reports what the actuator did with a target.
type Action int

const (
	// NoAction means the target matched the current index or the dwell
	// floor was not yet satisfied
	NoAction Action = iota

	// ActionTaken means a new operating point was applied
	ActionTaken
)

// Snapshot is the read-only view of the governor published after every
// tick for the status API and metrics exporter. It is replaced wholesale
// through an atomic pointer; readers never see a partial tick.
type Snapshot struct {
	State          GovernorState         `json:"state"`
	TargetIndex    int                   `json:"target_index"`
	Profile        profiledomain.Profile `json:"profile"`
	LastSample     samplerdomain.Sample  `json:"last_sample"`
	AvgUtilization float64               `json:"avg_utilization"`
	CurrentFreqKHz int64                 `json:"current_freq_khz"`
	CurrentVoltUV  int64                 `json:"current_volt_uv"`
	ThermalCapped  bool                  `json:"thermal_capped"`
	SampleOK       bool                  `json:"sample_ok"`
	Tick           uint64                `json:"tick"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
