package service

import (
	"log/slog"

	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
	samplerdomain "github.com/Tools-cx-app/gpu-governor/internal/features/sampler/domain"
)

// Engine maps observed load history to a target OPP index with a
// hysteresis decision: a step is taken only after the averaged
// utilization holds beyond a threshold for a configured number of
// consecutive ticks, and moves are single-step.
type Engine struct {
	tableSize int
	logger    *slog.Logger
}

// NewEngine creates the policy engine for a table of the given size.
func NewEngine(tableSize int, logger *slog.Logger) *Engine {
	return &Engine{tableSize: tableSize, logger: logger}
}

// Decide computes the target index for this tick, updating the hold
// counters in state. It never mutates CurrentIndex or the dwell counter;
// those belong to the actuator.
//
// Threshold ties: at or above the up threshold counts as over (closed
// interval), strictly below the down threshold counts as under (open
// interval). The asymmetry is deliberate so the two bands can never
// overlap into a dead zone.
func (e *Engine) Decide(
	state *domain.GovernorState,
	window samplerdomain.Snapshot,
	config *profiledomain.PolicyConfig,
	limits domain.SafetyLimits,
) int {
	if config.Profile == profiledomain.ProfileFixed {
		// Fixed pins the target outright; hold counters stay dormant.
		state.OverUpStreak = 0
		state.UnderDownStreak = 0
		return e.clamp(config.FixedIndex, config, limits)
	}

	avg := window.Average(config.SampleAvgWindow)

	if avg >= config.UpThreshold {
		state.OverUpStreak++
	} else {
		state.OverUpStreak = 0
	}
	if avg < config.DownThreshold {
		state.UnderDownStreak++
	} else {
		state.UnderDownStreak = 0
	}

	target := state.CurrentIndex

	switch {
	case state.OverUpStreak >= config.UpHoldTicks:
		// At the top of the table the move is a no-op, but the streak
		// resets either way so the next step needs a fresh hold.
		target = state.CurrentIndex + 1
		state.OverUpStreak = 0
	case state.UnderDownStreak >= config.DownHoldTicks:
		target = state.CurrentIndex - 1
		state.UnderDownStreak = 0
	}

	return e.clampStepwise(target, state.CurrentIndex, config, limits)
}

// clamp confines an index to the config bounds, the thermal cap, and the
// table itself.
func (e *Engine) clamp(index int, config *profiledomain.PolicyConfig, limits domain.SafetyLimits) int {
	if index < config.MinIndex {
		index = config.MinIndex
	}
	if index > config.MaxIndex {
		index = config.MaxIndex
	}
	if limits.Active && index > limits.ThermalIndexCap {
		index = limits.ThermalIndexCap
	}
	if index < 0 {
		index = 0
	}
	if index >= e.tableSize {
		index = e.tableSize - 1
	}
	return index
}

// clampStepwise confines the target like clamp, but when the clamp would
// pull the index more than one step away from current (a tightened bound
// after a config reload, or a fresh thermal cap) it moves a single step
// toward the bound instead, preserving the one-step-per-tick rule.
func (e *Engine) clampStepwise(target, current int, config *profiledomain.PolicyConfig, limits domain.SafetyLimits) int {
	clamped := e.clamp(target, config, limits)

	switch {
	case clamped > current+1:
		return current + 1
	case clamped < current-1:
		return current - 1
	default:
		return clamped
	}
}
