package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
	oppdomain "github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
	profileservice "github.com/Tools-cx-app/gpu-governor/internal/features/profile/service"
	samplerdomain "github.com/Tools-cx-app/gpu-governor/internal/features/sampler/domain"
	samplerservice "github.com/Tools-cx-app/gpu-governor/internal/features/sampler/service"
)

// LoopOptions configures the control loop cadence.
type LoopOptions struct {
	// TickInterval is the sampling/decision period
	TickInterval time.Duration

	// ConfigPollTicks is how many ticks pass between policy file polls
	ConfigPollTicks uint64
}

// Loop is the top-level driver: one goroutine ties the sampler, policy
// engine and actuator together on a fixed tick and polls the profile
// store for configuration changes. All governor state lives on this
// goroutine; the only thing it shares outward is the published snapshot.
type Loop struct {
	options  LoopOptions
	sampler  *samplerservice.Sampler
	engine   *Engine
	actuator *Actuator
	store    *profileservice.Store
	table    *oppdomain.Table
	metrics  *MetricsCollector
	levelVar *slog.LevelVar
	logger   *slog.Logger

	state     domain.GovernorState
	tickCount uint64
	snapshot  atomic.Pointer[domain.Snapshot]
}

// NewLoop wires the control loop. The initial index is the active
// configuration's lowest allowed index: the table's lowest safe point.
func NewLoop(
	options LoopOptions,
	sampler *samplerservice.Sampler,
	engine *Engine,
	actuator *Actuator,
	store *profileservice.Store,
	table *oppdomain.Table,
	metrics *MetricsCollector,
	levelVar *slog.LevelVar,
	logger *slog.Logger,
) *Loop {
	if options.ConfigPollTicks == 0 {
		options.ConfigPollTicks = 1
	}

	loop := &Loop{
		options:  options,
		sampler:  sampler,
		engine:   engine,
		actuator: actuator,
		store:    store,
		table:    table,
		metrics:  metrics,
		levelVar: levelVar,
		logger:   logger,
	}

	config := store.Active()
	loop.state = domain.GovernorState{CurrentIndex: config.MinIndex}
	loop.applyLogLevel(config)
	loop.publish(samplerdomain.Sample{}, 0, loop.state.CurrentIndex, domain.SafetyLimits{}, false)

	return loop
}

// Snapshot returns the most recently published tick snapshot.
func (l *Loop) Snapshot() *domain.Snapshot {
	return l.snapshot.Load()
}

// Run drives the tick cadence until the context is canceled. Shutdown is
// cooperative and performs no final hardware write: the GPU stays at its
// last commanded operating point.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop started",
		"tick_interval", l.options.TickInterval,
		"initial_index", l.state.CurrentIndex,
		"table_entries", l.table.Len(),
	)

	ticker := time.NewTicker(l.options.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopped", "ticks", l.tickCount)
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one sample/decide/apply cycle. A missed sample freezes the
// governor for the tick: no counter moves, no actuation, state held.
func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	l.tickCount++

	if l.tickCount%l.options.ConfigPollTicks == 0 {
		if l.store.CheckReload() {
			l.onConfigReload()
		}
	}

	config := l.store.Active()

	sample, window, err := l.sampler.Tick(ctx)
	if err != nil {
		if !common.IsContextCanceled(err) {
			l.logger.Debug("tick skipped", "error", err)
			l.metrics.RecordReadError()
		}
		l.publish(sample, window.Average(config.SampleAvgWindow), l.state.CurrentIndex,
			domain.SafetyLimits{}, false)
		return
	}

	limits := l.safetyLimits(config, sample)
	target := l.engine.Decide(&l.state, window, config, limits)

	action, err := l.actuator.MaybeApply(ctx, target, &l.state, config)
	if err != nil && !common.IsContextCanceled(err) {
		l.logger.Warn("actuation failed, retrying next tick",
			"target_index", target, "error", err)
		l.metrics.RecordWriteError()
	}
	if action == domain.ActionTaken {
		l.metrics.RecordApplied()
	}

	l.publish(sample, window.Average(config.SampleAvgWindow), target, limits, true)
	l.metrics.ObserveTickDuration(time.Since(start).Seconds())
}

// safetyLimits derives the tick's thermal constraint from the sample.
func (l *Loop) safetyLimits(config *profiledomain.PolicyConfig, sample samplerdomain.Sample) domain.SafetyLimits {
	if config.ThermalTripMilliC <= 0 || !sample.TempValid {
		return domain.SafetyLimits{}
	}
	if sample.TempMilliC < config.ThermalTripMilliC {
		return domain.SafetyLimits{}
	}
	return domain.SafetyLimits{ThermalIndexCap: config.ThermalIndexCap, Active: true}
}

// onConfigReload resets the hold counters so the new thresholds start
// from a clean hysteresis, and picks up a changed log level.
func (l *Loop) onConfigReload() {
	config := l.store.Active()
	l.state.OverUpStreak = 0
	l.state.UnderDownStreak = 0
	l.applyLogLevel(config)
	l.metrics.RecordReload()
}

func (l *Loop) applyLogLevel(config *profiledomain.PolicyConfig) {
	if l.levelVar == nil || config.LogLevel == "" {
		return
	}
	l.levelVar.Set(common.ParseLevel(common.LogLevel(config.LogLevel)))
}

// publish replaces the shared snapshot wholesale; API and metrics
// readers see either the previous tick or this one, never a mix.
func (l *Loop) publish(
	sample samplerdomain.Sample,
	avgUtilization float64,
	target int,
	limits domain.SafetyLimits,
	sampleOK bool,
) {
	config := l.store.Active()
	point := l.table.At(l.state.CurrentIndex)

	snapshot := &domain.Snapshot{
		State:          l.state,
		TargetIndex:    target,
		Profile:        config.Profile,
		LastSample:     sample,
		AvgUtilization: avgUtilization,
		CurrentFreqKHz: point.FreqKHz,
		CurrentVoltUV:  point.VoltUV,
		ThermalCapped:  limits.Active,
		SampleOK:       sampleOK,
		Tick:           l.tickCount,
		UpdatedAt:      time.Now(),
	}

	l.snapshot.Store(snapshot)
	l.metrics.ObserveSnapshot(snapshot)
}
