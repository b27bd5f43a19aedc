package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/pkg/sysfs"
)

// Probe verifies that at least one utilization source and one frequency
// node can be read, retrying with exponential backoff. GPU control files
// can appear seconds after the service starts during boot, so a missing
// node is retried rather than failed immediately; exhausting the budget
// means the device genuinely cannot be governed and startup aborts.
func (d *Device) Probe(ctx context.Context, budget time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = budget

	operation := func() error {
		if err := common.CheckContext(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return d.probeOnce(ctx)
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return common.HardwareReadError("hardware probe failed: %v", err)
	}
	return nil
}

func (d *Device) probeOnce(ctx context.Context) error {
	// Nodes disabled by an earlier attempt may have appeared since.
	d.unavailable = make(map[string]bool)

	loadReadable := false
	for _, source := range d.paths.UtilizationSources {
		readable := sysfs.Exists(source.Path)
		d.logger.Info("utilization source probed",
			"path", source.Path, "format", string(source.Format), "readable", readable)
		if readable {
			loadReadable = true
		}
	}

	freqReadable := false
	for _, path := range d.paths.FreqPaths {
		readable := sysfs.Exists(path)
		d.logger.Info("frequency path probed", "path", path, "readable", readable)
		if readable {
			freqReadable = true
		}
	}

	if !loadReadable {
		return common.HardwareReadError("no utilization source present")
	}
	if !freqReadable {
		return common.HardwareReadError("no frequency path present")
	}

	// A present node can still fail to parse; one full read settles it.
	if _, err := d.ReadState(ctx); err != nil {
		return err
	}
	return nil
}
