package service

import (
	"context"
	"time"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	hwdomain "github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
	"github.com/Tools-cx-app/gpu-governor/internal/features/sampler/domain"
)

// Sampler performs the per-tick hardware read and maintains the rolling
// sample window. It runs on the control loop goroutine only.
type Sampler struct {
	reader hwdomain.Reader
	window *domain.Window
}

// NewSampler creates a sampler over the hardware reader with the given
// window capacity.
func NewSampler(reader hwdomain.Reader, windowCapacity int) *Sampler {
	return &Sampler{
		reader: reader,
		window: domain.NewWindow(windowCapacity),
	}
}

// Tick pulls one hardware read and appends the sample to the window.
// On a read failure the window is left untouched and the failure is
// surfaced as a missed sample; hold counters and governor state must not
// move on a tick that produced no data.
func (s *Sampler) Tick(ctx context.Context) (domain.Sample, domain.Snapshot, error) {
	state, err := s.reader.ReadState(ctx)
	if err != nil {
		return domain.Sample{}, s.window.Snapshot(),
			common.SampleMissedError("hardware read failed: %v", err)
	}

	sample := domain.Sample{
		Timestamp:   time.Now(),
		Utilization: state.Utilization,
		FreqKHz:     state.FreqKHz,
		TempMilliC:  state.TempMilliC,
		TempValid:   state.TempValid,
	}
	s.window.Add(sample)

	return sample, s.window.Snapshot(), nil
}

// Window returns a read-only snapshot of the current window.
func (s *Sampler) Window() domain.Snapshot {
	return s.window.Snapshot()
}
