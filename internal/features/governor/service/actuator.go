package service

import (
	"context"
	"log/slog"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
	hwdomain "github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
	oppdomain "github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
)

// Actuator applies policy decisions to the hardware, enforcing the dwell
// floor between changes. It mutates CurrentIndex and TicksSinceChange;
// nothing else does.
type Actuator struct {
	writer hwdomain.Writer
	table  *oppdomain.Table
	logger *slog.Logger
}

// NewActuator creates the actuator over the hardware writer and table.
func NewActuator(writer hwdomain.Writer, table *oppdomain.Table, logger *slog.Logger) *Actuator {
	return &Actuator{writer: writer, table: table, logger: logger}
}

// MaybeApply is called exactly once per decided tick. It advances the
// dwell counter, then applies the target only when it differs from the
// current index and the dwell floor is satisfied. A hardware write
// failure leaves state unchanged and is reported upward; the target
// persists in the policy, so the next tick retries naturally.
func (a *Actuator) MaybeApply(
	ctx context.Context,
	target int,
	state *domain.GovernorState,
	config *profiledomain.PolicyConfig,
) (domain.Action, error) {
	state.TicksSinceChange++

	if target < 0 || target >= a.table.Len() {
		return domain.NoAction, common.NewIndexOutOfRangeError(target, a.table.Len())
	}
	if target == state.CurrentIndex {
		return domain.NoAction, nil
	}
	if state.TicksSinceChange < config.MinDwellTicks {
		return domain.NoAction, nil
	}

	point := a.table.At(target)
	if err := a.writer.Apply(ctx, point); err != nil {
		return domain.NoAction, err
	}

	a.logger.Debug("operating point applied",
		"index", target,
		"freq_khz", point.FreqKHz,
		"volt_uv", point.VoltUV,
		"previous_index", state.CurrentIndex,
	)

	state.CurrentIndex = target
	state.TicksSinceChange = 0
	return domain.ActionTaken, nil
}
