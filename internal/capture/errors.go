package capture

import (
	"fmt"

	"ripperbot/internal/pickup"
	"ripperbot/internal/services"
)

// PickupError reports a failed pickup. It matches services.ErrPickup and the
// probe outcome sentinel (pickup.ErrNotFound or pickup.ErrInconsistent).
type PickupError struct {
	Where  string
	Result pickup.Result
}

func (e *PickupError) Error() string {
	return fmt.Sprintf("pickup from %s: %s after %d steps (z=%g, switch %s)",
		e.Where, e.Result.Outcome, e.Result.Iterations, e.Result.Position.Z, e.Result.LastSwitch)
}

// Unwrap exposes both the fault class and the probe outcome.
func (e *PickupError) Unwrap() []error {
	errs := []error{services.ErrPickup}
	if outcome := e.Result.Outcome.Err(); outcome != nil {
		errs = append(errs, outcome)
	}
	return errs
}
