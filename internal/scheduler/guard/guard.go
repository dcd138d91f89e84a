package guard

import (
	"errors"
	"time"
)

var ErrBeforeChargeDay = errors.New("before_charge_day")

// EnsureChargeDay rejects runs before the configured day of the month.
// Later days are allowed so a missed run catches up.
func EnsureChargeDay(now time.Time, chargeDay int) error {
	if chargeDay < 1 {
		chargeDay = 1
	}
	if now.UTC().Day() < chargeDay {
		return ErrBeforeChargeDay
	}
	return nil
}
