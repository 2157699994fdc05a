package appointment

import (
	"errors"
	"time"
)

const minLeadTime = time.Hour

var (
	ErrInvalidFormat        = errors.New("scheduled time is not a valid timestamp")
	ErrInThePast            = errors.New("scheduled time is in the past")
	ErrInsufficientLeadTime = errors.New("scheduled time must be at least one hour away")
	ErrInvalidGranularity   = errors.New("scheduled time must fall on a quarter hour")
)

// CheckSlot validates a proposed appointment time against the booking rules.
// Rules short-circuit in order: valid timestamp, not in the past, at least one
// hour of lead time, aligned to a 15 minute boundary. Pure given now.
func CheckSlot(proposed, now time.Time) error {
	if proposed.IsZero() {
		return ErrInvalidFormat
	}
	if proposed.Before(now) {
		return ErrInThePast
	}
	if proposed.Before(now.Add(minLeadTime)) {
		return ErrInsufficientLeadTime
	}
	switch proposed.Minute() {
	case 0, 15, 30, 45:
	default:
		return ErrInvalidGranularity
	}
	return nil
}
