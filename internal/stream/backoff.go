package stream

import "time"

// Backoff paces restarts after abnormal exits. The delay grows
// multiplicatively from the floor to the ceiling and resets to the floor on
// any clean, non-stalled exit while looping, since EOF-looping is expected
// and must not be throttled.
type Backoff struct {
	Floor   time.Duration
	Ceiling time.Duration
	Factor  float64

	current             time.Duration
	consecutiveAbnormal uint
}

// NewBackoff applies defaults for unset fields: 1s floor, 60s ceiling,
// doubling.
func NewBackoff(floor, ceiling time.Duration, factor float64) *Backoff {
	if floor <= 0 {
		floor = time.Second
	}
	if ceiling < floor {
		ceiling = 60 * time.Second
	}
	if factor < 1 {
		factor = 2
	}
	return &Backoff{Floor: floor, Ceiling: ceiling, Factor: factor}
}

// Next records one abnormal exit and returns the delay to apply before the
// restart. The first abnormal exit waits the floor; each subsequent one
// grows the delay up to the ceiling.
func (b *Backoff) Next() time.Duration {
	b.consecutiveAbnormal++
	if b.current <= 0 {
		b.current = b.Floor
		return b.current
	}
	grown := time.Duration(float64(b.current) * b.Factor)
	if grown > b.Ceiling {
		grown = b.Ceiling
	}
	b.current = grown
	return b.current
}

// Reset returns the delay to the floor and clears the abnormal-exit streak.
func (b *Backoff) Reset() {
	b.current = 0
	b.consecutiveAbnormal = 0
}

// ConsecutiveAbnormal reports the current streak of abnormal exits.
func (b *Backoff) ConsecutiveAbnormal() uint {
	return b.consecutiveAbnormal
}

// Current returns the most recently applied delay, zero when at the floor.
func (b *Backoff) Current() time.Duration {
	return b.current
}
