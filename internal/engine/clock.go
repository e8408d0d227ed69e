package engine

import "fmt"

// Rate is a playback speed expressed in quarter-speed units. Full speed is 4
// so that quarter and half speeds stay integral and tick advancement never
// accumulates float error.
type Rate int

const (
	RatePaused  Rate = 0
	RateQuarter Rate = 1
	RateHalf    Rate = 2
	RateFull    Rate = 4
	RateDouble  Rate = 8
)

// fullSpeedUnit is the accumulator increment corresponding to one recorded
// tick per fixed tick.
const fullSpeedUnit = 4

// String renders the rate for logs and notifications.
func (r Rate) String() string {
	switch r {
	case RatePaused:
		return "paused"
	case RateQuarter:
		return "quarter"
	case RateHalf:
		return "half"
	case RateFull:
		return "full"
	case RateDouble:
		return "double"
	default:
		return fmt.Sprintf("rate(%d)", int(r))
	}
}

// Valid reports whether the rate is one of the supported playback speeds.
func (r Rate) Valid() bool {
	switch r {
	case RatePaused, RateQuarter, RateHalf, RateFull, RateDouble:
		return true
	default:
		return false
	}
}

// tickClock reconciles the authoritative integer physics tick counter with
// the continuous idle time float. The accumulator advances by the active
// rate each fixed tick; the derived tick is accumulator / fullSpeedUnit so
// fractional speeds advance the tick only every N fixed frames,
// deterministically.
type tickClock struct {
	accumulator int64
	rate        int64

	idleTime       float64
	minIdleTime    float64
	secondsPerTick float64
}

func newTickClock(ticksPerSecond int) *tickClock {
	if ticksPerSecond <= 0 {
		ticksPerSecond = DefaultPhysicsTicksPerSecond
	}
	return &tickClock{
		rate:           int64(RateFull),
		secondsPerTick: 1.0 / float64(ticksPerSecond),
	}
}

// tick returns the current derived physics tick.
func (c *tickClock) tick() int64 {
	return c.accumulator / fullSpeedUnit
}

// start opens the first fixed tick without advancing, so the session's
// first tick is tick 0 of the domain. crossed is 1 so the first idle window
// has the width of one tick, unless playback starts paused.
func (c *tickClock) start() (newTick, crossed int64) {
	c.minIdleTime = c.idleTime
	if c.rate > 0 {
		crossed = 1
	}
	return c.tick(), crossed
}

// advance steps the fixed-tick clock once, returning how many whole physics
// ticks the step crossed. It also pins the idle clamp window's lower bound
// to the idle time at the top of this fixed tick.
func (c *tickClock) advance() (newTick, crossed int64) {
	prev := c.tick()
	c.accumulator += c.rate
	newTick = c.tick()
	c.minIdleTime = c.idleTime
	return newTick, newTick - prev
}

// advanceIdle moves idle time forward by a frame's elapsed delta, clamped to
// the window the last fixed tick opened. crossed is the tick count that
// fixed tick advanced; a paused clock pins idle time at the window floor.
func (c *tickClock) advanceIdle(dt float64, crossed int64) float64 {
	c.idleTime += dt
	maxIdle := c.minIdleTime + float64(crossed)*c.secondsPerTick
	if c.idleTime > maxIdle {
		c.idleTime = maxIdle
	}
	if c.idleTime < c.minIdleTime {
		c.idleTime = c.minIdleTime
	}
	return c.idleTime
}

// seekTo jumps both clocks to an exact tick and its nominal idle time.
func (c *tickClock) seekTo(tick int64, idleTime float64) {
	c.accumulator = tick * fullSpeedUnit
	c.idleTime = idleTime
	c.minIdleTime = idleTime
}
