// Package driver runs a recorder engine headlessly, standing in for the
// host's frame callbacks. Each iteration delivers one fixed tick and one
// idle frame with matching delta time, optionally paced to wall clock.
package driver

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dresswithpockets/sreplay/errs"
	"github.com/dresswithpockets/sreplay/internal/engine"
	"github.com/dresswithpockets/sreplay/internal/observability"
)

// TickFunc runs before each fixed tick with the loop tick index and the
// session time in seconds. Returning an error stops the loop.
type TickFunc func(tick int64, t float64) error

type options struct {
	ticksPerSecond int
	realtime       bool
	onTick         TickFunc
}

// Option configures the loop.
type Option func(*options)

// WithTicksPerSecond sets the fixed tick rate. Defaults to the engine's
// default physics rate.
func WithTicksPerSecond(tps int) Option {
	return func(o *options) { o.ticksPerSecond = tps }
}

// WithRealtime paces iterations to wall clock instead of running flat out.
func WithRealtime() Option {
	return func(o *options) { o.realtime = true }
}

// WithTickFunc installs a per-tick callback, used to feed scripted input
// and issue lifecycle calls at scripted times.
func WithTickFunc(fn TickFunc) Option {
	return func(o *options) { o.onTick = fn }
}

// Loop drives an engine's PhysicsFrame and Frame callbacks.
type Loop struct {
	eng     *engine.Engine
	opts    options
	limiter *rate.Limiter
	dt      float64
}

// New builds a loop around eng.
func New(eng *engine.Engine, opts ...Option) *Loop {
	o := options{ticksPerSecond: engine.DefaultPhysicsTicksPerSecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ticksPerSecond <= 0 {
		o.ticksPerSecond = engine.DefaultPhysicsTicksPerSecond
	}
	l := &Loop{eng: eng, opts: o, dt: 1.0 / float64(o.ticksPerSecond)}
	if o.realtime {
		l.limiter = rate.NewLimiter(rate.Limit(o.ticksPerSecond), 1)
	}
	return l
}

// Run delivers exactly ticks fixed ticks, stopping early on context
// cancellation or a tick callback error.
func (l *Loop) Run(ctx context.Context, ticks int64) error {
	for i := int64(0); i < ticks; i++ {
		if err := l.step(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// RunUntilOff delivers fixed ticks until the engine reports ModeOff, which
// a replay reaches on its own once it runs past the recording's final tick.
// The bound caps runaway loops when the engine never leaves its mode.
func (l *Loop) RunUntilOff(ctx context.Context, bound int64) error {
	for i := int64(0); i < bound; i++ {
		if err := l.step(ctx, i); err != nil {
			return err
		}
		if l.eng.Mode() == engine.ModeOff {
			return nil
		}
	}
	observability.Log().Error("driver loop hit its tick bound before the engine stopped",
		observability.Field{Key: "bound", Value: bound})
	return errs.New("driver/run", errs.CodeInvalid,
		errs.WithMessage("engine still active at loop bound"))
}

func (l *Loop) step(ctx context.Context, tick int64) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	if l.opts.onTick != nil {
		if err := l.opts.onTick(tick, float64(tick)*l.dt); err != nil {
			return err
		}
	}
	l.eng.PhysicsFrame()
	l.eng.Frame(l.dt)
	return nil
}

// TicksPerSecond reports the loop's fixed rate.
func (l *Loop) TicksPerSecond() int { return l.opts.ticksPerSecond }
