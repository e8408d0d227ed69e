package engine

// Notifications fire synchronously inside the engine's frame callbacks; a
// listener must not call back into transition methods while handling one.

// ModeFunc observes lifecycle transitions.
type ModeFunc func(old, new Mode)

// RateFunc observes playback speed changes.
type RateFunc func(old, new Rate)

// SeekFunc observes seek completion with the reached tick.
type SeekFunc func(tick int64)

type listeners struct {
	mode []ModeFunc
	rate []RateFunc
	seek []SeekFunc
}

// OnModeChanged registers a mode transition listener.
func (e *Engine) OnModeChanged(fn ModeFunc) {
	if fn != nil {
		e.listeners.mode = append(e.listeners.mode, fn)
	}
}

// OnRateChanged registers a playback rate listener.
func (e *Engine) OnRateChanged(fn RateFunc) {
	if fn != nil {
		e.listeners.rate = append(e.listeners.rate, fn)
	}
}

// OnSeekFinished registers a seek completion listener.
func (e *Engine) OnSeekFinished(fn SeekFunc) {
	if fn != nil {
		e.listeners.seek = append(e.listeners.seek, fn)
	}
}

func (l *listeners) notifyMode(old, new Mode) {
	for _, fn := range l.mode {
		fn(old, new)
	}
}

func (l *listeners) notifyRate(old, new Rate) {
	for _, fn := range l.rate {
		fn(old, new)
	}
}

func (l *listeners) notifySeekFinished(tick int64) {
	for _, fn := range l.seek {
		fn(tick)
	}
}
