// Package clocksrc defines the external clock-input boundary: the
// shape of a transport tick as handed to the engine runner and the
// live-capture façade (spec §4.5, §4.6). It carries no implementation;
// concrete sources (MIDI clock, an internal ticker) live in the
// callers that drive Source.
package clocksrc

// StepInfo describes one transport step boundary, mirroring the
// firmware's clock_step_info_t. Durations are expressed in the same
// monotonic time unit as Now; the reference firmware used system
// ticks, this port uses nanoseconds via time.Duration-compatible
// int64 so callers can feed either a real clock or a virtual one in
// tests.
type StepInfo struct {
	Now          int64  // timestamp of this step boundary
	StepDuration int64  // duration of one sequencer step (1/16 in the reference config)
	TickDuration int64  // duration of a single MIDI clock tick (24 PPQN, so step/6 nominal)
	StepIndexAbs uint32 // absolute, monotonically increasing step index since transport start
}

// Source is implemented by whatever drives the transport: a MIDI
// clock listener, an internal free-running ticker, or a test fixture
// that replays recorded steps.
type Source interface {
	// OnTransportPlay is called once when playback starts.
	OnTransportPlay()
	// OnTransportStop is called once when playback stops.
	OnTransportStop()
	// OnClockStep is called on every step boundary while playing.
	OnClockStep(info StepInfo)
}
