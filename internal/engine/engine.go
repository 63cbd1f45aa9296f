// Package engine is the real-time runner from spec §4.6: it walks all
// 16 tracks on every clock-step callback, applies cart p-locks before
// voice emission, manages one note-gate record per track, and emits
// note-on/note-off/CC through the midisink/cartsink boundaries while
// logging everything to internal/telemetry. Grounded on the
// firmware's seq_engine_runner app wiring (init/attach_track/
// on_transport_play/on_transport_stop/on_clock_step) and the older
// seq_engine.c reader/scheduler skeleton for the per-tick step-index
// wrap idiom; the note-emission/retrigger/silent-tick algorithm itself
// follows spec §4.6 directly since the kept original_source engine
// predates that behavior.
package engine

import (
	"github.com/louwik14/brickseq/internal/cartsink"
	"github.com/louwik14/brickseq/internal/clocksrc"
	"github.com/louwik14/brickseq/internal/midisink"
	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/louwik14/brickseq/internal/project"
	"github.com/louwik14/brickseq/internal/reader"
	"github.com/louwik14/brickseq/internal/telemetry"
)

// voiceGate is one track's active-note record (spec §4.6 step 4).
type voiceGate struct {
	active  bool
	note    uint8
	offTick uint32
}

// Runner drives MIDI/cart I/O from the project's tracks on every
// clock step. It owns no pattern data itself; project and pool are
// shared with the rest of the system.
type Runner struct {
	project *project.Project
	pool    *plockpool.Pool
	midi    midisink.Sink
	cart    cartsink.Sink
	probe   *telemetry.Probe

	voices  [project.MaxTracks]voiceGate
	running bool
}

// New returns a runner wired to the given project/pool and output
// sinks. probe may be nil, in which case the runner creates its own
// probe with telemetry.DefaultRingCapacity.
func New(p *project.Project, pool *plockpool.Pool, midi midisink.Sink, cart cartsink.Sink, probe *telemetry.Probe) *Runner {
	if probe == nil {
		probe = telemetry.NewProbe(telemetry.DefaultRingCapacity)
	}
	return &Runner{project: p, pool: pool, midi: midi, cart: cart, probe: probe}
}

// OnTransportPlay starts the runner; clock steps are ignored until this is called.
func (r *Runner) OnTransportPlay() { r.running = true }

// OnTransportStop emits note-off then all-notes-off (CC 123, value 0)
// for every active voice-gate record, then clears them (spec §4.6
// "Transport stop").
func (r *Runner) OnTransportStop() {
	for ch := range r.voices {
		g := &r.voices[ch]
		if !g.active {
			continue
		}
		channel := uint8(ch)
		_ = r.midi.NoteOff(channel, g.note)
		r.probe.Record(telemetry.ProbeEvent{Channel: channel, Note: g.note, Type: telemetry.EventNoteOff})
		_ = r.midi.ControlChange(channel, 123, 0)
		r.probe.Record(telemetry.ProbeEvent{Channel: channel, Type: telemetry.EventCC})
		*g = voiceGate{}
	}
	r.running = false
}

// OnClockStep runs one full pass over all 16 tracks for a single
// clock-step callback (spec §4.6).
func (r *Runner) OnClockStep(info clocksrc.StepInfo) {
	if !r.running {
		return
	}

	emitted := false
	for trackIdx := 0; trackIdx < project.MaxTracks; trackIdx++ {
		track := r.project.GetTrack(trackIdx)
		if track == nil {
			continue
		}
		channel := uint8(trackIdx)
		if channel > 15 {
			channel = 15
		}

		stepIdx := int(info.StepIndexAbs) % pattern.StepsPerTrack
		step := &track.Steps[stepIdx]

		if r.applyCartPLocks(trackIdx, step) {
			emitted = true
		}

		gate := &r.voices[channel]
		if gate.active && info.StepIndexAbs >= gate.offTick {
			_ = r.midi.NoteOff(channel, gate.note)
			r.probe.Record(telemetry.ProbeEvent{Tick: info.StepIndexAbs, Channel: channel, Note: gate.note, Type: telemetry.EventNoteOff})
			emitted = true
			*gate = voiceGate{}
		}

		if !step.HasPlayableVoice() {
			continue
		}

		slot, voice := selectPrimaryVoice(step)
		effNote := r.resolveNote(step, slot, voice, track.Config)
		effVel := r.resolveVelocity(step, slot, voice)
		effLen := r.resolveLength(step, slot, voice)

		if gate.active && gate.note == effNote {
			_ = r.midi.NoteOff(channel, gate.note)
			r.probe.Record(telemetry.ProbeEvent{Tick: info.StepIndexAbs, Channel: channel, Note: gate.note, Type: telemetry.EventNoteOff})
			emitted = true
		}

		_ = r.midi.NoteOn(channel, effNote, effVel)
		r.probe.Record(telemetry.ProbeEvent{Tick: info.StepIndexAbs, Channel: channel, Note: effNote, Velocity: effVel, Type: telemetry.EventNoteOn})
		emitted = true

		*gate = voiceGate{active: true, note: effNote, offTick: info.StepIndexAbs + uint32(effLen)}
	}

	coveringTick := false
	for i := range r.voices {
		if r.voices[i].active && info.StepIndexAbs < r.voices[i].offTick {
			coveringTick = true
			break
		}
	}
	r.probe.MarkTick(emitted || coveringTick)
}

func (r *Runner) applyCartPLocks(trackIdx int, step *pattern.Step) bool {
	var it reader.RawPLockIter
	if !reader.RawPLockIterOpen(&it, r.pool, step) {
		return false
	}
	any := false
	for {
		id, value, flags, ok := it.Next()
		if !ok {
			break
		}
		if flags&pattern.FlagCartDomain == 0 {
			continue
		}
		_ = r.cart.SetParam(trackIdx, id, value)
		any = true
	}
	return any
}

func selectPrimaryVoice(step *pattern.Step) (uint8, pattern.Voice) {
	for i := 0; i < pattern.VoicesPerStep; i++ {
		v, _ := step.Voice(i)
		if v.Playable() {
			return uint8(i), v
		}
	}
	v, _ := step.Voice(0)
	return 0, v
}

// findInternalPLock scans step's raw p-lock range for an internal
// (non-cart) entry whose packed id equals paramBase+slot, returning
// its raw value and true if present.
func (r *Runner) findInternalPLock(step *pattern.Step, paramBase, slot uint8) (uint8, bool) {
	var it reader.RawPLockIter
	if !reader.RawPLockIterOpen(&it, r.pool, step) {
		return 0, false
	}
	target := paramBase + slot
	for {
		id, value, flags, ok := it.Next()
		if !ok {
			return 0, false
		}
		if flags&pattern.FlagCartDomain != 0 {
			continue
		}
		if id == target {
			return value, true
		}
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func (r *Runner) resolveNote(step *pattern.Step, slot uint8, voice pattern.Voice, cfg pattern.TrackConfig) uint8 {
	base := int(voice.Note)
	if v, ok := r.findInternalPLock(step, pattern.ParamNoteBase, slot); ok {
		base = int(v)
	}
	transpose := int(cfg.Transpose.Global) + int(cfg.Transpose.PerVoice[slot]) + int(step.Offsets.Transpose)
	return clampByte(base + transpose)
}

func (r *Runner) resolveVelocity(step *pattern.Step, slot uint8, voice pattern.Voice) uint8 {
	base := int(voice.Velocity)
	if v, ok := r.findInternalPLock(step, pattern.ParamVelBase, slot); ok {
		base = int(v)
	}
	return clampByte(base + int(step.Offsets.Velocity))
}

func (r *Runner) resolveLength(step *pattern.Step, slot uint8, voice pattern.Voice) uint8 {
	base := int(voice.Length)
	if v, ok := r.findInternalPLock(step, pattern.ParamLengthBase, slot); ok {
		base = int(v)
	}
	length := base + int(step.Offsets.Length)
	if length < 1 {
		length = 1
	}
	if length > 255 {
		length = 255
	}
	return uint8(length)
}

// Probe exposes the runner's telemetry probe for inspection.
func (r *Runner) Probe() *telemetry.Probe { return r.probe }

// Running reports whether the runner is between OnTransportPlay and OnTransportStop.
func (r *Runner) Running() bool { return r.running }
