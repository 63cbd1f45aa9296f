// Package reader is the read-only boundary between the real-time
// pattern model and UI/LED consumers (spec §3.4, §4.3). It never
// mutates internal/pattern state; callers get copied views, never
// pointers into the pool or track storage, except the package-global
// p-lock iterator whose backing state is intentionally a single
// process-wide instance matching the original firmware's
// seq_reader_plock_iter_open/next pair.
package reader

import (
	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/louwik14/brickseq/internal/project"
)

// Handle is the stable (bank, pattern, track) identifier used by
// UI/LED code. It only resolves while it matches the project's active
// (bank, pattern); otherwise every view on it reports false/empty.
type Handle struct {
	Bank    uint8
	Pattern uint8
	Track   uint8
}

// MakeHandle builds a handle from its components.
func MakeHandle(bank, pattern, track uint8) Handle {
	return Handle{Bank: bank, Pattern: pattern, Track: track}
}

// ActiveHandle returns the handle for the project's current active
// (bank, pattern, track) selection.
func ActiveHandle(p *project.Project) Handle {
	slot := p.ActiveSlot()
	return Handle{Bank: slot.Bank, Pattern: slot.Pattern, Track: slot.Track}
}

func resolveTrack(p *project.Project, h Handle) *pattern.Track {
	active := p.ActiveSlot()
	if active.Bank != h.Bank || active.Pattern != h.Pattern {
		return nil
	}
	return p.GetTrack(int(h.Track))
}

// Step-view flag bits (spec §4.3).
const (
	StepFlagHasVoice        uint8 = 1 << 0
	StepFlagHasAnyPLock     uint8 = 1 << 1
	StepFlagHasSeqPLock     uint8 = 1 << 2
	StepFlagHasCartPLock    uint8 = 1 << 3
	StepFlagAutomationOnly  uint8 = 1 << 4
	StepFlagMuted           uint8 = 1 << 5
)

// StepView is the derived read-only summary of one step, sourced from
// voice 0 or the first enabled voice.
type StepView struct {
	Note     uint8
	Velocity uint8
	Length   uint16
	Micro    int8
	Flags    uint8
}

func selectPrimaryVoice(step *pattern.Step) pattern.Voice {
	for i := 0; i < pattern.VoicesPerStep; i++ {
		v, _ := step.Voice(i)
		if v.Playable() {
			return v
		}
	}
	v, _ := step.Voice(0)
	return v
}

// GetStep resolves h and returns the view for step index idx. Returns
// ok=false (and a zero view) on an invalid handle or out-of-range step.
func GetStep(p *project.Project, pool *plockpool.Pool, h Handle, idx int) (StepView, bool) {
	track := resolveTrack(p, h)
	if track == nil || idx < 0 || idx >= pattern.StepsPerTrack {
		return StepView{}, false
	}

	step := &track.Steps[idx]
	voice := selectPrimaryVoice(step)

	hasVoice := step.HasPlayableVoice()
	hasSeq := step.HasSeqPLock(pool)
	hasCart := step.HasCartPLock(pool)
	automation := step.IsAutomationOnly()

	var flags uint8
	if hasVoice {
		flags |= StepFlagHasVoice
	}
	if hasSeq || hasCart {
		flags |= StepFlagHasAnyPLock
	}
	if hasSeq {
		flags |= StepFlagHasSeqPLock
	}
	if hasCart {
		flags |= StepFlagHasCartPLock
	}
	if automation {
		flags |= StepFlagAutomationOnly
	}

	return StepView{
		Note:     voice.Note,
		Velocity: voice.Velocity,
		Length:   uint16(voice.Length),
		Micro:    voice.Micro,
		Flags:    flags,
	}, true
}

// StepVoiceView is the per-slot detail view for step_voice_view(slot).
type StepVoiceView struct {
	Note    uint8
	Vel     uint8
	Length  uint8
	Micro   int8
	Enabled bool
}

// GetStepVoice resolves h and returns the view of the explicit voice
// slot (0..3) within step idx.
func GetStepVoice(p *project.Project, h Handle, idx, slot int) (StepVoiceView, bool) {
	track := resolveTrack(p, h)
	if track == nil || idx < 0 || idx >= pattern.StepsPerTrack {
		return StepVoiceView{}, false
	}
	step := &track.Steps[idx]
	v, ok := step.Voice(slot)
	if !ok {
		return StepVoiceView{}, false
	}
	out := StepVoiceView{}
	if v.Playable() {
		out = StepVoiceView{Note: v.Note, Vel: v.Velocity, Length: v.Length, Micro: v.Micro, Enabled: true}
	}
	return out, true
}

// CountStepVoices reports how many voices in step idx are currently
// playable.
func CountStepVoices(p *project.Project, h Handle, idx int) (uint8, bool) {
	track := resolveTrack(p, h)
	if track == nil || idx < 0 || idx >= pattern.StepsPerTrack {
		return 0, false
	}
	step := &track.Steps[idx]
	var count uint8
	for i := 0; i < pattern.VoicesPerStep; i++ {
		v, _ := step.Voice(i)
		if v.Playable() {
			count++
		}
	}
	return count, true
}

// plockIterState is the process-wide, single-instance iterator state
// matching the firmware's s_plock_iter_state / s_plock_iter_state2.
// It is intentionally not reentrant: opening a new iteration
// invalidates any iteration in progress.
type plockIterState struct {
	pool  *plockpool.Pool
	base  int
	count int
	i     int
	open  bool
}

var plockIter plockIterState

// PLockIterOpen resolves h, locates step idx, and primes the
// package-global iterator over its p-lock range. Returns false (and
// leaves the iterator closed) if the handle is invalid, the step is
// out of range, or the step has no p-locks.
func PLockIterOpen(p *project.Project, pool *plockpool.Pool, h Handle, idx int) bool {
	plockIter = plockIterState{}
	track := resolveTrack(p, h)
	if track == nil || idx < 0 || idx >= pattern.StepsPerTrack {
		return false
	}
	step := &track.Steps[idx]
	if step.PLocks.Count == 0 {
		return false
	}
	plockIter = plockIterState{
		pool:  pool,
		base:  int(step.PLocks.Offset),
		count: int(step.PLocks.Count),
		open:  true,
	}
	return true
}

// Decoded internal/cart parameter-id encoding bits (spec §4.3): bit15
// set marks an internal (non-cart) id, bits 8..9 carry the voice
// index, bits 0..7 carry the internal parameter enum value. Cart ids
// pass through verbatim in the low byte with bit15 clear.
const (
	decodedInternalFlag uint16 = 0x8000
	decodedVoiceShift           = 8
)

// internal decoded-parameter identity, distinct from the packed wire
// ids in package pattern.
const (
	decodedParamNote uint16 = iota
	decodedParamVelocity
	decodedParamLength
	decodedParamMicro
	decodedParamGlobalTranspose
	decodedParamGlobalVelocity
	decodedParamGlobalLength
	decodedParamGlobalMicro
)

func decodedParamFromID(id uint8) uint16 {
	switch {
	case id >= pattern.ParamNoteBase && id < pattern.ParamNoteBase+4:
		return decodedParamNote
	case id >= pattern.ParamVelBase && id < pattern.ParamVelBase+4:
		return decodedParamVelocity
	case id >= pattern.ParamLengthBase && id < pattern.ParamLengthBase+4:
		return decodedParamLength
	case id >= pattern.ParamMicroBase && id < pattern.ParamMicroBase+4:
		return decodedParamMicro
	case id == pattern.ParamAllTranspose:
		return decodedParamGlobalTranspose
	case id == pattern.ParamAllVelocity:
		return decodedParamGlobalVelocity
	case id == pattern.ParamAllLength:
		return decodedParamGlobalLength
	case id == pattern.ParamAllMicro:
		return decodedParamGlobalMicro
	default:
		return decodedParamNote
	}
}

func encodeDecodedID(paramID uint8, flags uint8) uint16 {
	if pattern.IsCartParam(paramID) {
		return uint16(paramID)
	}
	voice := uint16(pattern.VoiceFromFlags(flags)) & 0x03
	param := decodedParamFromID(paramID)
	return decodedInternalFlag | (voice << decodedVoiceShift) | param
}

func decodePLockValue(value, flags uint8) int32 {
	if flags&pattern.FlagSigned != 0 {
		return int32(pattern.DecodeS8(value))
	}
	return int32(value)
}

// PLockIterNext advances the package-global iterator, returning the
// decoded (parameter_id_16, signed_value_32) pair and ok=true, or
// ok=false once exhausted or if the iterator was never opened.
func PLockIterNext() (paramID uint16, value int32, ok bool) {
	if !plockIter.open || plockIter.i >= plockIter.count {
		return 0, 0, false
	}
	e := plockIter.pool.Get(plockIter.base, plockIter.i)
	plockIter.i++
	if e == nil {
		return 0, 0, false
	}
	return encodeDecodedID(e.ParamID, e.Flags), decodePLockValue(e.Value, e.Flags), true
}

// RawPLockIterOpen/Next expose the same range as the low-level packed
// (id, value, flags) triples, for callers that want the packed form
// (e.g. the engine runner's cart dispatch and p-lock lookups).
type RawPLockIter struct {
	pool   *plockpool.Pool
	offset int
	count  int
	index  int
}

// RawPLockIterOpen binds it to step's p-lock range. Returns false if
// the step has no p-locks.
func RawPLockIterOpen(it *RawPLockIter, pool *plockpool.Pool, step *pattern.Step) bool {
	*it = RawPLockIter{pool: pool, offset: int(step.PLocks.Offset), count: int(step.PLocks.Count)}
	return it.count > 0
}

// Next yields the next packed triple, or ok=false once exhausted.
func (it *RawPLockIter) Next() (id, value, flags uint8, ok bool) {
	if it.index >= it.count {
		return 0, 0, 0, false
	}
	e := it.pool.Get(it.offset, it.index)
	it.index++
	if e == nil {
		return 0, 0, 0, false
	}
	return e.ParamID, e.Value, e.Flags, true
}
