// Package hold is the hold/preview editor from spec §4.7: while the
// UI holds a mask of steps, their content is staged into per-slot
// copies; parameter writes apply to every staged slot at once; on
// end-of-preview (or when a step leaves the mask) the mutated slots
// are committed back into the live track and its generation is
// bumped. Grounded on the firmware's seq_led_bridge.c hold-slot
// machinery (`g_hold_slots`, `_hold_resolve_slot`, `_hold_commit_slot`,
// `_hold_sync_mask`), generalized from that file's page-relative
// local/absolute step indexing to operate on track-absolute step
// indices directly, since spec §4.7 does not require UI paging.
package hold

import (
	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
)

// ParamKind identifies a hold-editable parameter.
type ParamKind uint8

const (
	ParamNote ParamKind = iota
	ParamVelocity
	ParamLength
	ParamMicro
	ParamOffsetTranspose
	ParamOffsetVelocity
	ParamOffsetLength
	ParamOffsetMicro
)

type plkCap struct {
	id    uint8
	value uint8
	flags uint8
}

type plkBuffer struct {
	entries [pattern.MaxPLocksPerStep]plkCap
	count   int
}

func (b *plkBuffer) upsert(id, value, flags uint8) {
	newIsCart := flags&pattern.FlagCartDomain != 0
	for i := 0; i < b.count; i++ {
		slot := &b.entries[i]
		slotIsCart := slot.flags&pattern.FlagCartDomain != 0
		if slotIsCart == newIsCart && slot.id == id {
			slot.value = value
			slot.flags = flags
			return
		}
	}
	if b.count >= pattern.MaxPLocksPerStep {
		return
	}
	b.entries[b.count] = plkCap{id: id, value: value, flags: flags}
	b.count++
}

func (b *plkBuffer) find(id uint8, cart bool) (uint8, bool) {
	for i := 0; i < b.count; i++ {
		e := b.entries[i]
		if (e.flags&pattern.FlagCartDomain != 0) == cart && e.id == id {
			return e.value, true
		}
	}
	return 0, false
}

type slot struct {
	active    bool
	stepIndex int
	staged    pattern.Step
	buffer    plkBuffer
	mutated   bool
}

// Editor is the hold/preview staging layer bound to one track.
type Editor struct {
	track *pattern.Track
	pool  *plockpool.Pool
	slots map[int]*slot
	mask  uint64
}

// New returns an editor bound to track, reading/writing p-locks
// through pool.
func New(track *pattern.Track, pool *plockpool.Pool) *Editor {
	return &Editor{track: track, pool: pool, slots: make(map[int]*slot)}
}

func (e *Editor) collectBuffer(step *pattern.Step) plkBuffer {
	var buf plkBuffer
	count := int(step.PLocks.Count)
	for i := 0; i < count && buf.count < pattern.MaxPLocksPerStep; i++ {
		entry := e.pool.Get(int(step.PLocks.Offset), i)
		if entry == nil {
			break
		}
		buf.entries[buf.count] = plkCap{id: entry.ParamID, value: entry.Value, flags: entry.Flags}
		buf.count++
	}
	return buf
}

func (e *Editor) stage(idx int) *slot {
	if s, ok := e.slots[idx]; ok {
		return s
	}
	step := e.track.Steps[idx]
	s := &slot{active: true, stepIndex: idx, staged: step, buffer: e.collectBuffer(&step)}
	e.slots[idx] = s
	return s
}

// commitSlot writes a mutated slot's staged content back into the
// track and drops it from the held set. Returns whether anything
// changed.
func (e *Editor) commitSlot(idx int) bool {
	s, ok := e.slots[idx]
	if !ok {
		return false
	}
	delete(e.slots, idx)
	if !s.active || !s.mutated {
		return false
	}
	if idx < 0 || idx >= pattern.StepsPerTrack {
		return false
	}

	n := s.buffer.count
	ids := make([]uint8, n)
	vals := make([]uint8, n)
	flags := make([]uint8, n)
	for i := 0; i < n; i++ {
		ids[i] = s.buffer.entries[i].id
		vals[i] = s.buffer.entries[i].value
		flags[i] = s.buffer.entries[i].flags
	}

	step := &e.track.Steps[idx]
	*step = s.staged
	step.SetPLocksPooled(e.pool, ids, vals, flags)
	return true
}

// BeginPreview stages every step whose bit is set in mask, replacing
// any previously held mask.
func (e *Editor) BeginPreview(mask uint64) {
	e.SetMask(mask)
}

// SetMask updates the held mask: newly-held steps are staged, steps
// that leave the mask are committed if mutated. Bumps the track's
// generation once if anything was committed.
func (e *Editor) SetMask(mask uint64) {
	any := false
	for idx := 0; idx < pattern.StepsPerTrack; idx++ {
		bit := uint64(1) << uint(idx)
		want := mask&bit != 0
		had := e.mask&bit != 0
		switch {
		case want && !had:
			e.stage(idx)
		case !want && had:
			if e.commitSlot(idx) {
				any = true
			}
		}
	}
	e.mask = mask
	if any {
		e.track.BumpGen()
	}
}

// EndPreview commits every remaining staged slot and clears the held
// mask. Bumps the track's generation once if anything was committed.
func (e *Editor) EndPreview() {
	any := false
	for idx := range e.slots {
		if e.commitSlot(idx) {
			any = true
		}
	}
	e.slots = make(map[int]*slot)
	e.mask = 0
	if any {
		e.track.BumpGen()
	}
}

// HeldCount reports how many steps are currently staged.
func (e *Editor) HeldCount() int { return len(e.slots) }

func internalParamID(kind ParamKind, voice uint8) (id uint8, signed bool, ok bool) {
	switch kind {
	case ParamNote:
		return pattern.ParamNoteBase + (voice & 0x03), false, true
	case ParamVelocity:
		return pattern.ParamVelBase + (voice & 0x03), false, true
	case ParamLength:
		return pattern.ParamLengthBase + (voice & 0x03), false, true
	case ParamMicro:
		return pattern.ParamMicroBase + (voice & 0x03), true, true
	default:
		return 0, false, false
	}
}

func offsetParamID(kind ParamKind) (id uint8, ok bool) {
	switch kind {
	case ParamOffsetTranspose:
		return pattern.ParamAllTranspose, true
	case ParamOffsetVelocity:
		return pattern.ParamAllVelocity, true
	case ParamOffsetLength:
		return pattern.ParamAllLength, true
	case ParamOffsetMicro:
		return pattern.ParamAllMicro, true
	default:
		return 0, false
	}
}

// WriteVoiceParam applies value to voiceSlot's kind (Note/Velocity/
// Length/Micro) across every staged step: the voice field is updated
// and an internal p-lock is upserted in the staged buffer.
func (e *Editor) WriteVoiceParam(kind ParamKind, voiceSlot uint8, value int32) {
	id, signed, ok := internalParamID(kind, voiceSlot)
	if !ok {
		return
	}
	for _, s := range e.slots {
		v, _ := s.staged.Voice(int(voiceSlot))
		switch kind {
		case ParamNote:
			v.Note = clampU8(value, 0, 127)
		case ParamVelocity:
			v.Velocity = clampU8(value, 0, 127)
			if v.Velocity > 0 {
				v.State = pattern.VoiceEnabled
			} else {
				v.State = pattern.VoiceDisabled
			}
		case ParamLength:
			v.Length = clampU8(value, 0, 255)
		case ParamMicro:
			v.Micro = int8(clampI32(value, -12, 12))
		}
		s.staged.SetVoice(int(voiceSlot), v, e.pool)

		var encoded uint8
		if signed {
			encoded = pattern.EncodeS8(int8(clampI32(value, -128, 127)))
		} else {
			encoded = clampU8(value, 0, 255)
		}
		flags := pattern.PackVoiceFlags(int(voiceSlot), signed)
		s.buffer.upsert(id, encoded, flags)
		s.mutated = true
	}
}

// WriteOffsetParam applies value to one of the step's aggregate
// signed offsets (spec §3.1 StepOffsets) across every staged step.
func (e *Editor) WriteOffsetParam(kind ParamKind, value int32) {
	id, ok := offsetParamID(kind)
	if !ok {
		return
	}
	for _, s := range e.slots {
		switch kind {
		case ParamOffsetTranspose:
			s.staged.Offsets.Transpose = int8(clampI32(value, -12, 12))
		case ParamOffsetVelocity:
			s.staged.Offsets.Velocity = int16(clampI32(value, -127, 127))
		case ParamOffsetLength:
			s.staged.Offsets.Length = int8(clampI32(value, -32, 32))
		case ParamOffsetMicro:
			s.staged.Offsets.Micro = int8(clampI32(value, -12, 12))
		}
		encoded := pattern.EncodeS8(int8(clampI32(value, -128, 127)))
		s.buffer.upsert(id, encoded, pattern.PackVoiceFlags(0, true))
		s.mutated = true
	}
}

// WriteCartParam upserts a cart-domain p-lock with the given packed
// id/value across every staged step.
func (e *Editor) WriteCartParam(paramID, value uint8) {
	for _, s := range e.slots {
		s.buffer.upsert(paramID, value, pattern.FlagCartDomain)
		s.mutated = true
	}
}

// View is the aggregate hold view for one parameter across every
// staged step (spec §4.7 point 4).
type View struct {
	Available bool
	Mixed     bool
	Plocked   bool
	Value     int32
}

// ViewVoiceParam reports the aggregate view for an internal per-voice
// parameter across all staged steps.
func (e *Editor) ViewVoiceParam(kind ParamKind, voiceSlot uint8) View {
	id, signed, ok := internalParamID(kind, voiceSlot)
	if !ok || len(e.slots) == 0 {
		return View{}
	}

	first := true
	out := View{Available: true, Plocked: true}
	for _, s := range e.slots {
		v, _ := s.staged.Voice(int(voiceSlot))
		var value int32
		plocked := false
		if raw, found := s.buffer.find(id, false); found {
			plocked = true
			if signed {
				value = int32(pattern.DecodeS8(raw))
			} else {
				value = int32(raw)
			}
		} else {
			switch kind {
			case ParamNote:
				value = int32(v.Note)
			case ParamVelocity:
				value = int32(v.Velocity)
			case ParamLength:
				value = int32(v.Length)
			case ParamMicro:
				value = int32(v.Micro)
			}
		}
		if !plocked {
			out.Plocked = false
		}
		if first {
			out.Value = value
			first = false
		} else if out.Value != value {
			out.Mixed = true
		}
	}
	return out
}

func clampI32(v int32, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampU8(v int32, min, max int32) uint8 {
	return uint8(clampI32(v, min, max))
}
