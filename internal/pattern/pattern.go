// Package pattern is the in-RAM pattern data model: tracks, steps,
// voices, and the encoding rules for packed parameter locks. It is
// grounded on the original firmware's seq_model.{c,h} and carries the
// same flag-recomputation and neutral/automation-only step transitions,
// adapted to address p-locks through internal/plockpool instead of a
// per-step inline array.
package pattern

import "github.com/louwik14/brickseq/internal/plockpool"

// Fixed-at-build-time sizing, matching spec §5's "no dynamic allocation
// on the real-time path" budget.
const (
	StepsPerTrack    = 64
	VoicesPerStep    = 4
	MaxPLocksPerStep = 24
	MaxTracks        = 16

	DefaultVelocityPrimary   = 100
	DefaultVelocitySecondary = 0
	DefaultNote              = 60
)

// VoiceState is the enablement state of a single voice slot.
type VoiceState uint8

const (
	VoiceDisabled VoiceState = iota
	VoiceEnabled
)

// Voice is one of four monophonic note descriptions within a step.
type Voice struct {
	Note     uint8
	Velocity uint8
	Length   uint8 // 1..64 steps
	Micro    int8  // -12..+12
	State    VoiceState
}

// Playable reports whether this voice would produce sound: enabled and
// a non-zero velocity (spec §3.1).
func (v Voice) Playable() bool {
	return v.State == VoiceEnabled && v.Velocity > 0
}

// Domain distinguishes internal sequencer parameters from cart-owned
// (opaque) parameters.
type Domain uint8

const (
	DomainInternal Domain = iota
	DomainCart
)

// Internal parameter-id space, id < 0x40 (spec §4.2 table).
const (
	ParamAllTranspose uint8 = 0x00
	ParamAllVelocity  uint8 = 0x01
	ParamAllLength    uint8 = 0x02
	ParamAllMicro     uint8 = 0x03

	ParamNoteBase   uint8 = 0x08
	ParamVelBase    uint8 = 0x0C
	ParamLengthBase uint8 = 0x10
	ParamMicroBase  uint8 = 0x14

	CartParamBase uint8 = 0x40
)

// Flags layout: bit0 = domain is cart, bit1 = value is signed,
// bits2..3 = voice index.
const (
	FlagCartDomain uint8 = 1 << 0
	FlagSigned     uint8 = 1 << 1
	voiceShift            = 2
	voiceMask      uint8 = 0x03
)

// IsCartParam reports whether a packed parameter id addresses the cart
// domain (id >= 0x40).
func IsCartParam(id uint8) bool { return id >= CartParamBase }

// PackVoiceFlags returns the flags byte for a per-voice internal p-lock.
func PackVoiceFlags(voice int, signed bool) uint8 {
	f := (uint8(voice) & voiceMask) << voiceShift
	if signed {
		f |= FlagSigned
	}
	return f
}

// VoiceFromFlags extracts the voice index encoded in a flags byte.
func VoiceFromFlags(flags uint8) int {
	return int((flags >> voiceShift) & voiceMask)
}

// EncodeS8 packs a signed s8 offset into an unsigned byte (+128 bias).
func EncodeS8(v int8) uint8 { return uint8(int16(v) + 128) }

// DecodeS8 reverses EncodeS8.
func DecodeS8(u uint8) int8 { return int8(int16(u) - 128) }

// PLockRef is a step's reference into the shared p-lock pool.
type PLockRef struct {
	Offset uint16
	Count  uint8
}

// StepOffsets are the per-step aggregate signed offsets applied on top
// of whatever base/p-lock value wins for a parameter (spec §3.1, §9).
type StepOffsets struct {
	Transpose int8  // -12..+12
	Velocity  int16 // -127..+127
	Length    int8  // -32..+32
	Micro     int8  // -12..+12
}

// Step is the fixed-shape container for one grid position: up to four
// voices, a p-lock pool reference, aggregate offsets, and two cached
// bits recomputed after every mutation.
type Step struct {
	Voices   [VoicesPerStep]Voice
	PLocks   PLockRef
	Offsets  StepOffsets
	Active   bool // cached: any playable voice
	AutoOnly bool // cached: no playable voice, has cart p-lock, no internal p-lock
}

// Init resets a step to the flash-resident default template: all four
// voices disabled, note 60, offsets zeroed, no p-locks.
func (s *Step) Init() {
	*s = Step{}
	for i := range s.Voices {
		s.Voices[i] = Voice{Note: DefaultNote, Velocity: DefaultVelocitySecondary, Length: 16, State: VoiceDisabled}
	}
	s.RecomputeFlags(nil)
}

// MakeNeutral converts the step into an Elektron-style "quick step":
// voice 0 is enabled and playable at note 60, the rest stay muted.
func (s *Step) MakeNeutral() {
	s.Init()
	for i := range s.Voices {
		v := &s.Voices[i]
		v.Note = DefaultNote
		v.Length = 1
		v.Micro = 0
		if i == 0 {
			v.Velocity = DefaultVelocityPrimary
			v.State = VoiceEnabled
		} else {
			v.Velocity = DefaultVelocitySecondary
			v.State = VoiceDisabled
		}
	}
	s.PLocks = PLockRef{}
	s.RecomputeFlags(nil)
}

// InitDefault is MakeNeutral with an explicit note for voice 0 (and the
// muted voices, matching the original template).
func (s *Step) InitDefault(note uint8, pool *plockpool.Pool) {
	s.MakeNeutral()
	for i := range s.Voices {
		s.Voices[i].Note = note
		if i == 0 {
			s.Voices[i].State = VoiceEnabled
		}
	}
	s.PLocks = PLockRef{}
	s.RecomputeFlags(pool)
}

// MakeAutomationOnly mutes every voice while leaving the step's p-lock
// reference untouched, so a subsequent SetPLocksPooled carrying a cart
// p-lock makes it automation-only once flags are recomputed.
func (s *Step) MakeAutomationOnly(pool *plockpool.Pool) {
	for i := range s.Voices {
		s.Voices[i].State = VoiceDisabled
		s.Voices[i].Velocity = 0
	}
	s.RecomputeFlags(pool)
}

// SetVoice replaces the voice at index (0..3) and recomputes flags.
func (s *Step) SetVoice(index int, v Voice, pool *plockpool.Pool) bool {
	if index < 0 || index >= VoicesPerStep {
		return false
	}
	s.Voices[index] = v
	s.RecomputeFlags(pool)
	return true
}

// Voice returns a copy of the voice at index, and whether index was valid.
func (s *Step) Voice(index int) (Voice, bool) {
	if index < 0 || index >= VoicesPerStep {
		return Voice{}, false
	}
	return s.Voices[index], true
}

// SetPLocksPooled allocates n pool entries, writes them, and updates the
// step's (offset, count) atomically on success. On pool exhaustion the
// step's p-lock reference is left untouched (spec §4.1/§4.2).
func (s *Step) SetPLocksPooled(pool *plockpool.Pool, ids, values, flags []uint8) bool {
	n := len(ids)
	if n > MaxPLocksPerStep || n != len(values) || n != len(flags) {
		return false
	}
	if pool == nil {
		if n == 0 {
			s.PLocks = PLockRef{}
			s.RecomputeFlags(nil)
			return true
		}
		return false
	}
	offset, ok := pool.Alloc(n)
	if !ok {
		return false
	}
	for i := 0; i < n; i++ {
		e := pool.Get(offset, i)
		e.ParamID = ids[i]
		e.Value = values[i]
		e.Flags = flags[i]
	}
	s.PLocks = PLockRef{Offset: uint16(offset), Count: uint8(n)}
	s.RecomputeFlags(pool)
	return true
}

// ClearPLocks drops the step's p-lock reference without reclaiming pool
// space (bump allocator semantics).
func (s *Step) ClearPLocks(pool *plockpool.Pool) {
	s.PLocks = PLockRef{}
	s.RecomputeFlags(pool)
}

// HasPlayableVoice reports whether any voice is playable.
func (s *Step) HasPlayableVoice() bool {
	for _, v := range s.Voices {
		if v.Playable() {
			return true
		}
	}
	return false
}

// HasAnyPLock reports whether the step carries at least one p-lock.
func (s *Step) HasAnyPLock() bool { return s.PLocks.Count > 0 }

// HasSeqPLock reports whether the step carries an internal-domain p-lock.
func (s *Step) HasSeqPLock(pool *plockpool.Pool) bool {
	return s.hasDomainPLock(pool, DomainInternal)
}

// HasCartPLock reports whether the step carries a cart-domain p-lock.
func (s *Step) HasCartPLock(pool *plockpool.Pool) bool {
	return s.hasDomainPLock(pool, DomainCart)
}

func (s *Step) hasDomainPLock(pool *plockpool.Pool, domain Domain) bool {
	if pool == nil {
		return false
	}
	for i := 0; i < int(s.PLocks.Count); i++ {
		e := pool.Get(int(s.PLocks.Offset), i)
		if e == nil {
			continue
		}
		isCart := e.Flags&FlagCartDomain != 0
		if (domain == DomainCart) == isCart {
			return true
		}
	}
	return false
}

// IsAutomationOnly returns the cached automation flag.
func (s *Step) IsAutomationOnly() bool { return s.AutoOnly }

// RecomputeFlags recomputes the cached Active/AutoOnly bits from voice
// state and the current p-lock set. Must be called after every mutation
// that could change either input (spec §4.2).
func (s *Step) RecomputeFlags(pool *plockpool.Pool) {
	active := s.HasPlayableVoice()
	hasSeq := s.HasSeqPLock(pool)
	hasCart := s.HasCartPLock(pool)
	s.Active = active
	s.AutoOnly = !active && hasCart && !hasSeq
}

// RecomputeOffsets resyncs the cached StepOffsets from any ParamAll*
// p-locks currently installed in the pool, zeroing offsets whose
// p-lock is absent. Codec decode calls this after installing p-locks
// read off the wire, since the wire format persists offsets only as
// ordinary p-lock entries, not as a separate field (spec §4.8).
func (s *Step) RecomputeOffsets(pool *plockpool.Pool) {
	s.Offsets = StepOffsets{}
	if pool == nil {
		return
	}
	for i := 0; i < int(s.PLocks.Count); i++ {
		e := pool.Get(int(s.PLocks.Offset), i)
		if e == nil || e.Flags&FlagCartDomain != 0 {
			continue
		}
		switch e.ParamID {
		case ParamAllTranspose:
			s.Offsets.Transpose = DecodeS8(e.Value)
		case ParamAllVelocity:
			s.Offsets.Velocity = int16(DecodeS8(e.Value))
		case ParamAllLength:
			s.Offsets.Length = DecodeS8(e.Value)
		case ParamAllMicro:
			s.Offsets.Micro = DecodeS8(e.Value)
		}
	}
}

// Gen is a monotonic, non-wrapping dirty-tracking counter.
type Gen struct{ value uint64 }

func (g *Gen) Value() uint64 { return g.value }
func (g *Gen) Bump()         { g.value++ }
func (g *Gen) Reset()        { g.value = 0 }

// QuantizeGrid is the grid resolution used by live capture.
type QuantizeGrid uint8

const (
	Grid1_4 QuantizeGrid = iota
	Grid1_8
	Grid1_16
	Grid1_32
	Grid1_64
)

// GridRatio returns the (numerator, denominator) multiplier applied to
// one MIDI tick duration to get the grid duration (spec §4.5).
func (g QuantizeGrid) GridRatio() (num, den int) {
	switch g {
	case Grid1_4:
		return 24, 1
	case Grid1_8:
		return 12, 1
	case Grid1_16:
		return 6, 1
	case Grid1_32:
		return 3, 1
	case Grid1_64:
		return 3, 2
	default:
		return 6, 1
	}
}

// QuantizeConfig controls live-capture quantization.
type QuantizeConfig struct {
	Enabled  bool
	Grid     QuantizeGrid
	Strength int // 0..100
}

// TransposeConfig is the track-wide transpose applied during playback.
type TransposeConfig struct {
	Global   int8
	PerVoice [VoicesPerStep]int8
}

// ScaleMode names a musical scale for a track's ScaleConfig.
type ScaleMode uint8

const (
	ScaleChromatic ScaleMode = iota
	ScaleMajor
	ScaleMinor
	ScaleDorian
	ScaleMixolydian
)

// ScaleConfig stores a track's scale setting. It is configuration only:
// the engine runner does not read it, and emitted notes are not clamped
// to the scale.
type ScaleConfig struct {
	Enabled bool
	Root    uint8 // 0..11
	Mode    ScaleMode
}

// TrackConfig bundles a track's playback-shaping configuration.
type TrackConfig struct {
	Quantize  QuantizeConfig
	Transpose TransposeConfig
	Scale     ScaleConfig
}

// DefaultTrackConfig mirrors k_seq_model_track_config_default.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{
		Quantize: QuantizeConfig{Enabled: false, Grid: Grid1_16, Strength: 100},
	}
}

// Track is a fixed-length sequence of steps played on one channel.
type Track struct {
	Steps      [StepsPerTrack]Step
	Config     TrackConfig
	generation Gen
}

// Init resets a track to defaults: every step reset, config reset,
// generation reset to zero.
func (t *Track) Init() {
	for i := range t.Steps {
		t.Steps[i].Init()
	}
	t.Config = DefaultTrackConfig()
	t.generation.Reset()
}

// NewTrack returns a freshly initialised track.
func NewTrack() *Track {
	t := &Track{}
	t.Init()
	return t
}

// Generation returns the track's current dirty-tracking counter.
func (t *Track) Generation() uint64 { return t.generation.Value() }

// BumpGen increments the generation counter. Must be called exactly once
// per observable mutation (spec invariant 6).
func (t *Track) BumpGen() { t.generation.Bump() }
