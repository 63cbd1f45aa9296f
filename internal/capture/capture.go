// Package capture is the live-capture façade from spec §4.5: it turns
// a stream of note_on/note_off UI inputs into quantized step mutations
// on the currently bound track. Grounded on the original firmware's
// seq_live_capture.{c,h}, with the per-voice-slot state machine, the
// upsert-or-replace p-lock staging buffer, and the sticky error flag
// carried over unchanged in behavior.
package capture

import (
	"log"

	"github.com/louwik14/brickseq/internal/clocksrc"
	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
)

const microMin, microMax = -12, 12

// EventType distinguishes a note-on from a note-off capture input.
type EventType uint8

const (
	EventNoteOn EventType = iota
	EventNoteOff
)

// Input is one UI-facing event translated into the capture façade.
type Input struct {
	Type       EventType
	Note       uint8
	Velocity   uint8
	VoiceIndex uint8
	Timestamp  int64
}

// Plan is the planned mutation returned by PlanEvent and later handed
// to CommitPlan. Keeping planning and commit separate lets callers
// inspect or discard a plan (e.g. while not recording) without
// touching the track.
type Plan struct {
	Type          EventType
	StepIndex     int
	StepDelta     int32
	VoiceIndex    uint8
	Note          uint8
	Velocity      uint8
	MicroOffset   int8
	MicroAdjust   int8
	Quantized     bool
	InputTime     int64
	ScheduledTime int64
}

type voiceTracker struct {
	active       bool
	stepIndex    int
	startTime    int64
	startTimeRaw int64
	stepDuration int64
	voiceSlot    uint8
	note         uint8
}

// Config is supplied to Init.
type Config struct {
	Track *pattern.Track
}

// Capture is the live-capture façade. One instance is bound to at
// most one track at a time.
type Capture struct {
	track     *pattern.Track
	pool      *plockpool.Pool
	quantize  pattern.QuantizeConfig
	recording bool

	clockValid        bool
	clockStepTime      int64
	clockStepDuration  int64
	clockTickDuration  int64
	clockStepIndex     uint32
	clockTrackStep     int

	voices [pattern.VoicesPerStep]voiceTracker

	roundRobin uint8
	plockError bool
}

// New returns a capture façade backed by pool for p-lock writes.
func New(pool *plockpool.Pool) *Capture {
	c := &Capture{pool: pool}
	c.Init(Config{})
	return c
}

// Init resets the capture context and optionally binds a track.
func (c *Capture) Init(cfg Config) {
	c.track = nil
	c.quantize = pattern.QuantizeConfig{Enabled: false, Grid: pattern.Grid1_16, Strength: 100}
	c.recording = false
	c.clockValid = false
	c.clockStepTime = 0
	c.clockStepDuration = 0
	c.clockTickDuration = 0
	c.clockStepIndex = 0
	c.clockTrackStep = 0
	c.clearVoiceTrackers()
	if cfg.Track != nil {
		c.AttachTrack(cfg.Track)
	}
}

// AttachTrack binds track to the façade, adopting its quantize config
// and clearing per-voice trackers (spec §4.5, §3.3: capture context
// resets on mode exit / track switch).
func (c *Capture) AttachTrack(track *pattern.Track) {
	c.track = track
	if track != nil {
		c.quantize = track.Config.Quantize
	}
	c.clearVoiceTrackers()
}

// OverrideQuantize replaces the cached quantize configuration used by
// PlanEvent until the next AttachTrack.
func (c *Capture) OverrideQuantize(cfg pattern.QuantizeConfig) {
	c.quantize = cfg
}

// SetRecording toggles whether PlanEvent accepts incoming input.
// CommitPlan does not check it and applies any plan it is given.
func (c *Capture) SetRecording(enabled bool) { c.recording = enabled }

// IsRecording reports the current recording flag.
func (c *Capture) IsRecording() bool { return c.recording }

// UpdateClock refreshes the timing reference from the latest step boundary.
func (c *Capture) UpdateClock(info clocksrc.StepInfo) {
	c.clockStepTime = info.Now
	c.clockStepDuration = info.StepDuration
	c.clockTickDuration = info.TickDuration
	c.clockStepIndex = info.StepIndexAbs
	c.clockTrackStep = int(info.StepIndexAbs % pattern.StepsPerTrack)
	c.clockValid = true
}

// HasStickyError reports whether the last commit flagged an error that
// rolled the step back to its pre-commit snapshot.
func (c *Capture) HasStickyError() bool { return c.plockError }

// PlanEvent computes the quantized target step and timing for input
// without mutating the track. Returns ok=false when not recording, the
// clock hasn't been primed yet, or no track is bound.
func (c *Capture) PlanEvent(input Input) (Plan, bool) {
	if !c.recording || !c.clockValid || c.track == nil || c.clockStepDuration == 0 {
		return Plan{}, false
	}

	activeQuantize := c.quantize

	baseTime := c.clockStepTime
	stepDuration := c.clockStepDuration
	deltaTime := input.Timestamp - baseTime
	baseStep := int64(c.clockTrackStep)

	for deltaTime < 0 {
		deltaTime += stepDuration
		baseTime -= stepDuration
		baseStep--
	}

	appliedDelta := deltaTime
	quantized := false
	if activeQuantize.Enabled && activeQuantize.Strength > 0 {
		if gridDuration, ok := computeGrid(c.clockTickDuration, c.clockStepDuration, activeQuantize.Grid); ok && gridDuration > 0 {
			grid := gridDuration
			rounded := ((deltaTime + grid/2) / grid) * grid
			diff := rounded - deltaTime
			appliedDelta = deltaTime + diff*int64(activeQuantize.Strength)/100
			quantized = diff != 0
		}
	}

	quotient, remainder := divmod(appliedDelta, stepDuration)
	wrappedStep := wrapStep(baseStep, quotient)
	scheduledTime := baseTime + appliedDelta

	microOffset := microFromWithin(remainder, stepDuration)
	microAdjust := microFromDelta(appliedDelta-deltaTime, stepDuration)

	if scheduledTime < 0 {
		scheduledTime = 0
	}

	return Plan{
		Type:          input.Type,
		StepIndex:     wrappedStep,
		StepDelta:     int32(quotient),
		VoiceIndex:    input.VoiceIndex,
		Note:          input.Note,
		Velocity:      input.Velocity,
		MicroOffset:   microOffset,
		MicroAdjust:   microAdjust,
		Quantized:     quantized,
		InputTime:     input.Timestamp,
		ScheduledTime: scheduledTime,
	}, true
}

// CommitPlan applies a previously planned event to the bound track.
func (c *Capture) CommitPlan(plan Plan) bool {
	if c.track == nil {
		return false
	}

	switch plan.Type {
	case EventNoteOn:
		return c.commitNoteOn(plan)
	case EventNoteOff:
		return c.commitNoteOff(plan)
	default:
		return false
	}
}

func (c *Capture) commitNoteOn(plan Plan) bool {
	if plan.StepIndex < 0 || plan.StepIndex >= pattern.StepsPerTrack {
		return false
	}

	step := &c.track.Steps[plan.StepIndex]
	snapshot := *step
	if !step.HasPlayableVoice() && !step.HasAnyPLock() {
		step.MakeAutomationOnly(c.pool)
	}

	slot := c.pickVoiceSlot(step, plan.Note)
	voice, ok := step.Voice(int(slot))
	if !ok {
		voice = pattern.Voice{Note: pattern.DefaultNote, State: pattern.VoiceDisabled}
	}

	voice.Note = plan.Note
	voice.Velocity = plan.Velocity
	if voice.Velocity > 0 {
		voice.State = pattern.VoiceEnabled
	} else {
		voice.State = pattern.VoiceDisabled
	}
	if voice.Length == 0 {
		voice.Length = 1
	}
	voice.Micro = plan.MicroOffset

	if !step.SetVoice(int(slot), voice, c.pool) {
		return false
	}

	buf := c.collectPLocks(step)
	c.plockError = false

	mutated := false
	mutated = c.bufferUpsertInternal(&buf, paramNote, slot, int32(voice.Note)) || mutated
	mutated = c.bufferUpsertInternal(&buf, paramVelocity, slot, int32(voice.Velocity)) || mutated
	mutated = c.bufferUpsertInternal(&buf, paramMicro, slot, int32(voice.Micro)) || mutated

	if !c.flushBuffer(step, &buf, &snapshot, mutated, "note") {
		return false
	}

	c.voices[slot] = voiceTracker{
		active:       true,
		stepIndex:    plan.StepIndex,
		startTime:    plan.ScheduledTime,
		startTimeRaw: plan.InputTime,
		stepDuration: c.clockStepDuration,
		voiceSlot:    slot,
		note:         plan.Note,
	}

	c.track.BumpGen()
	return true
}

func (c *Capture) commitNoteOff(plan Plan) bool {
	if plan.StepIndex < 0 || plan.StepIndex >= pattern.StepsPerTrack {
		return false
	}

	slot := uint8(pattern.VoicesPerStep)
	for i := 0; i < pattern.VoicesPerStep; i++ {
		vt := c.voices[i]
		if !vt.active {
			continue
		}
		if vt.note == plan.Note && vt.voiceSlot == plan.VoiceIndex {
			slot = vt.voiceSlot
			break
		}
		if slot >= pattern.VoicesPerStep && vt.note == plan.Note {
			slot = vt.voiceSlot
		}
	}
	if slot >= pattern.VoicesPerStep {
		if int(plan.VoiceIndex) < pattern.VoicesPerStep {
			slot = plan.VoiceIndex
		} else {
			slot = 0
		}
	}

	targetStep := plan.StepIndex
	if int(slot) < pattern.VoicesPerStep && c.voices[slot].active {
		targetStep = c.voices[slot].stepIndex
	}
	targetStep %= pattern.StepsPerTrack

	step := &c.track.Steps[targetStep]
	voice, ok := step.Voice(int(slot))
	if !ok {
		voice = pattern.Voice{Note: pattern.DefaultNote, State: pattern.VoiceDisabled}
	}

	vt := c.voices[slot]
	startTimeRaw := plan.InputTime
	startDuration := c.clockStepDuration
	if vt.active {
		startTimeRaw = vt.startTimeRaw
		startDuration = vt.stepDuration
	}
	lengthSteps := computeLengthSteps(startTimeRaw, plan.InputTime, startDuration)

	voice.Length = lengthSteps
	if voice.State != pattern.VoiceEnabled && voice.Velocity > 0 {
		voice.State = pattern.VoiceEnabled
	}

	snapshot := *step
	if !step.SetVoice(int(slot), voice, c.pool) {
		return false
	}

	buf := c.collectPLocks(step)
	c.plockError = false

	mutated := c.bufferUpsertInternal(&buf, paramLength, slot, int32(lengthSteps))

	if !c.flushBuffer(step, &buf, &snapshot, mutated, "length") {
		return false
	}

	c.voices[slot].active = false
	c.voices[slot].note = 0
	c.voices[slot].startTimeRaw = 0

	c.track.BumpGen()
	return true
}

func (c *Capture) pickVoiceSlot(step *pattern.Step, note uint8) uint8 {
	for i := 0; i < pattern.VoicesPerStep; i++ {
		v, ok := step.Voice(i)
		if ok && v.State == pattern.VoiceEnabled && v.Note == note {
			return uint8(i)
		}
	}
	for i := 0; i < pattern.VoicesPerStep; i++ {
		v, ok := step.Voice(i)
		if !ok || v.State != pattern.VoiceEnabled || v.Velocity == 0 {
			return uint8(i)
		}
	}
	c.roundRobin = (c.roundRobin + 1) % pattern.VoicesPerStep
	return c.roundRobin
}

func (c *Capture) clearVoiceTrackers() {
	for i := range c.voices {
		c.voices[i] = voiceTracker{voiceSlot: uint8(i)}
	}
}

// internal parameter identity used only for the upsert helpers below;
// distinct from the packed wire ids in package pattern.
type internalParam uint8

const (
	paramNote internalParam = iota
	paramVelocity
	paramLength
	paramMicro
	paramGlobalTranspose
	paramGlobalVelocity
	paramGlobalLength
	paramGlobalMicro
)

func encodeInternalID(param internalParam, voice uint8) uint8 {
	switch param {
	case paramNote:
		return pattern.ParamNoteBase + (voice & 0x03)
	case paramVelocity:
		return pattern.ParamVelBase + (voice & 0x03)
	case paramLength:
		return pattern.ParamLengthBase + (voice & 0x03)
	case paramMicro:
		return pattern.ParamMicroBase + (voice & 0x03)
	case paramGlobalTranspose:
		return pattern.ParamAllTranspose
	case paramGlobalVelocity:
		return pattern.ParamAllVelocity
	case paramGlobalLength:
		return pattern.ParamAllLength
	case paramGlobalMicro:
		return pattern.ParamAllMicro
	default:
		return 0
	}
}

func clampI16(v, min, max int16) int16 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func encodeUnsigned(value int32, min, max int16) uint8 {
	clamped := clampI16(int16(value), min, max)
	if clamped < 0 {
		clamped = 0
	}
	return uint8(clamped)
}

func encodeSigned(value int32) uint8 {
	clamped := clampI16(int16(value), -128, 127)
	return pattern.EncodeS8(int8(clamped))
}

// plkCap is one staged (id, value, flags) triple awaiting commit.
type plkCap struct {
	id    uint8
	value uint8
	flags uint8
}

type plkBuffer struct {
	entries [pattern.MaxPLocksPerStep]plkCap
	count   int
}

func (c *Capture) bufferUpsertInternal(buf *plkBuffer, param internalParam, voice uint8, value int32) bool {
	id := encodeInternalID(param, voice)
	var flags uint8
	var encoded uint8

	switch param {
	case paramNote:
		encoded = encodeUnsigned(value, 0, 127)
		flags = pattern.PackVoiceFlags(int(voice), false)
	case paramVelocity:
		encoded = encodeUnsigned(value, 0, 127)
		flags = pattern.PackVoiceFlags(int(voice), false)
	case paramLength:
		encoded = encodeUnsigned(value, 0, 255)
		flags = pattern.PackVoiceFlags(int(voice), false)
	case paramMicro:
		flags = pattern.PackVoiceFlags(int(voice), true)
		encoded = encodeSigned(value)
	case paramGlobalTranspose, paramGlobalVelocity, paramGlobalLength, paramGlobalMicro:
		flags = pattern.PackVoiceFlags(0, true)
		encoded = encodeSigned(value)
	default:
		return false
	}

	return c.capAddOrReplace(buf, id, encoded, flags)
}

func (c *Capture) capAddOrReplace(buf *plkBuffer, id, value, flags uint8) bool {
	newIsCart := flags&pattern.FlagCartDomain != 0
	for i := 0; i < buf.count; i++ {
		slot := &buf.entries[i]
		slotIsCart := slot.flags&pattern.FlagCartDomain != 0
		if slotIsCart != newIsCart || slot.id != id {
			continue
		}
		if slot.value != value || slot.flags != flags {
			slot.value = value
			slot.flags = flags
			return true
		}
		return false
	}

	if buf.count >= pattern.MaxPLocksPerStep {
		c.plockError = true
		log.Printf("capture: p-lock buffer full (id=%d)", id)
		return false
	}

	buf.entries[buf.count] = plkCap{id: id, value: value, flags: flags}
	buf.count++
	return true
}

func (c *Capture) collectPLocks(step *pattern.Step) plkBuffer {
	var buf plkBuffer
	count := int(step.PLocks.Count)
	for i := 0; i < count; i++ {
		if buf.count >= pattern.MaxPLocksPerStep {
			c.plockError = true
			log.Printf("capture: existing p-lock buffer overflow on collect")
			return buf
		}
		e := c.pool.Get(int(step.PLocks.Offset), i)
		if e == nil {
			c.plockError = true
			log.Printf("capture: p-lock pool read failed during collect")
			return buf
		}
		buf.entries[buf.count] = plkCap{id: e.ParamID, value: e.Value, flags: e.Flags}
		buf.count++
	}
	return buf
}

func (c *Capture) commitBuffer(step *pattern.Step, buf *plkBuffer) bool {
	n := buf.count
	ids := make([]uint8, n)
	vals := make([]uint8, n)
	flags := make([]uint8, n)
	for i := 0; i < n; i++ {
		ids[i] = buf.entries[i].id
		vals[i] = buf.entries[i].value
		flags[i] = buf.entries[i].flags
	}
	if !step.SetPLocksPooled(c.pool, ids, vals, flags) {
		c.plockError = true
		return false
	}
	return true
}

func (c *Capture) flushBuffer(step *pattern.Step, buf *plkBuffer, snapshot *pattern.Step, mutated bool, context string) bool {
	if c.plockError {
		*step = *snapshot
		log.Printf("capture: %s p-lock upsert failed", context)
		return false
	}
	if !mutated {
		c.plockError = false
		return true
	}
	if !c.commitBuffer(step, buf) {
		*step = *snapshot
		log.Printf("capture: %s p-lock commit failed", context)
		return false
	}
	c.plockError = false
	return true
}

func computeGrid(tickDuration, stepDuration int64, grid pattern.QuantizeGrid) (int64, bool) {
	num, den := grid.GridRatio()
	tick := tickDuration
	if tick == 0 {
		tick = stepDuration / 6
	}
	if tick == 0 {
		return 0, false
	}
	scaled := tick * int64(num)
	if den > 1 {
		scaled = (scaled + int64(den)/2) / int64(den)
	}
	if scaled == 0 {
		return 0, false
	}
	return scaled, true
}

func divmod(value, divisor int64) (quotient, remainder int64) {
	if divisor == 0 {
		return 0, 0
	}
	q := value / divisor
	r := value % divisor
	if value < 0 && r != 0 {
		q--
		r += divisor
	}
	return q, r
}

func microFromDelta(delta, stepDuration int64) int8 {
	if stepDuration == 0 {
		return 0
	}
	half := stepDuration / 2
	if delta < 0 {
		half = -half
	}
	scaled := (delta*microMax + half) / stepDuration
	if scaled > microMax {
		scaled = microMax
	} else if scaled < microMin {
		scaled = microMin
	}
	return int8(scaled)
}

func microFromWithin(within, stepDuration int64) int8 {
	if stepDuration == 0 {
		return 0
	}
	if within < 0 {
		within = 0
	}
	scaled := (within*microMax + stepDuration/2) / stepDuration
	if scaled > microMax {
		scaled = microMax
	} else if scaled < microMin {
		scaled = microMin
	}
	return int8(scaled)
}

func wrapStep(baseStep, delta int64) int {
	step := baseStep + delta
	for step < 0 {
		step += pattern.StepsPerTrack
	}
	step %= pattern.StepsPerTrack
	return int(step)
}

func computeLengthSteps(startTime, endTime, stepDuration int64) uint8 {
	if stepDuration == 0 {
		return 1
	}
	delta := endTime - startTime
	if delta <= 0 {
		return 1
	}
	length := (delta + stepDuration/2) / stepDuration
	if length < 1 {
		length = 1
	} else if length > 64 {
		length = 64
	}
	return uint8(length)
}
