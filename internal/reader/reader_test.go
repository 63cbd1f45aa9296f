package reader

import (
	"testing"

	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/louwik14/brickseq/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*project.Project, *plockpool.Pool) {
	t.Helper()
	project.Init()
	p := project.AccessProjectMut()
	pool := plockpool.New(plockpool.DefaultCapacity)
	return p, pool
}

func TestHandleInvalidWhenSlotMismatched(t *testing.T) {
	p, pool := setup(t)
	h := MakeHandle(1, 2, 0)
	_, ok := GetStep(p, pool, h, 0)
	assert.False(t, ok, "handle for an inactive (bank, pattern) must not resolve")
}

func TestActiveHandleMatchesSelection(t *testing.T) {
	p, _ := setup(t)
	require.True(t, p.SetActiveSlot(project.ActiveSlot{Bank: 2, Pattern: 3, Track: 1}))
	h := ActiveHandle(p)
	assert.Equal(t, Handle{Bank: 2, Pattern: 3, Track: 1}, h)
}

func TestGetStepReflectsNeutralStep(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	track := p.ActiveTrack()
	track.Steps[0].MakeNeutral()

	view, ok := GetStep(p, pool, h, 0)
	require.True(t, ok)
	assert.Equal(t, uint8(pattern.DefaultNote), view.Note)
	assert.NotZero(t, view.Flags&StepFlagHasVoice)
	assert.Zero(t, view.Flags&StepFlagAutomationOnly)
}

func TestGetStepReflectsAutomationOnly(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	track := p.ActiveTrack()
	track.Steps[1].MakeNeutral()
	require.True(t, track.Steps[1].SetPLocksPooled(pool, []uint8{0x47}, []uint8{10}, []uint8{pattern.FlagCartDomain}))
	track.Steps[1].MakeAutomationOnly(pool)

	view, ok := GetStep(p, pool, h, 1)
	require.True(t, ok)
	assert.Zero(t, view.Flags&StepFlagHasVoice)
	assert.NotZero(t, view.Flags&StepFlagAutomationOnly)
	assert.NotZero(t, view.Flags&StepFlagHasCartPLock)
}

func TestGetStepOutOfRange(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	_, ok := GetStep(p, pool, h, pattern.StepsPerTrack)
	assert.False(t, ok)
}

func TestGetStepVoiceExplicitSlot(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	track := p.ActiveTrack()
	track.Steps[0].SetVoice(2, pattern.Voice{Note: 72, Velocity: 80, Length: 4, State: pattern.VoiceEnabled}, pool)

	view, ok := GetStepVoice(p, h, 0, 2)
	require.True(t, ok)
	assert.True(t, view.Enabled)
	assert.Equal(t, uint8(72), view.Note)

	_, ok = GetStepVoice(p, h, 0, pattern.VoicesPerStep)
	assert.False(t, ok)
}

func TestCountStepVoices(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	track := p.ActiveTrack()
	track.Steps[0].SetVoice(0, pattern.Voice{Note: 60, Velocity: 100, Length: 1, State: pattern.VoiceEnabled}, pool)
	track.Steps[0].SetVoice(1, pattern.Voice{Note: 64, Velocity: 90, Length: 1, State: pattern.VoiceEnabled}, pool)

	count, ok := CountStepVoices(p, h, 0)
	require.True(t, ok)
	assert.Equal(t, uint8(2), count)
}

func TestPLockIterDecodesInternalAndCartIDs(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	track := p.ActiveTrack()

	ok := track.Steps[0].SetPLocksPooled(pool,
		[]uint8{pattern.ParamMicroBase + 1, 0x47},
		[]uint8{pattern.EncodeS8(-4), 77},
		[]uint8{pattern.PackVoiceFlags(1, true), pattern.FlagCartDomain})
	require.True(t, ok)

	require.True(t, PLockIterOpen(p, pool, h, 0))

	id1, v1, ok := PLockIterNext()
	require.True(t, ok)
	assert.NotZero(t, id1&decodedInternalFlag)
	assert.Equal(t, int32(-4), v1)

	id2, v2, ok := PLockIterNext()
	require.True(t, ok)
	assert.Equal(t, uint16(0x47), id2)
	assert.Equal(t, int32(77), v2)

	_, _, ok = PLockIterNext()
	assert.False(t, ok)
}

func TestPLockIterOpenFailsWithNoPLocks(t *testing.T) {
	p, pool := setup(t)
	h := ActiveHandle(p)
	ok := PLockIterOpen(p, pool, h, 0)
	assert.False(t, ok)
}

func TestRawPLockIterYieldsPackedTriples(t *testing.T) {
	p, pool := setup(t)
	track := p.ActiveTrack()
	require.True(t, track.Steps[0].SetPLocksPooled(pool, []uint8{0x50}, []uint8{5}, []uint8{pattern.FlagCartDomain}))

	var it RawPLockIter
	require.True(t, RawPLockIterOpen(&it, pool, &track.Steps[0]))
	id, value, flags, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uint8(0x50), id)
	assert.Equal(t, uint8(5), value)
	assert.Equal(t, pattern.FlagCartDomain, flags)

	_, _, _, ok = it.Next()
	assert.False(t, ok)
}
