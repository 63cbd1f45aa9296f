package pattern

import (
	"testing"

	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepInitIsAllDisabled(t *testing.T) {
	var s Step
	s.Init()
	assert.False(t, s.Active)
	assert.False(t, s.AutoOnly)
	for _, v := range s.Voices {
		assert.False(t, v.Playable())
	}
}

func TestMakeNeutralInvariant(t *testing.T) {
	var s Step
	s.MakeNeutral()

	v0 := s.Voices[0]
	assert.Greater(t, v0.Velocity, uint8(0))
	assert.Equal(t, uint8(1), v0.Length)
	assert.Equal(t, int8(0), v0.Micro)
	assert.Equal(t, uint8(DefaultNote), v0.Note)
	assert.True(t, s.Active)

	for i := 1; i < VoicesPerStep; i++ {
		assert.False(t, s.Voices[i].Playable(), "voice %d should be muted", i)
	}
}

func TestAutomationOnlyThenNeutralRestoresVoice0(t *testing.T) {
	pool := plockpool.New(16)
	var s Step
	s.MakeNeutral()

	ok := s.SetPLocksPooled(pool, []uint8{0x47}, []uint8{42}, []uint8{FlagCartDomain})
	require.True(t, ok)

	s.MakeAutomationOnly(pool)
	assert.False(t, s.Active)
	assert.True(t, s.AutoOnly)

	s.MakeNeutral()
	assert.True(t, s.Active)
	assert.True(t, s.Voices[0].Playable())
}

func TestFlagInvariants(t *testing.T) {
	pool := plockpool.New(16)
	var s Step
	s.Init()

	// no voices, no plocks: neither active nor automation
	assert.False(t, s.Active)
	assert.False(t, s.AutoOnly)

	// cart plock only, no playable voice: automation
	ok := s.SetPLocksPooled(pool, []uint8{0x47}, []uint8{1}, []uint8{FlagCartDomain})
	require.True(t, ok)
	assert.False(t, s.Active)
	assert.True(t, s.AutoOnly)

	// adding an internal plock disqualifies automation
	ok = s.SetPLocksPooled(pool,
		[]uint8{0x47, ParamNoteBase},
		[]uint8{1, 60},
		[]uint8{FlagCartDomain, PackVoiceFlags(0, false)})
	require.True(t, ok)
	assert.False(t, s.AutoOnly)

	// a playable voice makes it active, not automation regardless of plocks
	v := Voice{Note: 60, Velocity: 100, Length: 1, State: VoiceEnabled}
	s.SetVoice(0, v, pool)
	assert.True(t, s.Active)
	assert.False(t, s.AutoOnly)
}

func TestSetPLocksPooledOOMLeavesStepUnchanged(t *testing.T) {
	pool := plockpool.New(2)
	var s Step
	s.Init()
	before := s.PLocks

	ok := s.SetPLocksPooled(pool, []uint8{1, 2, 3}, []uint8{1, 2, 3}, []uint8{0, 0, 0})
	assert.False(t, ok)
	assert.Equal(t, before, s.PLocks)
}

func TestSetPLocksPooledCapacityCap(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	var s Step
	s.Init()

	ids := make([]uint8, MaxPLocksPerStep+1)
	vals := make([]uint8, MaxPLocksPerStep+1)
	flags := make([]uint8, MaxPLocksPerStep+1)
	ok := s.SetPLocksPooled(pool, ids, vals, flags)
	assert.False(t, ok)
}

func TestSignedEncodeRoundTrip(t *testing.T) {
	for _, v := range []int8{-12, -1, 0, 1, 12, 127, -128} {
		u := EncodeS8(v)
		assert.Equal(t, v, DecodeS8(u))
	}
}

func TestVoiceFlagsRoundTrip(t *testing.T) {
	for voice := 0; voice < VoicesPerStep; voice++ {
		f := PackVoiceFlags(voice, true)
		assert.Equal(t, voice, VoiceFromFlags(f))
		assert.NotZero(t, f&FlagSigned)
	}
}

func TestIsCartParam(t *testing.T) {
	assert.False(t, IsCartParam(0x3F))
	assert.True(t, IsCartParam(0x40))
	assert.True(t, IsCartParam(0xFF))
}

func TestTrackInitResetsGeneration(t *testing.T) {
	tr := NewTrack()
	tr.BumpGen()
	tr.BumpGen()
	assert.Equal(t, uint64(2), tr.Generation())

	tr.Init()
	assert.Equal(t, uint64(0), tr.Generation())
}

func TestGridRatios(t *testing.T) {
	cases := []struct {
		g        QuantizeGrid
		num, den int
	}{
		{Grid1_4, 24, 1},
		{Grid1_8, 12, 1},
		{Grid1_16, 6, 1},
		{Grid1_32, 3, 1},
		{Grid1_64, 3, 2},
	}
	for _, c := range cases {
		num, den := c.g.GridRatio()
		assert.Equal(t, c.num, num)
		assert.Equal(t, c.den, den)
	}
}
