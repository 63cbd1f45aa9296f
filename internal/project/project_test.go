package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitActivatesTrackZero(t *testing.T) {
	Init()
	p := GetProject()
	assert.Equal(t, ActiveSlot{Bank: 0, Pattern: 0, Track: 0}, p.ActiveSlot())
	assert.Equal(t, uint8(MaxTracks), p.TrackCount())
	for i := 0; i < MaxTracks; i++ {
		require.NotNil(t, p.GetTrack(i))
	}
}

func TestGetTrackBounds(t *testing.T) {
	Init()
	p := GetProject()
	assert.Nil(t, p.GetTrack(-1))
	assert.Nil(t, p.GetTrack(MaxTracks))
	assert.NotNil(t, p.GetTrack(0))
	assert.NotNil(t, p.GetTrack(MaxTracks-1))
}

func TestSetActiveSlotValidatesRange(t *testing.T) {
	Init()
	p := AccessProjectMut()

	ok := p.SetActiveSlot(ActiveSlot{Bank: 3, Pattern: 5, Track: 2})
	assert.True(t, ok)
	assert.Equal(t, ActiveSlot{Bank: 3, Pattern: 5, Track: 2}, p.ActiveSlot())

	before := p.ActiveSlot()
	ok = p.SetActiveSlot(ActiveSlot{Bank: BankCount, Pattern: 0, Track: 0})
	assert.False(t, ok)
	assert.Equal(t, before, p.ActiveSlot(), "rejected slot must not mutate active selection")

	ok = p.SetActiveSlot(ActiveSlot{Bank: 0, Pattern: PatternsPerBank, Track: 0})
	assert.False(t, ok)

	ok = p.SetActiveSlot(ActiveSlot{Bank: 0, Pattern: 0, Track: MaxTracks})
	assert.False(t, ok)
}

func TestActiveTrackFollowsActiveSlot(t *testing.T) {
	Init()
	p := AccessProjectMut()

	want := p.GetTrack(4)
	require.True(t, p.SetActiveTrack(4))
	assert.Same(t, want, p.ActiveTrack())
}

func TestTrackCartRoundTrip(t *testing.T) {
	Init()
	p := AccessProjectMut()

	cart := CartRef{CartID: 42, SlotID: 1, Capabilities: 0, Flags: CartFlagMuted}
	ok := p.SetTrackCart(2, cart)
	require.True(t, ok)

	got, ok := p.GetTrackCart(2)
	require.True(t, ok)
	assert.Equal(t, cart, got)
	assert.True(t, got.Muted())

	_, ok = p.GetTrackCart(MaxTracks)
	assert.False(t, ok)
}

func TestGenerationBumpsOnMutation(t *testing.T) {
	Init()
	p := AccessProjectMut()
	g0 := p.Generation()

	p.SetTempo(120)
	assert.Greater(t, p.Generation(), g0)

	g1 := p.Generation()
	p.SetName("acid bassline")
	assert.Greater(t, p.Generation(), g1)
}

func TestNameTruncatesAndRoundTrips(t *testing.T) {
	Init()
	p := AccessProjectMut()

	p.SetName("short")
	assert.Equal(t, "short", p.Name())

	long := ""
	for i := 0; i < NameMax+10; i++ {
		long += "x"
	}
	p.SetName(long)
	assert.LessOrEqual(t, len(p.Name()), NameMax-1)
}

func TestTempoDefaultsToZeroAfterInit(t *testing.T) {
	Init()
	p := GetProject()
	assert.Equal(t, uint32(0), p.Tempo())
}
