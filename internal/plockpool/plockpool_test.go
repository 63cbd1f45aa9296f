package plockpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAdvancesUsed(t *testing.T) {
	p := New(10)

	off, ok := p.Alloc(4)
	require.True(t, ok)
	assert.Equal(t, 0, off)
	assert.Equal(t, 4, p.Used())

	off, ok = p.Alloc(3)
	require.True(t, ok)
	assert.Equal(t, 4, off)
	assert.Equal(t, 7, p.Used())
}

func TestAllocOOMLeavesUsedUnchanged(t *testing.T) {
	p := New(5)

	_, ok := p.Alloc(3)
	require.True(t, ok)
	require.Equal(t, 3, p.Used())

	_, ok = p.Alloc(3)
	assert.False(t, ok)
	assert.Equal(t, 3, p.Used(), "failed alloc must not advance used counter")
}

func TestAllocZeroIsAlwaysOK(t *testing.T) {
	p := New(0)
	off, ok := p.Alloc(0)
	assert.True(t, ok)
	assert.Equal(t, 0, off)
}

func TestResetClearsUsed(t *testing.T) {
	p := New(10)
	_, _ = p.Alloc(5)
	require.Equal(t, 5, p.Used())

	p.Reset()
	assert.Equal(t, 0, p.Used())

	off, ok := p.Alloc(10)
	assert.True(t, ok)
	assert.Equal(t, 0, off)
}

func TestGetBounds(t *testing.T) {
	p := New(4)
	off, ok := p.Alloc(2)
	require.True(t, ok)

	e := p.Get(off, 0)
	require.NotNil(t, e)
	e.ParamID = 0x08
	e.Value = 60
	e.Flags = 0

	e2 := p.Get(off, 1)
	require.NotNil(t, e2)

	assert.Nil(t, p.Get(off, 2))
	assert.Nil(t, p.Get(-1, 0))
	assert.Nil(t, p.Get(100, 0))

	// round-trip through the pointer
	got := p.Get(off, 0)
	assert.Equal(t, uint8(0x08), got.ParamID)
	assert.Equal(t, uint8(60), got.Value)
}

func TestCapacity(t *testing.T) {
	p := New(DefaultCapacity)
	assert.Equal(t, MaxTracks*StepsPerTrack*MaxPLocksPerStep, p.Capacity())
}
