package cartsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderTracksWritesInOrder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.SetParam(0, 0x47, 1))
	require.NoError(t, r.SetParam(0, 0x47, 2))
	require.NoError(t, r.SetParam(1, 0x50, 9))

	assert.Len(t, r.Writes, 3)

	last, ok := r.Last(0, 0x47)
	require.True(t, ok)
	assert.Equal(t, uint8(2), last.Value)

	_, ok = r.Last(2, 0x47)
	assert.False(t, ok)
}

func TestRecorderResetClearsWrites(t *testing.T) {
	r := NewRecorder()
	_ = r.SetParam(0, 0x47, 1)
	r.Reset()
	assert.Empty(t, r.Writes)
}
