package codec

import (
	"testing"

	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedTrack(pool *plockpool.Pool) *pattern.Track {
	track := pattern.NewTrack()
	track.Steps[1].MakeNeutral()
	track.Steps[2].MakeNeutral()
	track.Steps[2].SetPLocksPooled(pool, []uint8{pattern.ParamVelBase, 0x47}, []uint8{90, 9}, []uint8{0, pattern.FlagCartDomain})
	return track
}

func TestEncodeDecodeRoundTripIsByteIdentical(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	original := populatedTrack(pool)

	bufA := make([]byte, 8192)
	writtenA, ok := Encode(original, pool, bufA)
	require.True(t, ok)
	bufA = bufA[:writtenA]

	decoded := pattern.NewTrack()
	decodePool := plockpool.New(plockpool.DefaultCapacity)
	require.NoError(t, Decode(decoded, decodePool, bufA, DecodeFull))

	bufB := make([]byte, 8192)
	writtenB, ok := Encode(decoded, decodePool, bufB)
	require.True(t, ok)
	bufB = bufB[:writtenB]

	assert.Equal(t, bufA, bufB)
}

func TestDecodeRejectsWrongStepCount(t *testing.T) {
	buf := make([]byte, 2)
	buf[0] = 5
	buf[1] = 0
	err := Decode(pattern.NewTrack(), plockpool.New(64), buf, DecodeFull)
	assert.Error(t, err)
}

func TestEncodeFailsWhenBufferTooSmall(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	track := populatedTrack(pool)
	_, ok := Encode(track, pool, make([]byte, 4))
	assert.False(t, ok)
}

func TestDecodeDropCartRemovesCartPLocksOnly(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	track := populatedTrack(pool)
	buf := make([]byte, 8192)
	written, ok := Encode(track, pool, buf)
	require.True(t, ok)

	decoded := pattern.NewTrack()
	decodePool := plockpool.New(plockpool.DefaultCapacity)
	require.NoError(t, Decode(decoded, decodePool, buf[:written], DecodeDropCart))

	assert.False(t, decoded.Steps[2].HasCartPLock(decodePool))
	assert.True(t, decoded.Steps[2].HasSeqPLock(decodePool))
}

func TestDecodeAbsentDisablesEveryVoice(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	track := populatedTrack(pool)
	buf := make([]byte, 8192)
	written, ok := Encode(track, pool, buf)
	require.True(t, ok)

	decoded := pattern.NewTrack()
	decodePool := plockpool.New(plockpool.DefaultCapacity)
	require.NoError(t, Decode(decoded, decodePool, buf[:written], DecodeAbsent))

	for i := range decoded.Steps {
		for _, v := range decoded.Steps[i].Voices {
			assert.Equal(t, pattern.VoiceDisabled, v.State)
		}
	}
}

func TestDecodeSkipsTruncatedPLK2Chunk(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	track := pattern.NewTrack()
	lastIdx := pattern.StepsPerTrack - 1
	track.Steps[lastIdx].MakeNeutral()
	track.Steps[lastIdx].SetPLocksPooled(pool, []uint8{pattern.ParamVelBase, 0x47}, []uint8{90, 9}, []uint8{0, pattern.FlagCartDomain})

	buf := make([]byte, 8192)
	written, ok := Encode(track, pool, buf)
	require.True(t, ok)

	// Cut the final step's PLK2 chunk short: the count byte still says 2
	// entries, but only one triple's worth of bytes remains before the
	// buffer ends.
	truncated := buf[:written-3]

	decoded := pattern.NewTrack()
	decodePool := plockpool.New(plockpool.DefaultCapacity)
	require.NoError(t, Decode(decoded, decodePool, truncated, DecodeFull), "an under-length PLK2 chunk must be skipped, not rejected")
	assert.Zero(t, decoded.Steps[lastIdx].PLocks.Count, "a truncated chunk leaves the step with no p-locks")
}

func TestDecodeLegacyInlineTriplesAreReadBack(t *testing.T) {
	buf := []byte{byte(pattern.StepsPerTrack), 0}
	for i := 0; i < pattern.StepsPerTrack; i++ {
		if i == 3 {
			buf = append(buf, 0, 0, 0, 1)              // skip_runs, flags, voice_mask, legacy_plock_count=1
			buf = append(buf, pattern.ParamNoteBase, 72, 0) // id, value, flags inline triple
			continue
		}
		buf = append(buf, 0, 0, 0, 0) // skip_runs, flags, voice_mask, legacy_plock_count=0
	}

	decoded := pattern.NewTrack()
	pool := plockpool.New(plockpool.DefaultCapacity)
	require.NoError(t, Decode(decoded, pool, buf, DecodeFull))

	require.True(t, decoded.Steps[3].HasSeqPLock(pool))
	entry := pool.Get(int(decoded.Steps[3].PLocks.Offset), 0)
	require.NotNil(t, entry)
	assert.Equal(t, uint8(72), entry.Value)
}

func TestRecomputeOffsetsSyncsFromAllParamPLocks(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	step := &pattern.Step{}
	step.Init()
	step.SetPLocksPooled(pool, []uint8{pattern.ParamAllTranspose}, []uint8{pattern.EncodeS8(5)}, []uint8{pattern.FlagSigned})

	step.RecomputeOffsets(pool)
	assert.EqualValues(t, 5, step.Offsets.Transpose)
}
