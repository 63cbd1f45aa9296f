// Package codec encodes and decodes a single track to/from the
// compact on-disk byte layout described by spec §4.8: a step count
// header followed by one record per step (skip_runs, flags, voice
// mask, legacy p-lock count, voice payloads, optional "PLK2" chunk).
// Grounded on `_examples/original_source/tests/seq_track_codec_tests.c`,
// `test_save_plk2_minimal.c`, `test_save_plk2_bounds.c`, and
// `tools/seq_track_migrate_v2.c` for the legacy (pre-PLK2) inline
// triple format this implements a read path for.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
)

// DecodePolicy controls which p-locks survive a decode (spec §4.8).
type DecodePolicy uint8

const (
	// DecodeFull keeps every p-lock.
	DecodeFull DecodePolicy = iota
	// DecodeDropCart keeps internal-domain p-locks only.
	DecodeDropCart
	// DecodeAbsent discards the whole track: every step decodes to its
	// disabled default, regardless of what the bytes contain.
	DecodeAbsent
)

const (
	plk2Tag          = "PLK2"
	voicePayloadBits = 4 // bits 3..6 of the flags byte, one per voice slot

	voiceFlagShift = 3
)

// defaultVoice mirrors the flash-resident template (pattern.Step.Init):
// disabled, note 60, velocity 0, length 16, micro 0.
func defaultVoice() pattern.Voice {
	return pattern.Voice{Note: pattern.DefaultNote, Velocity: pattern.DefaultVelocitySecondary, Length: 16, State: pattern.VoiceDisabled}
}

func voiceEqualsDefault(v pattern.Voice) bool {
	return v == defaultVoice()
}

// Encode writes track's steps_per_track steps into buf and returns the
// number of bytes written. Returns ok=false if buf is too small, in
// which case the buffer's contents are undefined to the caller (spec
// §4.8 "fail with -1").
func Encode(track *pattern.Track, pool *plockpool.Pool, buf []byte) (written int, ok bool) {
	if len(buf) < 2 {
		return 0, false
	}
	binary.LittleEndian.PutUint16(buf, uint16(pattern.StepsPerTrack))
	pos := 2

	for i := range track.Steps {
		step := &track.Steps[i]
		n, ok := encodeStep(step, pool, buf[pos:])
		if !ok {
			return 0, false
		}
		pos += n
	}
	return pos, true
}

func encodeStep(step *pattern.Step, pool *plockpool.Pool, buf []byte) (int, bool) {
	if len(buf) < 3 {
		return 0, false
	}
	var voiceMask uint8
	var payloadMask uint8
	for i, v := range step.Voices {
		if v.State == pattern.VoiceEnabled {
			voiceMask |= 1 << uint(i)
		}
		if !voiceEqualsDefault(v) {
			payloadMask |= 1 << uint(i)
		}
	}

	flags := payloadMask << voiceFlagShift

	pos := 0
	if pos >= len(buf) {
		return 0, false
	}
	buf[pos] = 0 // skip_runs, reserved
	pos++
	if pos >= len(buf) {
		return 0, false
	}
	buf[pos] = flags
	pos++
	if pos >= len(buf) {
		return 0, false
	}
	buf[pos] = voiceMask
	pos++
	if pos >= len(buf) {
		return 0, false
	}
	buf[pos] = 0 // legacy_plock_count: new encodes always emit PLK2
	pos++

	for i, v := range step.Voices {
		if payloadMask&(1<<uint(i)) == 0 {
			continue
		}
		if pos+4 > len(buf) {
			return 0, false
		}
		buf[pos] = v.Note
		buf[pos+1] = v.Velocity
		buf[pos+2] = v.Length
		buf[pos+3] = uint8(v.Micro)
		pos += 4
	}

	if step.PLocks.Count == 0 || pool == nil {
		return pos, true
	}

	n := int(step.PLocks.Count)
	if pos+4+1+n*3 > len(buf) {
		return 0, false
	}
	copy(buf[pos:pos+4], plk2Tag)
	pos += 4
	buf[pos] = uint8(n)
	pos++
	for i := 0; i < n; i++ {
		e := pool.Get(int(step.PLocks.Offset), i)
		if e == nil {
			return 0, false
		}
		buf[pos] = e.ParamID
		buf[pos+1] = e.Value
		buf[pos+2] = e.Flags
		pos += 3
	}
	return pos, true
}

// Decode parses buf (produced by Encode, or the legacy pre-PLK2
// format) into track using pool for p-lock storage, applying policy.
// Fails if the step count does not equal steps_per_track.
func Decode(track *pattern.Track, pool *plockpool.Pool, buf []byte, policy DecodePolicy) error {
	if len(buf) < 2 {
		return fmt.Errorf("codec: decode: buffer too short for step-count header")
	}
	stepCount := binary.LittleEndian.Uint16(buf)
	if int(stepCount) != pattern.StepsPerTrack {
		return fmt.Errorf("codec: decode: step count %d != %d", stepCount, pattern.StepsPerTrack)
	}
	pos := 2

	for i := 0; i < pattern.StepsPerTrack; i++ {
		step := &track.Steps[i]
		step.Init()
		n, err := decodeStep(step, pool, buf[pos:], policy)
		if err != nil {
			return fmt.Errorf("codec: decode: step %d: %w", i, err)
		}
		pos += n
	}
	return nil
}

func decodeStep(step *pattern.Step, pool *plockpool.Pool, buf []byte, policy DecodePolicy) (int, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("buffer too short for step header")
	}
	pos := 1 // skip skip_runs
	flags := buf[pos]
	pos++
	voiceMask := buf[pos]
	pos++
	legacyCount := buf[pos]
	pos++

	payloadMask := flags >> voiceFlagShift

	voices := step.Voices
	for i := 0; i < pattern.VoicesPerStep; i++ {
		if payloadMask&(1<<uint(i)) == 0 {
			continue
		}
		if pos+4 > len(buf) {
			return 0, fmt.Errorf("buffer too short for voice %d payload", i)
		}
		voices[i] = pattern.Voice{
			Note:     buf[pos],
			Velocity: buf[pos+1],
			Length:   buf[pos+2],
			Micro:    int8(buf[pos+3]),
		}
		pos += 4
	}
	for i := 0; i < pattern.VoicesPerStep; i++ {
		if voiceMask&(1<<uint(i)) != 0 {
			voices[i].State = pattern.VoiceEnabled
		} else {
			voices[i].State = pattern.VoiceDisabled
		}
	}

	if legacyCount > 0 {
		n, err := decodeLegacyPLocks(step, pool, buf[pos:], legacyCount, policy)
		if err != nil {
			return 0, err
		}
		pos += n
	} else if len(buf)-pos >= 4 && string(buf[pos:pos+4]) == plk2Tag {
		n, err := decodePLK2(step, pool, buf[pos:], policy)
		if err != nil {
			return 0, err
		}
		pos += n
	}

	if policy == DecodeAbsent {
		// step is already at its Init() default from the caller; voices
		// and p-locks parsed above are discarded rather than applied.
		return pos, nil
	}

	for i := range voices {
		step.Voices[i] = voices[i]
	}
	step.RecomputeFlags(pool)
	step.RecomputeOffsets(pool)
	return pos, nil
}

// decodePLK2 parses an optional "PLK2" chunk per spec §4.8's
// truncation-tolerance rule: a malformed count or insufficient
// remaining bytes silently skips the chunk (step ends with no
// p-locks) rather than failing the whole decode.
func decodePLK2(step *pattern.Step, pool *plockpool.Pool, buf []byte, policy DecodePolicy) (int, error) {
	pos := 4
	if pos >= len(buf) {
		return len(buf), nil
	}
	count := int(buf[pos])
	pos++

	if len(buf)-pos < count*3 {
		return len(buf), nil
	}
	if count > pattern.MaxPLocksPerStep {
		return pos + count*3, nil
	}

	ids := make([]uint8, 0, count)
	vals := make([]uint8, 0, count)
	flagsOut := make([]uint8, 0, count)
	for i := 0; i < count; i++ {
		off := pos + i*3
		id, value, fl := buf[off], buf[off+1], buf[off+2]
		if policy == DecodeDropCart && fl&pattern.FlagCartDomain != 0 {
			continue
		}
		ids = append(ids, id)
		vals = append(vals, value)
		flagsOut = append(flagsOut, fl)
	}
	pos += count * 3

	if len(ids) > 0 && policy != DecodeAbsent {
		step.SetPLocksPooled(pool, ids, vals, flagsOut)
	}
	return pos, nil
}

// decodeLegacyPLocks reads the pre-PLK2 inline triple format: count
// bytes of {id, value, flags} with no "PLK2" tag, matching
// tools/seq_track_migrate_v2.c's source layout. Re-expressed as
// pooled p-locks on load exactly like a PLK2 chunk.
func decodeLegacyPLocks(step *pattern.Step, pool *plockpool.Pool, buf []byte, count uint8, policy DecodePolicy) (int, error) {
	n := int(count)
	if len(buf) < n*3 {
		return 0, fmt.Errorf("legacy p-lock section truncated: need %d bytes, have %d", n*3, len(buf))
	}

	ids := make([]uint8, 0, n)
	vals := make([]uint8, 0, n)
	flagsOut := make([]uint8, 0, n)
	for i := 0; i < n; i++ {
		off := i * 3
		id, value, fl := buf[off], buf[off+1], buf[off+2]
		if policy == DecodeDropCart && fl&pattern.FlagCartDomain != 0 {
			continue
		}
		ids = append(ids, id)
		vals = append(vals, value)
		flagsOut = append(flagsOut, fl)
	}
	if len(ids) > 0 && policy != DecodeAbsent {
		step.SetPLocksPooled(pool, ids, vals, flagsOut)
	}
	return n * 3, nil
}
