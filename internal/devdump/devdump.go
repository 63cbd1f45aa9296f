// Package devdump is a developer-facing debug snapshot dumper: it
// serializes a project's tracks to gzip-compressed JSON for
// inspection outside the running process. This is strictly a side
// channel for humans — the real persistence format is the binary
// PLK2 codec in internal/codec (spec §4.8); nothing in the sequencer
// core reads a devdump file back into a live project.
// Grounded on the teacher's storage.go AutoSave/LoadState gzip+jsoniter
// pattern, carried over with the same "marshal to JSON, gzip it, write
// the file" shape.
package devdump

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// VoiceDump mirrors pattern.Voice for JSON inspection.
type VoiceDump struct {
	Note     uint8 `json:"note"`
	Velocity uint8 `json:"velocity"`
	Length   uint8 `json:"length"`
	Micro    int8  `json:"micro"`
	Enabled  bool  `json:"enabled"`
}

// PLockDump is one decoded p-lock entry.
type PLockDump struct {
	ParamID uint8 `json:"param_id"`
	Value   uint8 `json:"value"`
	Cart    bool  `json:"cart"`
}

// StepDump mirrors pattern.Step for JSON inspection.
type StepDump struct {
	Voices     [pattern.VoicesPerStep]VoiceDump `json:"voices"`
	PLocks     []PLockDump                      `json:"plocks"`
	Active     bool                             `json:"active"`
	AutoOnly   bool                             `json:"auto_only"`
	Transpose  int8                             `json:"transpose"`
	VelOffset  int16                            `json:"velocity_offset"`
	LenOffset  int8                             `json:"length_offset"`
	MicroOfst  int8                             `json:"micro_offset"`
}

// TrackDump mirrors pattern.Track for JSON inspection.
type TrackDump struct {
	Steps      []StepDump `json:"steps"`
	Generation uint64     `json:"generation"`
}

// Snapshot is the top-level document written to a devdump file.
type Snapshot struct {
	Tempo  uint32      `json:"tempo"`
	Name   string      `json:"name"`
	Tracks []TrackDump `json:"tracks"`
}

func dumpStep(step *pattern.Step, pool *plockpool.Pool) StepDump {
	out := StepDump{
		Active:    step.Active,
		AutoOnly:  step.AutoOnly,
		Transpose: step.Offsets.Transpose,
		VelOffset: step.Offsets.Velocity,
		LenOffset: step.Offsets.Length,
		MicroOfst: step.Offsets.Micro,
	}
	for i, v := range step.Voices {
		out.Voices[i] = VoiceDump{
			Note:     v.Note,
			Velocity: v.Velocity,
			Length:   v.Length,
			Micro:    v.Micro,
			Enabled:  v.State == pattern.VoiceEnabled,
		}
	}
	for i := 0; i < int(step.PLocks.Count); i++ {
		e := pool.Get(int(step.PLocks.Offset), i)
		if e == nil {
			continue
		}
		out.PLocks = append(out.PLocks, PLockDump{
			ParamID: e.ParamID,
			Value:   e.Value,
			Cart:    e.Flags&pattern.FlagCartDomain != 0,
		})
	}
	return out
}

// BuildSnapshot copies a compact, JSON-friendly view of tracks out of
// the pool-backed model for serialization.
func BuildSnapshot(tempo uint32, name string, tracks []*pattern.Track, pool *plockpool.Pool) Snapshot {
	snap := Snapshot{Tempo: tempo, Name: name, Tracks: make([]TrackDump, len(tracks))}
	for i, track := range tracks {
		if track == nil {
			continue
		}
		steps := make([]StepDump, len(track.Steps))
		for s := range track.Steps {
			steps[s] = dumpStep(&track.Steps[s], pool)
		}
		snap.Tracks[i] = TrackDump{Steps: steps, Generation: track.Generation()}
	}
	return snap
}

// WriteFile marshals snap to JSON and writes it gzip-compressed to
// path, matching the teacher's DoSave "marshal, gzip, write" shape.
func WriteFile(path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("devdump: marshal: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("devdump: create %s: %w", path, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	if _, err := gzWriter.Write(data); err != nil {
		return fmt.Errorf("devdump: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a gzip-compressed JSON snapshot back for inspection.
func ReadFile(path string) (Snapshot, error) {
	var snap Snapshot

	file, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("devdump: open %s: %w", path, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return snap, fmt.Errorf("devdump: gzip reader %s: %w", path, err)
	}
	defer gzReader.Close()

	data, err := io.ReadAll(gzReader)
	if err != nil {
		return snap, fmt.Errorf("devdump: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("devdump: unmarshal %s: %w", path, err)
	}
	return snap, nil
}
