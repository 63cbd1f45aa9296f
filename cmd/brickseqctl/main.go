// Command brickseqctl is a developer CLI for exercising the sequencer
// core by hand: stepping the engine, encoding/decoding the PLK2 track
// format, and inspecting a track's contents. It is not part of the
// firmware; spec.md is explicit that the core itself exposes no
// CLI/env/file surface, so this lives outside the core packages the
// same way the teacher's own main.go wraps its model in a thin driver.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/louwik14/brickseq/internal/cartsink"
	"github.com/louwik14/brickseq/internal/clocksrc"
	"github.com/louwik14/brickseq/internal/codec"
	"github.com/louwik14/brickseq/internal/devdump"
	"github.com/louwik14/brickseq/internal/engine"
	"github.com/louwik14/brickseq/internal/midisink"
	"github.com/louwik14/brickseq/internal/pattern"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/louwik14/brickseq/internal/project"
)

var debugLogPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brickseqctl",
		Short: "Developer harness for the sequencer core",
	}
	root.PersistentFlags().StringVar(&debugLogPath, "debug", "", "if set, write debug logs to this file; empty disables logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if debugLogPath == "" {
			log.SetOutput(io.Discard)
			return
		}
		f, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("brickseqctl: could not open debug log %s: %v", debugLogPath, err)
			return
		}
		log.SetOutput(f)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	root.AddCommand(newRunCmd(), newEncodeCmd(), newDecodeCmd(), newInspectCmd())
	return root
}

// demoTrack builds a small, deterministic pattern for manual
// exercising: a four-on-the-floor kick on track 0 with one p-locked
// step, used by run/encode when no input file is given.
func demoTrack(pool *plockpool.Pool) *pattern.Track {
	track := pattern.NewTrack()
	for i := 0; i < pattern.StepsPerTrack; i += 4 {
		track.Steps[i].MakeNeutral()
	}
	track.Steps[4].SetPLocksPooled(pool, []uint8{pattern.ParamNoteBase}, []uint8{72}, []uint8{0})
	return track
}

func newRunCmd() *cobra.Command {
	var steps int
	var tempo uint32
	var midiDevice string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step the engine over a demo project and print emitted MIDI events",
		RunE: func(cmd *cobra.Command, args []string) error {
			project.Init()
			p := project.AccessProjectMut()
			p.SetTempo(tempo)
			pool := plockpool.New(plockpool.DefaultCapacity)
			*p.GetTrack(0) = *demoTrack(pool)

			var midi midisink.Sink
			if midiDevice != "" {
				dev, err := midisink.Open(midiDevice)
				if err != nil {
					return fmt.Errorf("brickseqctl: open midi device: %w", err)
				}
				defer dev.Close()
				midi = dev
			} else {
				midi = midisink.NewFake()
			}

			cart := cartsink.NewRecorder()
			runner := engine.New(p, pool, midi, cart, nil)
			runner.OnTransportPlay()

			for i := 0; i < steps; i++ {
				runner.OnClockStep(clocksrc.StepInfo{StepIndexAbs: uint32(i)})
			}
			runner.OnTransportStop()

			probe := runner.Probe()
			fmt.Printf("ran %d steps, %d/%d silent ticks\n", steps, probe.SilentTicks(), probe.TotalTicks())
			if fake, ok := midi.(*midisink.Fake); ok {
				for _, ev := range fake.Events {
					fmt.Printf("%s channel=%d note=%d velocity=%d controller=%d\n", ev.Kind, ev.Channel, ev.Note, ev.Velocity, ev.Controller)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 16, "number of clock steps to run")
	cmd.Flags().Uint32Var(&tempo, "tempo", 120, "project tempo in BPM, stored but not itself timed by this harness")
	cmd.Flags().StringVar(&midiDevice, "midi-device", "", "real MIDI output port name; empty uses an in-memory fake")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode the demo track to the PLK2 binary format",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := plockpool.New(plockpool.DefaultCapacity)
			track := demoTrack(pool)

			buf := make([]byte, 64*1024)
			written, ok := codec.Encode(track, pool, buf)
			if !ok {
				return fmt.Errorf("brickseqctl: encode: buffer too small")
			}
			if err := os.WriteFile(out, buf[:written], 0o644); err != nil {
				return fmt.Errorf("brickseqctl: write %s: %w", out, err)
			}
			fmt.Printf("wrote %d bytes to %s\n", written, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "track.plk2", "output file path")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var in string
	var policyName string

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a PLK2 binary track and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parsePolicy(policyName)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("brickseqctl: read %s: %w", in, err)
			}

			pool := plockpool.New(plockpool.DefaultCapacity)
			track := pattern.NewTrack()
			if err := codec.Decode(track, pool, data, policy); err != nil {
				return fmt.Errorf("brickseqctl: decode: %w", err)
			}

			active, autoOnly, plocked := 0, 0, 0
			for i := range track.Steps {
				s := &track.Steps[i]
				if s.Active {
					active++
				}
				if s.AutoOnly {
					autoOnly++
				}
				if s.HasAnyPLock() {
					plocked++
				}
			}
			fmt.Printf("%d active, %d automation-only, %d p-locked steps\n", active, autoOnly, plocked)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "track.plk2", "input file path")
	cmd.Flags().StringVar(&policyName, "policy", "full", "decode policy: full, drop_cart, or absent")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var in string
	var out string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode a PLK2 binary track and dump it as a gzip+JSON devdump snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("brickseqctl: read %s: %w", in, err)
			}

			pool := plockpool.New(plockpool.DefaultCapacity)
			track := pattern.NewTrack()
			if err := codec.Decode(track, pool, data, codec.DecodeFull); err != nil {
				return fmt.Errorf("brickseqctl: decode: %w", err)
			}

			snap := devdump.BuildSnapshot(0, in, []*pattern.Track{track}, pool)
			if err := devdump.WriteFile(out, snap); err != nil {
				return err
			}
			fmt.Printf("wrote devdump snapshot to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "track.plk2", "input PLK2 file path")
	cmd.Flags().StringVar(&out, "out", "track.snapshot.json.gz", "output devdump snapshot path")
	return cmd
}

func parsePolicy(name string) (codec.DecodePolicy, error) {
	switch name {
	case "full":
		return codec.DecodeFull, nil
	case "drop_cart":
		return codec.DecodeDropCart, nil
	case "absent":
		return codec.DecodeAbsent, nil
	default:
		return 0, fmt.Errorf("brickseqctl: unknown decode policy %q", name)
	}
}
