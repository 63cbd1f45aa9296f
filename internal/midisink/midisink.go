// Package midisink is the engine runner's MIDI output boundary: an
// interface the engine drives, plus a gomidi/midi/v2-backed
// implementation grounded on the teacher's midiconnector device
// wrapper (open/close one named output port, log send failures
// instead of panicking). Device keeps no record of open notes.
package midisink

import (
	"fmt"
	"log"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Sink is what internal/engine sends MIDI events through. channel is
// 0-indexed (0..15); note/velocity/controller/value are 0..127.
type Sink interface {
	NoteOn(channel, note, velocity uint8) error
	NoteOff(channel, note uint8) error
	ControlChange(channel, controller, value uint8) error
}

// Device is a real MIDI output port, opened by (substring) name.
type Device struct {
	mu   sync.Mutex
	name string
	out  drivers.Out
}

// Open finds an output port whose name matches name and opens it.
func Open(name string) (*Device, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("midisink: find out port %q: %w", name, err)
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("midisink: open out port %q: %w", name, err)
	}
	return &Device{name: name, out: out}, nil
}

// Close closes the underlying MIDI port.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.Close()
}

// NoteOn sends a note-on message.
func (d *Device) NoteOn(channel, note, velocity uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.out.Send([]byte{0x90 | (channel & 0x0F), note, velocity}); err != nil {
		log.Printf("midisink: note-on error on %s: %v", d.name, err)
		return err
	}
	return nil
}

// NoteOff sends a note-off message (velocity 0 on the note-off status).
func (d *Device) NoteOff(channel, note uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.out.Send([]byte{0x80 | (channel & 0x0F), note, 0}); err != nil {
		log.Printf("midisink: note-off error on %s: %v", d.name, err)
		return err
	}
	return nil
}

// ControlChange sends a control-change message, used by the runner
// for the all-notes-off CC 123 on transport stop.
func (d *Device) ControlChange(channel, controller, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.out.Send([]byte{0xB0 | (channel & 0x0F), controller, value}); err != nil {
		log.Printf("midisink: control-change error on %s: %v", d.name, err)
		return err
	}
	return nil
}

// Devices lists available MIDI output port names.
func Devices() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}
