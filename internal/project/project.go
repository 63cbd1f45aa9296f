// Package project owns the single static runtime block described in
// spec §4.4: one project, its fixed track array, and the active
// (bank, pattern, track) selection used both as a mutation target and
// as the matching key for reader handles (spec §4.3). Grounded on the
// original firmware's seq_project.{c,h}, adapted to hold
// internal/pattern tracks directly instead of flash-backed pointers.
package project

import "github.com/louwik14/brickseq/internal/pattern"

// Sizing mirrors internal/pattern's MaxTracks and the reference
// bank/pattern layout (16 banks x 16 patterns) from the firmware.
const (
	MaxTracks       = pattern.MaxTracks
	BankCount       = 16
	PatternsPerBank = 16
	NameMax         = 24
)

// CartFlags are runtime flags attached to a cart binding.
type CartFlags uint8

const (
	CartFlagNone  CartFlags = 0
	CartFlagMuted CartFlags = 1 << 0
)

// CartCaps is a capability bitmask advertised by a cart reference.
// No capability bits are defined yet; the type exists so callers have
// a stable place to OR bits into as cart types are added.
type CartCaps uint16

// CartRef describes how a track binds to a cartridge slot.
type CartRef struct {
	CartID       uint32
	SlotID       uint8
	Capabilities CartCaps
	Flags        CartFlags
}

// Muted reports whether the cart binding is muted.
func (c CartRef) Muted() bool { return c.Flags&CartFlagMuted != 0 }

// ProjectTrack pairs a runtime track with its cart-binding metadata.
type ProjectTrack struct {
	Track *pattern.Track
	Cart  CartRef
}

// ActiveSlot is the (bank, pattern, track) tuple used as both the
// mutation target and the reader-handle matching key (spec §3.1, §4.3).
type ActiveSlot struct {
	Bank    uint8
	Pattern uint8
	Track   uint8
}

// Project is the fixed-size container of up to MaxTracks track
// bindings plus the project-wide metadata from spec §3.1: an active
// slot, a generation counter, a tempo snapshot, and a project label.
type Project struct {
	tracks     [MaxTracks]ProjectTrack
	trackCount uint8
	active     ActiveSlot
	generation pattern.Gen
	tempo      uint32
	name       [NameMax]byte
}

// Runtime is the single static block this package owns. It is never
// freed; Init resets it to neutral state (spec §3.3).
type Runtime struct {
	project Project
}

var global Runtime

// Init clears the runtime block, initializes all tracks, binds each
// to its slot, and activates track 0 (spec §4.4).
func Init() {
	global.project.reset()
}

func (p *Project) reset() {
	*p = Project{}
	for i := range p.tracks {
		p.tracks[i] = ProjectTrack{Track: pattern.NewTrack()}
	}
	p.trackCount = MaxTracks
	p.active = ActiveSlot{Bank: 0, Pattern: 0, Track: 0}
	p.generation.Reset()
}

// GetProject returns a read-only view of the global project.
func GetProject() *Project { return &global.project }

// AccessProjectMut returns a mutable view of the global project.
func AccessProjectMut() *Project { return &global.project }

// TrackCount returns the number of bound tracks (MaxTracks after Init).
func (p *Project) TrackCount() uint8 { return p.trackCount }

// GetTrack returns the track at index, or nil if out of range.
func (p *Project) GetTrack(i int) *pattern.Track {
	if i < 0 || i >= MaxTracks {
		return nil
	}
	return p.tracks[i].Track
}

// AccessTrackMut is the mutable accessor, identical bounds to GetTrack.
func (p *Project) AccessTrackMut(i int) *pattern.Track {
	return p.GetTrack(i)
}

// GetTrackCart returns the cart binding for track i, and whether i was
// in range.
func (p *Project) GetTrackCart(i int) (CartRef, bool) {
	if i < 0 || i >= MaxTracks {
		return CartRef{}, false
	}
	return p.tracks[i].Cart, true
}

// SetTrackCart updates the cart binding for track i.
func (p *Project) SetTrackCart(i int, cart CartRef) bool {
	if i < 0 || i >= MaxTracks {
		return false
	}
	p.tracks[i].Cart = cart
	p.generation.Bump()
	return true
}

// ActiveSlot returns the project's current (bank, pattern, track) selection.
func (p *Project) ActiveSlot() ActiveSlot { return p.active }

// SetActiveSlot updates the active (bank, pattern, track) selection.
// Returns false and leaves the selection untouched if any component is
// out of range.
func (p *Project) SetActiveSlot(slot ActiveSlot) bool {
	if slot.Bank >= BankCount || slot.Pattern >= PatternsPerBank || int(slot.Track) >= MaxTracks {
		return false
	}
	p.active = slot
	p.generation.Bump()
	return true
}

// SetActiveTrack moves the active slot's track component, keeping bank
// and pattern unchanged.
func (p *Project) SetActiveTrack(track uint8) bool {
	if int(track) >= MaxTracks {
		return false
	}
	p.active.Track = track
	p.generation.Bump()
	return true
}

// ActiveTrack returns the track bound at the current active slot.
func (p *Project) ActiveTrack() *pattern.Track {
	return p.GetTrack(int(p.active.Track))
}

// Generation returns the project's dirty-tracking counter.
func (p *Project) Generation() uint64 { return p.generation.Value() }

// BumpGeneration increments the project's generation counter.
func (p *Project) BumpGeneration() { p.generation.Bump() }

// Tempo returns the project's tempo snapshot in BPM, as stored by SetTempo.
func (p *Project) Tempo() uint32 { return p.tempo }

// SetTempo updates the project's tempo snapshot.
func (p *Project) SetTempo(bpm uint32) {
	p.tempo = bpm
	p.generation.Bump()
}

// Name returns the project label as a string, trimmed at the first NUL.
func (p *Project) Name() string {
	for i, b := range p.name {
		if b == 0 {
			return string(p.name[:i])
		}
	}
	return string(p.name[:])
}

// SetName copies s into the fixed-size label buffer, truncating to
// NameMax-1 bytes to leave room for the NUL terminator convention used
// by Name.
func (p *Project) SetName(s string) {
	p.name = [NameMax]byte{}
	n := len(s)
	if n > NameMax-1 {
		n = NameMax - 1
	}
	copy(p.name[:], s[:n])
	p.generation.Bump()
}
