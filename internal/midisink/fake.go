package midisink

// Event is one recorded call against a Fake sink.
type Event struct {
	Kind       string // "on", "off", "cc"
	Channel    uint8
	Note       uint8
	Velocity   uint8
	Controller uint8
	Value      uint8
}

// Fake is an in-memory Sink recorder for engine tests and the dev CLI.
type Fake struct {
	Events []Event
}

// NewFake returns an empty recorder.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) NoteOn(channel, note, velocity uint8) error {
	f.Events = append(f.Events, Event{Kind: "on", Channel: channel, Note: note, Velocity: velocity})
	return nil
}

func (f *Fake) NoteOff(channel, note uint8) error {
	f.Events = append(f.Events, Event{Kind: "off", Channel: channel, Note: note})
	return nil
}

func (f *Fake) ControlChange(channel, controller, value uint8) error {
	f.Events = append(f.Events, Event{Kind: "cc", Channel: channel, Controller: controller, Value: value})
	return nil
}

// Reset clears the recorded events.
func (f *Fake) Reset() { f.Events = nil }
