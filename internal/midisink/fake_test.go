package midisink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeRecordsEventsInOrder(t *testing.T) {
	f := NewFake()
	_ = f.NoteOn(0, 60, 100)
	_ = f.NoteOff(0, 60)
	_ = f.ControlChange(0, 123, 0)

	assert.Len(t, f.Events, 3)
	assert.Equal(t, "on", f.Events[0].Kind)
	assert.Equal(t, uint8(60), f.Events[0].Note)
	assert.Equal(t, "off", f.Events[1].Kind)
	assert.Equal(t, "cc", f.Events[2].Kind)
	assert.Equal(t, uint8(123), f.Events[2].Controller)
}

func TestFakeResetClearsEvents(t *testing.T) {
	f := NewFake()
	_ = f.NoteOn(0, 60, 100)
	f.Reset()
	assert.Empty(t, f.Events)
}
