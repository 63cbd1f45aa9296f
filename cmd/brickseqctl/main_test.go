package main

import (
	"testing"

	"github.com/louwik14/brickseq/internal/codec"
	"github.com/louwik14/brickseq/internal/plockpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicyAcceptsAllThreeNames(t *testing.T) {
	full, err := parsePolicy("full")
	require.NoError(t, err)
	assert.Equal(t, codec.DecodeFull, full)

	dropCart, err := parsePolicy("drop_cart")
	require.NoError(t, err)
	assert.Equal(t, codec.DecodeDropCart, dropCart)

	absent, err := parsePolicy("absent")
	require.NoError(t, err)
	assert.Equal(t, codec.DecodeAbsent, absent)
}

func TestParsePolicyRejectsUnknownName(t *testing.T) {
	_, err := parsePolicy("bogus")
	assert.Error(t, err)
}

func TestDemoTrackHasOneActivePLockedStep(t *testing.T) {
	pool := plockpool.New(plockpool.DefaultCapacity)
	track := demoTrack(pool)

	assert.True(t, track.Steps[0].Active)
	assert.True(t, track.Steps[4].HasSeqPLock(pool))
}

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["encode"])
	assert.True(t, names["decode"])
	assert.True(t, names["inspect"])
}
