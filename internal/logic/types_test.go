package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDoorState(t *testing.T) {
	tests := []struct {
		in      string
		want    DoorState
		wantErr bool
	}{
		{"OPEN", Open, false},
		{"open", Open, false},
		{" Closed ", Closed, false},
		{"CLOSE", Closed, false},
		{"stopped", Stopped, false},
		{"opening", Opening, false},
		{"ajar", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDoorState(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDoorStateHelpers(t *testing.T) {
	assert.True(t, Open.Stable())
	assert.True(t, Stopped.Stable())
	assert.False(t, Closing.Stable())
	assert.Equal(t, Open, Opening.Terminal())
	assert.Equal(t, Closed, Closing.Terminal())
	assert.Equal(t, Stopped, Stopped.Terminal())
	assert.False(t, DoorState(7).Valid())
	assert.Equal(t, "DoorState(7)", DoorState(7).String())
	assert.Equal(t, "CLOSING", Closing.String())
}

func TestParseInterruptPolicy(t *testing.T) {
	p, err := ParseInterruptPolicy("STOP")
	require.NoError(t, err)
	assert.Equal(t, PolicyStop, p)
	assert.True(t, p.Authorized())
	assert.False(t, p.SupersedesRequest())

	assert.True(t, PolicyOn.SupersedesRequest())
	assert.False(t, PolicyOff.Authorized())

	_, err = ParseInterruptPolicy("maybe")
	assert.Error(t, err)
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "remote api", SourceRemote.String())
	assert.Equal(t, "garage door opener", SourceManual.String())
}

func TestRequestGate(t *testing.T) {
	g := newRequestGate(PolicyOn, 2*time.Second)

	ok, _ := g.admit(t0, false)
	assert.True(t, ok)

	ok, reason := g.admit(t0.Add(time.Second), true)
	assert.False(t, ok)
	assert.Contains(t, reason, "already in progress")
	assert.False(t, g.suspended())

	ok, _ = g.admit(t0.Add(2*time.Second), false)
	assert.False(t, ok)
	assert.True(t, g.suspended())

	ok, _ = g.admit(t0.Add(2*time.Second), false)
	assert.False(t, ok)
	assert.Equal(t, 4, g.superseded)

	g.reset()
	assert.False(t, g.suspended())
	assert.Equal(t, 0, g.superseded)
	ok, _ = g.admit(t0.Add(time.Hour), false)
	assert.True(t, ok)
}

func TestRequestGateOff(t *testing.T) {
	g := newRequestGate(PolicyOff, 0)
	ok, reason := g.admit(t0, false)
	assert.False(t, ok)
	assert.Contains(t, reason, "disabled")
	assert.Equal(t, 1, g.superseded)
}
