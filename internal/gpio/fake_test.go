package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSwitchWrite(t *testing.T) {
	f := NewFakeSwitch(1)

	require.NoError(t, f.Write(1))
	require.NoError(t, f.Write(0))
	assert.Equal(t, []int{1, 0}, f.WriteLog())
	assert.Equal(t, 0, f.Level)

	f.WriteError = errors.New("simulated error")
	assert.EqualError(t, f.Write(1), "simulated error")
	assert.Equal(t, []int{1, 0}, f.WriteLog())
}

func TestFakeSwitchReset(t *testing.T) {
	f := NewFakeSwitch(0)

	require.NoError(t, f.SetDirection(DirectionHigh))
	require.NoError(t, f.SetActiveLow(true))
	assert.Equal(t, 1, f.Level)
	assert.True(t, f.ActiveLow)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

func TestFakeSensorEdgeFiltering(t *testing.T) {
	f := NewFakeSensor(0)
	var got []int
	require.NoError(t, f.SetEdge(EdgeRising))
	require.NoError(t, f.Watch(func(level int, err error) {
		require.NoError(t, err)
		got = append(got, level)
	}))

	assert.True(t, f.Set(1))
	assert.False(t, f.Set(1), "no transition")
	assert.False(t, f.Set(0), "falling edge not reported")

	require.NoError(t, f.SetEdge(EdgeBoth))
	assert.True(t, f.Set(1))
	assert.True(t, f.Set(0))
	assert.Equal(t, []int{1, 1, 0}, got)

	level, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, level)
}

func TestFakeSensorSingleWatcher(t *testing.T) {
	f := NewFakeSensor(0)
	h := func(int, error) {}

	require.NoError(t, f.Watch(h))
	assert.ErrorIs(t, f.Watch(h), ErrAlreadyWatching)

	require.NoError(t, f.Unwatch())
	assert.False(t, f.Watching())
	require.NoError(t, f.Unwatch())
	require.NoError(t, f.Watch(h))
}

func TestFakeSensorUnwatchedIgnoresEdges(t *testing.T) {
	f := NewFakeSensor(0)
	require.NoError(t, f.SetEdge(EdgeBoth))
	assert.False(t, f.Set(1))
}

func TestFakeSensorFail(t *testing.T) {
	f := NewFakeSensor(0)
	var got error
	require.NoError(t, f.Watch(func(_ int, err error) { got = err }))

	f.Fail(errors.New("interrupt lost"))
	assert.EqualError(t, got, "interrupt lost")
}

func TestFakeSensorReadError(t *testing.T) {
	f := NewFakeSensor(1)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	assert.Error(t, err)
}

func TestEdgeMatches(t *testing.T) {
	assert.True(t, EdgeRising.Matches(1))
	assert.False(t, EdgeRising.Matches(0))
	assert.True(t, EdgeFalling.Matches(0))
	assert.True(t, EdgeBoth.Matches(0))
	assert.False(t, EdgeNone.Matches(1))
	assert.Equal(t, 1, DirectionHigh.Level())
	assert.Equal(t, "falling", EdgeFalling.String())
}

func TestParseBias(t *testing.T) {
	tests := []struct {
		in   string
		want Bias
	}{
		{"", BiasPullDown},
		{"pull-down", BiasPullDown},
		{"Pull-Up", BiasPullUp},
		{"up", BiasPullUp},
		{"disabled", BiasDisabled},
		{" none ", BiasDisabled},
	}
	for _, tt := range tests {
		got, err := ParseBias(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseBias("floating")
	assert.Error(t, err)
	assert.Equal(t, "pull-up", BiasPullUp.String())
}
