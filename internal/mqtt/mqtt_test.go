package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/garage-door/internal/logic"
)

var ts = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestNewTopics(t *testing.T) {
	topics := NewTopics("home/garage/door/")
	assert.Equal(t, Topics{
		State:   "home/garage/door/state",
		Stats:   "home/garage/door/stats",
		System:  "home/garage/door/system",
		Command: "home/garage/door/set",
	}, topics)
}

func TestFormatStateExactJSON(t *testing.T) {
	payload, err := FormatState(logic.Status{
		Current:     logic.Stopped,
		Target:      logic.Open,
		Obstruction: true,
		Source:      logic.SourceRemote,
	}, ts)
	require.NoError(t, err)

	expected := `{"door":{"timestamp":"2026-02-02T22:18:12Z","current":"STOPPED","target":"OPEN","obstruction":true,"source":"remote api"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatStateTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, err := FormatState(logic.Status{Current: logic.Closed, Target: logic.Closed}, time.Date(2026, 2, 3, 0, 18, 12, 0, loc))
	require.NoError(t, err)

	var parsed StatePayload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, "2026-02-02T22:18:12Z", parsed.Door.Timestamp)
	assert.Equal(t, "garage door opener", parsed.Door.Source)
}

func TestFormatStats(t *testing.T) {
	tests := []struct {
		name   string
		record logic.StatsRecord
		want   string
	}{
		{
			name:   "opened",
			record: logic.StatsRecord{Kind: logic.StatsOpened, Time: ts, State: logic.Open, Source: logic.SourceRemote},
			want:   `{"stats":{"timestamp":"2026-02-02T22:18:12Z","event":"opened","state":"OPEN","source":"remote api"}}`,
		},
		{
			name: "closed",
			record: logic.StatsRecord{
				Kind:       logic.StatsClosed,
				Time:       ts,
				State:      logic.Closed,
				Source:     logic.SourceManual,
				OpenSource: logic.SourceRemote,
				Duration:   90 * time.Second,
			},
			want: `{"stats":{"timestamp":"2026-02-02T22:18:12Z","event":"closed","state":"CLOSED","source":"garage door opener","duration_seconds":90,"open_source":"remote api"}}`,
		},
		{
			name:   "obstruction cleared",
			record: logic.StatsRecord{Kind: logic.StatsCleared, Time: ts, State: logic.Closed, Duration: 42 * time.Second},
			want:   `{"stats":{"timestamp":"2026-02-02T22:18:12Z","event":"obstruction corrected","state":"CLOSED","duration_seconds":42}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatStats(tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(payload))
		})
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: ts,
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`, string(payload))
}

func TestFormatSystemPayloadReconnectedOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "RECONNECTED"})
	require.NoError(t, err)

	var parsed map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.NotContains(t, parsed["system"], "reason")
	assert.Equal(t, "RECONNECTED", parsed["system"]["event"])
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    logic.DoorState
		wantErr bool
	}{
		{"OPEN", logic.Open, false},
		{"close\n", logic.Closed, false},
		{"CLOSED", logic.Closed, false},
		{`{"target":"open"}`, logic.Open, false},
		{`{"target":"CLOSE"}`, logic.Closed, false},
		{"STOPPED", 0, true},
		{"OPENING", 0, true},
		{`{"target":`, 0, true},
		{`{}`, 0, true},
		{"toggle", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	require.NoError(t, f.PublishState(logic.Status{Current: logic.Opening, Target: logic.Open}, ts))
	require.NoError(t, f.PublishStats(logic.StatsRecord{Kind: logic.StatsOpened, Time: ts}))
	require.NoError(t, f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}))

	st, ok := f.LastState()
	require.True(t, ok)
	assert.Equal(t, logic.Opening, st.Current)
	assert.Len(t, f.StatePayloads, 1)
	assert.Len(t, f.Stats, 1)
	assert.Equal(t, []string{"STARTUP"}, f.SystemEventNames())
	assert.True(t, f.SystemEvents[0].Retained)
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated system error")

	assert.EqualError(t, f.PublishState(logic.Status{}, ts), "simulated error")
	assert.EqualError(t, f.PublishStats(logic.StatsRecord{}), "simulated error")
	assert.EqualError(t, f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}), "simulated system error")

	_, ok := f.LastState()
	assert.False(t, ok)
	assert.Empty(t, f.SystemEvents)
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	var got []logic.DoorState
	f.OnCommand = func(target logic.DoorState) { got = append(got, target) }

	require.NoError(t, f.Deliver([]byte("OPEN")))
	assert.Error(t, f.Deliver([]byte("STOPPED")))
	assert.Equal(t, []logic.DoorState{logic.Open}, got)
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	require.NoError(t, f.PublishState(logic.Status{}, ts))
	require.NoError(t, f.Close())

	f.Reset()
	assert.Empty(t, f.States)
	assert.False(t, f.Closed)
	assert.False(t, f.IsConnected())
}
