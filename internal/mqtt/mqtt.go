// Package mqtt provides the door's remote API over MQTT with abstraction for
// testing: retained door state, stats records, system lifecycle events and
// an inbound command topic.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultTopic is the base topic all door topics hang off.
const DefaultTopic = "home/garage/door"

// Topics holds the topics derived from a base topic.
type Topics struct {
	State   string // retained door status
	Stats   string // open/close and obstruction records
	System  string // lifecycle events and LWT
	Command string // inbound target state requests
}

// NewTopics derives the door topics from base.
func NewTopics(base string) Topics {
	base = strings.TrimSuffix(base, "/")
	return Topics{
		State:   base + "/state",
		Stats:   base + "/stats",
		System:  base + "/system",
		Command: base + "/set",
	}
}

// Publisher publishes door events to MQTT.
type Publisher interface {
	// PublishState sends the door status. Retained so late subscribers see
	// the current state.
	PublishState(st logic.Status, at time.Time) error

	// PublishStats sends a stats record.
	PublishStats(r logic.StatsRecord) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives a parsed target state from the command topic.
type CommandHandler func(target logic.DoorState)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "ALERT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only) or the alert text
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload is the MQTT message payload for the door status.
type StatePayload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the door status details.
type DoorPayload struct {
	Timestamp   string `json:"timestamp"`
	Current     string `json:"current"`
	Target      string `json:"target"`
	Obstruction bool   `json:"obstruction"`
	Source      string `json:"source"`
}

// FormatState creates the JSON payload for a door status.
func FormatState(st logic.Status, at time.Time) ([]byte, error) {
	return json.Marshal(StatePayload{
		Door: DoorPayload{
			Timestamp:   at.UTC().Format(time.RFC3339),
			Current:     st.Current.String(),
			Target:      st.Target.String(),
			Obstruction: st.Obstruction,
			Source:      st.Source.String(),
		},
	})
}

// StatsPayload is the MQTT message payload for a stats record.
type StatsPayload struct {
	Stats StatsInner `json:"stats"`
}

// StatsInner contains the stats record details.
type StatsInner struct {
	Timestamp       string `json:"timestamp"`
	Event           string `json:"event"`
	State           string `json:"state"`
	Source          string `json:"source,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	OpenSource      string `json:"open_source,omitempty"`
}

// FormatStats creates the JSON payload for a stats record.
func FormatStats(r logic.StatsRecord) ([]byte, error) {
	inner := StatsInner{
		Timestamp:       r.Time.UTC().Format(time.RFC3339),
		Event:           r.Kind.String(),
		State:           r.State.String(),
		DurationSeconds: int64(r.Duration / time.Second),
	}
	switch r.Kind {
	case logic.StatsOpened:
		inner.Source = r.Source.String()
	case logic.StatsClosed:
		inner.Source = r.Source.String()
		inner.OpenSource = r.OpenSource.String()
	}
	return json.Marshal(StatsPayload{Stats: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED, ALERT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ErrInvalidCommand is returned by ParseCommand for unusable payloads.
var ErrInvalidCommand = errors.New("invalid door command")

type commandPayload struct {
	Target string `json:"target"`
}

// ParseCommand decodes a command topic payload. It accepts a bare state name
// ("OPEN", "CLOSE", "CLOSED") or {"target": "..."}. Only OPEN and CLOSED are
// valid targets.
func ParseCommand(payload []byte) (logic.DoorState, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var cmd commandPayload
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		text = cmd.Target
	}

	target, err := logic.ParseDoorState(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if target != logic.Open && target != logic.Closed {
		return 0, fmt.Errorf("%w: target must be OPEN or CLOSED, got %v", ErrInvalidCommand, target)
	}
	return target, nil
}
