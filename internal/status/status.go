// Package status provides a thread-safe status tracker for the garage-door daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Name        string
	Sensors     int
	PressMs     int64
	MoveMs      int64
	Relay       string
	Policy      string
	HeartbeatMs int64
	Broker      string
	Topic       string
	HTTPPort    string
}

// Counts tallies door activity since startup.
type Counts struct {
	Opened       int
	Closed       int
	Obstructions int
	Alerts       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Door      logic.Status
	Known     bool // a door status has been published
	ChangedAt time.Time
	OpenSince time.Time // zero while closed
	LastAlert string
	Counts    Counts

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetDoor records a published door status.
func (t *Tracker) SetDoor(st logic.Status, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.snap.Known || st != t.snap.Door {
		t.snap.ChangedAt = at
	}
	t.snap.Door = st
	t.snap.Known = true
}

// RecordStats updates the counters from a stats record.
func (t *Tracker) RecordStats(r logic.StatsRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch r.Kind {
	case logic.StatsOpened:
		t.snap.Counts.Opened++
		t.snap.OpenSince = r.Time
	case logic.StatsClosed:
		t.snap.Counts.Closed++
		t.snap.OpenSince = time.Time{}
	case logic.StatsObstructed:
		t.snap.Counts.Obstructions++
	}
}

// RecordAlert counts a policy alert and keeps its message.
func (t *Tracker) RecordAlert(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Counts.Alerts++
	t.snap.LastAlert = msg
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
