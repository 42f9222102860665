package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Door          DoorJSON     `json:"door"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DoorJSON is the JSON representation of the door status.
type DoorJSON struct {
	Current     string `json:"current"`
	Target      string `json:"target"`
	Obstruction bool   `json:"obstruction"`
	Source      string `json:"source"`
	ChangedAt   string `json:"changed_at,omitempty"`
	OpenSeconds int64  `json:"open_seconds,omitempty"`
	LastAlert   string `json:"last_alert,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of door activity counts.
type CountsJSON struct {
	Opened       int `json:"opened"`
	Closed       int `json:"closed"`
	Obstructions int `json:"obstructions"`
	Alerts       int `json:"alerts"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Name        string `json:"name,omitempty"`
	Sensors     int    `json:"sensors"`
	PressMs     int64  `json:"press_ms"`
	MoveMs      int64  `json:"move_ms"`
	Relay       string `json:"relay"`
	Policy      string `json:"interrupt_policy"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	Topic       string `json:"topic"`
	HTTPPort    string `json:"http_port"`
}

// DoorView returns the door section of the status, with UNKNOWN states
// until the first door status has been recorded.
func DoorView(snap Snapshot) DoorJSON {
	if !snap.Known {
		return DoorJSON{Current: "UNKNOWN", Target: "UNKNOWN", LastAlert: snap.LastAlert}
	}
	d := DoorJSON{
		Current:     snap.Door.Current.String(),
		Target:      snap.Door.Target.String(),
		Obstruction: snap.Door.Obstruction,
		Source:      snap.Door.Source.String(),
		LastAlert:   snap.LastAlert,
	}
	if !snap.ChangedAt.IsZero() {
		d.ChangedAt = snap.ChangedAt.UTC().Format(time.RFC3339)
	}
	if !snap.OpenSince.IsZero() && snap.Now.After(snap.OpenSince) {
		d.OpenSeconds = int64(snap.Now.Sub(snap.OpenSince) / time.Second)
	}
	return d
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Door:          DoorView(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Opened:       snap.Counts.Opened,
			Closed:       snap.Counts.Closed,
			Obstructions: snap.Counts.Obstructions,
			Alerts:       snap.Counts.Alerts,
		},
		Config: ConfigJSON{
			Name:        snap.Config.Name,
			Sensors:     snap.Config.Sensors,
			PressMs:     snap.Config.PressMs,
			MoveMs:      snap.Config.MoveMs,
			Relay:       snap.Config.Relay,
			Policy:      snap.Config.Policy,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			Topic:       snap.Config.Topic,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
