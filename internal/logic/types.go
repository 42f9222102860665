// Package logic contains the pure garage door control logic: the door state
// machine, the switch actuation sequencer, the sensor interrupt arbiter, the
// request arbiter and the stats collector.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time fields on events.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// DoorState is the door position reported upward. Values follow the HomeKit
// CurrentDoorState numbering.
type DoorState int

const (
	Open DoorState = iota
	Closed
	Opening
	Closing
	Stopped
)

var doorStateNames = [...]string{
	Open:    "OPEN",
	Closed:  "CLOSED",
	Opening: "OPENING",
	Closing: "CLOSING",
	Stopped: "STOPPED",
}

func (s DoorState) String() string {
	if s < 0 || int(s) >= len(doorStateNames) {
		return fmt.Sprintf("DoorState(%d)", int(s))
	}
	return doorStateNames[s]
}

// Valid reports whether s is one of the five door states.
func (s DoorState) Valid() bool {
	return s >= Open && s <= Stopped
}

// Stable reports whether s is a resting state (no actuation in flight).
func (s DoorState) Stable() bool {
	return s == Open || s == Closed || s == Stopped
}

// Terminal returns the end of travel for a moving state, or s itself.
func (s DoorState) Terminal() DoorState {
	switch s {
	case Opening:
		return Open
	case Closing:
		return Closed
	}
	return s
}

// travelToward returns the moving state that ends at target.
func travelToward(target DoorState) DoorState {
	if target == Open {
		return Opening
	}
	return Closing
}

// ParseDoorState converts a state name (case-insensitive) to a DoorState.
// "CLOSE" is accepted as an alias for CLOSED.
func ParseDoorState(s string) (DoorState, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "CLOSE" {
		return Closed, nil
	}
	for i, n := range doorStateNames {
		if n == name {
			return DoorState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown door state %q", s)
}

// Position is the end of travel at which a sensor is mechanically triggered.
type Position int

const (
	PositionClosed Position = iota
	PositionOpen
)

func (p Position) String() string {
	if p == PositionOpen {
		return "open"
	}
	return "closed"
}

// Edge selects which level transition of a sensor raises an interrupt.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

var edgeNames = [...]string{
	EdgeNone:    "none",
	EdgeRising:  "rising",
	EdgeFalling: "falling",
	EdgeBoth:    "both",
}

func (e Edge) String() string {
	if e < 0 || int(e) >= len(edgeNames) {
		return fmt.Sprintf("Edge(%d)", int(e))
	}
	return edgeNames[e]
}

// Source identifies who initiated the current door operation.
type Source int

const (
	SourceManual Source = iota // wall button or car remote
	SourceRemote               // remote API request
)

func (s Source) String() string {
	if s == SourceRemote {
		return "remote api"
	}
	return "garage door opener"
}

// InterruptPolicy decides what happens to a request that arrives while a
// remote request is still moving the door.
type InterruptPolicy int

const (
	PolicyOff  InterruptPolicy = iota // disregard the new request
	PolicyStop                        // stop the door, do not start the new request
	PolicyOn                          // stop the door, then run the new request
)

var policyNames = [...]string{
	PolicyOff:  "off",
	PolicyStop: "stop",
	PolicyOn:   "on",
}

func (p InterruptPolicy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("InterruptPolicy(%d)", int(p))
	}
	return policyNames[p]
}

// Authorized reports whether an in-flight move may be interrupted at all.
func (p InterruptPolicy) Authorized() bool {
	return p == PolicyStop || p == PolicyOn
}

// SupersedesRequest reports whether the interrupting request is executed
// after the stop.
func (p InterruptPolicy) SupersedesRequest() bool {
	return p == PolicyOn
}

// ParseInterruptPolicy converts the off/on/stop keyword.
func ParseInterruptPolicy(s string) (InterruptPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range policyNames {
		if n == name {
			return InterruptPolicy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown interrupt policy %q", s)
}

// SensorID indexes the configured sensors.
type SensorID int

const (
	Primary   SensorID = iota // CLOSED side when two sensors are fitted
	Secondary                 // always the OPEN side
)

func (id SensorID) String() string {
	if id == Secondary {
		return "secondary"
	}
	return "primary"
}

// Levels holds raw sensor levels indexed by SensorID.
type Levels [2]int

// Status is the door state published upward.
type Status struct {
	Current     DoorState
	Target      DoorState
	Obstruction bool
	Source      Source
}

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventMoveRequested EventKind = iota
	EventTimerExpired
	EventSensorEdge
)

var eventKindNames = [...]string{
	EventMoveRequested: "MoveRequested",
	EventTimerExpired:  "TimerExpired",
	EventSensorEdge:    "SensorEdge",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// Event is a single input to Machine.Handle.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Target DoorState // EventMoveRequested
	Token  uint64    // EventTimerExpired, EventSensorEdge
	Sensor SensorID  // EventSensorEdge
	// Levels are sensor levels sampled when a timer or sensor event is
	// dispatched. Unused entries are zero.
	Levels Levels
}

// CommandKind identifies a side effect requested by the state machine.
type CommandKind int

const (
	CmdPulse        CommandKind = iota // write Level to the switch
	CmdResetSwitch                     // reassert rest Level and ActiveLow
	CmdStartTimer                      // replace the pending timer
	CmdCancelTimer                     // drop the pending timer
	CmdArmSensor                       // set Edge on Sensor and register the interrupt
	CmdDisarmSensor                    // unregister the Sensor interrupt
	CmdPublish                         // notify Status upward
	CmdAlert                           // non-fatal policy message
	CmdStats                           // stats record
)

var commandKindNames = [...]string{
	CmdPulse:        "Pulse",
	CmdResetSwitch:  "ResetSwitch",
	CmdStartTimer:   "StartTimer",
	CmdCancelTimer:  "CancelTimer",
	CmdArmSensor:    "ArmSensor",
	CmdDisarmSensor: "DisarmSensor",
	CmdPublish:      "Publish",
	CmdAlert:        "Alert",
	CmdStats:        "Stats",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandKindNames) {
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
	return commandKindNames[k]
}

// Command is a side effect for the executor. Only the fields relevant to
// Kind are set.
type Command struct {
	Kind      CommandKind
	Level     int           // CmdPulse, CmdResetSwitch
	ActiveLow bool          // CmdResetSwitch
	After     time.Duration // CmdStartTimer
	Token     uint64        // CmdStartTimer, CmdArmSensor
	Sensor    SensorID      // CmdArmSensor, CmdDisarmSensor
	Edge      Edge          // CmdArmSensor
	Status    Status        // CmdPublish
	Message   string        // CmdAlert
	Stats     StatsRecord   // CmdStats
}
