package logic

import (
	"fmt"
	"time"
)

// Phase is the actuation phase of the Machine.
type Phase int

const (
	PhaseIdle      Phase = iota // resting; sensors watch for manual moves
	PhasePressing               // start pulse held, execute pending
	PhaseMoving                 // door travelling, waiting for a sensor or the move timer
	PhaseStopping               // stop pulse held, execute or reverse pending
	PhaseReversing              // stop pulse released, start pending
	PhaseTracking               // manual move observed through the sensors
)

var phaseNames = [...]string{
	PhaseIdle:      "idle",
	PhasePressing:  "pressing",
	PhaseMoving:    "moving",
	PhaseStopping:  "stopping",
	PhaseReversing: "reversing",
	PhaseTracking:  "tracking",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Machine is the door state machine. It owns the canonical door state and
// is driven by Handle; every side effect is returned as a Command.
// Not safe for concurrent use.
type Machine struct {
	cfg Config

	current     DoorState
	target      DoorState
	last        DoorState
	obstruction bool
	source      Source

	phase         Phase
	writeLevel    int
	stopRequested bool // the move was stopped on request, not obstructed
	reversing     bool
	token         uint64
	armed         [2]bool
	armTokens     [2]uint64
	armSeq        uint64

	gate  requestGate
	stats Stats

	now time.Time
	out []Command
	err error
}

// NewMachine creates the state machine from the initial sensor levels and
// returns the commands that arm the sensors and publish the initial state.
// Without sensors the door is assumed CLOSED.
func NewMachine(cfg Config, levels Levels, now time.Time) (*Machine, []Command, error) {
	if err := cfg.Check(); err != nil {
		return nil, nil, fmt.Errorf("invalid door config: %w", err)
	}

	m := &Machine{
		cfg:        cfg,
		current:    Closed,
		target:     Closed,
		writeLevel: cfg.RelayLevel,
		gate:       newRequestGate(cfg.Policy, cfg.BurstWindow),
		now:        now,
	}

	if m.hasSensors() {
		// Obstruction cannot be told apart from a partial open at startup.
		m.current, m.target = cfg.Infer(levels)
		if m.target != Closed {
			m.observeStats(SourceManual)
		}
		m.armFor(m.current)
	}
	m.last = m.current
	m.publish()

	cmds, err := m.flush()
	if err != nil {
		return nil, nil, err
	}
	return m, cmds, nil
}

// Handle applies one event and returns the resulting commands in the order
// they must be executed. Timer events with a stale token and edges from
// sensors that are not armed, or were armed again since, are ignored.
func (m *Machine) Handle(ev Event) ([]Command, error) {
	m.now = ev.Time

	switch ev.Kind {
	case EventMoveRequested:
		m.request(ev.Target)
	case EventTimerExpired:
		if ev.Token != m.token || m.phase == PhaseIdle {
			return nil, nil
		}
		m.timerExpired(ev.Levels)
	case EventSensorEdge:
		if ev.Sensor < 0 || int(ev.Sensor) >= len(m.cfg.Sensors) {
			return nil, fmt.Errorf("edge from unconfigured %s sensor", ev.Sensor)
		}
		if !m.armed[ev.Sensor] || ev.Token != m.armTokens[ev.Sensor] {
			return nil, nil
		}
		m.sensorFired(ev.Sensor, ev.Levels)
	default:
		return nil, fmt.Errorf("unknown event %v", ev.Kind)
	}

	return m.flush()
}

// Status returns the door state as published upward.
func (m *Machine) Status() Status {
	return Status{
		Current:     m.current,
		Target:      m.target,
		Obstruction: m.obstruction,
		Source:      m.source,
	}
}

// Phase returns the current actuation phase.
func (m *Machine) Phase() Phase { return m.phase }

// Last returns the previous resting state.
func (m *Machine) Last() DoorState { return m.last }

// WriteLevel returns the level the next pulse will write.
func (m *Machine) WriteLevel() int { return m.writeLevel }

// Armed reports whether the sensor interrupt is registered.
func (m *Machine) Armed(id SensorID) bool {
	return id >= 0 && int(id) < len(m.armed) && m.armed[id]
}

// Superseded returns the number of requests received during the current
// remote move.
func (m *Machine) Superseded() int { return m.gate.superseded }

// Suspended reports whether interrupting requests are rejected until the
// door comes to rest.
func (m *Machine) Suspended() bool { return m.gate.suspended() }

func (m *Machine) hasSensors() bool { return len(m.cfg.Sensors) > 0 }

func (m *Machine) remoteInFlight() bool {
	return m.phase != PhaseIdle && m.source == SourceRemote
}

// interrupting reports whether a start, stop or reverse pulse is held.
func (m *Machine) interrupting() bool {
	return m.phase == PhasePressing || m.phase == PhaseStopping || m.phase == PhaseReversing
}

// request handles a move request from the remote API.
func (m *Machine) request(target DoorState) {
	if target != Open && target != Closed {
		m.fail(fmt.Errorf("invalid target state %v", target))
		return
	}

	interrupt := false
	if m.remoteInFlight() {
		if ok, reason := m.gate.admit(m.now, m.interrupting()); !ok {
			m.alert(fmt.Sprintf("Disregarding new request %v - currently processing %v request: %s", target, m.current, reason))
			m.publish()
			return
		}
		interrupt = true
		msg := fmt.Sprintf("Stopping current %v", m.current)
		if m.cfg.Policy.SupersedesRequest() {
			msg += fmt.Sprintf(" - starting new %v request", travelToward(target))
		}
		m.alert(msg)
	} else if m.phase == PhaseIdle && m.current == target {
		m.publish()
		return
	}

	m.source = SourceRemote
	m.target = target
	m.current = travelToward(target)
	if interrupt {
		m.stop()
	} else {
		m.start()
	}
	m.publish()
}

// timerExpired runs the continuation of the current phase.
func (m *Machine) timerExpired(levels Levels) {
	switch m.phase {
	case PhasePressing:
		m.execute()
	case PhaseStopping:
		if m.cfg.Policy.SupersedesRequest() {
			m.reverse()
		} else {
			m.execute()
		}
	case PhaseReversing:
		m.start()
	case PhaseMoving:
		m.cancelAll()
		if m.hasSensors() {
			m.completeFromSensors(levels)
			return
		}
		// Position is assumed, never verified.
		m.complete(m.target, false, m.target)
	case PhaseTracking:
		m.cancelAll()
		m.completeFromSensors(levels)
	default:
		m.fail(fmt.Errorf("timer expired in phase %v", m.phase))
	}
}

// complete settles the door in a resting state.
func (m *Machine) complete(openOrClosed DoorState, obstruction bool, current DoorState) {
	if !current.Stable() {
		m.fail(fmt.Errorf("cannot settle door in %v", current))
		return
	}
	source := m.source
	superseded := m.gate.superseded

	m.target = openOrClosed
	m.current = current
	m.obstruction = obstruction
	m.publish()

	m.last = current
	m.stopRequested = false
	m.reversing = false
	m.phase = PhaseIdle

	m.observeStats(source)
	if source == SourceRemote && superseded > 0 {
		m.alert(fmt.Sprintf("There were %d requests to reverse the current door move request", superseded))
	}
	m.source = SourceManual

	m.armFor(current)
	m.gate.reset()

	// A manual button press may have left the line in an unknown state.
	m.writeLevel = m.cfg.RelayLevel
	m.out = append(m.out, Command{
		Kind:      CmdResetSwitch,
		Level:     m.cfg.RestLevel(),
		ActiveLow: m.cfg.RelayLevel == LevelNO,
	})
}

func (m *Machine) observeStats(source Source) {
	for _, r := range m.stats.Observe(m.now, m.target, m.obstruction, source) {
		m.out = append(m.out, Command{Kind: CmdStats, Stats: r})
	}
}

func (m *Machine) publish() {
	m.out = append(m.out, Command{Kind: CmdPublish, Status: m.Status()})
}

func (m *Machine) alert(msg string) {
	m.out = append(m.out, Command{Kind: CmdAlert, Message: msg})
}

func (m *Machine) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

func (m *Machine) flush() ([]Command, error) {
	cmds, err := m.out, m.err
	m.out, m.err = nil, nil
	if err != nil {
		return nil, err
	}
	return cmds, nil
}
