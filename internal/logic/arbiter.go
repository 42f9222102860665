package logic

import "fmt"

// EdgeFor returns the edge on which a sensor reports the next transition for
// a door in state. For a moving door the sensor waits for the end of travel;
// for a resting door it waits for the door to leave. The edge is rising when
// the sensor's active level is high and that destination is the sensor's
// position, or when it is low and the destination is elsewhere.
func EdgeFor(c SensorConfig, state DoorState) Edge {
	var matchesDestination bool
	if state.Stable() {
		matchesDestination = state != c.Match()
	} else {
		matchesDestination = state.Terminal() == c.Match()
	}
	if (c.ActiveLevel == 1) == matchesDestination {
		return EdgeRising
	}
	return EdgeFalling
}

// armFor arms the sensor(s) that will report the next physical transition
// from state.
func (m *Machine) armFor(state DoorState) {
	n := len(m.cfg.Sensors)
	if n == 0 {
		return
	}
	both := m.last == Stopped || state == Stopped || m.reversing
	primary := m.cfg.Sensors[Primary]

	switch state {
	case Open, Opening:
		if n == 1 {
			if primary.Position == PositionOpen || state == Open {
				m.arm(Primary, EdgeFor(primary, state))
			}
			return
		}
		m.armPair(Secondary, Primary, state, both)
	case Closed, Closing:
		if n == 1 {
			if primary.Position == PositionClosed || state == Closed {
				m.arm(Primary, EdgeFor(primary, state))
			}
			return
		}
		m.armPair(Primary, Secondary, state, both)
	case Stopped:
		if n < 2 {
			m.fail(fmt.Errorf("door cannot be %v with a single sensor", state))
			return
		}
		m.armPair(Primary, Secondary, state, true)
	default:
		m.fail(fmt.Errorf("invalid door state %v", state))
	}
}

// armPair arms lead for state, or both sensors on either edge when the door
// may move in either direction next.
func (m *Machine) armPair(lead, other SensorID, state DoorState, both bool) {
	if both {
		m.arm(lead, EdgeBoth)
		m.arm(other, EdgeBoth)
		return
	}
	m.arm(lead, EdgeFor(m.cfg.Sensors[lead], state))
}

// arm registers the interrupt, replacing any earlier registration.
func (m *Machine) arm(id SensorID, edge Edge) {
	m.disarm(id)
	m.armed[id] = true
	m.armSeq++
	m.armTokens[id] = m.armSeq
	m.out = append(m.out, Command{Kind: CmdArmSensor, Sensor: id, Edge: edge, Token: m.armSeq})
}

func (m *Machine) disarm(id SensorID) {
	if !m.armed[id] {
		return
	}
	m.armed[id] = false
	m.out = append(m.out, Command{Kind: CmdDisarmSensor, Sensor: id})
}

func (m *Machine) disarmAll() {
	for i := range m.cfg.Sensors {
		m.disarm(SensorID(i))
	}
}

// sensorFired handles an interrupt from an armed sensor.
func (m *Machine) sensorFired(id SensorID, levels Levels) {
	if m.last == Stopped {
		m.disarmAll()
	} else {
		m.disarm(id)
	}

	if m.source == SourceManual && len(m.cfg.Sensors) == 2 && m.trackManualMove(id, levels) {
		return
	}

	m.cancelAll()
	m.completeFromSensors(levels)
}

// trackManualMove detects the door leaving one end of travel after a wall
// button press. It reports whether a manual move is now being tracked.
func (m *Machine) trackManualMove(id SensorID, levels Levels) bool {
	primary := m.cfg.Sensors[Primary].StateFor(levels[Primary])
	secondary := m.cfg.Sensors[Secondary].StateFor(levels[Secondary])
	between := primary == Open && secondary == Closed

	switch m.cfg.Sensors[id].Position {
	case PositionOpen:
		if between {
			m.track(Closing)
			return true
		}
	case PositionClosed:
		if between {
			m.track(Opening)
			return true
		}
	}
	return false
}

// track follows a manual move with the sensors and a synthetic move timer,
// which converges with the no-sensor completion path.
func (m *Machine) track(state DoorState) {
	m.armFor(state)
	m.target = state.Terminal()
	m.current = state
	m.phase = PhaseTracking
	m.publish()
	m.schedule(m.cfg.MoveDuration)
}

// completeFromSensors settles the door in the state the sensors report.
// STOPPED is an obstruction unless the move was stopped on request.
func (m *Machine) completeFromSensors(levels Levels) {
	current, openOrClosed := m.cfg.Infer(levels)
	obstruction := current == Stopped && !m.stopRequested
	m.complete(openOrClosed, obstruction, current)
}
