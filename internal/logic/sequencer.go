package logic

import "time"

// The opener is wired to a momentary button: every pulse toggles the relay,
// so two consecutive pulses are a press followed by a release. Each step
// schedules the next one through the single pending timer.
//
//	start:   press,   then execute after PressDuration
//	execute: release, then wait MoveDuration (or a sensor) for completion
//	stop:    press,   then execute (stop only) or reverse after PressDuration
//	reverse: release, then start after PressDuration

// start presses the button for a fresh move. Sensors are disarmed first so
// the relay transition cannot trigger them.
func (m *Machine) start() {
	m.cancelAll()
	m.phase = PhasePressing
	m.pulse(m.cfg.PressDuration)
}

// execute releases the button and waits for the door to finish moving.
// Whichever of the move timer and an armed sensor fires first completes the
// move; both paths cancel the other trigger first.
func (m *Machine) execute() {
	m.phase = PhaseMoving
	m.pulse(m.cfg.MoveDuration)
	if m.hasSensors() {
		m.armFor(m.current)
	}
}

// stop presses the button to halt an in-flight move.
func (m *Machine) stop() {
	m.cancelAll()
	m.phase = PhaseStopping
	if !m.cfg.Policy.SupersedesRequest() {
		m.stopRequested = true
	}
	m.pulse(m.cfg.PressDuration)
}

// reverse releases the stop press; the next timer restarts the door toward
// the new target.
func (m *Machine) reverse() {
	m.phase = PhaseReversing
	m.reversing = true
	m.pulse(m.cfg.PressDuration)
}

func (m *Machine) pulse(next time.Duration) {
	m.out = append(m.out, Command{Kind: CmdPulse, Level: m.writeLevel})
	m.writeLevel ^= 1
	m.schedule(next)
}

// schedule replaces the pending timer.
func (m *Machine) schedule(after time.Duration) {
	m.token++
	m.out = append(m.out, Command{Kind: CmdStartTimer, After: after, Token: m.token})
}

func (m *Machine) cancelTimer() {
	m.token++
	m.out = append(m.out, Command{Kind: CmdCancelTimer})
}

// cancelAll drops the pending timer and every sensor registration.
func (m *Machine) cancelAll() {
	m.cancelTimer()
	m.disarmAll()
}
