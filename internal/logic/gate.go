package logic

import "time"

type gateState int

const (
	gateOpen      gateState = iota // superseding requests are considered
	gateSuspended                  // burst window expired, rejected until the move completes
)

// requestGate decides whether a request may interrupt a remote move that is
// still in flight.
type requestGate struct {
	policy InterruptPolicy
	window time.Duration

	state      gateState
	superseded int
	firstAt    time.Time
}

func newRequestGate(policy InterruptPolicy, window time.Duration) requestGate {
	return requestGate{policy: policy, window: window}
}

// admit counts the request and reports whether it may interrupt. busy is
// true while a start, stop or reverse pulse is being held.
func (g *requestGate) admit(now time.Time, busy bool) (bool, string) {
	g.superseded++

	if !g.policy.Authorized() {
		return false, "interrupting requests are disabled"
	}
	if g.state == gateSuspended {
		return false, "too many requests, suspended until the door stops"
	}
	if g.window > 0 {
		if g.superseded == 1 {
			g.firstAt = now
		} else if now.Sub(g.firstAt) >= g.window {
			g.state = gateSuspended
			return false, "too many requests, suspended until the door stops"
		}
	}
	if busy {
		return false, "a stop or reverse is already in progress"
	}
	return true, ""
}

// reset clears the burst bookkeeping once the door has come to rest.
func (g *requestGate) reset() {
	g.state = gateOpen
	g.superseded = 0
	g.firstAt = time.Time{}
}

func (g *requestGate) suspended() bool {
	return g.state == gateSuspended
}
