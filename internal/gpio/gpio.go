// Package gpio provides the door relay output and position sensor inputs with
// hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyWatching is returned by Sensor.Watch when a handler is already
// registered.
var ErrAlreadyWatching = errors.New("gpio: sensor already watched")

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Direction sets a line as output driven low or high.
type Direction int

const (
	DirectionLow Direction = iota
	DirectionHigh
)

// Level returns the output level the direction drives.
func (d Direction) Level() int {
	if d == DirectionHigh {
		return 1
	}
	return 0
}

func (d Direction) String() string {
	if d == DirectionHigh {
		return "high"
	}
	return "low"
}

// Edge selects which level transitions a Sensor reports.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// Matches reports whether a transition to level is reported for e.
func (e Edge) Matches(level int) bool {
	switch e {
	case EdgeBoth:
		return true
	case EdgeRising:
		return level == 1
	case EdgeFalling:
		return level == 0
	}
	return false
}

// Bias selects the pull resistor on a sensor input.
type Bias int

const (
	BiasPullDown Bias = iota
	BiasPullUp
	BiasDisabled
)

func (b Bias) String() string {
	switch b {
	case BiasPullUp:
		return "pull-up"
	case BiasDisabled:
		return "disabled"
	}
	return "pull-down"
}

// ParseBias maps a bias name to a Bias. An empty name is BiasPullDown.
func ParseBias(s string) (Bias, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pull-down", "down":
		return BiasPullDown, nil
	case "pull-up", "up":
		return BiasPullUp, nil
	case "disabled", "none":
		return BiasDisabled, nil
	}
	return 0, fmt.Errorf("unknown bias %q", s)
}

// InterruptHandler receives the line level after a reported edge, or an
// error from the interrupt transport.
type InterruptHandler func(level int, err error)

// Switch drives the opener's momentary relay.
type Switch interface {
	// Write sets the raw output level.
	Write(level int) error

	// SetDirection reasserts the line as an output at the given level.
	SetDirection(d Direction) error

	// SetActiveLow inverts the line polarity.
	SetActiveLow(activeLow bool) error

	// Close releases GPIO resources.
	Close() error
}

// Sensor is a door position input with a single interrupt listener.
type Sensor interface {
	// Read returns the raw line level.
	Read() (int, error)

	// SetEdge selects which transitions invoke the handler.
	SetEdge(e Edge) error

	// Watch registers the interrupt handler. It fails with
	// ErrAlreadyWatching if one is registered.
	Watch(h InterruptHandler) error

	// Unwatch removes the handler. It is a no-op when none is registered.
	Unwatch() error

	// Close releases GPIO resources.
	Close() error
}
