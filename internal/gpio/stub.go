//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealSwitch is not available on non-Linux platforms.
type RealSwitch struct{}

// Switch returns an error on non-Linux platforms.
func (c *Chip) Switch(pin, level int, activeLow bool) (*RealSwitch, error) {
	return nil, errUnsupported
}

func (s *RealSwitch) Write(level int) error             { return errUnsupported }
func (s *RealSwitch) SetDirection(d Direction) error    { return errUnsupported }
func (s *RealSwitch) SetActiveLow(activeLow bool) error { return errUnsupported }
func (s *RealSwitch) Close() error                      { return nil }

// RealSensor is not available on non-Linux platforms.
type RealSensor struct{}

// Sensor returns an error on non-Linux platforms.
func (c *Chip) Sensor(pin int, debounce time.Duration, bias Bias) (*RealSensor, error) {
	return nil, errUnsupported
}

func (s *RealSensor) Read() (int, error)             { return 0, errUnsupported }
func (s *RealSensor) SetEdge(e Edge) error           { return errUnsupported }
func (s *RealSensor) Watch(h InterruptHandler) error { return errUnsupported }
func (s *RealSensor) Unwatch() error                 { return nil }
func (s *RealSensor) Close() error                   { return nil }
