//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Chip opens lines on a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip, DefaultChip if name is empty.
func OpenChip(name string) (*Chip, error) {
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *Chip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// RealSwitch is the relay output line.
type RealSwitch struct {
	line *gpiocdev.Line
	pin  int
}

// Switch requests pin as an output resting at level, inverted when
// activeLow is set.
func (c *Chip) Switch(pin, level int, activeLow bool) (*RealSwitch, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(level)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request switch pin %d: %w", pin, err)
	}
	return &RealSwitch{line: line, pin: pin}, nil
}

// Write sets the raw output level.
func (s *RealSwitch) Write(level int) error {
	if err := s.line.SetValue(level); err != nil {
		return fmt.Errorf("write switch pin %d: %w", s.pin, err)
	}
	return nil
}

// SetDirection reasserts the line as an output at the direction's level.
func (s *RealSwitch) SetDirection(d Direction) error {
	if err := s.line.Reconfigure(gpiocdev.AsOutput(d.Level())); err != nil {
		return fmt.Errorf("set switch pin %d direction: %w", s.pin, err)
	}
	return nil
}

// SetActiveLow inverts the line polarity.
func (s *RealSwitch) SetActiveLow(activeLow bool) error {
	var opt gpiocdev.LineConfigOption = gpiocdev.AsActiveHigh
	if activeLow {
		opt = gpiocdev.AsActiveLow
	}
	if err := s.line.Reconfigure(opt); err != nil {
		return fmt.Errorf("set switch pin %d active low: %w", s.pin, err)
	}
	return nil
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// so the relay is not held during shutdown/reboot.
func (s *RealSwitch) Close() error {
	var errs []error
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure switch pin %d: %w", s.pin, err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close switch pin %d: %w", s.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealSensor is a position sensor input. The kernel reports both edges;
// the configured edge and handler filter them.
type RealSensor struct {
	line *gpiocdev.Line
	pin  int

	mu      sync.Mutex
	edge    Edge
	handler InterruptHandler
}

// Sensor requests pin as a biased input reporting both edges. A non-zero
// debounce is applied by the kernel.
func (c *Chip) Sensor(pin int, debounce time.Duration, bias Bias) (*RealSensor, error) {
	s := &RealSensor{pin: pin}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		biasOption(bias),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handleEvent),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}
	s.line = line
	return s, nil
}

func biasOption(b Bias) gpiocdev.LineReqOption {
	switch b {
	case BiasPullUp:
		return gpiocdev.WithPullUp
	case BiasDisabled:
		return gpiocdev.WithBiasDisabled
	}
	return gpiocdev.WithPullDown
}

// Read returns the raw line level.
func (s *RealSensor) Read() (int, error) {
	v, err := s.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read sensor pin %d: %w", s.pin, err)
	}
	return v, nil
}

// SetEdge selects which transitions invoke the handler.
func (s *RealSensor) SetEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge = e
	return nil
}

// Watch registers the interrupt handler.
func (s *RealSensor) Watch(h InterruptHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return ErrAlreadyWatching
	}
	s.handler = h
	return nil
}

// Unwatch removes the handler.
func (s *RealSensor) Unwatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
	return nil
}

func (s *RealSensor) handleEvent(evt gpiocdev.LineEvent) {
	var level int
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		level = 1
	case gpiocdev.LineEventFallingEdge:
		level = 0
	default:
		return
	}

	s.mu.Lock()
	h, edge := s.handler, s.edge
	s.mu.Unlock()

	if h != nil && edge.Matches(level) {
		h(level, nil)
	}
}

// Close releases the line.
func (s *RealSensor) Close() error {
	_ = s.Unwatch()
	var errs []error
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure sensor pin %d: %w", s.pin, err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sensor pin %d: %w", s.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
