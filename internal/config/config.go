// Package config loads and validates the garage door YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ValidPins are the BCM GPIO lines the switch and sensors may use.
var ValidPins = []int{5, 6, 12, 13, 16, 17, 22, 23, 24, 25, 26, 27}

// Ranges and defaults for the door switch timings.
const (
	DefaultPressMs = 1500
	MinPressMs     = 1000
	MaxPressMs     = 2000

	DefaultMoveSec = 12
	MinMoveSec     = 10
	MaxMoveSec     = 15

	MaxDebounceMs = 1000
)

// File mirrors the YAML document. Pointer fields distinguish absent keys
// from zero values.
type File struct {
	Name             string      `yaml:"name"`
	Chip             string      `yaml:"chip"`
	Sensors          *int        `yaml:"sensors"`
	SensorDebounceMs int         `yaml:"sensorDebounceMs"`
	SensorBias       string      `yaml:"sensorBias"`
	DoorSwitch       *SwitchFile `yaml:"doorSwitch"`
	DoorSensor       *SensorFile `yaml:"doorSensor"`
	DoorSensor2      *Sensor2    `yaml:"doorSensor2"`
}

// SwitchFile is the doorSwitch block.
type SwitchFile struct {
	GPIO                 *int   `yaml:"gpio"`
	PressTimeInMs        *int   `yaml:"pressTimeInMs"`
	MoveTimeInSec        *int   `yaml:"moveTimeInSec"`
	RelaySwitch          string `yaml:"relaySwitch"`
	InterruptDoorRequest string `yaml:"interruptDoorRequest"`
	BurstWindowMs        *int   `yaml:"burstWindowMs"`
}

// SensorFile is the doorSensor block.
type SensorFile struct {
	GPIO     *int   `yaml:"gpio"`
	Actuator string `yaml:"actuator"`
	Position string `yaml:"position"`
}

// Sensor2 is the doorSensor2 block. Its position is always open.
type Sensor2 struct {
	GPIO     *int   `yaml:"gpio"`
	Actuator string `yaml:"actuator"`
}

// Door is a validated door configuration.
type Door struct {
	Name       string
	Chip       string
	SwitchPin  int
	SensorPins []int // indexed by logic.SensorID
	Debounce   time.Duration
	Bias       gpio.Bias
	Relay      string // NO or NC
	Logic      logic.Config
	// Warnings are non-fatal findings to be logged at startup.
	Warnings []string
}

// SwitchActiveLow reports whether the switch line is requested active-low.
func (d *Door) SwitchActiveLow() bool {
	return d.Logic.RelayLevel == logic.LevelNO
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Door, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML document strictly and validates it.
func Parse(r io.Reader) (*Door, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	return file.Validate()
}

// Validate applies defaults and checks every field.
func (f *File) Validate() (*Door, error) {
	d := &Door{
		Name: f.Name,
		Chip: f.Chip,
	}
	if d.Chip == "" {
		d.Chip = gpio.DefaultChip
	}

	declared := 0
	if f.Sensors != nil {
		declared = *f.Sensors
	}
	if declared < 0 || declared > 2 {
		return nil, invalid("sensors: [ %d ] is invalid - valid number range is 0 to 2", declared)
	}

	if f.SensorDebounceMs < 0 || f.SensorDebounceMs > MaxDebounceMs {
		return nil, invalid("sensorDebounceMs: [ %d ] is invalid - valid number range is 0 to %d", f.SensorDebounceMs, MaxDebounceMs)
	}
	d.Debounce = time.Duration(f.SensorDebounceMs) * time.Millisecond

	bias, err := gpio.ParseBias(f.SensorBias)
	if err != nil {
		return nil, invalid("sensorBias: [ %s ] is invalid - valid values are pull-down, pull-up, disabled", f.SensorBias)
	}
	d.Bias = bias

	if f.DoorSwitch == nil {
		return nil, invalid("missing required doorSwitch")
	}
	if err := d.applySwitch(f.DoorSwitch); err != nil {
		return nil, err
	}

	var pins []int
	pins = append(pins, d.SwitchPin)

	if f.DoorSensor != nil {
		pin, err := checkPin("doorSensor", f.DoorSensor.GPIO)
		if err != nil {
			return nil, err
		}
		level, err := parseSignal("doorSensor.actuator", f.DoorSensor.Actuator)
		if err != nil {
			return nil, err
		}
		pos, err := parsePosition(f.DoorSensor.Position)
		if err != nil {
			return nil, err
		}
		d.SensorPins = append(d.SensorPins, pin)
		d.Logic.Sensors = append(d.Logic.Sensors, logic.SensorConfig{ActiveLevel: level, Position: pos})
		pins = append(pins, pin)

		if f.DoorSensor2 != nil {
			if pos != logic.PositionClosed {
				return nil, invalid("doorSensor position must be closed when doorSensor2 is configured")
			}
			pin, err := checkPin("doorSensor2", f.DoorSensor2.GPIO)
			if err != nil {
				return nil, err
			}
			level, err := parseSignal("doorSensor2.actuator", f.DoorSensor2.Actuator)
			if err != nil {
				return nil, err
			}
			d.SensorPins = append(d.SensorPins, pin)
			d.Logic.Sensors = append(d.Logic.Sensors, logic.SensorConfig{ActiveLevel: level, Position: logic.PositionOpen})
			pins = append(pins, pin)
		}
	} else if f.DoorSensor2 != nil {
		return nil, invalid("doorSensor2 requires doorSensor")
	}

	if err := checkDuplicates(pins); err != nil {
		return nil, err
	}

	configured := len(d.SensorPins)
	if configured != declared {
		msg := fmt.Sprintf("configuration mismatch - was expecting %d sensor(s) - configuration contains %d sensor(s)", declared, configured)
		if configured < declared {
			return nil, invalid("%s", msg)
		}
		d.Warnings = append(d.Warnings, msg)
	}
	if configured == 0 && d.Logic.Policy.Authorized() {
		d.Warnings = append(d.Warnings, "door has no sensors configured and should either remove interruptDoorRequest from configuration or set interruptDoorRequest to off")
	}

	if err := d.Logic.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return d, nil
}

func (d *Door) applySwitch(s *SwitchFile) error {
	pin, err := checkPin("doorSwitch", s.GPIO)
	if err != nil {
		return err
	}
	d.SwitchPin = pin

	press, err := inRange("pressTimeInMs", s.PressTimeInMs, DefaultPressMs, MinPressMs, MaxPressMs)
	if err != nil {
		return err
	}
	move, err := inRange("moveTimeInSec", s.MoveTimeInSec, DefaultMoveSec, MinMoveSec, MaxMoveSec)
	if err != nil {
		return err
	}
	d.Logic.PressDuration = time.Duration(press) * time.Millisecond
	d.Logic.MoveDuration = time.Duration(move) * time.Second

	d.Relay = strings.ToUpper(strings.TrimSpace(s.RelaySwitch))
	if d.Relay == "" {
		d.Relay = "NO"
	}
	if d.Logic.RelayLevel, err = parseSignal("relaySwitch", d.Relay); err != nil {
		return err
	}

	policy := s.InterruptDoorRequest
	if strings.TrimSpace(policy) == "" {
		policy = logic.PolicyOff.String()
	}
	if d.Logic.Policy, err = logic.ParseInterruptPolicy(policy); err != nil {
		return invalid("interruptDoorRequest: [ %s ] is invalid - valid values are off, on, stop", s.InterruptDoorRequest)
	}

	d.Logic.BurstWindow = logic.DefaultBurstWindow
	if s.BurstWindowMs != nil {
		if *s.BurstWindowMs < 0 {
			return invalid("burstWindowMs: [ %d ] must not be negative", *s.BurstWindowMs)
		}
		d.Logic.BurstWindow = time.Duration(*s.BurstWindowMs) * time.Millisecond
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func checkPin(name string, pin *int) (int, error) {
	if pin == nil {
		return 0, invalid("missing required gpio in %s", name)
	}
	for _, p := range ValidPins {
		if p == *pin {
			return p, nil
		}
	}
	return 0, invalid("[ GPIO %d ] for %s valid GPIO pins are %v", *pin, name, ValidPins)
}

func checkDuplicates(pins []int) error {
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if seen[p] {
			return invalid("GPIO pin [ %d ] has been specified more than once", p)
		}
		seen[p] = true
	}
	return nil
}

func inRange(name string, v *int, def, lo, hi int) (int, error) {
	if v == nil {
		return def, nil
	}
	if *v < lo || *v > hi {
		return 0, invalid("%s: [ %d ] is invalid - valid number range is %d to %d", name, *v, lo, hi)
	}
	return *v, nil
}

// parseSignal maps NO/NC (default NO) to the raw level.
func parseSignal(name, s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NO":
		return logic.LevelNO, nil
	case "NC":
		return logic.LevelNC, nil
	}
	return 0, invalid("%s: [ %s ] is invalid - valid values are NO, NC", name, s)
}

func parsePosition(s string) (logic.Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "closed":
		return logic.PositionClosed, nil
	case "open":
		return logic.PositionOpen, nil
	}
	return 0, invalid("doorSensor.position: [ %s ] is invalid - valid values are open, closed", s)
}
