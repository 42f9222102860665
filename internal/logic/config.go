package logic

import (
	"errors"
	"fmt"
	"time"
)

// Relay polarity levels.
const (
	LevelNC = 0
	LevelNO = 1
)

// DefaultBurstWindow bounds how long superseding requests are honoured
// during a single in-flight move.
const DefaultBurstWindow = 2000 * time.Millisecond

// SensorConfig describes one position sensor.
type SensorConfig struct {
	// ActiveLevel is the raw level read when the door is at Position.
	ActiveLevel int
	Position    Position
}

// Match is the door state implied when the sensor reads ActiveLevel.
func (c SensorConfig) Match() DoorState {
	if c.Position == PositionOpen {
		return Open
	}
	return Closed
}

// NoMatch is the door state implied when the sensor does not read ActiveLevel.
func (c SensorConfig) NoMatch() DoorState {
	if c.Position == PositionOpen {
		return Closed
	}
	return Open
}

// StateFor translates a raw level into a door state.
func (c SensorConfig) StateFor(level int) DoorState {
	if level == c.ActiveLevel {
		return c.Match()
	}
	return c.NoMatch()
}

// Config holds the switch and sensor settings used by the Machine.
type Config struct {
	PressDuration time.Duration
	MoveDuration  time.Duration
	// RelayLevel is the level a press writes (LevelNO or LevelNC). The
	// line rests at the other level.
	RelayLevel  int
	Policy      InterruptPolicy
	BurstWindow time.Duration // 0 disables the burst guard
	Sensors     []SensorConfig
}

// RestLevel is the switch output level while the button is released.
func (c Config) RestLevel() int { return c.RelayLevel ^ 1 }

// Check verifies the sensor topology and timings.
func (c Config) Check() error {
	if c.PressDuration <= 0 {
		return errors.New("press duration must be positive")
	}
	if c.MoveDuration <= 0 {
		return errors.New("move duration must be positive")
	}
	if c.RelayLevel != LevelNO && c.RelayLevel != LevelNC {
		return fmt.Errorf("relay level must be 0 or 1, got %d", c.RelayLevel)
	}
	if len(c.Sensors) > 2 {
		return fmt.Errorf("at most 2 sensors are supported, got %d", len(c.Sensors))
	}
	for i, s := range c.Sensors {
		if s.ActiveLevel != 0 && s.ActiveLevel != 1 {
			return fmt.Errorf("%s sensor active level must be 0 or 1, got %d", SensorID(i), s.ActiveLevel)
		}
	}
	if len(c.Sensors) == 2 {
		if c.Sensors[Primary].Position != PositionClosed {
			return errors.New("primary sensor position must be closed when a secondary sensor is configured")
		}
		if c.Sensors[Secondary].Position != PositionOpen {
			return errors.New("secondary sensor position must be open")
		}
	}
	return nil
}

// Infer derives the resting door state from sensor levels. It returns the
// current state and the open/closed value reported as target. The secondary
// sensor is only consulted when the primary does not report its own match.
func (c Config) Infer(levels Levels) (current, openOrClosed DoorState) {
	primary := c.Sensors[Primary]
	state := primary.StateFor(levels[Primary])
	if len(c.Sensors) == 1 || state == primary.Match() {
		return state, state
	}
	secondary := c.Sensors[Secondary]
	if s := secondary.StateFor(levels[Secondary]); s == secondary.Match() {
		return s, s
	}
	return Stopped, Open
}
