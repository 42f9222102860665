// Package controller runs the door state machine against real or fake
// hardware. A single goroutine owns the machine; timer and interrupt
// callbacks only post events to it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

var (
	// ErrStopped is returned by requests made after Run has returned.
	ErrStopped = errors.New("controller stopped")
	// ErrInvalidTarget is returned for targets other than OPEN or CLOSED.
	ErrInvalidTarget = errors.New("invalid target state")
)

const inputQueueSize = 16

// Config wires the controller to its hardware.
type Config struct {
	Door    logic.Config
	Switch  gpio.Switch
	Sensors []gpio.Sensor // indexed like Door.Sensors

	// Scheduler defaults to RealScheduler.
	Scheduler Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
}

type input struct {
	ev  logic.Event
	err error
}

// Controller executes the commands returned by the state machine and
// publishes the resulting door status.
type Controller struct {
	machine *logic.Machine
	initial []logic.Command
	sw      gpio.Switch
	sensors []gpio.Sensor
	sched   Scheduler
	now     func() time.Time
	timer   Timer

	inputs   chan input
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	status     logic.Status
	statusSubs []func(logic.Status)
	statsSubs  []func(logic.StatsRecord)
	alertSubs  []func(string)
}

// New reads the initial sensor levels and builds the state machine. The
// initial commands run when Run starts.
func New(cfg Config) (*Controller, error) {
	if cfg.Switch == nil {
		return nil, errors.New("door switch is required")
	}
	if len(cfg.Sensors) != len(cfg.Door.Sensors) {
		return nil, fmt.Errorf("%d sensors configured but %d provided", len(cfg.Door.Sensors), len(cfg.Sensors))
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Controller{
		sw:      cfg.Switch,
		sensors: cfg.Sensors,
		sched:   cfg.Scheduler,
		now:     cfg.Now,
		inputs:  make(chan input, inputQueueSize),
		done:    make(chan struct{}),
	}

	levels, err := c.readLevels()
	if err != nil {
		return nil, err
	}
	m, cmds, err := logic.NewMachine(cfg.Door, levels, c.now())
	if err != nil {
		return nil, err
	}
	c.machine = m
	c.initial = cmds
	c.status = m.Status()
	return c, nil
}

// Run processes events until ctx is cancelled or a hardware or logic error
// occurs. On return the pending timer is stopped and all sensors unwatched.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stop()

	if err := c.begin(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-c.inputs:
			if err := c.process(in); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) begin() error {
	cmds := c.initial
	c.initial = nil
	return c.apply(cmds)
}

func (c *Controller) process(in input) error {
	if in.err != nil {
		return fmt.Errorf("%s sensor interrupt: %w", in.ev.Sensor, in.err)
	}

	ev := in.ev
	ev.Time = c.now()
	if ev.Kind != logic.EventMoveRequested {
		levels, err := c.readLevels()
		if err != nil {
			return err
		}
		ev.Levels = levels
	}

	log.WithFields(log.Fields{
		"event":  ev.Kind,
		"sensor": ev.Sensor,
		"levels": ev.Levels,
	}).Trace("dispatch")

	cmds, err := c.machine.Handle(ev)
	if err != nil {
		return fmt.Errorf("handle %s: %w", ev.Kind, err)
	}
	return c.apply(cmds)
}

func (c *Controller) apply(cmds []logic.Command) error {
	for _, cmd := range cmds {
		log.WithField("cmd", cmd.Kind).Trace("apply")

		switch cmd.Kind {
		case logic.CmdPulse:
			if err := c.sw.Write(cmd.Level); err != nil {
				return fmt.Errorf("door switch write: %w", err)
			}
		case logic.CmdResetSwitch:
			// Polarity first so the rest level is driven in the final sense.
			if err := c.sw.SetActiveLow(cmd.ActiveLow); err != nil {
				return fmt.Errorf("door switch set active low: %w", err)
			}
			dir := gpio.DirectionLow
			if cmd.Level == 1 {
				dir = gpio.DirectionHigh
			}
			if err := c.sw.SetDirection(dir); err != nil {
				return fmt.Errorf("door switch set direction: %w", err)
			}
		case logic.CmdStartTimer:
			c.stopTimer()
			token := cmd.Token
			c.timer = c.sched.AfterFunc(cmd.After, func() {
				c.post(input{ev: logic.Event{Kind: logic.EventTimerExpired, Token: token}})
			})
		case logic.CmdCancelTimer:
			c.stopTimer()
		case logic.CmdArmSensor:
			if err := c.arm(cmd.Sensor, cmd.Edge, cmd.Token); err != nil {
				return err
			}
		case logic.CmdDisarmSensor:
			if err := c.sensors[cmd.Sensor].Unwatch(); err != nil {
				return fmt.Errorf("disarm %s sensor: %w", cmd.Sensor, err)
			}
		case logic.CmdPublish:
			c.publish(cmd.Status)
		case logic.CmdAlert:
			c.alert(cmd.Message)
		case logic.CmdStats:
			c.stats(cmd.Stats)
		default:
			return fmt.Errorf("unknown command %s", cmd.Kind)
		}
	}
	return nil
}

func (c *Controller) arm(id logic.SensorID, edge logic.Edge, token uint64) error {
	s := c.sensors[id]
	if err := s.SetEdge(gpioEdge(edge)); err != nil {
		return fmt.Errorf("set %s sensor edge: %w", id, err)
	}
	err := s.Watch(func(_ int, err error) {
		c.post(input{ev: logic.Event{Kind: logic.EventSensorEdge, Sensor: id, Token: token}, err: err})
	})
	if err != nil {
		return fmt.Errorf("arm %s sensor: %w", id, err)
	}
	return nil
}

func gpioEdge(e logic.Edge) gpio.Edge {
	switch e {
	case logic.EdgeRising:
		return gpio.EdgeRising
	case logic.EdgeFalling:
		return gpio.EdgeFalling
	case logic.EdgeBoth:
		return gpio.EdgeBoth
	}
	return gpio.EdgeNone
}

func (c *Controller) readLevels() (logic.Levels, error) {
	var levels logic.Levels
	for i, s := range c.sensors {
		v, err := s.Read()
		if err != nil {
			return levels, fmt.Errorf("read %s sensor: %w", logic.SensorID(i), err)
		}
		levels[i] = v
	}
	return levels, nil
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// post queues an input for the run loop. It drops the input once the
// controller has stopped.
func (c *Controller) post(in input) {
	select {
	case c.inputs <- in:
	case <-c.done:
	}
}

func (c *Controller) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.stopTimer()
		for i, s := range c.sensors {
			if err := s.Unwatch(); err != nil {
				log.WithField("sensor", logic.SensorID(i)).Warnf("unwatch: %v", err)
			}
		}
	})
}

func (c *Controller) publish(st logic.Status) {
	log.WithFields(log.Fields{
		"current":     st.Current,
		"target":      st.Target,
		"obstruction": st.Obstruction,
		"source":      st.Source,
	}).Info("door state")

	c.mu.Lock()
	c.status = st
	subs := c.statusSubs
	c.mu.Unlock()

	for _, f := range subs {
		f(st)
	}
}

func (c *Controller) alert(msg string) {
	log.Warn(msg)

	c.mu.RLock()
	subs := c.alertSubs
	c.mu.RUnlock()
	for _, f := range subs {
		f(msg)
	}
}

func (c *Controller) stats(r logic.StatsRecord) {
	lg := log.WithFields(log.Fields{
		"state":  r.State,
		"source": r.Source,
	})
	if r.Duration > 0 {
		lg = lg.WithField("duration", r.Duration)
	}
	lg.Infof("door %s", r.Kind)

	c.mu.RLock()
	subs := c.statsSubs
	c.mu.RUnlock()
	for _, f := range subs {
		f(r)
	}
}

// RequestTargetState asks the door to move to OPEN or CLOSED. The request
// is queued; its outcome is reported through Subscribe.
func (c *Controller) RequestTargetState(target logic.DoorState) error {
	if target != logic.Open && target != logic.Closed {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inputs <- input{ev: logic.Event{Kind: logic.EventMoveRequested, Target: target}}:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Status returns the last published door status.
func (c *Controller) Status() logic.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// CurrentState returns the last published current door state.
func (c *Controller) CurrentState() logic.DoorState {
	return c.Status().Current
}

// TargetState returns the last published target door state.
func (c *Controller) TargetState() logic.DoorState {
	return c.Status().Target
}

// ObstructionDetected reports whether the door stopped between sensors
// without being asked to.
func (c *Controller) ObstructionDetected() bool {
	return c.Status().Obstruction
}

// Subscribe registers f for every published status. Callbacks run on the
// controller goroutine and must not block.
func (c *Controller) Subscribe(f func(logic.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusSubs = append(c.statusSubs, f)
}

// SubscribeStats registers f for stats records.
func (c *Controller) SubscribeStats(f func(logic.StatsRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statsSubs = append(c.statsSubs, f)
}

// SubscribeAlerts registers f for policy alerts such as disregarded
// requests.
func (c *Controller) SubscribeAlerts(f func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertSubs = append(c.alertSubs, f)
}
