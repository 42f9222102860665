package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/garage-door/internal/controller"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
)

const (
	press = 1500 * time.Millisecond
	move  = 12 * time.Second
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	assert.Equal(t, "NETWORK_TYPE", envNetworkType)
	assert.Equal(t, "NETWORK_IP", envNetworkIP)
	assert.Equal(t, "NETWORK_STATUS", envNetworkStatus)
	assert.Equal(t, "NETWORK_GATEWAY", envNetworkGateway)
	assert.Equal(t, "NETWORK_WIFI_STATUS", envNetworkWifiStatus)
	assert.Equal(t, "NETWORK_WIFI_SSID", envNetworkWifiSSID)
}

func TestReadNetworkInfoFromEnvironment(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo("")
	require.NotNil(t, info)
	assert.Equal(t, status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, *info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo(""))
	assert.Nil(t, readNetworkInfo(filepath.Join(t.TempDir(), "missing.env")))
}

func TestReadNetworkInfoFromFile(t *testing.T) {
	t.Setenv(envNetworkStatus, "disconnected")
	t.Setenv(envNetworkGateway, "10.0.0.1")

	path := filepath.Join(t.TempDir(), "pi-helper.env")
	content := "NETWORK_STATUS=connected\nNETWORK_TYPE=ethernet\nNETWORK_IP=10.0.0.7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	info := readNetworkInfo(path)
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status, "file overrides the environment")
	assert.Equal(t, "ethernet", info.Type)
	assert.Equal(t, "10.0.0.7", info.IP)
	assert.Equal(t, "10.0.0.1", info.Gateway, "environment fills keys the file lacks")
	assert.Empty(t, info.SSID)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestInferState(t *testing.T) {
	pair := logic.Config{Sensors: []logic.SensorConfig{
		{ActiveLevel: 1, Position: logic.PositionClosed},
		{ActiveLevel: 1, Position: logic.PositionOpen},
	}}

	tests := []struct {
		name   string
		cfg    logic.Config
		levels []int
		want   logic.DoorState
	}{
		{"no sensors", logic.Config{}, nil, logic.Closed},
		{"closed", pair, []int{1, 0}, logic.Closed},
		{"open", pair, []int{0, 1}, logic.Open},
		{"between", pair, []int{0, 0}, logic.Stopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sensors []gpio.Sensor
			for _, l := range tt.levels {
				sensors = append(sensors, gpio.NewFakeSensor(l))
			}
			got, err := inferState(tt.cfg, sensors)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferStateReadError(t *testing.T) {
	s := gpio.NewFakeSensor(0)
	s.ReadError = errors.New("line busy")
	cfg := logic.Config{Sensors: []logic.SensorConfig{{ActiveLevel: 1}}}

	_, err := inferState(cfg, []gpio.Sensor{s})
	assert.EqualError(t, err, "read primary sensor: line busy")
}

// --- runLoop tests ---

type loop struct {
	t         *testing.T
	ctrl      *controller.Controller
	sensors   []*gpio.FakeSensor
	sched     *controller.ManualScheduler
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	heartbeat chan time.Time
	sig       chan os.Signal
	errCh     chan error
}

// startLoop wires a controller on fake hardware to a fake publisher and
// runs runLoop until the test sends a signal.
func startLoop(t *testing.T, sensors []logic.SensorConfig, levels ...int) *loop {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &loop{
		t:         t,
		sched:     controller.NewManualScheduler(start),
		pub:       mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(start, status.Config{Broker: "tcp://localhost:1883"}),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		errCh:     make(chan error, 1),
	}
	var gs []gpio.Sensor
	for _, lv := range levels {
		s := gpio.NewFakeSensor(lv)
		l.sensors = append(l.sensors, s)
		gs = append(gs, s)
	}

	ctrl, err := controller.New(controller.Config{
		Door: logic.Config{
			PressDuration: press,
			MoveDuration:  move,
			RelayLevel:    logic.LevelNO,
			Policy:        logic.PolicyOff,
			Sensors:       sensors,
		},
		Switch:    gpio.NewFakeSwitch(logic.LevelNC),
		Sensors:   gs,
		Scheduler: l.sched,
		Now:       l.sched.Now,
	})
	require.NoError(t, err)
	l.ctrl = ctrl

	l.pub.OnCommand = requestHandler(ctrl)
	wire(ctrl, l.pub, l.tracker, l.sched.Now)

	go func() {
		l.errCh <- runLoop(context.Background(), ctrl, l.pub, l.pub, l.tracker, "", l.heartbeat, l.sig)
	}()

	l.waitState(logic.Closed)
	return l
}

func (l *loop) waitState(want logic.DoorState) {
	l.t.Helper()
	require.Eventually(l.t, func() bool {
		st, ok := l.pub.LastState()
		return ok && st.Current == want
	}, time.Second, time.Millisecond, "waiting for %s", want)
}

func (l *loop) waitPending(n int) {
	l.t.Helper()
	require.Eventually(l.t, func() bool {
		return l.sched.Pending() == n
	}, time.Second, time.Millisecond)
}

func (l *loop) stop(s os.Signal) error {
	l.t.Helper()
	l.sig <- s
	select {
	case err := <-l.errCh:
		return err
	case <-time.After(time.Second):
		l.t.Fatal("runLoop did not return")
		return nil
	}
}

func TestRunLoopPublishesInitialState(t *testing.T) {
	l := startLoop(t, nil)
	require.NoError(t, l.stop(syscall.SIGTERM))

	snap := l.tracker.Snapshot()
	assert.True(t, snap.Known)
	assert.Equal(t, logic.Closed, snap.Door.Current)
	assert.Equal(t, []string{"SHUTDOWN"}, l.pub.SystemEventNames())
}

func TestRunLoopShutdown(t *testing.T) {
	for _, tt := range []struct {
		sig    os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		t.Run(tt.reason, func(t *testing.T) {
			l := startLoop(t, nil)
			l.pub.Connected = true
			require.NoError(t, l.stop(tt.sig))

			ev, ok := l.pub.LastSystemEvent()
			require.True(t, ok)
			assert.Equal(t, "SHUTDOWN", ev.Event)
			assert.Equal(t, tt.reason, ev.Reason)
			assert.True(t, ev.Retained)

			var parsed status.StatusJSON
			require.NoError(t, json.Unmarshal(ev.RawPayload, &parsed))
			assert.Equal(t, "SHUTDOWN", parsed.Status.Event)
			assert.Equal(t, tt.reason, parsed.Status.Reason)
			assert.Equal(t, "CLOSED", parsed.Status.Door.Current)
			assert.True(t, parsed.Status.MQTT.Connected)
		})
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	l := startLoop(t, nil)
	l.heartbeat <- time.Now()

	require.Eventually(t, func() bool {
		ev, ok := l.pub.LastSystemEvent()
		return ok && ev.Event == "HEARTBEAT"
	}, time.Second, time.Millisecond)

	ev, _ := l.pub.LastSystemEvent()
	assert.False(t, ev.Retained)
	var parsed status.StatusJSON
	require.NoError(t, json.Unmarshal(ev.RawPayload, &parsed))
	require.NotNil(t, parsed.Status.Network)
	assert.Equal(t, "192.168.1.42", parsed.Status.Network.IP)
	assert.Equal(t, "HomeNet", parsed.Status.Network.SSID)

	require.NoError(t, l.stop(syscall.SIGTERM))
	assert.Equal(t, []string{"HEARTBEAT", "SHUTDOWN"}, l.pub.SystemEventNames())
}

func TestRunLoopRemoteOpen(t *testing.T) {
	l := startLoop(t, nil)

	require.NoError(t, l.pub.Deliver([]byte(`{"target":"OPEN"}`)))
	l.waitState(logic.Opening)

	l.waitPending(1)
	l.sched.Advance(press)
	l.waitPending(1)
	l.sched.Advance(move)
	l.waitState(logic.Open)

	require.Eventually(t, func() bool {
		return l.tracker.Snapshot().Counts.Opened == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, l.stop(syscall.SIGTERM))

	st, _ := l.pub.LastState()
	assert.Equal(t, logic.Status{Current: logic.Open, Target: logic.Open, Source: logic.SourceRemote}, st)
	assert.Equal(t, logic.Open, l.ctrl.CurrentState())
}

func TestRunLoopPublishesAlerts(t *testing.T) {
	l := startLoop(t, nil)

	require.NoError(t, l.pub.Deliver([]byte("OPEN")))
	l.waitState(logic.Opening)
	require.NoError(t, l.pub.Deliver([]byte("CLOSED")))

	require.Eventually(t, func() bool {
		ev, ok := l.pub.LastSystemEvent()
		return ok && ev.Event == "ALERT"
	}, time.Second, time.Millisecond)

	ev, _ := l.pub.LastSystemEvent()
	assert.Contains(t, ev.Reason, "Disregarding new request CLOSED")
	assert.False(t, ev.Retained)

	snap := l.tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.Alerts)
	assert.Equal(t, ev.Reason, snap.LastAlert)
	require.NoError(t, l.stop(syscall.SIGTERM))
}

func TestRunLoopSensorCompletesMove(t *testing.T) {
	pair := []logic.SensorConfig{
		{ActiveLevel: 1, Position: logic.PositionClosed},
		{ActiveLevel: 1, Position: logic.PositionOpen},
	}
	l := startLoop(t, pair, 1, 0)

	require.NoError(t, l.pub.Deliver([]byte("OPEN")))
	l.waitState(logic.Opening)
	l.waitPending(1)
	l.sched.Advance(press)
	l.waitPending(1)

	require.Eventually(t, func() bool { return l.sensors[1].Watching() }, time.Second, time.Millisecond)
	l.sensors[0].Set(0)
	require.True(t, l.sensors[1].Set(1))
	l.waitState(logic.Open)

	require.NoError(t, l.stop(syscall.SIGTERM))
	assert.False(t, l.ctrl.ObstructionDetected())
}

func TestRunLoopControllerError(t *testing.T) {
	single := []logic.SensorConfig{{ActiveLevel: 1, Position: logic.PositionClosed}}
	l := startLoop(t, single, 1)

	require.Eventually(t, func() bool { return l.sensors[0].Watching() }, time.Second, time.Millisecond)
	l.sensors[0].Fail(errors.New("line released"))

	select {
	case err := <-l.errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line released")
	case <-time.After(time.Second):
		t.Fatal("runLoop did not return")
	}
	assert.Empty(t, l.pub.SystemEventNames())
}

func TestRunLoopPublishErrorsAreNotFatal(t *testing.T) {
	l := startLoop(t, nil)
	l.pub.Reset()
	l.pub.PublishError = errors.New("broker gone")

	require.NoError(t, l.pub.Deliver([]byte("OPEN")))
	l.waitPending(1)
	require.Eventually(t, func() bool {
		return l.tracker.Snapshot().Door.Current == logic.Opening
	}, time.Second, time.Millisecond)

	require.NoError(t, l.stop(syscall.SIGTERM))
	assert.Equal(t, []string{"SHUTDOWN"}, l.pub.SystemEventNames())
}

func TestRequestHandlerAfterStop(t *testing.T) {
	l := startLoop(t, nil)
	require.NoError(t, l.stop(syscall.SIGTERM))

	assert.ErrorIs(t, l.ctrl.RequestTargetState(logic.Open), controller.ErrStopped)
	requestHandler(l.ctrl)(logic.Open)
}
