// Command garage-door drives a garage door opener relay, tracks the door with
// up to two position sensors and publishes its state to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/controller"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

type options struct {
	configPath string
	broker     string
	topic      string
	clientID   string
	heartbeat  time.Duration
	httpAddr   string
	printState bool
	envFile    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "/etc/garage-door/door.yaml", "Door configuration file")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.topic, "topic", mqtt.DefaultTopic, "MQTT base topic")
	flag.StringVar(&o.clientID, "client-id", "garage-door", "MQTT client ID")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printState, "print-state", false, "Print the door state inferred from the sensors and exit")
	flag.StringVar(&o.envFile, "env-file", "/run/pi-helper.env", "Network info env file (empty to use the process environment)")
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	door, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	for _, w := range door.Warnings {
		log.Warn(w)
	}

	chip, err := gpio.OpenChip(door.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	sensors := make([]gpio.Sensor, 0, len(door.SensorPins))
	for i, pin := range door.SensorPins {
		s, err := chip.Sensor(pin, door.Debounce, door.Bias)
		if err != nil {
			return fmt.Errorf("init %s sensor: %w", logic.SensorID(i), err)
		}
		defer s.Close()
		sensors = append(sensors, s)
	}

	if o.printState {
		state, err := inferState(door.Logic, sensors)
		if err != nil {
			return err
		}
		fmt.Printf("Door: %s\n", state)
		return nil
	}

	sw, err := chip.Switch(door.SwitchPin, door.Logic.RestLevel(), door.SwitchActiveLow())
	if err != nil {
		return fmt.Errorf("init door switch: %w", err)
	}
	defer sw.Close()

	logStartup(door)

	ctrl, err := controller.New(controller.Config{
		Door:    door.Logic,
		Switch:  sw,
		Sensors: sensors,
	})
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Name:        door.Name,
		Sensors:     len(door.SensorPins),
		PressMs:     door.Logic.PressDuration.Milliseconds(),
		MoveMs:      door.Logic.MoveDuration.Milliseconds(),
		Relay:       door.Relay,
		Policy:      door.Logic.Policy.String(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		Topic:       o.topic,
		HTTPPort:    o.httpAddr,
	})
	if net := readNetworkInfo(o.envFile); net != nil {
		tracker.SetNetwork(net)
	}

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:    o.broker,
		ClientID:  o.clientID,
		Topic:     o.topic,
		OnCommand: requestHandler(ctrl),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	wire(ctrl, publisher, tracker, time.Now)

	tracker.SetMQTTConnected(publisher.IsConnected())
	publishLifecycle(publisher, tracker, "STARTUP", "")

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", o.httpAddr)
	}

	var heartbeat <-chan time.Time
	if o.heartbeat > 0 {
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(context.Background(), ctrl, publisher, publisher, tracker, o.envFile, heartbeat, sigCh)
}

// runLoop runs the controller until a signal arrives or the controller fails.
func runLoop(ctx context.Context, ctrl *controller.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, envFile string, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Run(ctx)
	}()

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("controller: %w", err)
			}
			return nil

		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			cancel()
			err := <-errCh

			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			publishLifecycle(publisher, tracker, "SHUTDOWN", signalName(s))
			if err != nil {
				return fmt.Errorf("controller: %w", err)
			}
			return nil

		case <-heartbeat:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			if net := readNetworkInfo(envFile); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.WithFields(log.Fields{
				"uptime":  snap.Uptime().Truncate(time.Second),
				"current": snap.Door.Current,
				"opened":  snap.Counts.Opened,
				"closed":  snap.Counts.Closed,
			}).Info("heartbeat")
			publishLifecycle(publisher, tracker, "HEARTBEAT", "")
		}
	}
}

// wire forwards controller output to MQTT and the status tracker. Alerts go
// to the system topic.
func wire(ctrl *controller.Controller, publisher mqtt.Publisher, tracker *status.Tracker, now func() time.Time) {
	ctrl.Subscribe(func(st logic.Status) {
		at := now()
		tracker.SetDoor(st, at)
		if err := publisher.PublishState(st, at); err != nil {
			log.Warnf("publish state: %v", err)
		}
	})
	ctrl.SubscribeStats(func(r logic.StatsRecord) {
		tracker.RecordStats(r)
		if err := publisher.PublishStats(r); err != nil {
			log.Warnf("publish stats: %v", err)
		}
	})
	ctrl.SubscribeAlerts(func(msg string) {
		tracker.RecordAlert(msg)
		ev := mqtt.SystemEvent{Timestamp: now(), Event: "ALERT", Reason: msg}
		if err := publisher.PublishSystem(ev); err != nil {
			log.Warnf("publish alert: %v", err)
		}
	})
}

func requestHandler(ctrl *controller.Controller) mqtt.CommandHandler {
	return func(target logic.DoorState) {
		if err := ctrl.RequestTargetState(target); err != nil {
			log.WithField("target", target).Warnf("door request: %v", err)
		}
	}
}

// publishLifecycle publishes a retained STARTUP or SHUTDOWN event, or a
// HEARTBEAT, carrying the full status snapshot.
func publishLifecycle(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	log.Debugf("published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// inferState reads the sensors once and returns the resting door state.
func inferState(cfg logic.Config, sensors []gpio.Sensor) (logic.DoorState, error) {
	if len(sensors) == 0 {
		return logic.Closed, nil
	}
	var levels logic.Levels
	for i, s := range sensors {
		v, err := s.Read()
		if err != nil {
			return 0, fmt.Errorf("read %s sensor: %w", logic.SensorID(i), err)
		}
		levels[i] = v
	}
	current, _ := cfg.Infer(levels)
	return current, nil
}

func logStartup(door *config.Door) {
	log.WithFields(log.Fields{
		"gpio":   door.SwitchPin,
		"relay":  door.Relay,
		"active": gpio.Direction(door.Logic.RelayLevel),
	}).Info("door switch configured")
	log.Infof("door switch activation time: %v", door.Logic.PressDuration)
	log.Infof("door open/close time: %v", door.Logic.MoveDuration)
	log.WithField("policy", door.Logic.Policy).Info("interrupt door request policy")

	switch len(door.SensorPins) {
	case 0:
		log.Info("no door sensor, door state is assumed from the last request")
	case 1:
		log.Info("primary sensor configured to report OPEN and CLOSED")
	case 2:
		log.Info("primary and secondary sensors configured to report OPEN, CLOSED and STOPPED")
	}
	for i, pin := range door.SensorPins {
		sc := door.Logic.Sensors[i]
		log.WithFields(log.Fields{
			"sensor":   logic.SensorID(i),
			"gpio":     pin,
			"position": sc.Position,
			"active":   sc.ActiveLevel,
			"bias":     door.Bias,
		}).Info("door sensor configured")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads network state from envFile, falling back to the
// process environment for keys the file does not set. pi-helper rewrites the
// file, so it is read again on every call.
func readNetworkInfo(envFile string) *status.NetworkInfo {
	vars := map[string]string{}
	if envFile != "" {
		read, err := godotenv.Read(envFile)
		if err != nil {
			log.WithField("file", envFile).Debugf("env file: %v", err)
		} else {
			vars = read
		}
	}
	get := func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
