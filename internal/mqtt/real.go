package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/garage-door/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topic    string // base topic, DefaultTopic if empty

	// OnCommand receives requests from the command topic. Commands are not
	// subscribed when nil.
	OnCommand CommandHandler
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onCommand CommandHandler

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher connected to the given broker.
// The broker is told to publish a retained SHUTDOWN event with reason
// MQTT_DISCONNECT if the connection drops without a clean disconnect.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	p := &RealPublisher{
		topics:    NewTopics(o.Topic),
		onCommand: o.OnCommand,
		buffer:    newRingBuffer(defaultBufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnected := p.connects > 1
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if p.onCommand != nil {
		token := c.Subscribe(p.topics.Command, 1, p.handleCommand)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.WithField("topic", p.topics.Command).Errorf("mqtt: subscribe: %v", token.Error())
		}
	}

	if reconnected {
		log.Info("mqtt: reconnected")
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Warnf("mqtt: publish reconnected event: %v", err)
		}
	}

	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
	if len(pending) > 0 {
		log.WithField("count", len(pending)).Info("mqtt: replayed buffered messages")
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Warnf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) handleCommand(_ paho.Client, m paho.Message) {
	target, err := ParseCommand(m.Payload())
	if err != nil {
		log.WithField("payload", string(m.Payload())).Warnf("mqtt: %v", err)
		return
	}
	log.WithField("target", target).Info("mqtt: door request received")
	p.onCommand(target)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishState sends the door status, retained, QoS 1.
func (p *RealPublisher) PublishState(st logic.Status, at time.Time) error {
	payload, err := FormatState(st, at)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(p.topics.State, 1, true, payload)
}

// PublishStats sends a stats record, QoS 0, not retained.
func (p *RealPublisher) PublishStats(r logic.StatsRecord) error {
	payload, err := FormatStats(r)
	if err != nil {
		return fmt.Errorf("format stats payload: %w", err)
	}
	return p.publish(p.topics.Stats, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
