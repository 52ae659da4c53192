package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Velotales/antbridge/internal/config"
)

// replayBufferCap bounds how many metric publishes are held while the broker
// is unreachable.
const replayBufferCap = 256

// RealPublisher publishes to an actual MQTT broker. Metric publishes that
// fail while disconnected are buffered and replayed on reconnect;
// availability is not buffered since the gate re-sends it on the next
// transition anyway.
type RealPublisher struct {
	client    paho.Client
	baseTopic string
	qos       byte
	retain    bool

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher connected per the given config.
func NewRealPublisher(cfg config.MQTTConfig) (*RealPublisher, error) {
	p := &RealPublisher{
		baseTopic: cfg.BaseTopic,
		qos:       byte(cfg.QoS),
		retain:    cfg.Retain,
		buffer:    newRingBuffer(replayBufferCap),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishMetric sends one metric value, buffering it on failure.
func (p *RealPublisher) PublishMetric(user, metric, payload string) error {
	topic := MetricTopic(p.baseTopic, user, metric)
	if err := p.publish(topic, []byte(payload), p.qos, p.retain); err != nil {
		p.mu.Lock()
		p.buffer.push(bufferedMsg{topic: topic, payload: []byte(payload), qos: p.qos, retained: p.retain})
		p.mu.Unlock()
		return err
	}
	return nil
}

// PublishAvailability sends the retained online/offline state for a user.
func (p *RealPublisher) PublishAvailability(user string, online bool) error {
	state := PayloadOffline
	if online {
		state = PayloadOnline
	}
	// Always retained so subscribers see the last-known state after restart.
	return p.publish(AvailabilityTopic(p.baseTopic, user), []byte(state), p.qos, true)
}

// PublishRetained sends a raw retained message at QoS 1.
func (p *RealPublisher) PublishRetained(topic string, payload []byte) error {
	return p.publish(topic, payload, 1, true)
}

func (p *RealPublisher) publish(topic string, payload []byte, qos byte, retained bool) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// onConnect replays metric publishes that were buffered while disconnected.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	for _, m := range msgs {
		if err := p.publish(m.topic, m.payload, m.qos, m.retained); err != nil {
			log.Printf("mqtt: replay %s: %v", m.topic, err)
		}
	}
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
