package location

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig selects the broker fixes are published to.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

// MQTTSink publishes each event as JSON.
type MQTTSink struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
}

// Swappable for tests.
var newMQTTClient = func(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// DialMQTT connects to cfg.Broker.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	broker := strings.TrimSpace(cfg.Broker)
	if broker == "" {
		return nil, fmt.Errorf("location: mqtt broker is empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = "hapticscan/gps"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hapticscan-location"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("location: mqtt qos must be 0..2, got %d", cfg.QoS)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	client := newMQTTClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("location: mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("location: mqtt connect %s: %w", broker, err)
	}
	return &MQTTSink{client: client, topic: cfg.Topic, qos: cfg.QoS, retain: cfg.Retain, timeout: cfg.Timeout}, nil
}

func (m *MQTTSink) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("location: marshal event: %w", err)
	}
	token := m.client.Publish(m.topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("location: mqtt publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("location: mqtt publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTTSink) Close() {
	m.client.Disconnect(250)
}
