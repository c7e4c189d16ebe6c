package changefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const mqttPrefix = "neuro-ai/changes/"

// MQTTOptions configures the broker connection of the MQTT feed.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTT carries change signals over broker topics. Writers must Publish after each write.
type MQTT struct {
	*hub
	client mqtt.Client
	qos    byte
	logger *zap.Logger

	mu        sync.Mutex
	listening map[Topic]bool
	closeOnce sync.Once
}

func NewMQTT(opts MQTTOptions, logger *zap.Logger) (*MQTT, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)

	m := &MQTT{
		hub:       newHub(),
		qos:       opts.QoS,
		logger:    logger,
		listening: make(map[Topic]bool),
	}
	co.SetOnConnectHandler(func(mqtt.Client) {
		// Clean sessions drop subscriptions on reconnect; whatever was missed is refetched.
		m.resubscribe()
		m.notifyAll()
	})

	m.client = mqtt.NewClient(co)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return m, nil
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	m.notify(Topic(strings.TrimPrefix(msg.Topic(), mqttPrefix)))
}

func (m *MQTT) listen(topic Topic) error {
	token := m.client.Subscribe(mqttPrefix+string(topic), m.qos, m.handle)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (m *MQTT) resubscribe() {
	m.mu.Lock()
	topics := make([]Topic, 0, len(m.listening))
	for t := range m.listening {
		topics = append(topics, t)
	}
	m.mu.Unlock()

	for _, t := range topics {
		if err := m.listen(t); err != nil {
			m.logger.Warn("mqtt resubscribe failed", zap.String("topic", string(t)), zap.Error(err))
		}
	}
}

func (m *MQTT) Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listening[topic] {
		if err := m.listen(topic); err != nil {
			return nil, err
		}
		m.listening[topic] = true
	}
	return m.subscribe(ctx, topic)
}

func (m *MQTT) Publish(ctx context.Context, topic Topic) error {
	token := m.client.Publish(mqttPrefix+string(topic), m.qos, false, []byte("changed"))
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (m *MQTT) Close() error {
	m.closeOnce.Do(func() {
		m.client.Disconnect(250)
		m.close()
	})
	return nil
}
