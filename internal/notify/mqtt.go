package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publisher is the slice of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each event as JSON to <prefix>/events/<kind>.
type MQTTSink struct {
	client publisher
	prefix string
	qos    byte
}

// ConnectMQTT dials broker and returns a sink publishing under prefix.
func ConnectMQTT(broker, clientID, prefix string, logger zerolog.Logger) (*MQTTSink, mqtt.Client, error) {
	log := logger.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTSink(client, prefix), client, nil
}

func NewMQTTSink(client publisher, prefix string) *MQTTSink {
	return &MQTTSink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: 1}
}

func (m *MQTTSink) Name() string { return "mqtt" }

func (m *MQTTSink) Topic(kind Kind) string {
	return fmt.Sprintf("%s/events/%s", m.prefix, kind)
}

func (m *MQTTSink) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	token := m.client.Publish(m.Topic(ev.Kind), m.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
