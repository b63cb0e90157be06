package host

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Client is the minimal broker surface the MQTT host needs.
// It lets the host be tested without a live broker.
type Client interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte, retain bool) error
	Disconnect()
}

// PahoClient adapts an eclipse paho connection to Client. Subscriptions are
// replayed after a reconnect.
type PahoClient struct {
	cli mqtt.Client

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

// Dial connects to broker (e.g. "tcp://localhost:1883").
func Dial(broker, clientID string, timeout time.Duration) (*PahoClient, error) {
	c := &PahoClient{subs: make(map[string]mqtt.MessageHandler)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Msg("MQTT connected")
		c.resubscribe()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
	}

	c.cli = mqtt.NewClient(opts)
	t := c.cli.Connect()
	if !t.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return c, nil
}

func (c *PahoClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	cb := func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	}
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()

	t := c.cli.Subscribe(topic, 0, cb)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	log.Info().Str("topic", topic).Msg("MQTT subscribed")
	return nil
}

func (c *PahoClient) Publish(topic string, payload []byte, retain bool) error {
	t := c.cli.Publish(topic, 0, retain, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (c *PahoClient) Disconnect() {
	c.cli.Disconnect(250)
}

func (c *PahoClient) resubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, cb := range c.subs {
		if t := c.cli.Subscribe(topic, 0, cb); t.Wait() && t.Error() != nil {
			log.Error().Err(t.Error()).Str("topic", topic).Msg("MQTT resubscribe failed")
		}
	}
}
