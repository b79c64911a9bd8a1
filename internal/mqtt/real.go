package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Buffer   int // messages kept while disconnected; 0 drops them
}

// Handler receives inbound messages.
type Handler func(topic string, payload []byte)

// RealClient publishes to and subscribes on an actual MQTT broker. Messages
// published while the connection is down are buffered and replayed on
// reconnect.
type RealClient struct {
	client paho.Client
	topics Topics
	log    zerolog.Logger

	mu        sync.Mutex
	buf       *outbox
	subs      []string
	handler   Handler
	connected bool // at least one successful connect
}

// NewRealClient creates a client and starts connecting to the broker. If the
// broker is not reachable yet the client keeps retrying in the background.
func NewRealClient(opts Options, log zerolog.Logger) (*RealClient, error) {
	c := &RealClient{
		topics: opts.Topics,
		log:    log,
		buf:    newOutbox(opts.Buffer, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn().Err(err).Msg("mqtt connection lost")
		})

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.log.Warn().Str("broker", opts.Broker).Msg("mqtt broker not reachable yet, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Subscribe registers h for topics. Subscriptions are renewed on reconnect.
func (c *RealClient) Subscribe(topics []string, h Handler) error {
	c.mu.Lock()
	c.subs = append(c.subs, topics...)
	c.handler = h
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil // onConnect subscribes
	}
	return c.subscribe(topics, h)
}

func (c *RealClient) subscribe(topics []string, h Handler) error {
	for _, t := range topics {
		token := c.client.Subscribe(t, 1, func(_ paho.Client, m paho.Message) {
			h(m.Topic(), m.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("subscribe %s: timeout", t)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

func (c *RealClient) onConnect(_ paho.Client) {
	c.mu.Lock()
	subs := append([]string(nil), c.subs...)
	h := c.handler
	queued, dropped := c.buf.take()
	reconnect := c.connected
	c.connected = true
	c.mu.Unlock()

	c.log.Info().Int("replay", len(queued)).Int("dropped", dropped).Msg("mqtt connected")

	if h != nil && len(subs) > 0 {
		if err := c.subscribe(subs, h); err != nil {
			c.log.Error().Err(err).Msg("mqtt resubscribe failed")
		}
	}
	for _, m := range queued {
		c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.client.Publish(c.topics.System, 1, true, payload)
	}
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	// Checked under the lock onConnect drains under: a message is either
	// replayed by the next onConnect or published directly.
	c.mu.Lock()
	if !c.client.IsConnectionOpen() {
		c.buf.add(pending{topic: topic, qos: qos, retained: retained, payload: payload})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishData sends the delivered bytes. QoS 0 (at-most-once), not retained.
func (c *RealClient) PublishData(data []byte) error {
	return c.publish(c.topics.Data, 0, false, data)
}

// PublishError sends a failure report.
func (c *RealClient) PublishError(event ErrorEvent) error {
	payload, err := FormatErrorPayload(event)
	if err != nil {
		return fmt.Errorf("format error payload: %w", err)
	}
	return c.publish(c.topics.Error, 0, false, payload)
}

// PublishSystem sends a system lifecycle event. QoS 1 so shutdown is delivered.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(c.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the connection is currently open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
