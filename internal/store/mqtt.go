package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/config"
)

// Connection constants.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultCallTimeout       = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxReconnectInterval     = 30 * time.Second
	subscriptionBuffer       = 64
)

// MQTT is a Client that speaks to the data store over an MQTT broker.
// Descriptors are retained on the catalog topic; records flow on data topics.
//
// All methods are safe for concurrent use. Subscriptions are restored on
// reconnection.
type MQTT struct {
	client      pahomqtt.Client
	cfg         config.MQTTConfig
	topics      Topics
	qos         byte
	callTimeout time.Duration

	subscriptions map[string]*subscription
	subMu         sync.Mutex

	connected bool
	connMu    sync.RWMutex
}

// subscription holds one channel's delivery state.
type subscription struct {
	channelID string
	ctx       context.Context
	out       chan Event

	mu     sync.Mutex
	closed bool
}

// ConnectMQTT establishes a connection to the broker.
func ConnectMQTT(cfg config.MQTTConfig, callTimeout time.Duration) (*MQTT, error) {
	c := newMQTT(cfg, callTimeout)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnectHandler runs asynchronously; make IsConnected true right away.
	c.setConnected(true)

	log.Info().Str("broker", c.cfg.Broker).Str("prefix", c.cfg.Prefix).Msg("Connected to data store")
	return c, nil
}

// newMQTT builds the client without connecting it.
func newMQTT(cfg config.MQTTConfig, callTimeout time.Duration) *MQTT {
	if callTimeout == 0 {
		callTimeout = defaultCallTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hued-" + uuid.NewString()[:8]
	}

	c := &MQTT{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.Prefix},
		qos:           byte(cfg.QoS),
		callTimeout:   callTimeout,
		subscriptions: make(map[string]*subscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	// Handlers never block (see deliver), so in-order routing cannot stall
	// other channels.
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(c.topics.Status(), string(statusPayload(cfg.ClientID, "offline")), 1, true)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("Data store connection lost")
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

func (c *MQTT) handleConnect() {
	c.setConnected(true)

	// Restore subscriptions
	c.subMu.Lock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(c.topics.Data(sub.channelID), c.qos, c.handlerFor(sub))
	}
	c.subMu.Unlock()

	c.client.Publish(c.topics.Status(), 1, true, statusPayload(c.cfg.ClientID, "online"))
}

func (c *MQTT) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// IsConnected returns the current connection state.
func (c *MQTT) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// RegisterChannel retains the descriptor on the channel's catalog topic.
func (c *MQTT) RegisterChannel(ctx context.Context, d Descriptor) error {
	if d.ID == "" {
		return ErrInvalidChannel
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return c.publish(ctx, c.topics.Catalog(d.ID), payload, true)
}

// Write publishes a timestamped record on the channel's data topic.
func (c *MQTT) Write(ctx context.Context, channelID string, value any) error {
	if channelID == "" {
		return ErrInvalidChannel
	}
	payload, err := json.Marshal(Record{Timestamp: time.Now().UnixMilli(), Data: value})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return c.publish(ctx, c.topics.Data(channelID), payload, false)
}

func (c *MQTT) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.qos, retained, payload)
	if err := c.wait(ctx, token); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Subscribe delivers records arriving on the channel's data topic until
// ctx is done. Subscribing twice to the same channel replaces the first
// subscription.
func (c *MQTT) Subscribe(ctx context.Context, channelID string) (<-chan Event, error) {
	if channelID == "" {
		return nil, ErrInvalidChannel
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	sub := &subscription{
		channelID: channelID,
		ctx:       ctx,
		out:       make(chan Event, subscriptionBuffer),
	}
	topic := c.topics.Data(channelID)

	token := c.client.Subscribe(topic, c.qos, c.handlerFor(sub))
	if err := c.wait(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.track(sub)

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		if c.subscriptions[channelID] == sub {
			delete(c.subscriptions, channelID)
			if c.IsConnected() {
				c.client.Unsubscribe(topic).WaitTimeout(c.callTimeout)
			}
		}
		c.subMu.Unlock()
		sub.close()
	}()

	return sub.out, nil
}

// track makes sub the live subscription for its channel, closing any
// subscription it replaces.
func (c *MQTT) track(sub *subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if old, ok := c.subscriptions[sub.channelID]; ok && old != sub {
		old.close()
	}
	c.subscriptions[sub.channelID] = sub
}

// handlerFor wraps delivery to a subscription with panic recovery.
func (c *MQTT) handlerFor(sub *subscription) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("Data store handler panic recovered")
			}
		}()

		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())

		sub.deliver(Event{
			ID:         uuid.NewString(),
			ChannelID:  sub.channelID,
			Payload:    payload,
			ReceivedAt: time.Now(),
		})
	}
}

// deliver hands ev to the subscriber without blocking. paho routes messages
// for every channel through one goroutine, so an event that does not fit in
// the buffer is dropped rather than holding up the others.
func (s *subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.out <- ev:
		return true
	default:
		log.Warn().Str("channel", s.channelID).Int("buffer", cap(s.out)).Msg("Actuation buffer full, dropping command")
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// wait blocks until the token completes, ctx is done or the call timeout passes.
func (c *MQTT) wait(ctx context.Context, token pahomqtt.Token) error {
	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", c.callTimeout)
	}
}

// Close publishes the offline marker and disconnects.
func (c *MQTT) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.Status(), 1, true, statusPayload(c.cfg.ClientID, "offline"))
		token.WaitTimeout(c.callTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	c.subMu.Lock()
	for id, sub := range c.subscriptions {
		sub.close()
		delete(c.subscriptions, id)
	}
	c.subMu.Unlock()

	return nil
}

// statusMessage is retained on the status topic and doubles as the will.
type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(clientID, status string) []byte {
	payload, err := json.Marshal(statusMessage{
		Status:    status,
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// unreachable for a struct of strings
		return []byte(`{}`)
	}
	return payload
}
