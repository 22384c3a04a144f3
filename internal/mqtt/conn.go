//go:build !no_mqtt

// Package mqtt publishes engine state to an MQTT broker, accepts run and mode
// commands, and carries native bridge calls to a companion device.
package mqtt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "macro-engine"

// Config holds MQTT connection configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// MessageHandler receives the topic and payload of a subscribed message.
type MessageHandler func(topic string, payload []byte)

// Conn is a broker connection shared by the publisher and the bridge
// transport. Hooks registered with OnConnect run after every (re)connect so
// subscriptions survive broker restarts.
type Conn struct {
	prefix string
	logger *slog.Logger

	client    pahomqtt.Client
	publish   func(topic string, payload []byte, retained bool)
	subscribe func(topic string, h MessageHandler) error
	connected func() bool

	mu    sync.Mutex
	hooks []func()
	up    bool
}

// Dial connects to the broker.
func Dial(cfg Config, logger *slog.Logger) (*Conn, error) {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "macro-engine"
	}
	c := &Conn{
		prefix: prefix,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.logger.Info("MQTT connected", "broker", cfg.Broker)
			c.runHooks()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.mu.Lock()
			c.up = false
			c.mu.Unlock()
			c.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	c.client = client
	c.publish = c.pahoPublish
	c.subscribe = c.pahoSubscribe
	c.connected = client.IsConnectionOpen
	return c, nil
}

// Prefix returns the topic prefix.
func (c *Conn) Prefix() string { return c.prefix }

// Topic joins parts under the prefix.
func (c *Conn) Topic(parts ...string) string {
	return c.prefix + "/" + strings.Join(parts, "/")
}

// Connected reports whether the broker connection is open.
func (c *Conn) Connected() bool {
	return c.connected != nil && c.connected()
}

// OnConnect registers fn to run after every connect. If the connection is
// already up, fn also runs immediately.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	up := c.up
	c.mu.Unlock()
	if up {
		fn()
	}
}

func (c *Conn) runHooks() {
	c.mu.Lock()
	c.up = true
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Publish sends payload without blocking the caller.
func (c *Conn) Publish(topic string, payload []byte, retained bool) {
	c.publish(topic, payload, retained)
}

// Subscribe registers h for topic, which may contain wildcards.
func (c *Conn) Subscribe(topic string, h MessageHandler) error {
	return c.subscribe(topic, h)
}

// Close publishes the offline state and disconnects.
func (c *Conn) Close() {
	c.Publish(c.Topic("bridge", "state"), []byte("offline"), true)
	if c.client != nil {
		c.client.Disconnect(1000)
	}
	c.logger.Info("MQTT disconnected")
}

func (c *Conn) pahoPublish(topic string, payload []byte, retained bool) {
	token := c.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			c.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			c.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func (c *Conn) pahoSubscribe(topic string, h MessageHandler) error {
	token := c.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}
