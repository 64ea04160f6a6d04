// Package mqtt carries device frames in and events out over an MQTT broker.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	"container_telemetry/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	keepAlive      = 60 * time.Second
	pingTimeout    = 10 * time.Second
	connectTimeout = 5 * time.Second
	disconnectMs   = 250
)

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConnectionHooks receives connection state changes. LineSource implements it.
type ConnectionHooks interface {
	OnConnect(c mqtt.Client)
	OnConnectionLost(err error)
}

// Client manages the broker connection. Handlers are bound at Connect so the
// client can be handed to publishers before the subscriber exists.
type Client struct {
	native mqtt.Client
	cfg    ClientConfig
	log    *logger.Logger

	mu    sync.RWMutex
	hooks ConnectionHooks
}

func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	c := &Client{cfg: cfg, log: logger.OrNop(log).Named("mqtt")}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(pingTimeout)
	opts.SetOrderMatters(true)
	opts.SetWriteTimeout(publishTimeout)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleConnectionLost)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.log.Debugw("mqtt_unrouted_message", "topic", msg.Topic())
	})

	c.native = mqtt.NewClient(opts)
	return c
}

// Connect starts connecting. If the broker is not reachable within the
// connect timeout, paho keeps retrying in the background and Connect
// returns nil; hooks fire once the session is up.
func (c *Client) Connect(hooks ConnectionHooks) error {
	c.mu.Lock()
	c.hooks = hooks
	c.mu.Unlock()

	token := c.native.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.log.Warnw("mqtt_connect_pending", "broker", c.cfg.Broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	c.log.Infow("mqtt_connected", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID)
	return nil
}

func (c *Client) handleConnect(mc mqtt.Client) {
	c.mu.RLock()
	h := c.hooks
	c.mu.RUnlock()
	if h != nil {
		h.OnConnect(mc)
	}
}

func (c *Client) handleConnectionLost(_ mqtt.Client, err error) {
	c.log.Warnw("mqtt_connection_lost", "err", err)
	c.mu.RLock()
	h := c.hooks
	c.mu.RUnlock()
	if h != nil {
		h.OnConnectionLost(err)
	}
}

func (c *Client) IsConnectionOpen() bool {
	return c.native.IsConnectionOpen()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return c.native.Publish(topic, qos, retained, payload)
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.native.Disconnect(disconnectMs)
	c.log.Infow("mqtt_disconnected")
}
