package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-aio/internal/session"
)

// Client is an Adafruit IO MQTT transport built on paho.mqtt.golang.
//
// It implements session.Transport and session.NetworkResetter. Unlike a
// typical paho client it never reconnects or resubscribes on its own: the
// session decides when to reconnect. Received messages are queued in a
// bounded inbox and handed out by Loop, so message handling happens on the
// caller's goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Operations that talk to the broker are serialised.
type Client struct {
	cfg       config.MQTTConfig
	topics    Topics
	options   *pahomqtt.ClientOptions
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
	inbox     *inbox

	// mu serialises broker operations and guards client, closed and unsubID.
	mu      sync.Mutex
	client  pahomqtt.Client
	closed  bool
	unsubID uint16

	// lost holds the error from the last unexpected disconnect.
	lost   error
	lostMu sync.Mutex

	// logger for transport warnings (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New creates an unconnected Client.
//
// Parameters:
//   - cfg: Broker, QoS and timeout settings
//   - aio: Adafruit IO username and key, used as MQTT credentials
//
// Returns:
//   - *Client: Client ready for Connect
//   - error: ErrMissingCredentials, ErrInvalidQoS or a configuration error
func New(cfg config.MQTTConfig, aio config.AIOConfig) (*Client, error) {
	if aio.Username == "" || aio.Key == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrConnectionFailed)
	}

	c := &Client{
		cfg:       cfg,
		topics:    Topics{Username: aio.Username},
		newClient: pahomqtt.NewClient,
		inbox:     newInbox(cfg.InboxSize),
	}
	c.options = buildClientOptions(cfg, aio, c.handleMessage, c.handleConnectionLost)

	return c, nil
}

// Topics returns the topic builder for the configured account.
func (c *Client) Topics() Topics {
	return c.topics
}

// Connect establishes the initial connection to the broker.
//
// Parameters:
//   - ctx: Bounds the wait for CONNACK together with the configured timeout
//
// Returns:
//   - error: ErrConnectionFailed wrapping the cause, or ErrClientClosed
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	return c.connectLocked(ctx)
}

// Reconnect closes any open connection and connects again. If ResetNetwork
// discarded the paho client, a fresh one is built.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.client != nil && c.client.IsConnectionOpen() {
		c.client.Disconnect(0)
	}
	return c.connectLocked(ctx)
}

// ResetNetwork drops the current paho client and its sockets. The next
// Reconnect dials the broker from scratch.
func (c *Client) ResetNetwork(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.client != nil {
		if c.client.IsConnectionOpen() {
			c.client.Disconnect(0)
		}
		c.client = nil
	}

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT network reset", "broker", brokerURL(c.cfg))
	}
	return nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.client == nil {
		c.client = c.newClient(c.options)
	}
	c.setLost(nil)

	timeout := connectTimeout(c.cfg)
	if err := wait(ctx, c.client.Connect(), timeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(c.cfg), err)
	}
	return nil
}

// Loop hands out the messages received since the previous call and reports
// the connection state. It never blocks.
//
// Returns:
//   - session.PollResult: OK with queued messages; Retryable after a lost
//     connection or a reset; Fatal after Disconnect
func (c *Client) Loop(_ context.Context) session.PollResult {
	c.mu.Lock()
	closed := c.closed
	cl := c.client
	c.mu.Unlock()

	if closed {
		return session.Fatal(ErrClientClosed)
	}

	// Messages that arrived before a connection loss are still delivered.
	if msgs := c.inbox.take(); len(msgs) > 0 {
		return session.OK(msgs...)
	}

	if err := c.lostErr(); err != nil {
		return session.Retryable(fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
	if cl == nil || !cl.IsConnectionOpen() {
		return session.Retryable(ErrNotConnected)
	}
	return session.OK()
}

// Disconnect closes the connection and the client. Every later operation
// returns ErrClientClosed and Loop reports a fatal result.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.client != nil && c.client.IsConnectionOpen() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}

// HealthCheck reports whether the broker connection is up.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.client != nil && c.client.IsConnectionOpen()
}

// Dropped returns the number of messages discarded because the inbox was full.
func (c *Client) Dropped() uint64 {
	return c.inbox.droppedCount()
}

// Pending returns the number of received messages not yet handed out by Loop.
func (c *Client) Pending() int {
	return c.inbox.len()
}

// SetLogger sets a logger for transport warnings.
// If not set, warnings are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// handleMessage queues a received message. Called on paho's goroutine.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	dropped := c.inbox.push(session.Message{
		Topic:    msg.Topic(),
		FeedID:   FeedID(msg.Topic()),
		Payload:  payload,
		QoS:      msg.Qos(),
		Retained: msg.Retained(),
	})
	if dropped {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT inbox full, dropped oldest message",
				"topic", msg.Topic(),
				"dropped_total", c.inbox.droppedCount(),
			)
		}
	}
}

// handleConnectionLost records an unexpected disconnect for the next Loop.
func (c *Client) handleConnectionLost(_ pahomqtt.Client, err error) {
	if err == nil {
		err = ErrNotConnected
	}
	c.setLost(err)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

func (c *Client) setLost(err error) {
	c.lostMu.Lock()
	c.lost = err
	c.lostMu.Unlock()
}

func (c *Client) lostErr() error {
	c.lostMu.Lock()
	defer c.lostMu.Unlock()
	return c.lost
}

// connectedLocked returns the paho client if it is usable. c.mu must be held.
func (c *Client) connectedLocked() (pahomqtt.Client, error) {
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.client == nil || !c.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// wait blocks until token completes, ctx is done or timeout elapses.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
