package session

import "context"

// State is the lifecycle state of a Session.
type State int

// Session states.
//
//	Disconnected -> Connected -> Subscribed -> Draining -> Disconnected
const (
	StateDisconnected State = iota
	StateConnected
	StateSubscribed
	StateDraining
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PollStatus classifies the outcome of a single poll.
type PollStatus int

const (
	// PollOK means the poll completed; any received messages are attached.
	PollOK PollStatus = iota

	// PollRetryable means the transport failed in a way a network reset and
	// reconnect can recover from.
	PollRetryable

	// PollFatal means the transport cannot continue. The session stops.
	PollFatal
)

// String returns the status name.
func (p PollStatus) String() string {
	switch p {
	case PollOK:
		return "ok"
	case PollRetryable:
		return "retryable"
	case PollFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Message is a single message received on a subscribed topic.
type Message struct {
	// Topic is the full topic the broker delivered the message on.
	Topic string

	// FeedID is the short identifier passed to OnMessage (a feed key, a time
	// suffix, an integration name). Empty means Topic is used.
	FeedID string

	Payload  []byte
	QoS      byte
	Retained bool
}

// PollResult is the tagged result of Transport.Loop.
type PollResult struct {
	Status   PollStatus
	Err      error
	Messages []Message
}

// OK returns a successful PollResult carrying msgs.
func OK(msgs ...Message) PollResult {
	return PollResult{Status: PollOK, Messages: msgs}
}

// Retryable returns a PollResult that asks the session to reset and reconnect.
func Retryable(err error) PollResult {
	return PollResult{Status: PollRetryable, Err: err}
}

// Fatal returns a PollResult that stops the session.
func Fatal(err error) PollResult {
	return PollResult{Status: PollFatal, Err: err}
}

// Transport is the publish/subscribe connection a Session drives.
//
// Implementations are not required to be safe for concurrent use: a Session
// calls them from a single goroutine.
type Transport interface {
	// Connect establishes the initial connection.
	Connect(ctx context.Context) error

	// Reconnect re-establishes a connection that failed or was reset.
	Reconnect(ctx context.Context) error

	// Subscribe subscribes to a single topic and returns the granted QoS.
	Subscribe(ctx context.Context, topic string) (byte, error)

	// Unsubscribe unsubscribes from a single topic and returns the packet ID
	// of the UNSUBSCRIBE request.
	Unsubscribe(ctx context.Context, topic string) (uint16, error)

	// Loop performs one bounded poll for incoming messages and keepalive.
	// It must return promptly whether or not a message arrived.
	Loop(ctx context.Context) PollResult

	// Disconnect closes the connection.
	Disconnect(ctx context.Context) error
}

// NetworkResetter resets the network path below the transport before a
// reconnect (on a microcontroller, the Wi-Fi co-processor).
type NetworkResetter interface {
	ResetNetwork(ctx context.Context) error
}

// Callbacks are the session event hooks. Any of them may be nil.
//
// Callbacks run synchronously on the goroutine calling Run, Connect or
// Shutdown, never concurrently with each other.
type Callbacks struct {
	OnConnect     func(s *Session)
	OnDisconnect  func(s *Session)
	OnSubscribe   func(s *Session, userData any, topic string, grantedQoS byte)
	OnUnsubscribe func(s *Session, userData any, topic string, packetID uint16)
	OnMessage     func(s *Session, feedID string, payload string)

	// OnRawMessage receives the full message after OnMessage. Optional.
	OnRawMessage func(s *Session, msg Message)
}

// Logger is the logging surface used by Session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
