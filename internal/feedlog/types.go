package feedlog

import (
	"context"
	"errors"
	"time"
)

// ChannelFeedMessage is the hub channel readings are broadcast on.
const ChannelFeedMessage = "feed.message"

// Session event kinds stored in session_events.
const (
	EventConnect     = "connect"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventDisconnect  = "disconnect"
)

// ErrFeedIDRequired is returned by List when no feed ID is given.
var ErrFeedIDRequired = errors.New("feedlog: feed id is required")

// Reading is one message received on a subscribed topic.
type Reading struct {
	// ID is the auto-incremented row ID (zero until stored).
	ID int64 `json:"id,omitempty"`

	// Topic is the full topic the message arrived on.
	Topic string `json:"topic"`

	// FeedID is the short identifier handed to the message callback.
	FeedID string `json:"feed_id"`

	// Payload is the message body as text.
	Payload string `json:"payload"`

	QoS      byte `json:"qos"`
	Retained bool `json:"retained,omitempty"`

	// ReceivedAt is set by the Recorder when zero (UTC).
	ReceivedAt time.Time `json:"received_at"`
}

// Event is one session lifecycle event.
type Event struct {
	ID         int64     `json:"id,omitempty"`
	Kind       string    `json:"kind"`
	Topic      string    `json:"topic,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository stores and retrieves readings and session events.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Record stores a reading and sets its ID.
	Record(ctx context.Context, r *Reading) error

	// List returns the most recent readings for a feed, newest first.
	List(ctx context.Context, feedID string, limit int) ([]Reading, error)

	// Recent returns the most recent readings across all feeds, newest first.
	Recent(ctx context.Context, limit int) ([]Reading, error)

	// Prune deletes readings and events older than now-olderThan.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	// RecordEvent stores a session event.
	RecordEvent(ctx context.Context, e *Event) error

	// Events returns the most recent session events, newest first.
	Events(ctx context.Context, limit int) ([]Event, error)
}

// MetricWriter receives the numeric fields of a reading.
type MetricWriter interface {
	WriteFeedValue(feedID, topic string, fields map[string]float64, ts time.Time)
}

// Broadcaster pushes a payload to live subscribers of a channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}
