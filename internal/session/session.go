package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default timing values.
const (
	// DefaultPollInterval is the delay between successful polls.
	DefaultPollInterval = time.Second

	// DefaultDrainPolls is the number of polls performed after unsubscribing.
	DefaultDrainPolls = 3
)

// Config holds the construction parameters for a Session.
type Config struct {
	// Topics is the ordered subscription set. It is subscribed in order at
	// connect and unsubscribed in the same order at shutdown.
	Topics []string

	// Callbacks are the event hooks. Any of them may be nil.
	Callbacks Callbacks

	// UserData is passed unchanged to OnSubscribe and OnUnsubscribe.
	UserData any

	// PollInterval is the sleep between successful polls (0 = DefaultPollInterval).
	PollInterval time.Duration

	// DrainPolls is the number of polls after unsubscribing (0 = DefaultDrainPolls).
	DrainPolls int

	// Resetter resets the network before a steady-state reconnect. When nil,
	// the transport is used if it implements NetworkResetter.
	Resetter NetworkResetter

	// Logger receives lifecycle logs. When nil, logs are discarded.
	Logger Logger

	// Sleep waits for d or until ctx is done. When nil, a timer is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	State              State     `json:"state"`
	Reconnects         uint64    `json:"reconnects"`
	Messages           uint64    `json:"messages"`
	FailedUnsubscribes uint64    `json:"failed_unsubscribes"`
	ConnectedAt        time.Time `json:"connected_at,omitzero"`
	LastMessageAt      time.Time `json:"last_message_at,omitzero"`
}

// Session drives a Transport through connect, subscribe, poll, reconnect and
// shutdown.
//
// Run, Connect and Shutdown must be called from a single goroutine. State,
// Topics and Stats are safe to call concurrently with them.
type Session struct {
	transport    Transport
	resetter     NetworkResetter
	topics       []string
	callbacks    Callbacks
	userData     any
	pollInterval time.Duration
	drainPolls   int
	logger       Logger
	sleep        func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	stats Stats
}

// New creates a Session for the given transport.
//
// Parameters:
//   - transport: The connection to drive
//   - cfg: Subscription set, callbacks and timing
//
// Returns:
//   - *Session: Session in StateDisconnected
//   - error: ErrNilTransport, ErrNoTopics or ErrInvalidTopic
func New(transport Transport, cfg Config) (*Session, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if len(cfg.Topics) == 0 {
		return nil, ErrNoTopics
	}

	seen := make(map[string]struct{}, len(cfg.Topics))
	for i, topic := range cfg.Topics {
		if topic == "" {
			return nil, fmt.Errorf("%w: topic %d is empty", ErrInvalidTopic, i)
		}
		if _, dup := seen[topic]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %q", ErrInvalidTopic, topic)
		}
		seen[topic] = struct{}{}
	}

	s := &Session{
		transport:    transport,
		resetter:     cfg.Resetter,
		topics:       append([]string(nil), cfg.Topics...),
		callbacks:    cfg.Callbacks,
		userData:     cfg.UserData,
		pollInterval: cfg.PollInterval,
		drainPolls:   cfg.DrainPolls,
		logger:       cfg.Logger,
		sleep:        cfg.Sleep,
	}

	if s.resetter == nil {
		if r, ok := transport.(NetworkResetter); ok {
			s.resetter = r
		}
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.drainPolls <= 0 {
		s.drainPolls = DefaultDrainPolls
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}

	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.State
}

// Topics returns a copy of the subscription set.
func (s *Session) Topics() []string {
	return append([]string(nil), s.topics...)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Connect establishes the transport connection, fires OnConnect and
// subscribes every topic in order.
//
// A failed initial connect is not retried.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() != StateDisconnected {
		return ErrAlreadyConnected
	}

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	s.connected()

	if err := s.subscribeAll(ctx); err != nil {
		return err
	}
	s.setState(StateSubscribed)
	return nil
}

// Run connects (unless already connected), polls until ctx is cancelled and
// then runs Shutdown.
//
// Retryable poll results trigger a network reset and reconnect with no limit.
// A fatal poll result or a failed reconnect ends Run without shutdown.
//
// Returns:
//   - error: nil after a clean cancellation-driven shutdown
func (s *Session) Run(ctx context.Context) error {
	if s.State() == StateDisconnected {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}

	if err := s.poll(ctx); err != nil {
		return err
	}

	return s.Shutdown(context.WithoutCancel(ctx))
}

// poll is the steady-state loop. It returns nil once ctx is cancelled.
func (s *Session) poll(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res := s.transport.Loop(ctx)
		switch res.Status {
		case PollOK:
			s.dispatch(res.Messages)

		case PollRetryable:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("failed to get data, retrying", "error", res.Err)
			if err := s.resetAndReconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue

		default:
			s.logger.Error("poll failed", "status", res.Status.String(), "error", res.Err)
			return fmt.Errorf("%w: %w", ErrFatalPoll, res.Err)
		}

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil
		}
	}
}

// resetAndReconnect resets the network, reconnects and resubscribes.
// Failures are not retried.
func (s *Session) resetAndReconnect(ctx context.Context) error {
	s.mu.Lock()
	s.stats.Reconnects++
	s.stats.State = StateDisconnected
	s.mu.Unlock()

	if s.resetter != nil {
		if err := s.resetter.ResetNetwork(ctx); err != nil {
			return fmt.Errorf("%w: network reset: %w", ErrReconnect, err)
		}
	}
	if err := s.transport.Reconnect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrReconnect, err)
	}
	s.connected()

	if err := s.subscribeAll(ctx); err != nil {
		return err
	}
	s.setState(StateSubscribed)
	return nil
}

func (s *Session) subscribeAll(ctx context.Context) error {
	for _, topic := range s.topics {
		qos, err := s.transport.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribe, topic, err)
		}
		if cb := s.callbacks.OnSubscribe; cb != nil {
			cb(s, s.userData, topic, qos)
		}
	}
	return nil
}

// connected records a successful (re)connect and fires OnConnect. While
// draining the state is left unchanged.
func (s *Session) connected() {
	s.mu.Lock()
	if s.stats.State != StateDraining {
		s.stats.State = StateConnected
	}
	s.stats.ConnectedAt = time.Now()
	s.mu.Unlock()

	if cb := s.callbacks.OnConnect; cb != nil {
		cb(s)
	}
}

// dispatch delivers messages to OnMessage in arrival order.
func (s *Session) dispatch(msgs []Message) {
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	s.stats.Messages += uint64(len(msgs))
	s.stats.LastMessageAt = time.Now()
	s.mu.Unlock()

	cb, raw := s.callbacks.OnMessage, s.callbacks.OnRawMessage
	for _, msg := range msgs {
		if cb != nil {
			id := msg.FeedID
			if id == "" {
				id = msg.Topic
			}
			cb(s, id, string(msg.Payload))
		}
		if raw != nil {
			raw(s, msg)
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.stats.State = state
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
