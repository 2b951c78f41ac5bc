package session

import (
	"context"
	"fmt"
)

// Shutdown unsubscribes every topic, drains in-flight messages and
// disconnects.
//
// Each topic gets one unsubscribe attempt plus one reconnect-and-retry
// fallback. A topic that fails both is logged and skipped; the remaining
// topics are still attempted. The drain performs at most DrainPolls polls,
// and Disconnect is always called.
//
// Shutdown ignores cancellation of ctx for its own control flow; ctx is only
// passed through to the transport.
//
// Returns:
//   - error: ErrDisconnect wrapping the transport error, or nil
func (s *Session) Shutdown(ctx context.Context) error {
	s.setState(StateDraining)
	s.logger.Info("unsubscribing and disconnecting", "topics", len(s.topics))

	for _, topic := range s.topics {
		s.unsubscribe(ctx, topic)
	}

	s.drain(ctx)

	err := s.transport.Disconnect(ctx)
	s.setState(StateDisconnected)
	if cb := s.callbacks.OnDisconnect; cb != nil {
		cb(s)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnect, err)
	}
	return nil
}

// unsubscribe makes the initial attempt and the single fallback for topic.
func (s *Session) unsubscribe(ctx context.Context, topic string) {
	err := s.tryUnsubscribe(ctx, topic)
	if err == nil {
		return
	}
	s.logger.Warn("failed to unsubscribe, reconnecting", "topic", topic, "error", err)

	err = s.retryUnsubscribe(ctx, topic)
	if err == nil {
		return
	}

	s.mu.Lock()
	s.stats.FailedUnsubscribes++
	s.mu.Unlock()
	s.logger.Error("failed to unsubscribe", "topic", topic, "error", err)
}

// retryUnsubscribe reconnects, polls once and retries the unsubscribe.
// The subscription set is not restored on this reconnect.
func (s *Session) retryUnsubscribe(ctx context.Context, topic string) error {
	if err := s.transport.Reconnect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrReconnect, err)
	}
	s.connected()

	res := s.transport.Loop(ctx)
	if res.Status == PollOK {
		s.dispatch(res.Messages)
	} else {
		s.logger.Debug("poll after reconnect failed", "status", res.Status.String(), "error", res.Err)
	}

	return s.tryUnsubscribe(ctx, topic)
}

func (s *Session) tryUnsubscribe(ctx context.Context, topic string) error {
	id, err := s.transport.Unsubscribe(ctx, topic)
	if err != nil {
		return err
	}
	if cb := s.callbacks.OnUnsubscribe; cb != nil {
		cb(s, s.userData, topic, id)
	}
	return nil
}

// drain polls up to drainPolls times to flush in-flight messages. Errors are
// logged and swallowed; a fatal result ends the drain early.
func (s *Session) drain(ctx context.Context) {
	for i := range s.drainPolls {
		res := s.transport.Loop(ctx)
		switch res.Status {
		case PollOK:
			s.dispatch(res.Messages)
		case PollRetryable:
			s.logger.Warn("failed to get data during drain", "poll", i+1, "error", res.Err)
			continue
		default:
			s.logger.Error("poll failed during drain, stopping drain", "poll", i+1, "error", res.Err)
			return
		}

		if i < s.drainPolls-1 {
			if err := s.sleep(ctx, s.pollInterval); err != nil {
				return
			}
		}
	}
}
