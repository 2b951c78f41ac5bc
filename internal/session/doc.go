// Package session drives a publish/subscribe session against Adafruit IO.
//
// A Session owns the lifecycle of one Transport:
//
//	Disconnected -> Connected -> Subscribed -> Draining -> Disconnected
//
// Connect establishes the transport, fires OnConnect and subscribes every
// topic of the fixed subscription set in order. Run then polls the transport
// at a steady cadence. Each poll returns a tagged PollResult:
//
//   - PollOK: messages are delivered to OnMessage in arrival order
//   - PollRetryable: the network is reset, the transport reconnected and the
//     subscription set restored, with no retry limit
//   - PollFatal: Run returns ErrFatalPoll without cleanup
//
// When the context passed to Run is cancelled, the loop stops at the next
// iteration boundary and Shutdown runs: every topic is unsubscribed (with one
// reconnect-and-retry fallback each), a bounded drain flushes in-flight
// messages, and the transport is disconnected.
//
// Callbacks run synchronously on the goroutine calling Run and never
// concurrently with each other.
//
// Usage:
//
//	sess, err := session.New(transport, session.Config{
//	    Topics:    topics,
//	    Callbacks: session.Callbacks{OnMessage: handle},
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	return sess.Run(ctx)
package session
