package session

import "errors"

// Errors returned by Session. Use errors.Is() to check for them.
var (
	// ErrNoTopics is returned by New when the subscription set is empty.
	ErrNoTopics = errors.New("session: subscription set is empty")

	// ErrInvalidTopic is returned by New for an empty or duplicate topic.
	ErrInvalidTopic = errors.New("session: invalid topic")

	// ErrNilTransport is returned by New when no transport is supplied.
	ErrNilTransport = errors.New("session: transport is required")

	// ErrAlreadyConnected is returned by Connect when the session is not disconnected.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrConnect wraps a failed initial connection.
	ErrConnect = errors.New("session: connect failed")

	// ErrSubscribe wraps a failed subscription during connect or reconnect.
	ErrSubscribe = errors.New("session: subscribe failed")

	// ErrReconnect wraps a failed network reset or reconnect in the poll loop.
	ErrReconnect = errors.New("session: reconnect failed")

	// ErrFatalPoll wraps the error of a poll classified as fatal.
	ErrFatalPoll = errors.New("session: fatal poll error")

	// ErrDisconnect wraps a failed final disconnect.
	ErrDisconnect = errors.New("session: disconnect failed")
)
