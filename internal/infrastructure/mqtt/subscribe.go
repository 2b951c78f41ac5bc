package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe subscribes to a single topic at the configured QoS.
//
// Received messages are queued for Loop; no per-topic handler is registered.
// The subscription is not tracked: after a reconnect the caller resubscribes.
//
// Parameters:
//   - ctx: Bounds the wait for SUBACK together with the configured timeout
//   - topic: Full topic, e.g. from Topics.Feed
//
// Returns:
//   - byte: QoS granted by the broker
//   - error: ErrInvalidTopic, ErrNotConnected, ErrSubscribeFailed or
//     ErrSubscriptionRejected
func (c *Client) Subscribe(ctx context.Context, topic string) (byte, error) {
	if topic == "" {
		return 0, ErrInvalidTopic
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, err := c.connectedLocked()
	if err != nil {
		return 0, err
	}

	qos := byte(c.cfg.QoS)
	token := cl.Subscribe(topic, qos, nil)
	if err := wait(ctx, token, connectTimeout(c.cfg)); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	granted := qos
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if q, found := st.Result()[topic]; found {
			granted = q
		}
	}
	if granted == subackFailure {
		return 0, fmt.Errorf("%w: %s", ErrSubscriptionRejected, topic)
	}

	return granted, nil
}

// Unsubscribe removes the subscription for a single topic.
//
// paho does not expose MQTT packet identifiers, so the returned ID numbers
// this client's UNSUBSCRIBE requests (1, 2, ... wrapping past 65535 to 1).
//
// Parameters:
//   - ctx: Bounds the wait for UNSUBACK together with the configured timeout
//   - topic: The exact topic that was subscribed to
//
// Returns:
//   - uint16: Request identifier
//   - error: ErrInvalidTopic, ErrNotConnected or ErrUnsubscribeFailed
func (c *Client) Unsubscribe(ctx context.Context, topic string) (uint16, error) {
	if topic == "" {
		return 0, ErrInvalidTopic
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, err := c.connectedLocked()
	if err != nil {
		return 0, err
	}

	c.unsubID++
	if c.unsubID == 0 {
		c.unsubID = 1
	}
	id := c.unsubID

	if err := wait(ctx, cl.Unsubscribe(topic), connectTimeout(c.cfg)); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}

	return id, nil
}
