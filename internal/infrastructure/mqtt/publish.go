package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size accepted by Adafruit IO for a feed value (100KB).
const maxPayloadSize = 100 * 1024

// getPayload is the body Adafruit IO expects on a feed's /get topic.
const getPayload = "\x00"

// Publish sends a value to a topic at the configured QoS.
//
// Parameters:
//   - ctx: Bounds the wait for PUBACK together with the configured timeout
//   - topic: The topic to publish to (e.g. Topics.Feed("temperature"))
//   - payload: The value, at most 100KB
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, err := c.connectedLocked()
	if err != nil {
		return err
	}

	token := cl.Publish(topic, byte(c.cfg.QoS), false, payload)
	if err := wait(ctx, token, connectTimeout(c.cfg)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// RequestLastValue asks the broker to resend the most recent value of a
// feed. The value arrives as an ordinary message on the feed topic.
//
// Example:
//
//	err := client.RequestLastValue(ctx, "temperature")
func (c *Client) RequestLastValue(ctx context.Context, feedKey string) error {
	if err := validateSegment(feedKey); err != nil {
		return err
	}
	return c.Publish(ctx, c.topics.FeedGet(feedKey), []byte(getPayload))
}
