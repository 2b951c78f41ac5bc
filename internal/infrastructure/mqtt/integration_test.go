//go:build integration

package mqtt

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-aio/internal/session"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883 that accepts
// any username and password (e.g. Mosquitto with allow_anonymous true).
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:            1,
		ConnectTimeout: 5,
		InboxSize:      64,
	}
}

var integrationAIO = config.AIOConfig{Username: "it-user", Key: "it-key"}

func newIntegrationClient(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := New(integrationConfig(clientID), integrationAIO)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

// pollFor loops until n messages arrive or the deadline passes.
func pollFor(t *testing.T, c *Client, n int) []session.Message {
	t.Helper()
	var got []session.Message
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		res := c.Loop(context.Background())
		if res.Status != session.PollOK {
			t.Fatalf("Loop() = %v/%v", res.Status, res.Err)
		}
		got = append(got, res.Messages...)
		time.Sleep(20 * time.Millisecond)
	}
	return got
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := newIntegrationClient(t, "aio-it-pub")
	sub := newIntegrationClient(t, "aio-it-sub")

	topic := sub.Topics().Feed("roundtrip")
	if _, err := sub.Subscribe(context.Background(), topic); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := pub.Publish(context.Background(), topic, []byte("42")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := pollFor(t, sub, 1)
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}
	if msgs[0].FeedID != "roundtrip" || string(msgs[0].Payload) != "42" {
		t.Errorf("message = %+v", msgs[0])
	}
}

// TestIntegration_ResetAndReconnect verifies a reset client can reconnect and
// resubscribe.
func TestIntegration_ResetAndReconnect(t *testing.T) {
	c := newIntegrationClient(t, "aio-it-reset")
	ctx := context.Background()

	if err := c.ResetNetwork(ctx); err != nil {
		t.Fatalf("ResetNetwork() error = %v", err)
	}
	if res := c.Loop(ctx); res.Status != session.PollRetryable {
		t.Errorf("Loop() after reset = %v, want retryable", res.Status)
	}
	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if _, err := c.Subscribe(ctx, c.Topics().Time("seconds")); err != nil {
		t.Errorf("Subscribe() after reconnect error = %v", err)
	}
}

// TestIntegration_SessionLifecycle drives a full session against the broker.
func TestIntegration_SessionLifecycle(t *testing.T) {
	pub := newIntegrationClient(t, "aio-it-session-pub")

	c, err := New(integrationConfig("aio-it-session"), integrationAIO)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	topics := []string{c.Topics().Feed("a"), c.Topics().Feed("b")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received, unsubscribed []string
	sess, err := session.New(c, session.Config{
		Topics:       topics,
		PollInterval: 50 * time.Millisecond,
		Callbacks: session.Callbacks{
			OnSubscribe: func(*session.Session, any, string, byte) {
				go func() {
					_ = pub.Publish(context.Background(), topics[0], []byte("hello"))
				}()
			},
			OnMessage: func(_ *session.Session, feedID, payload string) {
				mu.Lock()
				received = append(received, feedID+"="+payload)
				mu.Unlock()
				cancel()
			},
			OnUnsubscribe: func(_ *session.Session, _ any, topic string, _ uint16) {
				mu.Lock()
				unsubscribed = append(unsubscribed, topic)
				mu.Unlock()
			},
		},
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for session to finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 || received[0] != "a=hello" {
		t.Errorf("received = %v, want a=hello first", received)
	}
	if !slices.Equal(unsubscribed, topics) {
		t.Errorf("unsubscribed = %v, want %v", unsubscribed, topics)
	}
}
