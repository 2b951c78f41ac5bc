package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the configuration leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is used when the configuration leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// defaultInboxSize is used when the configuration leaves it unset.
	defaultInboxSize = 1024

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// maxQoS is the highest QoS Adafruit IO accepts.
	maxQoS = 1

	// subackFailure is the SUBACK return code for a rejected subscription.
	subackFailure = 0x80

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns the paho broker URL for cfg.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// connectTimeout returns the configured CONNACK/SUBACK/UNSUBACK wait.
func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return time.Duration(cfg.ConnectTimeout) * time.Second
}

// buildClientOptions creates paho MQTT options for an Adafruit IO session.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and Adafruit IO username/key
//   - Clean session, ordered delivery
//   - Auto-reconnect and connect-retry disabled (the session owns reconnection)
//   - TLS configuration (if enabled)
//
// The handlers route every received message to onMessage and every
// unexpected disconnect to onLost.
func buildClientOptions(
	cfg config.MQTTConfig,
	aio config.AIOConfig,
	onMessage pahomqtt.MessageHandler,
	onLost pahomqtt.ConnectionLostHandler,
) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)
	opts.SetUsername(aio.Username)
	opts.SetPassword(aio.Key)

	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(connectTimeout(cfg))
	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: cfg.Broker.Host,
		})
	}

	opts.SetDefaultPublishHandler(onMessage)
	opts.SetConnectionLostHandler(onLost)

	return opts
}
