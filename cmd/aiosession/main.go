// aiosession keeps an Adafruit IO MQTT session alive.
//
// It connects, subscribes to the configured feeds, groups, time topics and
// integrations, and polls until interrupted, reconnecting after every
// retryable failure. On SIGINT or SIGTERM it unsubscribes each topic, drains
// the final messages, and disconnects.
//
// Received messages are logged, stored in SQLite, written to InfluxDB when
// enabled, and broadcast to WebSocket clients of the status API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-aio/internal/api"
	"github.com/nerrad567/gray-logic-aio/internal/feedlog"
	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-aio/internal/session"
	"github.com/nerrad567/gray-logic-aio/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when AIO_CONFIG is unset and the file exists.
	defaultConfigPath = "configs/config.yaml"

	// envConfigPath overrides the configuration file path.
	envConfigPath = "AIO_CONFIG"

	// statsInterval is how often session counters go to InfluxDB.
	statsInterval = time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service and drives the session until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancelled on interrupt; triggers the unsubscribe and drain sequence
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting aiosession",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, source, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "source", source, "username", cfg.AIO.Username)

	// Work that must outlive the interrupt (drain-time recording, the status
	// API during shutdown) runs on this context.
	bg, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	checks := make(map[string]api.Pinger)
	deps := feedlog.Deps{Logger: log.With("component", "feedlog")}

	// Message history (optional)
	var (
		db   *database.DB
		repo *feedlog.SQLiteRepository
	)
	if cfg.Database.Enabled {
		db, repo, err = openHistory(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		deps.Repo = repo
		checks["database"] = db
	} else {
		log.Info("message history disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		deps.Metrics = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub (only with the API)
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
		go hub.Run(bg)
		deps.Hub = hub
	}

	recorder := feedlog.NewRecorder(deps)

	// MQTT transport
	client, err := mqtt.New(cfg.MQTT, cfg.AIO)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	checks["mqtt"] = client

	topics, err := client.Topics().SubscriptionTopics(cfg.Session.Subscriptions)
	if err != nil {
		return fmt.Errorf("building subscriptions: %w", err)
	}

	sess, err := session.New(client, session.Config{
		Topics:       topics,
		Callbacks:    newCallbacks(bg, cfg, client, recorder, log),
		PollInterval: cfg.GetPollInterval(),
		DrainPolls:   cfg.Session.DrainPolls,
		Logger:       log.With("component", "session"),
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	// Status API (optional)
	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log.With("component", "api"),
			Session:   sess,
			Transport: client,
			Checks:    checks,
			Hub:       hub,
			Version:   version,
		}
		if repo != nil {
			apiDeps.History = repo
			apiDeps.DB = db.DB
		}
		server, apiErr := api.New(apiDeps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(bg); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if influxClient != nil {
		go statsLoop(ctx, sess, influxClient, statsInterval)
	}

	log.Info("Connecting to Adafruit IO...",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topics", len(topics),
	)

	runErr := sess.Run(ctx)
	stats := sess.Stats()
	log.Info("session ended",
		"reconnects", stats.Reconnects,
		"messages", stats.Messages,
		"failed_unsubscribes", stats.FailedUnsubscribes,
	)
	if runErr != nil {
		return fmt.Errorf("running session: %w", runErr)
	}
	return nil
}

// loadConfig reads AIO_CONFIG, then configs/config.yaml, then the environment alone.
//
// Returns:
//   - *config.Config: Validated configuration
//   - string: Where the configuration came from (a path or "environment")
//   - error: Read, parse, or validation failure
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv(envConfigPath); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, loadErr := config.Load(defaultConfigPath)
		return cfg, defaultConfigPath, loadErr
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("checking %s: %w", defaultConfigPath, err)
	}

	cfg, err := config.FromEnv()
	return cfg, "environment", err
}

// openHistory opens and migrates the database, then prunes expired rows.
func openHistory(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, *feedlog.SQLiteRepository, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS, migrations.Dir)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Path, "migrations_applied", applied)

	repo := feedlog.NewSQLiteRepository(db.DB)

	if cfg.RetentionDays > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		deleted, pruneErr := repo.Prune(ctx, retention)
		if pruneErr != nil {
			log.Warn("failed to prune message history", "error", pruneErr)
		} else if deleted > 0 {
			log.Info("pruned message history", "deleted", deleted, "retention_days", cfg.RetentionDays)
		}
	}

	return db, repo, nil
}

// lastValueRequester asks the broker to resend a feed's latest value.
type lastValueRequester interface {
	RequestLastValue(ctx context.Context, feedKey string) error
}

// newCallbacks builds the session callbacks: console lines plus recording.
func newCallbacks(
	ctx context.Context,
	cfg *config.Config,
	requester lastValueRequester,
	recorder *feedlog.Recorder,
	log *logging.Logger,
) session.Callbacks {
	// Feed topic -> feed key, for the optional /get request after subscribing.
	feedKeys := make(map[string]string)
	if cfg.Session.FetchLast {
		topics := mqtt.Topics{Username: cfg.AIO.Username}
		for _, key := range cfg.Session.Subscriptions.Feeds {
			feedKeys[topics.Feed(key)] = key
		}
	}

	return session.Callbacks{
		OnConnect: func(*session.Session) {
			log.Info("Connected to Adafruit IO!")
			recorder.RecordEvent(ctx, feedlog.EventConnect, "", "")
		},
		OnDisconnect: func(*session.Session) {
			log.Info("Disconnected from Adafruit IO!")
			recorder.RecordEvent(ctx, feedlog.EventDisconnect, "", "")
		},
		OnSubscribe: func(_ *session.Session, _ any, topic string, qos byte) {
			log.Info(fmt.Sprintf("Subscribed to %s with QOS level %d", topic, qos))
			recorder.RecordEvent(ctx, feedlog.EventSubscribe, topic, fmt.Sprintf("qos=%d", qos))

			if key, ok := feedKeys[topic]; ok {
				if err := requester.RequestLastValue(ctx, key); err != nil {
					log.Warn("failed to request last value", "feed", key, "error", err)
				}
			}
		},
		OnUnsubscribe: func(_ *session.Session, _ any, topic string, pid uint16) {
			log.Info(fmt.Sprintf("Unsubscribed from %s with PID %d", topic, pid))
			recorder.RecordEvent(ctx, feedlog.EventUnsubscribe, topic, fmt.Sprintf("pid=%d", pid))
		},
		OnMessage: func(_ *session.Session, feedID, payload string) {
			log.Info(fmt.Sprintf("%s received new value: %s", feedID, payload))
		},
		OnRawMessage: func(_ *session.Session, msg session.Message) {
			feedID := msg.FeedID
			if feedID == "" {
				feedID = msg.Topic
			}
			err := recorder.Record(ctx, feedlog.Reading{
				Topic:    msg.Topic,
				FeedID:   feedID,
				Payload:  string(msg.Payload),
				QoS:      msg.QoS,
				Retained: msg.Retained,
			})
			if err != nil {
				log.Warn("failed to record message", "feed", feedID, "error", err)
			}
		},
	}
}

// counterWriter receives periodic session counters.
type counterWriter interface {
	WriteSessionCounters(state string, counters map[string]uint64)
}

// statsLoop writes session counters every interval until ctx is cancelled.
func statsLoop(ctx context.Context, sess *session.Session, w counterWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCounters(sess.Stats(), w)
		}
	}
}

func writeCounters(stats session.Stats, w counterWriter) {
	w.WriteSessionCounters(stats.State.String(), map[string]uint64{
		"reconnects":          stats.Reconnects,
		"messages":            stats.Messages,
		"failed_unsubscribes": stats.FailedUnsubscribes,
	})
}
