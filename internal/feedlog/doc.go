// Package feedlog records messages received by the Adafruit IO session.
//
// A Recorder fans each Reading out to up to three optional sinks:
//   - a Repository (SQLite message history, feed_messages table)
//   - a MetricWriter (InfluxDB, numeric payloads only)
//   - a Broadcaster (WebSocket hub, channel "feed.message")
//
// Session lifecycle events (connect, subscribe, unsubscribe, disconnect)
// are stored in the session_events table through RecordEvent.
//
// Usage:
//
//	repo := feedlog.NewSQLiteRepository(db.DB)
//	rec := feedlog.NewRecorder(feedlog.Deps{
//	    Repo:    repo,
//	    Metrics: influxClient,
//	    Hub:     hub,
//	    Logger:  logger,
//	})
//
//	rec.Record(ctx, feedlog.Reading{Topic: topic, FeedID: feedID, Payload: payload})
package feedlog
