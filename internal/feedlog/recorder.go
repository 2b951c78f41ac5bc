package feedlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Deps holds the optional sinks of a Recorder. Nil sinks are skipped.
type Deps struct {
	Repo    Repository
	Metrics MetricWriter
	Hub     Broadcaster
	Logger  Logger
}

// Recorder fans received readings out to its sinks.
type Recorder struct {
	repo    Repository
	metrics MetricWriter
	hub     Broadcaster
	logger  Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder from its dependencies.
func NewRecorder(deps Deps) *Recorder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		repo:    deps.Repo,
		metrics: deps.Metrics,
		hub:     deps.Hub,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record stores, measures, and broadcasts one reading.
//
// Metrics and broadcast run even when the store fails.
//
// Parameters:
//   - ctx: Context for the repository write
//   - r: Reading to record; ReceivedAt is filled in when zero
//
// Returns:
//   - error: the repository error, if any
func (rec *Recorder) Record(ctx context.Context, r Reading) error {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = rec.now()
	}

	var storeErr error
	if rec.repo != nil {
		if err := rec.repo.Record(ctx, &r); err != nil {
			storeErr = fmt.Errorf("recording %s: %w", r.FeedID, err)
		}
	}

	if rec.metrics != nil {
		if fields := NumericFields(r.Payload); len(fields) > 0 {
			rec.metrics.WriteFeedValue(r.FeedID, r.Topic, fields, r.ReceivedAt)
		}
	}

	if rec.hub != nil {
		rec.hub.Broadcast(ChannelFeedMessage, r)
	}

	return storeErr
}

// RecordEvent stores a session event. Failures are logged, not returned.
func (rec *Recorder) RecordEvent(ctx context.Context, kind, topic, detail string) {
	if rec.repo == nil {
		return
	}
	e := &Event{Kind: kind, Topic: topic, Detail: detail, OccurredAt: rec.now()}
	if err := rec.repo.RecordEvent(ctx, e); err != nil {
		rec.logger.Warn("failed to record session event", "kind", kind, "topic", topic, "error", err)
	}
}
