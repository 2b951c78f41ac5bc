package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementFeed holds numeric values received on Adafruit IO topics.
	MeasurementFeed = "aio_feed"

	// MeasurementSession holds session counters.
	MeasurementSession = "aio_session"
)

// WriteFeedValue records the numeric fields of one received message.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Calls with no fields are ignored.
//
// Parameters:
//   - feedID: Short identifier (tag feed_id), e.g. "air_quality"
//   - topic: Full topic (tag topic)
//   - fields: Numeric fields, e.g. {"value": 21.5} or {"aqi": 42, "pm2_5": 9.1}
//   - ts: Receive time
//
// Example:
//
//	client.WriteFeedValue("temperature", "alice/feeds/temperature",
//	    map[string]float64{"value": 21.5}, time.Now())
func (c *Client) WriteFeedValue(feedID, topic string, fields map[string]float64, ts time.Time) {
	if len(fields) == 0 || !c.IsConnected() {
		return
	}

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	point := write.NewPoint(
		MeasurementFeed,
		map[string]string{
			"feed_id": feedID,
			"topic":   topic,
		},
		values,
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// WriteSessionCounters records a snapshot of the session counters.
//
// Parameters:
//   - state: Session state name (tag state)
//   - counters: e.g. {"reconnects": 2, "messages": 130}
func (c *Client) WriteSessionCounters(state string, counters map[string]uint64) {
	if len(counters) == 0 || !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, len(counters))
	for k, v := range counters {
		fields[k] = v
	}

	point := write.NewPoint(
		MeasurementSession,
		map[string]string{"state": state},
		fields,
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
