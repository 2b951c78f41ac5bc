// Package influxdb writes numeric feed values to InfluxDB v2.
//
// Every message whose payload is a number (or a JSON object with numeric
// fields) becomes one point in the aio_feed measurement, tagged with the
// feed ID and the full topic. Session counters go to aio_session.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	client.WriteFeedValue("temperature", "alice/feeds/temperature",
//	    map[string]float64{"value": 21.5}, time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write errors arrive asynchronously through SetOnError;
// Connect and HealthCheck return errors directly.
package influxdb
