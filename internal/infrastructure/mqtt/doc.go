// Package mqtt provides the Adafruit IO MQTT transport.
//
// This package manages:
//   - Connection to io.adafruit.com (or any MQTT 3.1.1 broker) with the
//     account username and key as credentials
//   - Single-topic subscribe and unsubscribe with granted QoS reporting
//   - A bounded inbox that hands received messages to the session goroutine
//   - Adafruit IO topic builders and feed ID extraction
//
// # Architecture
//
// Client implements session.Transport. paho's auto-reconnect is disabled;
// connection loss is recorded and reported by the next Loop as a retryable
// result, and the session decides when to reset and reconnect.
//
//	session.Session -> mqtt.Client -> paho -> io.adafruit.com:8883
//
// # Topics
//
//	{user}/feeds/{key}                               feed values
//	{user}/groups/{key}                              group values
//	{user}/integration/air_quality/{id}/{forecast}   Adafruit IO+ air quality
//	{user}/integration/weather/{id}/{forecast}       Adafruit IO+ weather
//	{user}/throttle, {user}/errors                   broker notices
//	time/seconds, time/millis, time/ISO-8601         broker clock
//
// # Security Considerations
//
//   - TLS (port 8883) is the default; plain TCP uses port 1883
//   - The Adafruit IO key is the MQTT password; never log it
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, cfg.AIO)
//	if err != nil {
//	    return err
//	}
//	topics, err := client.Topics().SubscriptionTopics(cfg.Session.Subscriptions)
//	if err != nil {
//	    return err
//	}
//	sess, err := session.New(client, session.Config{Topics: topics})
package mqtt
