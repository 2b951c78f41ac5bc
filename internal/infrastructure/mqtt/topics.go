package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-aio/internal/infrastructure/config"
)

// Adafruit IO topic segments.
// See https://io.adafruit.com/api/docs/mqtt.html for the topic hierarchy.
const (
	segmentFeeds       = "feeds"
	segmentGroups      = "groups"
	segmentIntegration = "integration"
	segmentThrottle    = "throttle"
	segmentErrors      = "errors"
	segmentTime        = "time"

	// IntegrationAirQuality is the Adafruit IO+ air quality service.
	IntegrationAirQuality = "air_quality"

	// IntegrationWeather is the Adafruit IO+ weather service.
	IntegrationWeather = "weather"

	// timeISO is the shorthand accepted for the ISO-8601 time topic.
	timeISO = "iso"
)

// Topics provides builders for Adafruit IO MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Username: "alice"}
//	topic := topics.AirQuality(3, "forecast_today")
//	// Returns: "alice/integration/air_quality/3/forecast_today"
type Topics struct {
	Username string
}

// =============================================================================
// Account Topics
// =============================================================================

// Feed returns the topic for a feed's values.
//
// Example: alice/feeds/temperature
func (t Topics) Feed(key string) string {
	return fmt.Sprintf("%s/%s/%s", t.Username, segmentFeeds, key)
}

// FeedGet returns the topic that asks the broker to resend a feed's last value.
//
// Example: alice/feeds/temperature/get
func (t Topics) FeedGet(key string) string {
	return t.Feed(key) + "/get"
}

// Group returns the topic for every feed in a group.
//
// Example: alice/groups/garden
func (t Topics) Group(key string) string {
	return fmt.Sprintf("%s/%s/%s", t.Username, segmentGroups, key)
}

// Throttle returns the topic on which the broker reports rate limiting.
//
// Example: alice/throttle
func (t Topics) Throttle() string {
	return t.Username + "/" + segmentThrottle
}

// Errors returns the topic on which the broker reports publish errors.
//
// Example: alice/errors
func (t Topics) Errors() string {
	return t.Username + "/" + segmentErrors
}

// =============================================================================
// Integration Topics (Adafruit IO+)
// =============================================================================

// AirQuality returns the topic for an air quality record's forecast.
//
// Example: alice/integration/air_quality/3/current
func (t Topics) AirQuality(recordID int, forecast string) string {
	return t.integration(IntegrationAirQuality, recordID, forecast)
}

// Weather returns the topic for a weather record's forecast.
//
// Example: alice/integration/weather/1234/forecast_days_1
func (t Topics) Weather(recordID int, forecast string) string {
	return t.integration(IntegrationWeather, recordID, forecast)
}

func (t Topics) integration(service string, recordID int, forecast string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", t.Username, segmentIntegration, service, recordID, forecast)
}

// =============================================================================
// Time Topics
// =============================================================================

// Time returns the broker time topic for kind.
// Kind is one of seconds, millis, hours or iso; iso maps to ISO-8601.
//
// Example: time/ISO-8601
func (Topics) Time(kind string) string {
	if kind == timeISO {
		kind = "ISO-8601"
	}
	return segmentTime + "/" + kind
}

// =============================================================================
// Subscription set
// =============================================================================

// SubscriptionTopics expands a subscription configuration into the ordered
// topic list: air quality, weather, time, feeds, groups, throttle, errors.
//
// Returns:
//   - []string: Topics in subscription order
//   - error: ErrInvalidTopic if a key is empty or contains '/', '+' or '#'
func (t Topics) SubscriptionTopics(subs config.SubscriptionsConfig) ([]string, error) {
	var topics []string

	for _, aq := range subs.AirQuality {
		for _, forecast := range aq.Forecasts {
			if err := validateSegment(forecast); err != nil {
				return nil, err
			}
			topics = append(topics, t.AirQuality(aq.RecordID, forecast))
		}
	}
	for _, w := range subs.Weather {
		for _, forecast := range w.Forecasts {
			if err := validateSegment(forecast); err != nil {
				return nil, err
			}
			topics = append(topics, t.Weather(w.RecordID, forecast))
		}
	}
	for _, kind := range subs.Time {
		if err := validateSegment(kind); err != nil {
			return nil, err
		}
		topics = append(topics, t.Time(kind))
	}
	for _, key := range subs.Feeds {
		if err := validateSegment(key); err != nil {
			return nil, err
		}
		topics = append(topics, t.Feed(key))
	}
	for _, key := range subs.Groups {
		if err := validateSegment(key); err != nil {
			return nil, err
		}
		topics = append(topics, t.Group(key))
	}
	if subs.Throttle {
		topics = append(topics, t.Throttle())
	}
	if subs.Errors {
		topics = append(topics, t.Errors())
	}

	return topics, nil
}

func validateSegment(s string) error {
	if s == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(s, "/+#") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidTopic, s)
	}
	return nil
}

// FeedID maps a received topic to the short identifier reported to message
// handlers:
//
//	time/seconds                          -> seconds
//	alice/feeds/temperature               -> temperature
//	alice/groups/garden                   -> garden
//	alice/integration/air_quality/3/current -> air_quality
//	alice/throttle                        -> throttle
//
// Unrecognised topics are returned unchanged.
func FeedID(topic string) string {
	parts := strings.Split(topic, "/")

	if len(parts) == 2 && parts[0] == segmentTime {
		return parts[1]
	}
	if len(parts) < 2 {
		return topic
	}

	switch parts[1] {
	case segmentFeeds, segmentGroups, segmentIntegration:
		if len(parts) >= 3 && parts[2] != "" {
			return parts[2]
		}
	case segmentThrottle, segmentErrors:
		if len(parts) == 2 {
			return parts[1]
		}
	}
	return topic
}
