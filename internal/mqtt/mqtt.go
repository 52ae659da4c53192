// Package mqtt publishes user metrics and availability to a broker, with
// abstraction for testing. Topic layout follows the Home Assistant
// conventions: {base}/users/{user}/{metric} and {base}/users/{user}/availability.
package mqtt

import "fmt"

// Availability payloads understood by Home Assistant.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Metric names as they appear in topics.
const (
	MetricHeartRate = "hr"
	MetricSpeed     = "speed"
	MetricCadence   = "cadence"
	MetricPower     = "power"
)

// Publisher publishes user data to MQTT.
type Publisher interface {
	// PublishMetric sends one metric value for a user.
	// Returns error if publishing fails (should not crash the process).
	PublishMetric(user, metric, payload string) error

	// PublishAvailability sends the user's online/offline state, retained so
	// subscribers recover the last-known status after a restart.
	PublishAvailability(user string, online bool) error

	// PublishRetained sends a raw retained message, used for discovery
	// configs outside the base topic.
	PublishRetained(topic string, payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// MetricTopic returns the state topic for one user metric.
func MetricTopic(baseTopic, user, metric string) string {
	return fmt.Sprintf("%s/users/%s/%s", baseTopic, user, metric)
}

// AvailabilityTopic returns the availability topic for a user.
func AvailabilityTopic(baseTopic, user string) string {
	return fmt.Sprintf("%s/users/%s/availability", baseTopic, user)
}
