package mqtt

import "sync"

// MetricMessage is one recorded metric publish.
type MetricMessage struct {
	User    string
	Metric  string
	Payload string
}

// AvailabilityMessage is one recorded availability publish.
type AvailabilityMessage struct {
	User   string
	Online bool
}

// RetainedMessage is one recorded raw retained publish.
type RetainedMessage struct {
	Topic   string
	Payload []byte
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Metrics contains all metric publishes in call order.
	Metrics []MetricMessage

	// Availability contains all availability publishes in call order.
	Availability []AvailabilityMessage

	// Retained contains all raw retained publishes (discovery configs).
	Retained []RetainedMessage

	// PublishError, if set, will be returned by every publish method.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishMetric records the metric publish.
func (f *FakePublisher) PublishMetric(user, metric, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Metrics = append(f.Metrics, MetricMessage{User: user, Metric: metric, Payload: payload})
	return nil
}

// PublishAvailability records the availability publish.
func (f *FakePublisher) PublishAvailability(user string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Availability = append(f.Availability, AvailabilityMessage{User: user, Online: online})
	return nil
}

// PublishRetained records the raw retained publish.
func (f *FakePublisher) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Retained = append(f.Retained, RetainedMessage{Topic: topic, Payload: payload})
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// MetricsFor returns the recorded publishes for one (user, metric) pair.
func (f *FakePublisher) MetricsFor(user, metric string) []MetricMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []MetricMessage
	for _, m := range f.Metrics {
		if m.User == user && m.Metric == metric {
			out = append(out, m)
		}
	}
	return out
}

// AvailabilityFor returns the recorded availability states for one user.
func (f *FakePublisher) AvailabilityFor(user string) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, a := range f.Availability {
		if a.User == user {
			out = append(out, a.Online)
		}
	}
	return out
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Metrics = nil
	f.Availability = nil
	f.Retained = nil
	f.Closed = false
	f.PublishError = nil
}
