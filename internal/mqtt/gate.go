package mqtt

import (
	"fmt"
	"log"

	"github.com/Velotales/antbridge/internal/assign"
)

// Gate suppresses redundant publishes. A metric is sent only when its value
// differs from the last one successfully published for that (user, metric)
// pair; availability is sent only on transition. Gate state is rebuilt from
// scratch at process start, so correctness never depends on carrying it
// across restarts.
//
// Only the tick loop calls the gate, so it needs no locking of its own.
type Gate struct {
	pub Publisher

	// user -> metric -> last successfully published payload
	lastPublished map[string]map[string]string

	// user -> last successfully published availability
	lastAvailability map[string]bool
}

// NewGate creates a gate in front of the publisher.
func NewGate(pub Publisher) *Gate {
	return &Gate{
		pub:              pub,
		lastPublished:    make(map[string]map[string]string),
		lastAvailability: make(map[string]bool),
	}
}

// PublishUser sends the aggregate's present metrics that changed since the
// last successful publish. Absent values are never published and never clear
// a previously published value. Returns the number of publishes that
// succeeded.
func (g *Gate) PublishUser(user string, agg assign.Aggregate) int {
	sent := 0
	if agg.HeartRate != nil {
		sent += g.publishMetric(user, MetricHeartRate, fmt.Sprintf("%d", *agg.HeartRate))
	}
	if agg.Speed != nil {
		sent += g.publishMetric(user, MetricSpeed, fmt.Sprintf("%.2f", *agg.Speed))
	}
	if agg.Cadence != nil {
		sent += g.publishMetric(user, MetricCadence, fmt.Sprintf("%d", int(*agg.Cadence)))
	}
	if agg.Power != nil {
		sent += g.publishMetric(user, MetricPower, fmt.Sprintf("%d", *agg.Power))
	}
	return sent
}

func (g *Gate) publishMetric(user, metric, payload string) int {
	last, ok := g.lastPublished[user][metric]
	if ok && last == payload {
		return 0
	}
	if err := g.pub.PublishMetric(user, metric, payload); err != nil {
		// Leave gate state untouched so the next tick retries naturally.
		log.Printf("mqtt: publish %s/%s: %v", user, metric, err)
		return 0
	}
	if g.lastPublished[user] == nil {
		g.lastPublished[user] = make(map[string]string)
	}
	g.lastPublished[user][metric] = payload
	return 1
}

// SetAvailability publishes the user's state if it differs from the last
// successfully published one.
func (g *Gate) SetAvailability(user string, online bool) {
	last, ok := g.lastAvailability[user]
	if ok && last == online {
		return
	}
	if err := g.pub.PublishAvailability(user, online); err != nil {
		log.Printf("mqtt: availability %s: %v", user, err)
		return
	}
	state := PayloadOffline
	if online {
		state = PayloadOnline
	}
	log.Printf("availability for %q: %s", user, state)
	g.lastAvailability[user] = online
}
