// Package assign maps device readings onto logical users. The engine runs
// once per tick on a store snapshot; like a detector it is pure state plus
// injected time, so tests drive it directly.
package assign

import (
	"time"

	"github.com/Velotales/antbridge/internal/config"
	"github.com/Velotales/antbridge/internal/store"
)

// Aggregate is one user's current best-known metrics.
type Aggregate struct {
	Name        string
	HeartRate   *uint8
	Speed       *float64
	Cadence     *float64
	Power       *uint16
	LastUpdated float64 // unix seconds; only ever advances
}

// Engine owns the per-user aggregates and the "last active HR user" used to
// attribute shared sensors. It is not safe for concurrent use; only the tick
// loop touches it.
type Engine struct {
	users  []config.UserConfig
	shared *config.SharedDeviceConfig

	aggregates       map[string]*Aggregate
	lastActiveHRUser string
}

// NewEngine creates an engine with an aggregate pre-created for every user
// that has at least one heart-rate device.
func NewEngine(users []config.UserConfig, shared *config.SharedDeviceConfig) *Engine {
	e := &Engine{
		users:      users,
		shared:     shared,
		aggregates: make(map[string]*Aggregate),
	}
	for _, u := range users {
		if u.Name != "" && len(u.HRIDs()) > 0 {
			e.aggregates[u.Name] = &Aggregate{Name: u.Name}
		}
	}
	return e
}

// Tick runs one assignment pass over a device snapshot. Update times come
// from the devices' LastSeen, not the tick clock, so a sensor that stops
// transmitting lets its user go stale even though its last reading stays in
// the snapshot.
func (e *Engine) Tick(devices map[uint32]store.Device, now time.Time) {
	// Step 1: heart rate, first configured device wins per user; the user
	// with the freshest heartbeat becomes the active one.
	var activeUser string
	var activeSeen float64
	for _, u := range e.users {
		if u.Name == "" {
			continue
		}
		for _, id := range u.HRIDs() {
			dev, ok := devices[id]
			if !ok {
				continue
			}
			hr := dev.Reading.HeartRate
			if hr == nil || *hr == 0 {
				// 0 bpm is a valid sample but not a present reading.
				continue
			}
			agg := e.aggregate(u.Name)
			agg.HeartRate = hr
			if dev.LastSeen > agg.LastUpdated {
				agg.LastUpdated = dev.LastSeen
			}
			if dev.LastSeen > activeSeen {
				activeSeen = dev.LastSeen
				activeUser = u.Name
			}
			break
		}
	}
	if activeUser != "" {
		e.lastActiveHRUser = activeUser
	}

	// Step 2: owned bike sensors, copied unconditionally when present.
	// Change gating happens downstream at the publish sink.
	for _, u := range e.users {
		if u.Name == "" {
			continue
		}
		if u.SpeedDeviceID == 0 && u.CadenceDeviceID == 0 && u.PowerDeviceID == 0 {
			continue
		}
		agg := e.aggregate(u.Name)
		e.copyDevice(devices, u.SpeedDeviceID, u.CadenceDeviceID, u.PowerDeviceID, agg)
	}

	// Step 3: shared sensors go to whoever most recently showed a heartbeat.
	if e.shared.Empty() || e.lastActiveHRUser == "" {
		return
	}
	agg := e.aggregate(e.lastActiveHRUser)
	seen := e.copyDevice(devices, e.shared.SpeedDeviceID, e.shared.CadenceDeviceID, e.shared.PowerDeviceID, agg)
	if seen > agg.LastUpdated {
		agg.LastUpdated = seen
	}
}

// copyDevice copies present values into the aggregate and returns the newest
// LastSeen among the devices it copied from.
func (e *Engine) copyDevice(devices map[uint32]store.Device, speedID, cadenceID, powerID uint32, agg *Aggregate) float64 {
	var seen float64
	if speedID != 0 {
		if dev, ok := devices[speedID]; ok && dev.Reading.Speed != nil {
			agg.Speed = dev.Reading.Speed
			if dev.LastSeen > seen {
				seen = dev.LastSeen
			}
		}
	}
	if cadenceID != 0 {
		if dev, ok := devices[cadenceID]; ok && dev.Reading.Cadence != nil {
			agg.Cadence = dev.Reading.Cadence
			if dev.LastSeen > seen {
				seen = dev.LastSeen
			}
		}
	}
	if powerID != 0 {
		if dev, ok := devices[powerID]; ok && dev.Reading.Power != nil {
			agg.Power = dev.Reading.Power
			if dev.LastSeen > seen {
				seen = dev.LastSeen
			}
		}
	}
	return seen
}

func (e *Engine) aggregate(name string) *Aggregate {
	agg, ok := e.aggregates[name]
	if !ok {
		agg = &Aggregate{Name: name}
		e.aggregates[name] = agg
	}
	return agg
}

// Aggregates returns a copy of all user aggregates.
func (e *Engine) Aggregates() map[string]Aggregate {
	out := make(map[string]Aggregate, len(e.aggregates))
	for name, agg := range e.aggregates {
		out[name] = *agg
	}
	return out
}

// LastActiveHRUser returns the user most recently credited with an active
// heart-rate reading, or "" before any user has one.
func (e *Engine) LastActiveHRUser() string {
	return e.lastActiveHRUser
}
