// Package status provides a thread-safe status tracker for the antbridge
// daemon. It is designed to be read by HTTP handlers without touching the
// pipeline goroutines.
package status

import (
	"sync"
	"time"
)

// UserStatus is a display copy of one user's aggregated metrics.
type UserStatus struct {
	Name        string
	HeartRate   *uint8
	Speed       *float64
	Cadence     *float64
	Power       *uint16
	Online      bool
	LastUpdated float64
}

// DeviceStatus is a display copy of one tracked device.
type DeviceStatus struct {
	DeviceID uint32
	Profile  string
	Label    string
	LastSeen float64
}

// Counts holds pipeline counters updated from the run loop.
type Counts struct {
	Packets   int
	Decoded   int
	Published int
	Saved     int
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs    int64
	StaleSecs int64
	Broker    string
	BaseTopic string
	HTTPPort  string
	SaveFile  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Users         []UserStatus
	Devices       []DeviceStatus
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets user aggregates, the device list, and pipeline counters.
// Called from the run loop on every tick. The tracker takes ownership of
// the slices.
func (t *Tracker) Update(users []UserStatus, devices []DeviceStatus, counts Counts) {
	t.mu.Lock()
	t.snap.Users = users
	t.snap.Devices = devices
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
