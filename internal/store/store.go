// Package store holds the latest decoded state per physical device. It is the
// single shared-mutation boundary between channel workers and the tick loop.
package store

import (
	"sync"
	"time"

	"github.com/Velotales/antbridge/internal/decode"
)

// Device is the latest decoded state for one physical device. Devices are
// created on first payload and never removed during a run.
type Device struct {
	DeviceID uint32
	Label    string
	Reading  decode.Reading
	Context  decode.Context
	LastSeen float64 // unix seconds, updated on every upsert
}

// Store is a keyed store of device state. All mutation happens under one
// exclusive lock; the lock is never held across I/O.
type Store struct {
	mu      sync.Mutex
	devices map[uint32]Device
}

// New creates an empty Store.
func New() *Store {
	return &Store{devices: make(map[uint32]Device)}
}

// Context returns the decode context for the device, zero value if unseen.
func (s *Store) Context(deviceID uint32) decode.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[deviceID].Context
}

// Upsert replaces the device's reading and context and stamps LastSeen,
// regardless of whether any decoded field changed. It reports whether this is
// the first payload seen for the device.
func (s *Store) Upsert(deviceID uint32, label string, r decode.Reading, ctx decode.Context, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.devices[deviceID]
	s.devices[deviceID] = Device{
		DeviceID: deviceID,
		Label:    label,
		Reading:  r,
		Context:  ctx,
		LastSeen: float64(now.UnixNano()) / 1e9,
	}
	return !seen
}

// Snapshot returns a point-in-time copy of all device state. Readings are
// treated as immutable once stored, so sharing their pointer fields is safe.
func (s *Store) Snapshot() map[uint32]Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]Device, len(s.devices))
	for id, d := range s.devices {
		out[id] = d
	}
	return out
}

// Len returns the number of known devices.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}
