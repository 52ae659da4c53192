// Package persist maintains the found-devices document: one record per
// device, deep-merged and rate-limited, written best-effort. The aggregate
// pipeline never depends on these writes succeeding.
package persist

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Velotales/antbridge/internal/ant"
	"github.com/Velotales/antbridge/internal/decode"
)

// DefaultRateLimit is the minimum interval between writes for one record,
// absent metadata enrichment.
const DefaultRateLimit = 30 * time.Second

// TypeNames maps ANT+ device type codes to human descriptions.
var TypeNames = map[ant.Profile]string{
	ant.ProfileHeartRate:    "Heart Rate Monitor",
	ant.ProfileSpeedCadence: "Speed and Cadence Sensor",
	ant.ProfileCadence:      "Cadence Sensor",
	ant.ProfileSpeed:        "Speed Sensor",
	ant.ProfilePower:        "Power Meter",
	16:                      "Fitness Equipment",
	17:                      "Environment Sensor",
}

// Description returns the type name, or a generic fallback.
func Description(p ant.Profile) string {
	if name, ok := TypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Device type %d", uint8(p))
}

// RecordKey is the document key for one device: "{deviceType}_{deviceId}".
func RecordKey(profile ant.Profile, deviceID uint32) string {
	return fmt.Sprintf("%d_%d", uint8(profile), deviceID)
}

// Recorder merges device records into the external document store.
type Recorder interface {
	// MergeRecord deep-merges fields over any existing record under key,
	// preserving fields the new write does not supply.
	MergeRecord(key string, fields map[string]any) error
}

type pendingRecord struct {
	fields   map[string]any
	hasExtra bool
}

// Saver sits between the packet path and a Recorder. Offers are cheap and
// in-memory; Flush runs on the tick loop and applies the change gate: a
// record is written when it carries metadata enrichment or when the rate
// limit window has elapsed, and is otherwise dropped.
type Saver struct {
	mu            sync.Mutex
	recorder      Recorder
	rateLimit     time.Duration
	manufacturers map[uint16]string
	lastSave      map[string]time.Time
	pending       map[string]pendingRecord
}

// NewSaver creates a Saver in front of the recorder. manufacturers may be nil.
func NewSaver(recorder Recorder, rateLimit time.Duration, manufacturers map[uint16]string) *Saver {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Saver{
		recorder:      recorder,
		rateLimit:     rateLimit,
		manufacturers: manufacturers,
		lastSave:      make(map[string]time.Time),
		pending:       make(map[string]pendingRecord),
	}
}

// Offer records a sighting of a device. transmissionType may be nil while the
// channel identity is unresolved. Safe to call from channel workers.
func (s *Saver) Offer(profile ant.Profile, deviceID uint32, transmissionType *uint8, info decode.DeviceInfo, now time.Time) {
	fields := map[string]any{
		"device_id":   deviceID,
		"device_type": uint8(profile),
		"description": Description(profile),
		"last_seen":   float64(now.UnixNano()) / 1e9,
	}
	if transmissionType != nil {
		fields["transmission_type"] = *transmissionType
	}
	hasExtra := !info.Empty()
	for k, v := range info.Fields() {
		fields[k] = v
	}
	if info.ManufacturerID != nil {
		if name, ok := s.manufacturers[*info.ManufacturerID]; ok {
			fields["manufacturer_name"] = name
		}
	}

	key := RecordKey(profile, deviceID)
	s.mu.Lock()
	prev, ok := s.pending[key]
	if ok {
		// Later sightings overlay earlier ones; enrichment is sticky so a
		// common page between flushes still bypasses the rate limit.
		for k, v := range fields {
			prev.fields[k] = v
		}
		prev.hasExtra = prev.hasExtra || hasExtra
		s.pending[key] = prev
	} else {
		s.pending[key] = pendingRecord{fields: fields, hasExtra: hasExtra}
	}
	s.mu.Unlock()
}

// Flush writes the pending records that pass the gate and drops the rest.
// Returns the number of records written. Write failures are swallowed;
// persistence is best-effort telemetry.
func (s *Saver) Flush(now time.Time) int {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]pendingRecord)
	var allowed []struct {
		key    string
		fields map[string]any
	}
	for key, rec := range pending {
		// Metadata enrichment always counts as new information, bypassing
		// the time window. Preserved from the source behavior, quirks and
		// all: a stream that intermittently carries common pages writes
		// more often than the window alone would allow.
		if !rec.hasExtra && now.Sub(s.lastSave[key]) <= s.rateLimit {
			continue
		}
		s.lastSave[key] = now
		allowed = append(allowed, struct {
			key    string
			fields map[string]any
		}{key, rec.fields})
	}
	s.mu.Unlock()

	// I/O happens outside the lock.
	written := 0
	for _, rec := range allowed {
		if err := s.recorder.MergeRecord(rec.key, rec.fields); err != nil {
			log.Printf("persist: merge %s: %v", rec.key, err)
		} else {
			written++
		}
	}
	return written
}
