// Package decode turns raw ANT+ broadcast payloads into structured readings.
// This package is pure: no I/O, no clocks. Delta-based profiles carry their
// state in a Context value owned by the caller.
package decode

import (
	"encoding/binary"
	"errors"

	"github.com/Velotales/antbridge/internal/ant"
)

// ErrShortPayload is returned when a buffer is shorter than the profile's
// minimum length. Prior context is returned untouched.
var ErrShortPayload = errors.New("decode: payload shorter than profile minimum")

// DefaultWheelCircumference is the assumed wheel circumference in meters when
// the configuration does not supply one.
const DefaultWheelCircumference = 2.105

// minPayload is the broadcast page length shared by all supported profiles.
// Power readings need a 9th byte; its absence is expected, not an error.
const minPayload = 8

// Reading is one device's decoded sample. Metric fields are nil when the
// profile does not carry them or the sample had insufficient data.
type Reading struct {
	Profile ant.Profile

	HeartRate *uint8   // bpm; 0 means "no computed HR yet", still a valid sample
	Speed     *float64 // km/h
	Cadence   *float64 // rpm
	Power     *uint16  // watts

	// HR diagnostics, not aggregated.
	BeatTime  *uint16 // 1/1024 s ticks of the last beat
	BeatCount *uint8
}

// Context carries per-device decode state between samples of delta-based
// profiles. Counters are monotonic modulo 2^16; deltas must wrap.
type Context struct {
	Baselined       bool
	EventTimeTicks  uint16
	RevolutionCount uint16

	// Last emitted values, re-emitted when a sample carries no new event.
	LastSpeed   *float64
	LastCadence *float64
}

// Decode parses one payload for the given profile. prior is the device's
// context from the previous sample (zero value for the first); the returned
// context replaces it only on success.
func Decode(profile ant.Profile, payload []byte, prior Context, wheelCircumference float64) (Reading, Context, error) {
	r := Reading{Profile: profile}

	switch profile {
	case ant.ProfileHeartRate:
		if len(payload) < minPayload {
			return r, prior, ErrShortPayload
		}
		bpm := payload[7]
		r.HeartRate = &bpm
		beatTime := binary.LittleEndian.Uint16(payload[4:6])
		beatCount := payload[6]
		r.BeatTime = &beatTime
		r.BeatCount = &beatCount
		return r, prior, nil

	case ant.ProfileSpeedCadence, ant.ProfileCadence, ant.ProfileSpeed:
		if len(payload) < minPayload {
			return r, prior, ErrShortPayload
		}
		if wheelCircumference <= 0 {
			wheelCircumference = DefaultWheelCircumference
		}
		ticks := binary.LittleEndian.Uint16(payload[4:6])
		revs := binary.LittleEndian.Uint16(payload[6:8])

		next := Context{
			Baselined:       true,
			EventTimeTicks:  ticks,
			RevolutionCount: revs,
		}

		if !prior.Baselined {
			// First sample: no delta to form yet.
			return r, next, nil
		}

		deltaTicks := ticks - prior.EventTimeTicks // wraps mod 2^16
		deltaRevs := revs - prior.RevolutionCount

		if deltaTicks == 0 {
			// No new event occurred; keep emitting the previous values.
			r.Speed = prior.LastSpeed
			r.Cadence = prior.LastCadence
			next.LastSpeed = prior.LastSpeed
			next.LastCadence = prior.LastCadence
			return r, next, nil
		}

		seconds := float64(deltaTicks) / 1024.0
		if profile.HasSpeed() {
			speed := (float64(deltaRevs) * wheelCircumference / seconds) * 3.6
			r.Speed = &speed
			next.LastSpeed = &speed
		}
		if profile.HasCadence() {
			cadence := (float64(deltaRevs) / seconds) * 60.0
			r.Cadence = &cadence
			next.LastCadence = &cadence
		}
		return r, next, nil

	case ant.ProfilePower:
		if len(payload) < minPayload {
			return r, prior, ErrShortPayload
		}
		// Power pages vary in length; a missing high byte means the sample
		// simply carries no power value.
		if len(payload) >= 9 {
			watts := uint16(payload[7]) | uint16(payload[8])<<8
			r.Power = &watts
		}
		return r, prior, nil
	}

	// Unknown profile: no metrics, but still a sighting of the device.
	return r, prior, nil
}
