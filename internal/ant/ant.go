// Package ant defines the boundary to the ANT+ radio transport.
// The real USB radio driver lives outside this repository; the daemon only
// needs something that opens receive channels and delivers framed payloads.
// The fake implementation allows testing without hardware.
package ant

import "fmt"

// Profile identifies a sensor's data-format category. Values are the ANT+
// device type codes carried in the channel ID.
type Profile uint8

const (
	ProfileUnknown      Profile = 0
	ProfilePower        Profile = 11
	ProfileHeartRate    Profile = 120
	ProfileSpeedCadence Profile = 121 // combined speed and cadence
	ProfileCadence      Profile = 122
	ProfileSpeed        Profile = 123
)

// HasSpeed reports whether the profile carries a speed component.
func (p Profile) HasSpeed() bool {
	return p == ProfileSpeedCadence || p == ProfileSpeed
}

// HasCadence reports whether the profile carries a cadence component.
func (p Profile) HasCadence() bool {
	return p == ProfileSpeedCadence || p == ProfileCadence
}

func (p Profile) String() string {
	switch p {
	case ProfileHeartRate:
		return "heart-rate"
	case ProfileSpeedCadence:
		return "speed-cadence"
	case ProfileCadence:
		return "cadence"
	case ProfileSpeed:
		return "speed"
	case ProfilePower:
		return "power"
	}
	return fmt.Sprintf("unknown(%d)", uint8(p))
}

// Channel tuning constants from the ANT+ device profiles.
const (
	PeriodHeartRate      = 8070 // counts of the 32768 Hz clock
	PeriodDefault        = 8086
	RFFrequency          = 57 // 2457 MHz
	SearchTimeoutSeconds = 30
)

// ChannelSpec describes one receive channel to open.
type ChannelSpec struct {
	DeviceID uint32 // 0 = wildcard search
	Profile  Profile
	Label    string // diagnostic, e.g. "Alice-HR1"

	Period        uint16
	RFFreq        uint8
	SearchTimeout uint8
}

// NewChannelSpec builds a spec with the profile's standard tuning.
func NewChannelSpec(deviceID uint32, profile Profile, label string) ChannelSpec {
	period := uint16(PeriodDefault)
	if profile == ProfileHeartRate {
		period = PeriodHeartRate
	}
	return ChannelSpec{
		DeviceID:      deviceID,
		Profile:       profile,
		Label:         label,
		Period:        period,
		RFFreq:        RFFrequency,
		SearchTimeout: SearchTimeoutSeconds,
	}
}

// Identity is the device identity a channel is bound to, confirmed by the
// transport after a wildcard search locks onto an actual device.
type Identity struct {
	DeviceID         uint32
	Profile          Profile
	TransmissionType uint8
}

// PacketHandler receives every broadcast or burst frame from a channel.
// Implementations must be safe to call from multiple transport goroutines,
// one per channel.
type PacketHandler interface {
	OnPacket(deviceID uint32, profile Profile, payload []byte)
}

// Channel is one open receive channel.
type Channel interface {
	// Identity reports the bound device identity. ok is false while the
	// transport has not yet confirmed the binding; callers should retry a
	// bounded number of times, not spin forever.
	Identity() (Identity, bool)

	// Close stops reception on this channel.
	Close() error
}

// Transport opens receive channels against the radio.
type Transport interface {
	// Open starts reception. The handler is invoked for every inbound frame
	// until the channel is closed.
	Open(spec ChannelSpec, handler PacketHandler) (Channel, error)

	// Close shuts down the transport and all of its channels.
	Close() error
}
