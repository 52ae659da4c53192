package ant

import (
	"fmt"
	"sync"
)

// FakeTransport is a test double that records opened channels and lets tests
// inject frames as if they arrived over the radio.
type FakeTransport struct {
	mu sync.Mutex

	// Channels contains every channel opened so far, in open order.
	Channels []*FakeChannel

	// OpenError, if set, will be returned by Open.
	OpenError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Open records the spec and returns a FakeChannel wired to the handler.
func (t *FakeTransport) Open(spec ChannelSpec, handler PacketHandler) (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenError != nil {
		return nil, t.OpenError
	}
	ch := &FakeChannel{
		Spec:    spec,
		handler: handler,
		Bound: Identity{
			DeviceID: spec.DeviceID,
			Profile:  spec.Profile,
		},
	}
	t.Channels = append(t.Channels, ch)
	return ch, nil
}

// Close marks the transport as closed.
func (t *FakeTransport) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.mu.Unlock()
	return nil
}

// Channel returns the open channel whose label matches, or nil.
func (t *FakeTransport) Channel(label string) *FakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.Channels {
		if ch.Spec.Label == label {
			return ch
		}
	}
	return nil
}

// Deliver injects a frame on the first channel bound to the given device id,
// falling back to a wildcard channel of the same profile.
func (t *FakeTransport) Deliver(deviceID uint32, profile Profile, payload []byte) error {
	t.mu.Lock()
	var target *FakeChannel
	for _, ch := range t.Channels {
		if ch.Spec.DeviceID == deviceID && ch.Spec.Profile == profile {
			target = ch
			break
		}
		if target == nil && ch.Spec.DeviceID == 0 && ch.Spec.Profile == profile {
			target = ch
		}
	}
	t.mu.Unlock()
	if target == nil {
		return fmt.Errorf("no channel for device %d profile %s", deviceID, profile)
	}
	target.Deliver(deviceID, payload)
	return nil
}

// FakeChannel is a scripted receive channel.
type FakeChannel struct {
	Spec    ChannelSpec
	handler PacketHandler

	mu sync.Mutex

	// Bound is the identity returned once IdentityFailures runs out.
	Bound Identity

	// IdentityFailures makes the next N Identity calls report not-ok,
	// simulating a transport that has not confirmed the binding yet.
	IdentityFailures int

	// IdentityCalls counts Identity invocations.
	IdentityCalls int

	// Closed tracks if Close was called.
	Closed bool
}

// Deliver invokes the channel's packet handler with the given frame.
func (c *FakeChannel) Deliver(deviceID uint32, payload []byte) {
	c.handler.OnPacket(deviceID, c.Spec.Profile, payload)
}

// Identity returns the scripted identity after any scripted failures.
func (c *FakeChannel) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IdentityCalls++
	if c.IdentityFailures > 0 {
		c.IdentityFailures--
		return Identity{}, false
	}
	return c.Bound, true
}

// Close marks the channel as closed.
func (c *FakeChannel) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}
