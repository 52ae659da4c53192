package ant

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReplayTransport replays a recorded frame log as if it arrived over the
// radio. This is the only transport compiled into the daemon itself; a real
// USB radio driver plugs in through the Transport interface.
//
// Log format, one entry per line:
//
//	<device_id> <device_type> <hex payload>   deliver a frame
//	sleep <duration>                          pause playback
//	# comment / blank                         ignored
type ReplayTransport struct {
	mu       sync.Mutex
	channels []*replayChannel
	closed   bool
}

// NewReplayTransport creates a transport with no channels open yet.
func NewReplayTransport() *ReplayTransport {
	return &ReplayTransport{}
}

// Open registers a channel; frames from Run are routed by device id, falling
// back to a wildcard channel of the same profile.
func (t *ReplayTransport) Open(spec ChannelSpec, handler PacketHandler) (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("replay transport closed")
	}
	ch := &replayChannel{spec: spec, handler: handler}
	t.channels = append(t.channels, ch)
	return ch, nil
}

// Close marks the transport closed; Run returns on the next entry.
func (t *ReplayTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Run reads the log and delivers frames until EOF or Close.
func (t *ReplayTransport) Run(r io.Reader) error {
	scan := bufio.NewScanner(r)
	line := 0
	for scan.Scan() {
		line++
		text := strings.TrimSpace(scan.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil
		}

		fields := strings.Fields(text)
		if fields[0] == "sleep" {
			if len(fields) != 2 {
				return fmt.Errorf("replay line %d: sleep wants a duration", line)
			}
			d, err := time.ParseDuration(fields[1])
			if err != nil {
				return fmt.Errorf("replay line %d: %w", line, err)
			}
			time.Sleep(d)
			continue
		}

		if len(fields) != 3 {
			return fmt.Errorf("replay line %d: want <device_id> <device_type> <hex>", line)
		}
		deviceID, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return fmt.Errorf("replay line %d: device id: %w", line, err)
		}
		deviceType, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return fmt.Errorf("replay line %d: device type: %w", line, err)
		}
		payload, err := hex.DecodeString(fields[2])
		if err != nil {
			return fmt.Errorf("replay line %d: payload: %w", line, err)
		}

		t.deliver(uint32(deviceID), Profile(deviceType), payload)
	}
	return scan.Err()
}

func (t *ReplayTransport) deliver(deviceID uint32, profile Profile, payload []byte) {
	t.mu.Lock()
	var target *replayChannel
	for _, ch := range t.channels {
		if ch.isClosed() {
			continue
		}
		if ch.spec.DeviceID == deviceID && ch.spec.Profile == profile {
			target = ch
			break
		}
		if target == nil && ch.spec.DeviceID == 0 && ch.spec.Profile == profile {
			target = ch
		}
	}
	t.mu.Unlock()
	if target != nil {
		target.handler.OnPacket(deviceID, profile, payload)
	}
}

type replayChannel struct {
	spec    ChannelSpec
	handler PacketHandler

	mu     sync.Mutex
	closed bool
}

// Identity reports the configured channel ID; replayed channels are always
// considered bound (transmission type 0, matching a wildcard pairing).
func (c *replayChannel) Identity() (Identity, bool) {
	return Identity{DeviceID: c.spec.DeviceID, Profile: c.spec.Profile}, true
}

func (c *replayChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *replayChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
