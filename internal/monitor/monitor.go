// Package monitor wires the pipeline together: it opens receive channels
// against the transport, decodes inbound frames into the device store, and
// runs the tick loop that assigns readings to users, publishes changes and
// flushes device persistence.
package monitor

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Velotales/antbridge/internal/ant"
	"github.com/Velotales/antbridge/internal/assign"
	"github.com/Velotales/antbridge/internal/config"
	"github.com/Velotales/antbridge/internal/decode"
	"github.com/Velotales/antbridge/internal/mqtt"
	"github.com/Velotales/antbridge/internal/persist"
	"github.com/Velotales/antbridge/internal/status"
	"github.com/Velotales/antbridge/internal/store"
)

// Config tunes the monitor.
type Config struct {
	TickInterval       time.Duration // 0 = 500ms
	StaleSeconds       int           // 0 = 10
	WheelCircumference float64       // 0 = decode.DefaultWheelCircumference
	IdentityRetries    int           // 0 = 5
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.StaleSeconds <= 0 {
		c.StaleSeconds = 10
	}
	if c.WheelCircumference <= 0 {
		c.WheelCircumference = decode.DefaultWheelCircumference
	}
	if c.IdentityRetries <= 0 {
		c.IdentityRetries = 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Monitor owns the channels and the tick loop.
type Monitor struct {
	cfg     Config
	sensors *config.SensorConfig
	mqttCfg config.MQTTConfig

	transport  ant.Transport
	store      *store.Store
	engine     *assign.Engine
	pub        mqtt.Publisher
	gate       *mqtt.Gate
	saver      *persist.Saver
	tracker    *status.Tracker
	connStatus mqtt.ConnectionStatus

	bindings []*binding

	// Incremented from channel worker goroutines.
	packets int64
	decoded int64

	// Only the tick loop touches these.
	published int
	saved     int
}

// New creates a Monitor. tracker and connStatus may be nil.
func New(cfg Config, sensors *config.SensorConfig, mqttCfg config.MQTTConfig, transport ant.Transport, pub mqtt.Publisher, saver *persist.Saver, tracker *status.Tracker, connStatus mqtt.ConnectionStatus) *Monitor {
	if cfg.WheelCircumference <= 0 {
		cfg.WheelCircumference = sensors.WheelCircumference
	}
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:        cfg,
		sensors:    sensors,
		mqttCfg:    mqttCfg,
		transport:  transport,
		store:      store.New(),
		engine:     assign.NewEngine(sensors.SensorMap.Users, sensors.SensorMap.Wattbike),
		pub:        pub,
		gate:       mqtt.NewGate(pub),
		saver:      saver,
		tracker:    tracker,
		connStatus: connStatus,
	}
}

// binding ties one open channel to its packet handler state. Identity
// resolution is retried a bounded number of times, then cached (or given up
// on) for the rest of the run.
type binding struct {
	mon   *Monitor
	label string

	mu       sync.Mutex
	ch       ant.Channel
	tt       *uint8
	attempts int
}

// OnPacket implements ant.PacketHandler. It runs on a transport goroutine,
// so it only does in-memory work: decode, store upsert, persistence offer.
func (b *binding) OnPacket(deviceID uint32, profile ant.Profile, payload []byte) {
	atomic.AddInt64(&b.mon.packets, 1)
	now := b.mon.cfg.Now()

	prior := b.mon.store.Context(deviceID)
	reading, ctx, err := decode.Decode(profile, payload, prior, b.mon.cfg.WheelCircumference)
	if err != nil {
		log.Printf("%s: decode device %d: %v", b.label, deviceID, err)
		return
	}
	atomic.AddInt64(&b.mon.decoded, 1)

	if first := b.mon.store.Upsert(deviceID, b.label, reading, ctx, now); first {
		log.Printf("%s: discovered device %d (%s)", b.label, deviceID, profile)
	}

	b.mon.saver.Offer(profile, deviceID, b.transmissionType(), decode.ParseCommonPage(payload), now)
}

// transmissionType returns the channel's transmission type once the
// transport has confirmed the identity, nil before then or after the retry
// budget is spent.
func (b *binding) transmissionType() *uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tt != nil || b.ch == nil || b.attempts >= b.mon.cfg.IdentityRetries {
		return b.tt
	}
	b.attempts++
	if id, ok := b.ch.Identity(); ok {
		tt := id.TransmissionType
		b.tt = &tt
		log.Printf("%s: bound to device %d transmission type %d", b.label, id.DeviceID, tt)
	}
	return b.tt
}

// Specs returns the channel specs the sensor map calls for, one per
// configured device id, in declaration order.
func Specs(sensors *config.SensorConfig) []ant.ChannelSpec {
	var specs []ant.ChannelSpec
	add := func(id uint32, profile ant.Profile, label string) {
		if id == 0 {
			return
		}
		specs = append(specs, ant.NewChannelSpec(id, profile, label))
	}

	for _, u := range sensors.SensorMap.Users {
		if u.Name == "" {
			continue
		}
		hrIDs := u.HRIDs()
		for i, id := range hrIDs {
			label := u.Name + "-HR"
			if len(hrIDs) > 1 {
				label = fmt.Sprintf("%s-HR%d", u.Name, i+1)
			}
			add(id, ant.ProfileHeartRate, label)
		}
		add(u.SpeedDeviceID, ant.ProfileSpeed, u.Name+"-Speed")
		add(u.CadenceDeviceID, ant.ProfileCadence, u.Name+"-Cadence")
		add(u.PowerDeviceID, ant.ProfilePower, u.Name+"-Power")
	}

	if wb := sensors.SensorMap.Wattbike; wb != nil {
		add(wb.SpeedDeviceID, ant.ProfileSpeed, "Wattbike-Speed")
		add(wb.CadenceDeviceID, ant.ProfileCadence, "Wattbike-Cadence")
		add(wb.PowerDeviceID, ant.ProfilePower, "Wattbike-Power")
	}
	return specs
}

// Start opens every configured channel, publishes the initial offline
// availability for each user and the discovery configs. On error all
// already-opened channels are closed.
func (m *Monitor) Start() error {
	for _, spec := range Specs(m.sensors) {
		b := &binding{mon: m, label: spec.Label}
		ch, err := m.transport.Open(spec, b)
		if err != nil {
			m.closeChannels()
			return fmt.Errorf("open channel %s (device %d): %w", spec.Label, spec.DeviceID, err)
		}
		b.mu.Lock()
		b.ch = ch
		b.mu.Unlock()
		m.bindings = append(m.bindings, b)
		log.Printf("opened channel %s: device %d profile %s period %d", spec.Label, spec.DeviceID, spec.Profile, spec.Period)
	}

	for _, u := range m.sensors.SensorMap.Users {
		if u.Name == "" || len(u.HRIDs()) == 0 {
			continue
		}
		m.gate.SetAvailability(u.Name, false)
		mqtt.PublishDiscovery(m.pub, u, m.mqttCfg)
	}
	return nil
}

func (m *Monitor) closeChannels() {
	for _, b := range m.bindings {
		b.mu.Lock()
		ch := b.ch
		b.mu.Unlock()
		if ch != nil {
			if err := ch.Close(); err != nil {
				log.Printf("%s: close channel: %v", b.label, err)
			}
		}
	}
	m.bindings = nil
}

// Run drives the tick loop until a signal arrives. The tick channel and
// clock are injected so tests can drive the loop directly.
func (m *Monitor) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			m.shutdown()
			return nil

		case <-tick:
			m.Tick(m.cfg.Now())
		}
	}
}

// Tick runs one pass: assignment, gated publishing, availability,
// persistence flush, status update. Run calls it on every tick; tests call
// it directly.
func (m *Monitor) Tick(now time.Time) {
	devices := m.store.Snapshot()
	m.engine.Tick(devices, now)

	aggs := m.engine.Aggregates()
	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	sort.Strings(names)

	nowSecs := float64(now.UnixNano()) / 1e9
	for _, name := range names {
		agg := aggs[name]
		m.published += m.gate.PublishUser(name, agg)
		m.gate.SetAvailability(name, m.online(agg, nowSecs))
	}

	m.saved += m.saver.Flush(now)

	if m.tracker != nil {
		m.updateTracker(devices, aggs, names, nowSecs)
	}
}

// online reports whether the aggregate has been updated recently enough to
// count as present.
func (m *Monitor) online(agg assign.Aggregate, nowSecs float64) bool {
	return agg.LastUpdated > 0 && nowSecs-agg.LastUpdated <= float64(m.cfg.StaleSeconds)
}

func (m *Monitor) updateTracker(devices map[uint32]store.Device, aggs map[string]assign.Aggregate, names []string, nowSecs float64) {
	users := make([]status.UserStatus, 0, len(names))
	for _, name := range names {
		agg := aggs[name]
		users = append(users, status.UserStatus{
			Name:        name,
			HeartRate:   agg.HeartRate,
			Speed:       agg.Speed,
			Cadence:     agg.Cadence,
			Power:       agg.Power,
			Online:      m.online(agg, nowSecs),
			LastUpdated: agg.LastUpdated,
		})
	}

	ds := make([]status.DeviceStatus, 0, len(devices))
	for _, d := range devices {
		ds = append(ds, status.DeviceStatus{
			DeviceID: d.DeviceID,
			Profile:  d.Reading.Profile.String(),
			Label:    d.Label,
			LastSeen: d.LastSeen,
		})
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].DeviceID < ds[j].DeviceID })

	m.tracker.Update(users, ds, status.Counts{
		Packets:   int(atomic.LoadInt64(&m.packets)),
		Decoded:   int(atomic.LoadInt64(&m.decoded)),
		Published: m.published,
		Saved:     m.saved,
	})
	if m.connStatus != nil {
		m.tracker.SetMQTTConnected(m.connStatus.IsConnected())
	}
}

// shutdown closes all channels and marks every user offline so subscribers
// do not keep acting on stale metrics.
func (m *Monitor) shutdown() {
	m.closeChannels()
	for _, u := range m.sensors.SensorMap.Users {
		if u.Name == "" || len(u.HRIDs()) == 0 {
			continue
		}
		m.gate.SetAvailability(u.Name, false)
	}
	m.saver.Flush(m.cfg.Now())
}
