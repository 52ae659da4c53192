package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Users         []UserJSON   `json:"users"`
	Devices       []DeviceJSON `json:"devices"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Config        ConfigJSON   `json:"config"`
}

// UserJSON is the JSON representation of one user's aggregate.
// Metric fields are omitted entirely while no reading has arrived.
type UserJSON struct {
	Name        string   `json:"name"`
	HeartRate   *uint8   `json:"hr,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Cadence     *float64 `json:"cadence,omitempty"`
	Power       *uint16  `json:"power,omitempty"`
	Online      bool     `json:"online"`
	LastUpdated float64  `json:"last_updated"`
}

// DeviceJSON is the JSON representation of one tracked device.
type DeviceJSON struct {
	DeviceID uint32  `json:"device_id"`
	Profile  string  `json:"profile"`
	Label    string  `json:"label"`
	LastSeen float64 `json:"last_seen"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Packets   int `json:"packets"`
	Decoded   int `json:"decoded"`
	Published int `json:"published"`
	Saved     int `json:"saved"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs    int64  `json:"tick_ms"`
	StaleSecs int64  `json:"stale_secs"`
	Broker    string `json:"broker"`
	BaseTopic string `json:"base_topic"`
	HTTPPort  string `json:"http_port"`
	SaveFile  string `json:"save_file,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	users := make([]UserJSON, 0, len(snap.Users))
	for _, u := range snap.Users {
		users = append(users, UserJSON{
			Name:        u.Name,
			HeartRate:   u.HeartRate,
			Speed:       u.Speed,
			Cadence:     u.Cadence,
			Power:       u.Power,
			Online:      u.Online,
			LastUpdated: u.LastUpdated,
		})
	}
	devices := make([]DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, DeviceJSON{
			DeviceID: d.DeviceID,
			Profile:  d.Profile,
			Label:    d.Label,
			LastSeen: d.LastSeen,
		})
	}

	return StatusInner{
		Users:         users,
		Devices:       devices,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Packets:   snap.Counts.Packets,
			Decoded:   snap.Counts.Decoded,
			Published: snap.Counts.Published,
			Saved:     snap.Counts.Saved,
		},
		Config: ConfigJSON{
			TickMs:    snap.Config.TickMs,
			StaleSecs: snap.Config.StaleSecs,
			Broker:    snap.Config.Broker,
			BaseTopic: snap.Config.BaseTopic,
			HTTPPort:  snap.Config.HTTPPort,
			SaveFile:  snap.Config.SaveFile,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
