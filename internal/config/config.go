// Package config loads the sensor map, application settings and manufacturer
// name table from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UserConfig maps one rider to their sensors. A device id of 0 means "not
// configured".
type UserConfig struct {
	Name            string   `yaml:"name"`
	HRDeviceIDs     []uint32 `yaml:"hr_device_ids"`
	HRDeviceID      uint32   `yaml:"hr_device_id"` // legacy single-id form
	SpeedDeviceID   uint32   `yaml:"speed_device_id"`
	CadenceDeviceID uint32   `yaml:"cadence_device_id"`
	PowerDeviceID   uint32   `yaml:"power_device_id"`
}

// HRIDs returns the user's heart-rate device ids in declaration order,
// falling back to the legacy single-id field.
func (u UserConfig) HRIDs() []uint32 {
	ids := make([]uint32, 0, len(u.HRDeviceIDs))
	for _, id := range u.HRDeviceIDs {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && u.HRDeviceID != 0 {
		ids = append(ids, u.HRDeviceID)
	}
	return ids
}

// SharedDeviceConfig describes sensors not owned by any single user,
// attributed dynamically to the most recently active heart-rate user.
type SharedDeviceConfig struct {
	SpeedDeviceID   uint32 `yaml:"speed_device_id"`
	CadenceDeviceID uint32 `yaml:"cadence_device_id"`
	PowerDeviceID   uint32 `yaml:"power_device_id"`
	AutoAssign      bool   `yaml:"auto_assign"`
}

// Empty reports whether no shared device ids are configured.
func (s *SharedDeviceConfig) Empty() bool {
	return s == nil || (s.SpeedDeviceID == 0 && s.CadenceDeviceID == 0 && s.PowerDeviceID == 0)
}

// SensorMap is the device-to-user assignment section.
type SensorMap struct {
	Users    []UserConfig        `yaml:"users"`
	Wattbike *SharedDeviceConfig `yaml:"wattbike"`
}

// SensorConfig is the root of the sensor map file.
type SensorConfig struct {
	SensorMap          SensorMap `yaml:"sensor_map"`
	WheelCircumference float64   `yaml:"wheel_circumference_m"`
}

// LoadSensorConfig reads the sensor map. A missing file yields an empty map
// so the daemon can still run in discovery-only mode; a malformed file is an
// error.
func LoadSensorConfig(path string) (*SensorConfig, error) {
	cfg := &SensorConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.WheelCircumference = 2.105
			return cfg, nil
		}
		return nil, fmt.Errorf("read sensor config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse sensor config %s: %w", path, err)
	}
	if cfg.WheelCircumference <= 0 {
		cfg.WheelCircumference = 2.105
	}
	return cfg, nil
}

// MQTTConfig is the broker section of the app config.
type MQTTConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	BaseTopic       string `yaml:"base_topic"`
	QoS             int    `yaml:"qos"`
	Retain          bool   `yaml:"retain"`
	StaleSecs       int    `yaml:"stale_secs"`
	ClientID        string `yaml:"client_id"`
	Discovery       bool   `yaml:"discovery"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// Broker returns the paho broker URL for the configured host and port.
func (m MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

// PersistenceConfig tunes the found-devices document store.
type PersistenceConfig struct {
	RateLimitSecs int `yaml:"rate_limit_secs"`
}

// AppConfig is the root of the application config file.
type AppConfig struct {
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

func defaultAppConfig() map[string]any {
	return map[string]any{
		"mqtt": map[string]any{
			"host":             "localhost",
			"port":             1883,
			"base_topic":       "antbridge",
			"qos":              1,
			"retain":           true,
			"stale_secs":       10,
			"client_id":        "antbridge",
			"discovery":        true,
			"discovery_prefix": "homeassistant",
		},
		"persistence": map[string]any{
			"rate_limit_secs": 30,
		},
	}
}

// LoadAppConfig reads the app config and deep-merges an optional local
// override file on top, with built-in defaults underneath both. Missing files
// are treated as empty.
func LoadAppConfig(path, localPath string) (*AppConfig, error) {
	merged := defaultAppConfig()

	for _, p := range []string{path, localPath} {
		if p == "" {
			continue
		}
		layer, err := loadYAMLMap(p)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, layer)
	}

	// Round-trip through YAML so the merged tree lands in typed fields.
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("merge app config: %w", err)
	}
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("merge app config: %w", err)
	}
	return cfg, nil
}

func loadYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return out, nil
}

// deepMerge overlays b on a: nested maps merge, everything else is replaced.
func deepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if bm, ok := v.(map[string]any); ok {
			if am, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(am, bm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// LoadManufacturers reads the ANT+ manufacturer id table. The built-in
// default entry survives unless overridden.
func LoadManufacturers(path string) map[uint16]string {
	out := map[uint16]string{1: "Garmin/Dynastream"}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var file struct {
		Manufacturers map[uint16]string `yaml:"manufacturers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return out
	}
	for id, name := range file.Manufacturers {
		out[id] = name
	}
	return out
}
