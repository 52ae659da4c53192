package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSensorConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sensor_map.yaml", `
wheel_circumference_m: 2.096
sensor_map:
  users:
    - name: Alice
      hr_device_ids: [100, 101]
      speed_device_id: 200
    - name: Bob
      hr_device_id: 110
  wattbike:
    speed_device_id: 300
    cadence_device_id: 301
    power_device_id: 302
    auto_assign: true
`)

	cfg, err := LoadSensorConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2.096, cfg.WheelCircumference)
	require.Len(t, cfg.SensorMap.Users, 2)
	assert.Equal(t, []uint32{100, 101}, cfg.SensorMap.Users[0].HRIDs())
	assert.Equal(t, uint32(200), cfg.SensorMap.Users[0].SpeedDeviceID)
	require.NotNil(t, cfg.SensorMap.Wattbike)
	assert.False(t, cfg.SensorMap.Wattbike.Empty())
	assert.True(t, cfg.SensorMap.Wattbike.AutoAssign)
}

func TestLegacySingleHRID(t *testing.T) {
	u := UserConfig{Name: "Bob", HRDeviceID: 110}
	assert.Equal(t, []uint32{110}, u.HRIDs())

	// The list form wins over the legacy field when both are present.
	u.HRDeviceIDs = []uint32{111, 112}
	assert.Equal(t, []uint32{111, 112}, u.HRIDs())
}

func TestLoadSensorConfigMissingFile(t *testing.T) {
	cfg, err := LoadSensorConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.SensorMap.Users)
	assert.Equal(t, 2.105, cfg.WheelCircumference, "default wheel circumference")
}

func TestLoadSensorConfigMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "sensor_map: [not: a map")
	_, err := LoadSensorConfig(path)
	assert.Error(t, err)
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "antbridge", cfg.MQTT.BaseTopic)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.True(t, cfg.MQTT.Retain)
	assert.Equal(t, 10, cfg.MQTT.StaleSecs)
	assert.True(t, cfg.MQTT.Discovery)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, 30, cfg.Persistence.RateLimitSecs)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker())
}

func TestLoadAppConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "config.yaml", `
mqtt:
  host: broker.lan
  base_topic: bikes
  retain: false
`)
	local := writeFile(t, dir, "config.local.yaml", `
mqtt:
  host: 10.0.0.5
  username: ant
persistence:
  rate_limit_secs: 5
`)

	cfg, err := LoadAppConfig(base, local)
	require.NoError(t, err)
	// Local wins over base, base wins over defaults, untouched keys survive.
	assert.Equal(t, "10.0.0.5", cfg.MQTT.Host)
	assert.Equal(t, "ant", cfg.MQTT.Username)
	assert.Equal(t, "bikes", cfg.MQTT.BaseTopic)
	assert.False(t, cfg.MQTT.Retain)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 5, cfg.Persistence.RateLimitSecs)
}

func TestLoadManufacturers(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manufacturers.yaml", `
manufacturers:
  1: Garmin
  32: Wahoo Fitness
`)
	m := LoadManufacturers(path)
	assert.Equal(t, "Garmin", m[1], "file overrides the built-in default")
	assert.Equal(t, "Wahoo Fitness", m[32])
}

func TestLoadManufacturersMissingFile(t *testing.T) {
	m := LoadManufacturers(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, "Garmin/Dynastream", m[1])
}
