package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Velotales/antbridge/internal/ant"
	"github.com/Velotales/antbridge/internal/decode"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "120_12345", RecordKey(ant.ProfileHeartRate, 12345))
	assert.Equal(t, "11_7", RecordKey(ant.ProfilePower, 7))
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "Heart Rate Monitor", Description(ant.ProfileHeartRate))
	assert.Equal(t, "Device type 42", Description(ant.Profile(42)))
}

func TestSaverRateLimit(t *testing.T) {
	rec := NewFakeRecorder()
	s := NewSaver(rec, 30*time.Second, nil)
	key := RecordKey(ant.ProfileHeartRate, 100)

	// First offer writes immediately.
	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0)
	assert.Equal(t, 1, s.Flush(t0))

	// Two more inside the window: dropped, not deferred.
	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0.Add(5*time.Second))
	assert.Equal(t, 0, s.Flush(t0.Add(5*time.Second)))
	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0.Add(20*time.Second))
	assert.Equal(t, 0, s.Flush(t0.Add(20*time.Second)))
	assert.Equal(t, 1, rec.Writes(key))

	// After the window elapses a new offer writes again.
	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0.Add(31*time.Second))
	assert.Equal(t, 1, s.Flush(t0.Add(31*time.Second)))
	assert.Equal(t, 2, rec.Writes(key))
}

func TestSaverMetadataBypassesRateLimit(t *testing.T) {
	rec := NewFakeRecorder()
	s := NewSaver(rec, 30*time.Second, map[uint16]string{1: "Garmin/Dynastream"})

	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0)
	s.Flush(t0)

	// One second later, but carrying a page-80 sighting: must write anyway.
	mid := uint16(1)
	serial := uint32(987654)
	info := decode.DeviceInfo{ManufacturerID: &mid, SerialNumber: &serial}
	s.Offer(ant.ProfileHeartRate, 100, nil, info, t0.Add(time.Second))
	assert.Equal(t, 1, s.Flush(t0.Add(time.Second)))

	last := rec.Records[len(rec.Records)-1]
	assert.Equal(t, uint16(1), last.Fields["manufacturer_id"])
	assert.Equal(t, uint32(987654), last.Fields["serial_number"])
	assert.Equal(t, "Garmin/Dynastream", last.Fields["manufacturer_name"])
}

func TestSaverEnrichmentStickyAcrossOffers(t *testing.T) {
	rec := NewFakeRecorder()
	s := NewSaver(rec, 30*time.Second, nil)

	s.Offer(ant.ProfilePower, 7, nil, decode.DeviceInfo{}, t0)
	s.Flush(t0)

	// Common page arrives, then a plain sighting overlays it before the next
	// flush; the enrichment still forces the write and keeps its fields.
	hw := uint8(2)
	s.Offer(ant.ProfilePower, 7, nil, decode.DeviceInfo{HWRevision: &hw, SWRevision: "1.3"}, t0.Add(time.Second))
	s.Offer(ant.ProfilePower, 7, nil, decode.DeviceInfo{}, t0.Add(2*time.Second))
	require.Equal(t, 1, s.Flush(t0.Add(2*time.Second)))

	last := rec.Records[len(rec.Records)-1]
	assert.Equal(t, uint8(2), last.Fields["hw_revision"])
	assert.Equal(t, "1.3", last.Fields["sw_revision"])
}

func TestSaverRecordFields(t *testing.T) {
	rec := NewFakeRecorder()
	s := NewSaver(rec, time.Second, nil)

	tt := uint8(5)
	s.Offer(ant.ProfileSpeed, 300, &tt, decode.DeviceInfo{}, t0)
	require.Equal(t, 1, s.Flush(t0))

	fields := rec.Records[0].Fields
	assert.Equal(t, uint32(300), fields["device_id"])
	assert.Equal(t, uint8(123), fields["device_type"])
	assert.Equal(t, "Speed Sensor", fields["description"])
	assert.Equal(t, uint8(5), fields["transmission_type"])
	assert.InDelta(t, float64(t0.Unix()), fields["last_seen"].(float64), 0.001)
}

func TestSaverSwallowsWriteErrors(t *testing.T) {
	rec := NewFakeRecorder()
	rec.MergeError = errors.New("disk full")
	s := NewSaver(rec, time.Second, nil)

	s.Offer(ant.ProfileHeartRate, 100, nil, decode.DeviceInfo{}, t0)
	assert.Equal(t, 0, s.Flush(t0), "failed writes are not counted and not fatal")
}

func TestFileStoreMergePreservesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "found_devices.json")
	fs := NewFileStore(path)

	require.NoError(t, fs.MergeRecord("120_100", map[string]any{
		"device_id":   100,
		"device_type": 120,
		"last_seen":   1.0,
	}))
	require.NoError(t, fs.MergeRecord("120_100", map[string]any{
		"last_seen":         2.0,
		"manufacturer_name": "Garmin/Dynastream",
	}))
	require.NoError(t, fs.MergeRecord("11_7", map[string]any{"device_id": 7}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Contains(t, doc, "120_100")
	require.Contains(t, doc, "11_7")
	// The second merge overwrote last_seen but preserved device_type.
	assert.Equal(t, float64(2), doc["120_100"]["last_seen"])
	assert.Equal(t, float64(120), doc["120_100"]["device_type"])
	assert.Equal(t, "Garmin/Dynastream", doc["120_100"]["manufacturer_name"])
}

func TestFileStoreRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "found_devices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	fs := NewFileStore(path)
	require.NoError(t, fs.MergeRecord("120_1", map[string]any{"device_id": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "120_1")
}
