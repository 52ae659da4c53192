package decode

import (
	"encoding/binary"
	"fmt"
)

// ANT+ common pages interleaved with profile data.
const (
	pageManufacturer = 80
	pageProduct      = 81
)

// DeviceInfo holds profile-independent metadata from common pages 80/81.
// It is merged into the persistence record, never into user aggregates.
type DeviceInfo struct {
	ManufacturerID *uint16
	SerialNumber   *uint32
	HWRevision     *uint8
	SWRevision     string
	ModelNumber    *uint16
}

// Empty reports whether no metadata was parsed.
func (i DeviceInfo) Empty() bool {
	return i.ManufacturerID == nil && i.SerialNumber == nil &&
		i.HWRevision == nil && i.SWRevision == "" && i.ModelNumber == nil
}

// Fields returns the persistence-record field names for the parsed metadata.
func (i DeviceInfo) Fields() map[string]any {
	fields := make(map[string]any)
	if i.ManufacturerID != nil {
		fields["manufacturer_id"] = *i.ManufacturerID
	}
	if i.SerialNumber != nil {
		fields["serial_number"] = *i.SerialNumber
	}
	if i.HWRevision != nil {
		fields["hw_revision"] = *i.HWRevision
	}
	if i.SWRevision != "" {
		fields["sw_revision"] = i.SWRevision
	}
	if i.ModelNumber != nil {
		fields["model_number"] = *i.ModelNumber
	}
	return fields
}

// ParseCommonPage extracts common-page metadata from a payload. Payloads that
// are not a common page, or too short to hold one, yield an empty DeviceInfo.
func ParseCommonPage(payload []byte) DeviceInfo {
	var info DeviceInfo
	if len(payload) == 0 {
		return info
	}
	switch payload[0] {
	case pageManufacturer:
		if len(payload) < 7 {
			return info
		}
		manufacturerID := binary.LittleEndian.Uint16(payload[1:3])
		serialNumber := binary.LittleEndian.Uint32(payload[3:7])
		info.ManufacturerID = &manufacturerID
		info.SerialNumber = &serialNumber
	case pageProduct:
		if len(payload) < 6 {
			return info
		}
		hwRevision := payload[1]
		modelNumber := binary.LittleEndian.Uint16(payload[4:6])
		info.HWRevision = &hwRevision
		info.SWRevision = fmt.Sprintf("%d.%d", payload[2], payload[3])
		info.ModelNumber = &modelNumber
	}
	return info
}
