package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Velotales/antbridge/internal/config"
)

// discoveryDevice is the shared device block grouping one user's entities in
// Home Assistant.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

// discoveryPayload is one sensor entity config.
type discoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	PayloadAvailable  string          `json:"payload_available"`
	PayloadNotAvail   string          `json:"payload_not_available"`
	QoS               int             `json:"qos"`
	Device            discoveryDevice `json:"device"`
	Retain            bool            `json:"retain"`
	Unit              string          `json:"unit_of_measurement"`
	Icon              string          `json:"icon,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
}

type discoveryEntity struct {
	metric      string
	name        string
	unit        string
	icon        string
	deviceClass string
}

// PublishDiscovery announces the user's sensor entities to Home Assistant,
// one retained config per metric their configured devices can produce.
func PublishDiscovery(pub Publisher, user config.UserConfig, mqttCfg config.MQTTConfig) {
	if !mqttCfg.Discovery || user.Name == "" {
		return
	}

	var entities []discoveryEntity
	if len(user.HRIDs()) > 0 {
		entities = append(entities, discoveryEntity{
			metric: MetricHeartRate, name: fmt.Sprintf("%s Heart Rate", user.Name),
			unit: "bpm", icon: "mdi:heart",
		})
	}
	if user.SpeedDeviceID != 0 {
		entities = append(entities, discoveryEntity{
			metric: MetricSpeed, name: fmt.Sprintf("%s Speed", user.Name),
			unit: "km/h", icon: "mdi:speedometer",
		})
	}
	if user.CadenceDeviceID != 0 {
		entities = append(entities, discoveryEntity{
			metric: MetricCadence, name: fmt.Sprintf("%s Cadence", user.Name),
			unit: "rpm", icon: "mdi:timer-sync",
		})
	}
	if user.PowerDeviceID != 0 {
		entities = append(entities, discoveryEntity{
			metric: MetricPower, name: fmt.Sprintf("%s Power", user.Name),
			unit: "W", icon: "mdi:flash", deviceClass: "power",
		})
	}

	device := discoveryDevice{
		Identifiers:  []string{fmt.Sprintf("antbridge_user_%s", user.Name)},
		Manufacturer: "antbridge",
		Model:        "ANT+ Monitor",
		Name:         fmt.Sprintf("antbridge %s", user.Name),
	}

	for _, ent := range entities {
		objID := fmt.Sprintf("antbridge_%s_%s", user.Name, ent.metric)
		payload := discoveryPayload{
			Name:              ent.name,
			UniqueID:          objID,
			StateTopic:        MetricTopic(mqttCfg.BaseTopic, user.Name, ent.metric),
			AvailabilityTopic: AvailabilityTopic(mqttCfg.BaseTopic, user.Name),
			PayloadAvailable:  PayloadOnline,
			PayloadNotAvail:   PayloadOffline,
			QoS:               mqttCfg.QoS,
			Device:            device,
			Retain:            mqttCfg.Retain,
			Unit:              ent.unit,
			Icon:              ent.icon,
			DeviceClass:       ent.deviceClass,
			StateClass:        "measurement",
		}
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("mqtt: discovery for %q %s: %v", user.Name, ent.metric, err)
			continue
		}
		topic := fmt.Sprintf("%s/sensor/%s/config", mqttCfg.DiscoveryPrefix, objID)
		if err := pub.PublishRetained(topic, data); err != nil {
			log.Printf("mqtt: discovery for %q %s: %v", user.Name, ent.metric, err)
			continue
		}
		log.Printf("published discovery for %q %s", user.Name, ent.metric)
	}
}
