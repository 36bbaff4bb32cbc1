package mqtt

import (
	"fmt"
	"strings"

	"wolf-fhs280/internal/heatpump"
)

// timePattern restricts text entities carrying a time of day to HH:MM.
const timePattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`

// Device is the Home Assistant device block shared by all entities.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

func NewDevice(nodeID, name string) Device {
	if name == "" {
		name = "Wolf FHS280"
	}
	return Device{
		Identifiers:  []string{nodeID},
		Name:         name,
		Manufacturer: "Wolf",
		Model:        "FHS 280",
	}
}

// component maps an entity kind onto the MQTT discovery component. MQTT
// discovery has no time platform, so time fields become pattern-checked text.
func component(kind heatpump.EntityKind) string {
	if kind == heatpump.KindTime {
		return "text"
	}
	return string(kind)
}

func hasCommand(kind heatpump.EntityKind) bool {
	switch kind {
	case heatpump.KindNumber, heatpump.KindSelect, heatpump.KindSwitch, heatpump.KindTime, heatpump.KindButton:
		return true
	}
	return false
}

func nodeID(prefix string) string {
	return strings.NewReplacer("/", "_", " ", "_", "-", "_").Replace(prefix)
}

func (p *Publisher) discoveryTopic(e heatpump.Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", p.discoveryPrefix, component(e.Kind), nodeID(p.topicPrefix), e.Key)
}

func (p *Publisher) discoveryPayload(e heatpump.Entity) map[string]interface{} {
	cfg := map[string]interface{}{
		"name":               e.Name,
		"unique_id":          nodeID(p.topicPrefix) + "_" + e.Key,
		"availability_topic": p.availabilityTopic(),
		"device":             p.device,
	}
	if e.Kind != heatpump.KindButton {
		cfg["state_topic"] = p.stateTopic(e.Key)
	}
	if hasCommand(e.Kind) {
		cfg["command_topic"] = p.commandTopic(e.Key)
	}
	if e.Unit != "" {
		cfg["unit_of_measurement"] = e.Unit
	}
	if e.Icon != "" {
		cfg["icon"] = e.Icon
	}
	if e.DeviceClass != "" && (e.Kind == heatpump.KindSensor || e.Kind == heatpump.KindNumber) {
		cfg["device_class"] = e.DeviceClass
	}
	if e.Category != "" {
		cfg["entity_category"] = e.Category
	}
	if e.DisabledByDefault {
		cfg["enabled_by_default"] = false
	}

	switch e.Kind {
	case heatpump.KindSensor:
		if e.DeviceClass == "temperature" {
			cfg["state_class"] = "measurement"
		}
	case heatpump.KindNumber:
		if e.Min != nil {
			cfg["min"] = *e.Min
		}
		if e.Max != nil {
			cfg["max"] = *e.Max
		}
		if e.Step != nil {
			cfg["step"] = *e.Step
		}
		cfg["mode"] = "box"
	case heatpump.KindSelect:
		cfg["options"] = e.Options
	case heatpump.KindSwitch:
		cfg["payload_on"], cfg["payload_off"] = "on", "off"
		cfg["state_on"], cfg["state_off"] = "on", "off"
	case heatpump.KindBinarySensor:
		cfg["payload_on"], cfg["payload_off"] = "on", "off"
	case heatpump.KindTime:
		cfg["pattern"] = timePattern
		cfg["min"], cfg["max"] = 5, 5
	case heatpump.KindButton:
		cfg["payload_press"] = payloadPress
	}
	return cfg
}
