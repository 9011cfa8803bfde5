//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"pidom/internal/transmit"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/binary_sensor/pidom_A0A400/power/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a binary_sensor discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	DeviceClass       string   `json:"device_class,omitempty"`
	PayloadOn         string   `json:"payload_on"`
	PayloadOff        string   `json:"payload_off"`
	Device            haDevice `json:"device"`
}

// nodeID returns the HA identifier for a device. It is derived from the
// radio id so that renames keep the same HA entity.
func nodeID(id uint32) string {
	return "pidom_" + transmit.FormatID(id)
}

// topicName returns a topic-safe form of a device name.
func topicName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

func stateTopic(prefix, name string) string {
	return prefix + "/" + topicName(name) + "/state"
}

func availabilityTopic(prefix string) string {
	return prefix + "/bridge/state"
}

func discoveryTopic(discoveryPrefix string, id uint32) string {
	return fmt.Sprintf("%s/binary_sensor/%s/power/config", discoveryPrefix, nodeID(id))
}

// buildDiscovery returns the discovery message announcing a device as a
// power binary sensor.
func buildDiscovery(prefix, discoveryPrefix, name string, id uint32) discoveryMsg {
	node := nodeID(id)
	payload := haDiscovery{
		Name:              name,
		UniqueID:          node + "_power",
		StateTopic:        stateTopic(prefix, name),
		AvailabilityTopic: availabilityTopic(prefix),
		DeviceClass:       "power",
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device: haDevice{
			Identifiers:  []string{node},
			Manufacturer: "pidom",
			Model:        "RF power switch",
			Name:         name,
		},
	}
	return discoveryMsg{Topic: discoveryTopic(discoveryPrefix, id), Payload: mustJSON(payload)}
}

// buildRemoveDiscovery returns the empty retained message that removes a
// device from HA.
func buildRemoveDiscovery(discoveryPrefix string, id uint32) discoveryMsg {
	return discoveryMsg{Topic: discoveryTopic(discoveryPrefix, id)}
}

func statePayload(on bool) []byte {
	if on {
		return []byte("ON")
	}
	return []byte("OFF")
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
