package mqtt

import (
	"fmt"
	"strings"
)

// Topic namespace. Bridge topics use the flat scheme
// graylogic/{category}/{protocol}/{device}.
const (
	// TopicPrefix is the root of every topic.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used by this service.
	Protocol = "cec"
)

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("player") // "graylogic/state/cec/player"
type Topics struct{}

// Command returns the topic on which commands for a hosted device arrive.
//
// Example: graylogic/command/cec/player
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Ack returns the topic for command acknowledgements.
//
// Example: graylogic/ack/cec/player
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// State returns the retained state topic of a hosted device.
//
// Example: graylogic/state/cec/player
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Event returns the topic for bus events (active source changes, standby).
//
// Example: graylogic/event/cec/active_source
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, Protocol, kind)
}

// Health returns the service health topic.
//
// Example: graylogic/health/cec
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// SystemStatus returns the online/offline status topic used for the LWT.
//
// Example: graylogic/system/cec/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, Protocol)
}

// AllCommands returns a pattern matching commands for every hosted device.
//
// Pattern: graylogic/command/cec/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// DeviceFromTopic extracts the device segment from a command, ack or state
// topic. It returns "" if the topic does not belong to this service.
func (Topics) DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	const segments = 4
	if len(parts) != segments || parts[0] != TopicPrefix || parts[2] != Protocol {
		return ""
	}
	return parts[3]
}
