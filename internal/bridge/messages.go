package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

// Command names accepted on graylogic/command/cec/{device}.
const (
	CommandOneTouchPlay = "one_touch_play"
	CommandStandby      = "standby"
)

// CommandMessage is sent from Core to the bridge.
// Topic: graylogic/command/cec/{device}
type CommandMessage struct {
	// ID correlates the command with its acknowledgements. Generated when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID defaults to the device segment of the topic.
	DeviceID string `json:"device_id"`

	// Command is one_touch_play or standby.
	Command string `json:"command"`

	// Source indicates where the command originated ("api", "automation", "scene").
	Source string `json:"source,omitempty"`
}

// UnmarshalJSON accepts RFC3339 timestamps and tolerates a missing one.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command reached the device.
	AckAccepted AckStatus = "accepted"

	// AckCompleted indicates the command finished successfully.
	AckCompleted AckStatus = "completed"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the display did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeNotConfigured  = "NOT_CONFIGURED"
	ErrCodeNotEligible    = "NOT_ELIGIBLE"
	ErrCodeRejected       = "REJECTED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeBridgeError    = "BRIDGE_ERROR"
)

// AckMessage is sent from the bridge to Core.
// Topic: graylogic/ack/cec/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Result is the one-touch-play result name, set on the final ack.
	Result string `json:"result,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgement for cmd.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Command:   cmd.Command,
		Status:    status,
		Protocol:  mqtt.Protocol,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	if code == ErrCodeTimeout {
		ack.Status = AckTimeout
	}
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewResultAck maps a one-touch-play result onto the final acknowledgement.
func NewResultAck(cmd CommandMessage, result source.ResultCode) AckMessage {
	var ack AckMessage
	switch result {
	case source.ResultSuccess:
		ack = NewAckMessage(cmd, AckCompleted)
	case source.ResultTimeout:
		ack = NewAckError(cmd, ErrCodeTimeout, "display did not report power on")
	case source.ResultException:
		ack = NewAckError(cmd, ErrCodeNotEligible, "device cannot start one touch play")
	case source.ResultIncorrectMode:
		ack = NewAckError(cmd, ErrCodeRejected, "display rejected the request or another source took over")
	default:
		ack = NewAckError(cmd, ErrCodeBridgeError, "one touch play failed")
	}
	ack.Result = result.String()
	return ack
}

// StateMessage carries a hosted device's routing state.
// Topic: graylogic/state/cec/{device}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string            `json:"device_id"`
	Timestamp time.Time         `json:"timestamp"`
	State     unit.DeviceStatus `json:"state"`
	Protocol  string            `json:"protocol"`
}

// NewStateMessage creates a state message from a device snapshot.
func NewStateMessage(st unit.DeviceStatus) StateMessage {
	return StateMessage{
		DeviceID:  st.ID,
		Timestamp: time.Now().UTC(),
		State:     st,
		Protocol:  mqtt.Protocol,
	}
}

// Event kinds used in graylogic/event/cec/{kind}.
const (
	EventActiveSource = "active_source"
	EventPower        = "power"
)

// EventMessage reports a bus-wide change.
// Topic: graylogic/event/cec/{kind}
type EventMessage struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Active source events.
	LogicalAddress  *cec.LogicalAddress  `json:"logical_address,omitempty"`
	PhysicalAddress *cec.PhysicalAddress `json:"physical_address,omitempty"`

	// Power events.
	PowerStatus string `json:"power_status,omitempty"`
}

// NewActiveSourceEvent creates an active source event.
func NewActiveSourceEvent(as source.ActiveSource) EventMessage {
	la, pa := as.LogicalAddress, as.PhysicalAddress
	return EventMessage{
		Kind:            EventActiveSource,
		Timestamp:       time.Now().UTC(),
		LogicalAddress:  &la,
		PhysicalAddress: &pa,
	}
}

// NewPowerEvent creates a unit power event.
func NewPowerEvent(status cec.PowerStatus) EventMessage {
	return EventMessage{
		Kind:        EventPower,
		Timestamp:   time.Now().UTC(),
		PowerStatus: status.String(),
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status.
// Topic: graylogic/health/cec
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Connection     *ConnectionStatus `json:"connection,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the adapter connection.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	Address      string     `json:"address,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains adapter and bridge counters.
type BridgeStatistics struct {
	FramesReceived  uint64 `json:"frames_received"`
	FramesSent      uint64 `json:"frames_sent"`
	FramesDropped   uint64 `json:"frames_dropped"`
	FramesMalformed uint64 `json:"frames_malformed"`
	Reconnects      uint64 `json:"reconnects"`
	Errors          uint64 `json:"errors"`
}

// NewHealthMessage creates a health message from adapter statistics.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats cec.AdapterStats, bridgeErrors uint64, deviceCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		DevicesManaged: deviceCount,
	}

	conn := &ConnectionStatus{Status: "disconnected"}
	switch {
	case stats.Connected:
		conn.Status = "connected"
	case stats.Reconnecting:
		conn.Status = "connecting"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		conn.LastActivity = &last
	}
	msg.Connection = conn

	msg.Statistics = &BridgeStatistics{
		FramesReceived:  stats.FramesRx,
		FramesSent:      stats.FramesTx,
		FramesDropped:   stats.FramesDropped,
		FramesMalformed: stats.FramesMalformed,
		Reconnects:      stats.ReconnectsTotal,
		Errors:          stats.ErrorsTotal + bridgeErrors,
	}
	return msg
}

// newCommandID returns a fresh command correlation ID.
func newCommandID() string {
	return uuid.NewString()
}
