package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

func TestNewResultAck(t *testing.T) {
	cmd := CommandMessage{ID: "cmd", DeviceID: "player", Command: CommandOneTouchPlay}

	tests := []struct {
		result     source.ResultCode
		wantStatus AckStatus
		wantCode   string
	}{
		{source.ResultSuccess, AckCompleted, ""},
		{source.ResultTimeout, AckTimeout, ErrCodeTimeout},
		{source.ResultException, AckFailed, ErrCodeNotEligible},
		{source.ResultIncorrectMode, AckFailed, ErrCodeRejected},
		{source.ResultCommunicationFailed, AckFailed, ErrCodeBridgeError},
	}

	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			ack := NewResultAck(cmd, tt.result)
			if ack.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", ack.Status, tt.wantStatus)
			}
			if ack.Result != tt.result.String() {
				t.Errorf("result = %q", ack.Result)
			}
			gotCode := ""
			if ack.Error != nil {
				gotCode = ack.Error.Code
			}
			if gotCode != tt.wantCode {
				t.Errorf("error code = %q, want %q", gotCode, tt.wantCode)
			}
			if ack.Protocol != "cec" || ack.CommandID != "cmd" {
				t.Errorf("ack = %+v", ack)
			}
		})
	}
}

func TestCommandMessage_UnmarshalJSON(t *testing.T) {
	var cmd CommandMessage
	err := json.Unmarshal([]byte(`{"id":"x","command":"standby","timestamp":"2026-03-01T12:00:00Z"}`), &cmd)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !cmd.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) || cmd.Command != CommandStandby {
		t.Errorf("cmd = %+v", cmd)
	}

	if err := json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &cmd); err == nil {
		t.Error("invalid timestamp should fail")
	}
}

func TestNewHealthMessage(t *testing.T) {
	last := time.Now()
	stats := cec.AdapterStats{FramesRx: 10, FramesTx: 4, ErrorsTotal: 1, Connected: true, LastActivity: last}

	msg := NewHealthMessage("cec", "1.0.0", HealthHealthy, stats, 2, 3, time.Now().Add(-time.Minute))

	if msg.Connection.Status != "connected" || msg.Connection.LastActivity == nil {
		t.Errorf("connection = %+v", msg.Connection)
	}
	if msg.Statistics.FramesReceived != 10 || msg.Statistics.Errors != 3 {
		t.Errorf("statistics = %+v", msg.Statistics)
	}
	if msg.DevicesManaged != 3 || msg.UptimeSeconds < 59 {
		t.Errorf("msg = %+v", msg)
	}

	msg = NewHealthMessage("cec", "1.0.0", HealthDegraded, cec.AdapterStats{Reconnecting: true}, 0, 0, time.Now())
	if msg.Connection.Status != "connecting" {
		t.Errorf("reconnecting adapter status = %q", msg.Connection.Status)
	}
}
