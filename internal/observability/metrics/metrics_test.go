package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

type stubService struct{}

func (stubService) PhysicalAddress() cec.PhysicalAddress       { return 0x1000 }
func (stubService) PowerStatus() cec.PowerStatus               { return cec.PowerOn }
func (stubService) IsPowerStandbyOrTransient() bool            { return false }
func (stubService) WakeUp()                                    {}
func (stubService) HostedDevice(cec.DeviceType) *source.Device { return nil }
func (stubService) Send(cec.Message)                           {}

func testDevice(t *testing.T) *source.Device {
	t.Helper()

	loop := action.NewLoop(1, nil)
	d, err := source.NewDevice(source.Config{
		ID:             "player",
		Type:           cec.DeviceTypePlayback,
		LogicalAddress: cec.AddrPlayback1,
		Service:        stubService{},
		Loop:           loop,
		Scheduler:      action.NewScheduler(loop, nil),
	})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return d
}

func newTestCECMetrics(t *testing.T) *CECMetrics {
	t.Helper()

	m, err := NewCECMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCECMetrics() error = %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.CEC == nil || m.HTTP == nil || m.Registry() == nil {
		t.Fatal("New() left collectors unset")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("registry gathered no metric families")
	}
}

func TestCECMetrics_Frames(t *testing.T) {
	m := newTestCECMetrics(t)

	m.MessageReceived(cec.BuildActiveSource(cec.AddrPlayback2, 0x2000))
	m.MessageReceived(cec.BuildActiveSource(cec.AddrPlayback3, 0x3000))
	m.MessageSent(cec.BuildTextViewOn(cec.AddrPlayback1, cec.AddrTV), nil)
	m.MessageSent(cec.BuildTextViewOn(cec.AddrPlayback1, cec.AddrTV), errors.New("nack"))

	op := cec.OpActiveSource.String()
	if got := testutil.ToFloat64(m.framesReceivedTotal.WithLabelValues(op)); got != 2 {
		t.Errorf("received %s = %v, want 2", op, got)
	}

	tvo := cec.OpTextViewOn.String()
	if got := testutil.ToFloat64(m.framesSentTotal.WithLabelValues(tvo, StatusSuccess)); got != 1 {
		t.Errorf("sent success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.framesSentTotal.WithLabelValues(tvo, StatusError)); got != 1 {
		t.Errorf("sent error = %v, want 1", got)
	}
}

func TestCECMetrics_DeviceEvents(t *testing.T) {
	m := newTestCECMetrics(t)
	d := testDevice(t)

	m.RegisterDevice(d.ID())
	if got := testutil.ToFloat64(m.isActiveSource.WithLabelValues("player")); got != 0 {
		t.Errorf("initial is_active_source = %v", got)
	}

	m.ActiveSourceChanged(d, source.ActiveSource{LogicalAddress: cec.AddrPlayback1, PhysicalAddress: 0x1000})
	m.IsActiveSourceChanged(d, true)
	m.LocalActivePortChanged(d, 3)
	m.OneTouchPlayCompleted(d, source.ResultSuccess)
	m.OneTouchPlayCompleted(d, source.ResultTimeout)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"changes", m.activeSourceChangesTotal.WithLabelValues("player"), 1},
		{"is active", m.isActiveSource.WithLabelValues("player"), 1},
		{"port", m.localActivePort.WithLabelValues("player"), 3},
		{"otp success", m.oneTouchPlayTotal.WithLabelValues("player", "success"), 1},
		{"otp timeout", m.oneTouchPlayTotal.WithLabelValues("player", "timeout"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	m.IsActiveSourceChanged(d, false)
	if got := testutil.ToFloat64(m.isActiveSource.WithLabelValues("player")); got != 0 {
		t.Errorf("is_active_source after loss = %v, want 0", got)
	}
}

func TestCECMetrics_PowerAndTimeouts(t *testing.T) {
	m := newTestCECMetrics(t)

	m.PowerStatusChanged(cec.PowerStandby)
	if got := testutil.ToFloat64(m.powerStatus); got != float64(cec.PowerStandby) {
		t.Errorf("power status = %v", got)
	}

	m.RecordActionTimeout(cec.AddrPlayback1, source.KindOneTouchPlay)
	if got := testutil.ToFloat64(m.actionTimeoutsTotal.WithLabelValues("one_touch_play")); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
}

func TestCECMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewCECMetrics(registry); err != nil {
		t.Fatalf("first NewCECMetrics() error = %v", err)
	}
	if _, err := NewCECMetrics(registry); err == nil {
		t.Error("second registration on the same registry should fail")
	}
}

func TestHTTPMetrics(t *testing.T) {
	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewHTTPMetrics() error = %v", err)
	}

	m.RecordRequest(http.MethodGet, "/api/v1/devices", http.StatusOK, 5*time.Millisecond)
	m.RecordRequest(http.MethodGet, "/api/v1/devices", http.StatusOK, 7*time.Millisecond)
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/devices", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	m.WebSocketConnected()
	m.WebSocketConnected()
	m.WebSocketDisconnected()
	m.WebSocketMessageSent()
	if got := testutil.ToFloat64(m.wsActiveConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.wsMessagesSent); got != 1 {
		t.Errorf("messages sent = %v, want 1", got)
	}
}
