package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type fakeWriter struct {
	points []point
}

func (w *fakeWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	w.points = append(w.points, point{measurement, tags, fields, ts})
}

func (w *fakeWriter) last(t *testing.T) point {
	t.Helper()
	if len(w.points) == 0 {
		t.Fatal("no points written")
	}
	return w.points[len(w.points)-1]
}

// stubService satisfies source.Service for constructing devices.
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

func newTestRecorder() (*Recorder, *fakeWriter, time.Time) {
	w := &fakeWriter{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(w)
	r.now = func() time.Time { return at }
	return r, w, at
}

func TestRecorder_DeviceEvents(t *testing.T) {
	r, w, at := newTestRecorder()
	d := testDevice(t)

	r.ActiveSourceChanged(d, source.ActiveSource{LogicalAddress: cec.AddrPlayback2, PhysicalAddress: 0x2000})
	p := w.last(t)
	if p.measurement != MeasurementActiveSource || p.tags["device"] != "player" {
		t.Errorf("active source point = %+v", p)
	}
	if p.fields["logical_address"] != int(cec.AddrPlayback2) || p.fields["physical_address"] != "2.0.0.0" {
		t.Errorf("active source fields = %v", p.fields)
	}
	if !p.ts.Equal(at) {
		t.Errorf("timestamp = %v, want %v", p.ts, at)
	}

	r.IsActiveSourceChanged(d, true)
	if p := w.last(t); p.measurement != MeasurementDeviceState || p.fields["is_active_source"] != true {
		t.Errorf("device state point = %+v", p)
	}

	r.LocalActivePortChanged(d, 2)
	if p := w.last(t); p.fields["local_active_port"] != 2 {
		t.Errorf("port point = %+v", p)
	}

	r.OneTouchPlayCompleted(d, source.ResultTimeout)
	p = w.last(t)
	if p.measurement != MeasurementOneTouchPlay || p.tags["result"] != "timeout" || p.fields["code"] != 1 {
		t.Errorf("one touch play point = %+v", p)
	}
}

func TestRecorder_Frames(t *testing.T) {
	r, w, _ := newTestRecorder()

	rx := cec.BuildActiveSource(cec.AddrPlayback2, 0x2000)
	r.MessageReceived(rx)
	p := w.last(t)
	if p.measurement != MeasurementFrames || p.tags["direction"] != DirectionRx {
		t.Errorf("rx point = %+v", p)
	}
	if p.tags["opcode"] != cec.OpActiveSource.String() || p.fields["source"] != int(cec.AddrPlayback2) {
		t.Errorf("rx tags/fields = %v %v", p.tags, p.fields)
	}
	if !p.ts.Equal(rx.Timestamp) {
		t.Errorf("rx timestamp = %v, want frame time %v", p.ts, rx.Timestamp)
	}

	r.MessageSent(cec.BuildTextViewOn(cec.AddrPlayback1, cec.AddrTV), errors.New("nack"))
	p = w.last(t)
	if p.tags["direction"] != DirectionTx || p.fields["failed"] != true {
		t.Errorf("tx point = %+v", p)
	}
}

func TestRecorder_PowerStatus(t *testing.T) {
	r, w, _ := newTestRecorder()

	r.PowerStatusChanged(cec.PowerStandby)
	p := w.last(t)
	if p.measurement != MeasurementPower || p.tags["status"] != "standby" || p.fields["code"] != int(cec.PowerStandby) {
		t.Errorf("power point = %+v", p)
	}
}
