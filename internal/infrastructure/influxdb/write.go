package influxdb

import (
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

// Measurement names.
const (
	MeasurementActiveSource = "cec_active_source"
	MeasurementDeviceState  = "cec_device_state"
	MeasurementOneTouchPlay = "cec_one_touch_play"
	MeasurementFrames       = "cec_frames"
	MeasurementPower        = "cec_power"
)

// Frame directions used in the "direction" tag.
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// PointWriter accepts time-series points. *Client implements it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Ensure Client implements PointWriter.
var _ PointWriter = (*Client)(nil)

// Recorder turns unit events into points. It implements unit.Observer.
//
// Points are handed to the writer's non-blocking batch, so the callbacks are
// safe to run on the service loop.
type Recorder struct {
	w   PointWriter
	now func() time.Time
}

// Ensure Recorder implements unit.Observer.
var _ unit.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// ActiveSourceChanged records the new active source as seen by d.
func (r *Recorder) ActiveSourceChanged(d *source.Device, as source.ActiveSource) {
	r.w.WritePoint(MeasurementActiveSource,
		map[string]string{"device": d.ID()},
		map[string]any{
			"logical_address":  int(as.LogicalAddress),
			"physical_address": as.PhysicalAddress.String(),
		},
		r.now())
}

// IsActiveSourceChanged records d gaining or losing the active source.
func (r *Recorder) IsActiveSourceChanged(d *source.Device, active bool) {
	r.w.WritePoint(MeasurementDeviceState,
		map[string]string{"device": d.ID()},
		map[string]any{"is_active_source": active},
		r.now())
}

// LocalActivePortChanged records a switch device changing input.
func (r *Recorder) LocalActivePortChanged(d *source.Device, port source.Port) {
	r.w.WritePoint(MeasurementDeviceState,
		map[string]string{"device": d.ID()},
		map[string]any{"local_active_port": int(port)},
		r.now())
}

// OneTouchPlayCompleted records a finished one-touch-play sequence.
func (r *Recorder) OneTouchPlayCompleted(d *source.Device, result source.ResultCode) {
	r.w.WritePoint(MeasurementOneTouchPlay,
		map[string]string{"device": d.ID(), "result": result.String()},
		map[string]any{"code": int(result)},
		r.now())
}

// MessageReceived records an inbound frame.
func (r *Recorder) MessageReceived(msg cec.Message) {
	r.writeFrame(DirectionRx, msg, nil)
}

// MessageSent records an outbound frame and whether it was acknowledged.
func (r *Recorder) MessageSent(msg cec.Message, err error) {
	r.writeFrame(DirectionTx, msg, err)
}

// PowerStatusChanged records the unit's power state.
func (r *Recorder) PowerStatusChanged(status cec.PowerStatus) {
	r.w.WritePoint(MeasurementPower,
		map[string]string{"status": status.String()},
		map[string]any{"code": int(status)},
		r.now())
}

func (r *Recorder) writeFrame(direction string, msg cec.Message, err error) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	r.w.WritePoint(MeasurementFrames,
		map[string]string{"direction": direction, "opcode": msg.Opcode.String()},
		map[string]any{
			"source":      int(msg.Source),
			"destination": int(msg.Destination),
			"params":      len(msg.Params),
			"failed":      err != nil,
		},
		ts)
}
