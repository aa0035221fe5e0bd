package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

// Send status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CECMetrics contains Prometheus metrics for bus traffic and the source
// devices. It implements unit.Observer.
type CECMetrics struct {
	unit.NopObserver

	registry *prometheus.Registry

	framesReceivedTotal *prometheus.CounterVec
	framesSentTotal     *prometheus.CounterVec

	activeSourceChangesTotal *prometheus.CounterVec
	isActiveSource           *prometheus.GaugeVec
	localActivePort          *prometheus.GaugeVec

	oneTouchPlayTotal   *prometheus.CounterVec
	actionTimeoutsTotal *prometheus.CounterVec

	powerStatus prometheus.Gauge
}

// Ensure CECMetrics implements unit.Observer.
var _ unit.Observer = (*CECMetrics)(nil)

// NewCECMetrics creates and registers new CEC metrics
func NewCECMetrics(registry *prometheus.Registry) (*CECMetrics, error) {
	m := &CECMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CECMetrics) initMetrics() {
	m.framesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_frames_received_total",
			Help: "Total number of decoded frames received from the bus",
		},
		[]string{"opcode"},
	)

	m.framesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_frames_sent_total",
			Help: "Total number of frames transmitted",
		},
		[]string{"opcode", "status"},
	)

	m.activeSourceChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_active_source_changes_total",
			Help: "Total number of active source changes recorded per hosted device",
		},
		[]string{"device"},
	)

	m.isActiveSource = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cec_is_active_source",
			Help: "1 when the hosted device is the active source",
		},
		[]string{"device"},
	)

	m.localActivePort = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cec_local_active_port",
			Help: "Selected input port of a switch device (0 is the device itself)",
		},
		[]string{"device"},
	)

	m.oneTouchPlayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_one_touch_play_total",
			Help: "Total number of finished one touch play sequences by result",
		},
		[]string{"device", "result"},
	)

	m.actionTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_action_timeouts_total",
			Help: "Total number of pending actions that hit their deadline",
		},
		[]string{"kind"},
	)

	m.powerStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cec_power_status",
		Help: "Unit power status code (0 on, 1 standby, 2 transient to on, 3 transient to standby)",
	})
}

// Describe implements the Collector interface
func (m *CECMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesReceivedTotal.Describe(ch)
	m.framesSentTotal.Describe(ch)
	m.activeSourceChangesTotal.Describe(ch)
	m.isActiveSource.Describe(ch)
	m.localActivePort.Describe(ch)
	m.oneTouchPlayTotal.Describe(ch)
	m.actionTimeoutsTotal.Describe(ch)
	m.powerStatus.Describe(ch)
}

// Collect implements the Collector interface
func (m *CECMetrics) Collect(ch chan<- prometheus.Metric) {
	m.framesReceivedTotal.Collect(ch)
	m.framesSentTotal.Collect(ch)
	m.activeSourceChangesTotal.Collect(ch)
	m.isActiveSource.Collect(ch)
	m.localActivePort.Collect(ch)
	m.oneTouchPlayTotal.Collect(ch)
	m.actionTimeoutsTotal.Collect(ch)
	m.powerStatus.Collect(ch)
}

// ActiveSourceChanged counts an active source change seen by d.
func (m *CECMetrics) ActiveSourceChanged(d *source.Device, _ source.ActiveSource) {
	m.activeSourceChangesTotal.WithLabelValues(d.ID()).Inc()
}

// IsActiveSourceChanged sets the active source gauge for d.
func (m *CECMetrics) IsActiveSourceChanged(d *source.Device, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.isActiveSource.WithLabelValues(d.ID()).Set(v)
}

// LocalActivePortChanged sets the input port gauge for d.
func (m *CECMetrics) LocalActivePortChanged(d *source.Device, port source.Port) {
	m.localActivePort.WithLabelValues(d.ID()).Set(float64(port))
}

// OneTouchPlayCompleted counts a finished sequence.
func (m *CECMetrics) OneTouchPlayCompleted(d *source.Device, result source.ResultCode) {
	m.oneTouchPlayTotal.WithLabelValues(d.ID(), result.String()).Inc()
}

// MessageReceived counts an inbound frame.
func (m *CECMetrics) MessageReceived(msg cec.Message) {
	m.framesReceivedTotal.WithLabelValues(msg.Opcode.String()).Inc()
}

// MessageSent counts an outbound frame.
func (m *CECMetrics) MessageSent(msg cec.Message, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.framesSentTotal.WithLabelValues(msg.Opcode.String(), status).Inc()
}

// PowerStatusChanged sets the power gauge.
func (m *CECMetrics) PowerStatusChanged(status cec.PowerStatus) {
	m.powerStatus.Set(float64(status))
}

// RecordActionTimeout counts an expired action. Suitable for
// unit.SetOnActionTimeout.
func (m *CECMetrics) RecordActionTimeout(_ cec.LogicalAddress, kind action.Kind) {
	m.actionTimeoutsTotal.WithLabelValues(string(kind)).Inc()
}

// RegisterDevice initialises the per-device series so they are exported
// before the first event.
func (m *CECMetrics) RegisterDevice(id string) {
	m.isActiveSource.WithLabelValues(id).Set(0)
	m.localActivePort.WithLabelValues(id).Set(0)
	m.activeSourceChangesTotal.WithLabelValues(id)
}
