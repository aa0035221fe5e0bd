package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publications and captures the command handler.
type mockMQTT struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
	subErr    error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic, payload, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[mqtt.Topics{}.AllCommands()]
	m.mu.Unlock()
	if h == nil {
		t.Fatal("no command handler subscribed")
	}
	return h(topic, []byte(payload))
}

// fakeUnit is a hand-written Unit.
type fakeUnit struct {
	mu         sync.Mutex
	ids        []string
	otpResult  *source.ResultCode
	standbyErr error
	otpCalls   int
	standbys   int
}

func (u *fakeUnit) DeviceIDs() []string { return u.ids }

func (u *fakeUnit) RequestOneTouchPlay(_ context.Context, id string, sink source.ResultSink) error {
	u.mu.Lock()
	u.otpCalls++
	result := u.otpResult
	u.mu.Unlock()
	if result != nil {
		_ = sink.OnComplete(*result)
	}
	return nil
}

func (u *fakeUnit) Standby(context.Context, string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.standbys++
	return u.standbyErr
}

func (u *fakeUnit) DeviceStatus(_ context.Context, id string) (unit.DeviceStatus, error) {
	return unit.DeviceStatus{ID: id, Type: "playback", LogicalAddress: cec.AddrPlayback1}, nil
}

type stubService struct{}

func (stubService) PhysicalAddress() cec.PhysicalAddress       { return 0x1000 }
func (stubService) PowerStatus() cec.PowerStatus               { return cec.PowerOn }
func (stubService) IsPowerStandbyOrTransient() bool            { return false }
func (stubService) WakeUp()                                    {}
func (stubService) HostedDevice(cec.DeviceType) *source.Device { return nil }
func (stubService) Send(cec.Message)                           {}

func testDevice(t *testing.T, id string, la cec.LogicalAddress, dt cec.DeviceType) *source.Device {
	t.Helper()

	loop := action.NewLoop(1, nil)
	d, err := source.NewDevice(source.Config{
		ID:             id,
		Type:           dt,
		LogicalAddress: la,
		Service:        stubService{},
		Loop:           loop,
		Scheduler:      action.NewScheduler(loop, nil),
	})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func newStartedBridge(t *testing.T, u *fakeUnit) (*Bridge, *mockMQTT) {
	t.Helper()

	m := newMockMQTT()
	b, err := New(Options{MQTT: m, Unit: u, Version: "test", HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, m
}

func decodeAcks(t *testing.T, pubs []published) []AckMessage {
	t.Helper()
	acks := make([]AckMessage, len(pubs))
	for i, p := range pubs {
		if err := json.Unmarshal(p.payload, &acks[i]); err != nil {
			t.Fatalf("decoding ack: %v", err)
		}
	}
	return acks
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Unit: &fakeUnit{}}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("missing MQTT: error = %v", err)
	}
	if _, err := New(Options{MQTT: newMockMQTT()}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("missing unit: error = %v", err)
	}
}

func TestStart_PublishesHealthAndState(t *testing.T) {
	_, m := newStartedBridge(t, &fakeUnit{ids: []string{"player", "soundbar"}})
	topics := mqtt.Topics{}

	health := m.on(topics.Health())
	if len(health) < 2 {
		t.Fatalf("health publications = %d, want starting and healthy", len(health))
	}
	var first HealthMessage
	if err := json.Unmarshal(health[0].payload, &first); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if first.Status != HealthStarting || !health[0].retained {
		t.Errorf("first health = %+v retained=%v", first, health[0].retained)
	}

	waitFor(t, func() bool {
		return len(m.on(topics.State("player"))) == 1 && len(m.on(topics.State("soundbar"))) == 1
	})
	st := m.on(topics.State("player"))[0]
	if !st.retained {
		t.Error("state should be retained")
	}
	var msg StateMessage
	if err := json.Unmarshal(st.payload, &msg); err != nil || msg.State.ID != "player" || msg.Protocol != "cec" {
		t.Errorf("state message = %+v, err = %v", msg, err)
	}
}

func TestStart_SubscribeFailure(t *testing.T) {
	m := newMockMQTT()
	m.subErr = errors.New("broker gone")
	b, err := New(Options{MQTT: m, Unit: &fakeUnit{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer b.Stop()

	if err := b.Start(context.Background()); err == nil {
		t.Error("Start() should fail when subscribing fails")
	}
}

func TestOneTouchPlayCommand_AcksInOrder(t *testing.T) {
	success := source.ResultSuccess
	u := &fakeUnit{ids: []string{"player"}, otpResult: &success}
	_, m := newStartedBridge(t, u)

	topic := mqtt.Topics{}.Command("player")
	if err := m.deliver(t, topic, `{"id":"cmd-1","command":"one_touch_play","timestamp":"2026-03-01T12:00:00Z"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ackTopic := mqtt.Topics{}.Ack("player")
	waitFor(t, func() bool { return len(m.on(ackTopic)) == 2 })

	acks := decodeAcks(t, m.on(ackTopic))
	if acks[0].Status != AckAccepted || acks[1].Status != AckCompleted {
		t.Errorf("ack statuses = %s, %s; want accepted, completed", acks[0].Status, acks[1].Status)
	}
	if acks[1].CommandID != "cmd-1" || acks[1].Result != "success" || acks[1].DeviceID != "player" {
		t.Errorf("final ack = %+v", acks[1])
	}
}

func TestOneTouchPlayCommand_TimeoutResult(t *testing.T) {
	timeout := source.ResultTimeout
	_, m := newStartedBridge(t, &fakeUnit{ids: []string{"player"}, otpResult: &timeout})

	if err := m.deliver(t, mqtt.Topics{}.Command("player"), `{"command":"one_touch_play"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ackTopic := mqtt.Topics{}.Ack("player")
	waitFor(t, func() bool { return len(m.on(ackTopic)) == 2 })

	acks := decodeAcks(t, m.on(ackTopic))
	final := acks[1]
	if final.Status != AckTimeout || final.Error == nil || final.Error.Code != ErrCodeTimeout {
		t.Errorf("final ack = %+v", final)
	}
	if _, err := uuid.Parse(final.CommandID); err != nil {
		t.Errorf("generated command id %q is not a UUID: %v", final.CommandID, err)
	}
	if acks[0].CommandID != final.CommandID {
		t.Error("both acks should carry the same command id")
	}
}

func TestCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		payload  string
		wantCode string
	}{
		{"unknown device", "tuner", `{"id":"a","command":"standby"}`, ErrCodeNotConfigured},
		{"unknown command", "player", `{"id":"b","command":"reboot"}`, ErrCodeInvalidCommand},
		{"device mismatch", "player", `{"id":"c","device_id":"other","command":"standby"}`, ErrCodeInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := newStartedBridge(t, &fakeUnit{ids: []string{"player"}})

			if err := m.deliver(t, mqtt.Topics{}.Command(tt.device), tt.payload); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			ackTopic := mqtt.Topics{}.Ack(tt.device)
			waitFor(t, func() bool { return len(m.on(ackTopic)) == 1 })
			ack := decodeAcks(t, m.on(ackTopic))[0]
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed %s", ack, tt.wantCode)
			}
		})
	}
}

func TestCommand_InvalidJSON(t *testing.T) {
	b, m := newStartedBridge(t, &fakeUnit{ids: []string{"player"}})

	if err := m.deliver(t, mqtt.Topics{}.Command("player"), `{not json`); err == nil {
		t.Error("handler should return an error for invalid JSON")
	}
	if b.Errors() != 1 {
		t.Errorf("Errors() = %d, want 1", b.Errors())
	}
}

func TestStandbyCommand(t *testing.T) {
	u := &fakeUnit{ids: []string{"player"}}
	_, m := newStartedBridge(t, u)

	if err := m.deliver(t, mqtt.Topics{}.Command("player"), `{"id":"s1","command":"standby"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ackTopic := mqtt.Topics{}.Ack("player")
	waitFor(t, func() bool { return len(m.on(ackTopic)) == 1 })
	if ack := decodeAcks(t, m.on(ackTopic))[0]; ack.Status != AckCompleted {
		t.Errorf("ack = %+v, want completed", ack)
	}

	u.mu.Lock()
	u.standbyErr = unit.ErrUnknownDevice
	u.mu.Unlock()

	if err := m.deliver(t, mqtt.Topics{}.Command("player"), `{"id":"s2","command":"standby"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	waitFor(t, func() bool { return len(m.on(ackTopic)) == 2 })
	if ack := decodeAcks(t, m.on(ackTopic))[1]; ack.Error == nil || ack.Error.Code != ErrCodeNotConfigured {
		t.Errorf("ack = %+v, want NOT_CONFIGURED", ack)
	}
}

func TestActiveSourceEventPublishedOncePerChange(t *testing.T) {
	b, m := newStartedBridge(t, &fakeUnit{ids: []string{"player", "soundbar"}})
	player := testDevice(t, "player", cec.AddrPlayback1, cec.DeviceTypePlayback)
	soundbar := testDevice(t, "soundbar", cec.AddrAudioSystem, cec.DeviceTypeAudioSystem)

	as := source.ActiveSource{LogicalAddress: cec.AddrPlayback2, PhysicalAddress: 0x2000}
	b.ActiveSourceChanged(player, as)
	b.ActiveSourceChanged(soundbar, as)

	topics := mqtt.Topics{}
	eventTopic := topics.Event(EventActiveSource)
	waitFor(t, func() bool {
		return len(m.on(topics.State("soundbar"))) == 2
	})

	events := m.on(eventTopic)
	if len(events) != 1 {
		t.Fatalf("active source events = %d, want 1", len(events))
	}
	var ev EventMessage
	if err := json.Unmarshal(events[0].payload, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.LogicalAddress == nil || *ev.LogicalAddress != cec.AddrPlayback2 || *ev.PhysicalAddress != 0x2000 {
		t.Errorf("event = %+v", ev)
	}
}

func TestPowerStatusEvent(t *testing.T) {
	b, m := newStartedBridge(t, &fakeUnit{ids: []string{"player"}})

	b.PowerStatusChanged(cec.PowerStandby)

	topic := mqtt.Topics{}.Event(EventPower)
	waitFor(t, func() bool { return len(m.on(topic)) == 1 })

	var ev EventMessage
	if err := json.Unmarshal(m.on(topic)[0].payload, &ev); err != nil || ev.PowerStatus != "standby" {
		t.Errorf("power event = %+v, err = %v", ev, err)
	}
}

func TestStop_PublishesStoppingOnce(t *testing.T) {
	m := newMockMQTT()
	b, err := New(Options{MQTT: m, Unit: &fakeUnit{ids: []string{"player"}}, HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b.Stop()
	b.Stop()

	stopping := 0
	for _, p := range m.on(mqtt.Topics{}.Health()) {
		var h HealthMessage
		if err := json.Unmarshal(p.payload, &h); err == nil && h.Status == HealthStopping {
			stopping++
		}
	}
	if stopping != 1 {
		t.Errorf("stopping health messages = %d, want 1", stopping)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	// Not started: nothing drains the queue.
	b, err := New(Options{MQTT: newMockMQTT(), Unit: &fakeUnit{}, QueueSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b.PowerStatusChanged(cec.PowerOn)
	b.PowerStatusChanged(cec.PowerStandby)
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}
