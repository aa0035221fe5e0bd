package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

type fakeAction struct {
	kind     Kind
	timeout  time.Duration
	consume  cec.Opcode
	started  int
	messages []cec.Message
	timeouts chan struct{}
	onMsg    func()
}

func newFakeAction(kind Kind, timeout time.Duration) *fakeAction {
	return &fakeAction{kind: kind, timeout: timeout, consume: cec.OpReportPowerStatus, timeouts: make(chan struct{}, 1)}
}

func (a *fakeAction) Kind() Kind             { return a.kind }
func (a *fakeAction) Start()                 { a.started++ }
func (a *fakeAction) Timeout() time.Duration { return a.timeout }
func (a *fakeAction) HandleTimeout()         { a.timeouts <- struct{}{} }

func (a *fakeAction) ProcessMessage(msg cec.Message) bool {
	if msg.Opcode != a.consume {
		return false
	}
	a.messages = append(a.messages, msg)
	if a.onMsg != nil {
		a.onMsg()
	}
	return true
}

func newTestScheduler(t *testing.T) (*Loop, *Scheduler) {
	t.Helper()
	loop := NewLoop(8, nil)
	loop.Start()
	t.Cleanup(loop.Close)
	return loop, NewScheduler(loop, nil)
}

func onLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	if err := loop.Call(context.Background(), fn); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
}

func TestSchedulerRejectsDuplicate(t *testing.T) {
	loop, sched := newTestScheduler(t)

	first := newFakeAction("one_touch_play", 0)
	second := newFakeAction("one_touch_play", 0)
	other := newFakeAction("poll", 0)

	onLoop(t, loop, func() {
		if err := sched.Add(cec.AddrPlayback1, first); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		if err := sched.Add(cec.AddrPlayback1, second); !errors.Is(err, ErrDuplicateAction) {
			t.Errorf("Add() duplicate = %v, want ErrDuplicateAction", err)
		}
		if err := sched.Add(cec.AddrAudioSystem, second); err != nil {
			t.Errorf("Add() for another owner error: %v", err)
		}
		if err := sched.Add(cec.AddrPlayback1, other); err != nil {
			t.Errorf("Add() of another kind error: %v", err)
		}
		if sched.Pending() != 3 {
			t.Errorf("Pending() = %d, want 3", sched.Pending())
		}
		if sched.Find(cec.AddrPlayback1, "one_touch_play") != first {
			t.Error("Find() did not return the first action")
		}
		if first.started != 0 {
			t.Error("Add() must not start the action")
		}
	})
}

func TestSchedulerRemove(t *testing.T) {
	loop, sched := newTestScheduler(t)
	a := newFakeAction("one_touch_play", 0)

	onLoop(t, loop, func() {
		_ = sched.Add(cec.AddrPlayback1, a)
		sched.Remove(cec.AddrPlayback1, a)
		sched.Remove(cec.AddrPlayback1, a)

		if sched.Find(cec.AddrPlayback1, "one_touch_play") != nil {
			t.Error("Find() after Remove returned an action")
		}
		if err := sched.Add(cec.AddrPlayback1, newFakeAction("one_touch_play", 0)); err != nil {
			t.Errorf("Add() after Remove error: %v", err)
		}
	})
}

func TestSchedulerDispatch(t *testing.T) {
	loop, sched := newTestScheduler(t)
	a := newFakeAction("one_touch_play", 0)
	a.onMsg = func() { sched.Remove(cec.AddrPlayback1, a) }

	onLoop(t, loop, func() {
		_ = sched.Add(cec.AddrPlayback1, a)

		if sched.Dispatch(cec.AddrAudioSystem, cec.BuildReportPowerStatus(cec.AddrTV, cec.AddrAudioSystem, cec.PowerOn)) {
			t.Error("message for another owner was consumed")
		}
		if sched.Dispatch(cec.AddrPlayback1, cec.BuildRequestActiveSource(cec.AddrTV)) {
			t.Error("unrelated opcode was consumed")
		}
		if !sched.Dispatch(cec.AddrPlayback1, cec.BuildReportPowerStatus(cec.AddrTV, cec.AddrPlayback1, cec.PowerOn)) {
			t.Error("power status was not consumed")
		}
		if sched.Pending() != 0 {
			t.Errorf("Pending() = %d after self-removal, want 0", sched.Pending())
		}
	})
}

func TestSchedulerDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(8, nil)
	loop.Start()
	defer loop.Close()
	sched := NewScheduler(loop, nil)

	var timedOut []Kind
	a := newFakeAction("one_touch_play", 20*time.Millisecond)

	onLoop(t, loop, func() {
		sched.SetOnTimeout(func(_ cec.LogicalAddress, kind Kind) { timedOut = append(timedOut, kind) })
		_ = sched.Add(cec.AddrPlayback1, a)
	})

	select {
	case <-a.timeouts:
	case <-time.After(time.Second):
		t.Fatal("HandleTimeout was not called")
	}

	onLoop(t, loop, func() {
		if len(timedOut) != 1 || timedOut[0] != "one_touch_play" {
			t.Errorf("timeout hook = %v", timedOut)
		}
	})
}

func TestSchedulerDeadlineIgnoredAfterRemove(t *testing.T) {
	loop, sched := newTestScheduler(t)
	a := newFakeAction("one_touch_play", 20*time.Millisecond)

	onLoop(t, loop, func() {
		_ = sched.Add(cec.AddrPlayback1, a)
		sched.Remove(cec.AddrPlayback1, a)
	})

	select {
	case <-a.timeouts:
		t.Error("HandleTimeout called for a removed action")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSchedulerClear(t *testing.T) {
	loop, sched := newTestScheduler(t)

	onLoop(t, loop, func() {
		_ = sched.Add(cec.AddrPlayback1, newFakeAction("one_touch_play", time.Minute))
		_ = sched.Add(cec.AddrAudioSystem, newFakeAction("one_touch_play", time.Minute))
		sched.Clear(cec.AddrPlayback1)

		if sched.Pending() != 1 {
			t.Errorf("Pending() = %d, want 1", sched.Pending())
		}
	})
}

func TestSchedulerAssertsLoop(t *testing.T) {
	_, sched := newTestScheduler(t)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Add() off the loop did not panic")
		}
	}()
	_ = sched.Add(cec.AddrPlayback1, newFakeAction("one_touch_play", 0))
}
