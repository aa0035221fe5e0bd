package action

import "time"

// StateTimer is a single re-armable loop timer.
//
// Each Arm supersedes the previous one; a firing that was already posted to
// the loop before Stop or a new Arm is discarded by a generation check.
// Loop-confined.
type StateTimer struct {
	loop  *Loop
	gen   uint64
	timer *time.Timer
}

// NewStateTimer creates a stopped timer bound to loop.
func NewStateTimer(loop *Loop) *StateTimer {
	return &StateTimer{loop: loop}
}

// Arm schedules fn to run on the loop after d, cancelling any earlier arm.
func (t *StateTimer) Arm(d time.Duration, fn func()) {
	t.loop.AssertOnLoop()
	t.stop()

	gen := t.gen
	t.timer = t.loop.AfterFunc(d, func() {
		if t.gen != gen {
			return
		}
		t.timer = nil
		fn()
	})
}

// Stop cancels the pending firing, if any.
func (t *StateTimer) Stop() {
	t.loop.AssertOnLoop()
	t.stop()
}

func (t *StateTimer) stop() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Armed reports whether a firing is pending.
func (t *StateTimer) Armed() bool {
	t.loop.AssertOnLoop()
	return t.timer != nil
}
