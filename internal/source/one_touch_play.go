package source

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// KindOneTouchPlay identifies the one-touch-play action in the scheduler.
const KindOneTouchPlay action.Kind = "one_touch_play"

// OneTouchPlay wakes the display and makes this device the active source.
//
// If a sequence is already running, sink joins it and receives the same
// result. If the device cannot become the active source, sink receives
// ResultException immediately.
func (d *Device) OneTouchPlay(sink ResultSink) {
	d.loop.AssertOnLoop()

	if a, ok := d.sched.Find(d.address, KindOneTouchPlay).(*oneTouchPlay); ok {
		d.logInfo("one touch play already in progress")
		a.addSink(sink)
		return
	}

	otp, err := newOneTouchPlay(d, cec.AddrTV, sink)
	if err != nil {
		d.logWarn("cannot initiate one touch play", "error", err)
		invokeSink(d.logger, sink, ResultException)
		return
	}

	if err := d.sched.Add(d.address, otp); err != nil {
		d.logWarn("cannot register one touch play", "error", err)
		invokeSink(d.logger, sink, ResultException)
		return
	}
	otp.Start()
}

// oneTouchPlay asks the display to turn on, polls its power status until it
// reports on, then claims the active source.
type oneTouchPlay struct {
	dev      *Device
	target   cec.LogicalAddress
	sinks    []ResultSink
	baseline ActiveSource

	poll     *action.StateTimer
	polls    int
	finished bool
}

// Ensure oneTouchPlay implements action.Action.
var _ action.Action = (*oneTouchPlay)(nil)

func newOneTouchPlay(d *Device, target cec.LogicalAddress, sink ResultSink) (*oneTouchPlay, error) {
	if !canBeSource(d.devType) {
		return nil, fmt.Errorf("%w: role %s", ErrNotEligible, d.devType)
	}
	if !d.svc.PhysicalAddress().IsValid() {
		return nil, fmt.Errorf("%w: no physical address", ErrNotEligible)
	}
	return &oneTouchPlay{
		dev:    d,
		target: target,
		sinks:  []ResultSink{sink},
		poll:   action.NewStateTimer(d.loop),
	}, nil
}

// canBeSource reports whether a role may drive the display.
func canBeSource(t cec.DeviceType) bool {
	switch t {
	case cec.DeviceTypePlayback, cec.DeviceTypeRecorder, cec.DeviceTypeTuner, cec.DeviceTypeAudioSystem:
		return true
	default:
		return false
	}
}

func (a *oneTouchPlay) Kind() action.Kind { return KindOneTouchPlay }

func (a *oneTouchPlay) Timeout() time.Duration { return a.dev.otp.Timeout }

func (a *oneTouchPlay) addSink(sink ResultSink) {
	a.sinks = append(a.sinks, sink)
}

// Start wakes the display and sends the first power status query.
func (a *oneTouchPlay) Start() {
	a.baseline = a.dev.activeSource
	a.dev.svc.Send(cec.BuildTextViewOn(a.dev.address, a.target))
	a.queryPowerStatus()
}

func (a *oneTouchPlay) queryPowerStatus() {
	a.polls++
	a.dev.svc.Send(cec.BuildGiveDevicePowerStatus(a.dev.address, a.target))
	a.poll.Arm(a.dev.otp.PollInterval, a.onPollTimer)
}

func (a *oneTouchPlay) onPollTimer() {
	if a.finished {
		return
	}
	if a.polls >= a.dev.otp.MaxPolls {
		a.dev.logWarn("display did not report power on", "polls", a.polls)
		a.finish(ResultTimeout)
		return
	}
	a.queryPowerStatus()
}

// ProcessMessage consumes the display's power status replies and rejections.
func (a *oneTouchPlay) ProcessMessage(msg cec.Message) bool {
	if a.finished || msg.Source != a.target {
		return false
	}
	if msg.Destination != a.dev.address && !msg.IsBroadcast() {
		return false
	}

	switch msg.Opcode {
	case cec.OpReportPowerStatus:
		status := cec.PowerStatus(msg.Params[0])
		if status == cec.PowerOn {
			a.succeed()
		}
		// Standby or transient: the poll timer sends the next query.
		return true

	case cec.OpFeatureAbort:
		if msg.IsBroadcast() {
			return false
		}
		aborted, reason := cec.Opcode(msg.Params[0]), cec.AbortReason(msg.Params[1])
		switch aborted {
		case cec.OpGiveDevicePowerStatus:
			if reason == cec.AbortUnrecognizedOpcode {
				// The display cannot report power; it accepted <Text View On>.
				a.succeed()
			} else {
				a.finish(ResultIncorrectMode)
			}
			return true
		case cec.OpTextViewOn:
			a.finish(ResultIncorrectMode)
			return true
		}
	}
	return false
}

// HandleTimeout resolves the sequence when the scheduler deadline passes.
func (a *oneTouchPlay) HandleTimeout() {
	if a.finished {
		return
	}
	a.finish(ResultTimeout)
}

// succeed claims the active source unless another device announced itself
// after the sequence started.
func (a *oneTouchPlay) succeed() {
	current := a.dev.activeSource
	own := ActiveSource{LogicalAddress: a.dev.address, PhysicalAddress: a.dev.svc.PhysicalAddress()}
	if current != a.baseline && current != own {
		a.dev.logInfo("active source claimed by another device during one touch play",
			"active_source", current.String())
		a.finish(ResultIncorrectMode)
		return
	}

	a.dev.claimActiveSource()
	a.finish(ResultSuccess)
}

// finish delivers result to every sink, including sinks that join while the
// result is being delivered, then unregisters the action.
func (a *oneTouchPlay) finish(result ResultCode) {
	a.finished = true
	a.poll.Stop()

	for len(a.sinks) > 0 {
		sink := a.sinks[0]
		a.sinks = a.sinks[1:]
		invokeSink(a.dev.logger, sink, result)
	}
	a.dev.sched.Remove(a.dev.address, a)

	a.dev.logInfo("one touch play completed", "result", result.String())
	if a.dev.observer != nil {
		a.dev.observer.OneTouchPlayCompleted(a.dev, result)
	}
}
