package unit

import (
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

// Observer receives unit and device events.
//
// Device events, MessageReceived and PowerStatusChanged are called on the
// service loop; MessageSent is called on the sender goroutine. Implementations
// must return quickly.
type Observer interface {
	source.Observer
	MessageReceived(msg cec.Message)
	MessageSent(msg cec.Message, err error)
	PowerStatusChanged(status cec.PowerStatus)
}

// NopObserver implements Observer with no-ops. Embed it to observe a subset.
type NopObserver struct {
	source.NopObserver
}

func (NopObserver) MessageReceived(cec.Message)        {}
func (NopObserver) MessageSent(cec.Message, error)     {}
func (NopObserver) PowerStatusChanged(cec.PowerStatus) {}

// fanout forwards events to every registered observer.
type fanout struct {
	observers []Observer
}

func (f *fanout) ActiveSourceChanged(d *source.Device, as source.ActiveSource) {
	for _, o := range f.observers {
		o.ActiveSourceChanged(d, as)
	}
}

func (f *fanout) IsActiveSourceChanged(d *source.Device, active bool) {
	for _, o := range f.observers {
		o.IsActiveSourceChanged(d, active)
	}
}

func (f *fanout) LocalActivePortChanged(d *source.Device, port source.Port) {
	for _, o := range f.observers {
		o.LocalActivePortChanged(d, port)
	}
}

func (f *fanout) OneTouchPlayCompleted(d *source.Device, result source.ResultCode) {
	for _, o := range f.observers {
		o.OneTouchPlayCompleted(d, result)
	}
}

func (f *fanout) MessageReceived(msg cec.Message) {
	for _, o := range f.observers {
		o.MessageReceived(msg)
	}
}

func (f *fanout) MessageSent(msg cec.Message, err error) {
	for _, o := range f.observers {
		o.MessageSent(msg, err)
	}
}

func (f *fanout) PowerStatusChanged(status cec.PowerStatus) {
	for _, o := range f.observers {
		o.PowerStatusChanged(status)
	}
}
