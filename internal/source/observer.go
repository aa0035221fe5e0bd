package source

// Observer is notified of device state changes. Methods are called on the
// service loop and must return quickly.
type Observer interface {
	ActiveSourceChanged(d *Device, as ActiveSource)
	IsActiveSourceChanged(d *Device, active bool)
	LocalActivePortChanged(d *Device, port Port)
	OneTouchPlayCompleted(d *Device, result ResultCode)
}

// NopObserver implements Observer with no-ops. Embed it to observe a subset.
type NopObserver struct{}

func (NopObserver) ActiveSourceChanged(*Device, ActiveSource) {}
func (NopObserver) IsActiveSourceChanged(*Device, bool)       {}
func (NopObserver) LocalActivePortChanged(*Device, Port)      {}
func (NopObserver) OneTouchPlayCompleted(*Device, ResultCode) {}
