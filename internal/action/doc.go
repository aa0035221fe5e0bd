// Package action provides the service loop and the pending-action table of a
// CEC unit.
//
// Every protocol state transition of a unit runs on one Loop goroutine:
// inbound messages, timer expiries and public API calls are posted as
// closures and executed one at a time in FIFO order. Long-running protocol
// exchanges (such as one-touch-play) are modelled as Actions registered in a
// Scheduler; they never block the loop and advance only when a message or a
// timer reaches them.
//
// # Usage
//
//	loop := action.NewLoop(64, logger)
//	loop.Start()
//	defer loop.Close()
//
//	sched := action.NewScheduler(loop, logger)
//	_ = loop.Post(func() {
//	    if err := sched.Add(owner, a); err == nil {
//	        a.Start()
//	    }
//	})
//
// # Thread Safety
//
// Loop methods are safe for concurrent use. Scheduler and StateTimer are
// confined to the loop goroutine and assert it.
package action
