package action

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultLoopBuffer is the number of operations that can be queued before
// Post blocks.
const defaultLoopBuffer = 64

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Loop serialises operations onto a single goroutine.
//
// Operations must be quick and must not block: anything that waits for the
// bus is expressed as an Action or a timer that posts back to the loop.
type Loop struct {
	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	inOp      atomic.Bool
	executed  atomic.Uint64
	panics    atomic.Uint64

	logger Logger
}

// NewLoop creates a loop with the given queue size. logger may be nil.
func NewLoop(buffer int, logger Logger) *Loop {
	if buffer <= 0 {
		buffer = defaultLoopBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		ops:    make(chan func(), buffer),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start begins the loop goroutine. Safe to call multiple times.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run()
	})
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case op := <-l.ops:
			if op != nil {
				l.execute(op)
			}
		}
	}
}

// execute runs one operation, keeping the loop alive if it panics.
func (l *Loop) execute(op func()) {
	l.inOp.Store(true)
	defer func() {
		l.inOp.Store(false)
		l.executed.Add(1)
		if r := recover(); r != nil {
			l.panics.Add(1)
			if l.logger != nil {
				l.logger.Error("service loop operation panicked", "panic", fmt.Sprint(r))
			}
		}
	}()
	op()
}

// Post queues fn for execution on the loop. It blocks while the queue is full.
//
// Returns:
//   - error: ErrLoopClosed if the loop has been closed
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.ctx.Done():
		return ErrLoopClosed
	default:
	}

	select {
	case l.ops <- fn:
		return nil
	case <-l.ctx.Done():
		return ErrLoopClosed
	}
}

// Call runs fn on the loop and waits for it to finish.
// Must not be called from the loop itself.
//
// Parameters:
//   - ctx: Bounds the wait; fn may still run after ctx expires
//   - fn: Operation to run
//
// Returns:
//   - error: ErrLoopClosed, or the context error
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("action: waiting for loop: %w", ctx.Err())
	case <-l.ctx.Done():
		return ErrLoopClosed
	}
}

// AfterFunc posts fn to the loop once d has elapsed.
// Stopping the returned timer before it fires prevents the post.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		_ = l.Post(fn)
	})
}

// OnLoop reports whether an operation is currently executing on the loop.
func (l *Loop) OnLoop() bool {
	return l.inOp.Load()
}

// AssertOnLoop panics with ErrOffLoop when no loop operation is executing.
//
// This catches the common mistake of touching loop-confined state from an
// API goroutine while the loop is idle; it cannot tell two goroutines apart
// while an operation is running.
func (l *Loop) AssertOnLoop() {
	if !l.inOp.Load() {
		panic(ErrOffLoop)
	}
}

// Executed returns the number of operations run so far.
func (l *Loop) Executed() uint64 {
	return l.executed.Load()
}

// Panics returns the number of operations that panicked.
func (l *Loop) Panics() uint64 {
	return l.panics.Load()
}

// Close stops the loop and waits for the running operation to finish.
// Queued operations that have not started are discarded.
func (l *Loop) Close() {
	l.cancel()
	l.wg.Wait()
}
