package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestLoopRunsOperationsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	defer loop.Close()

	var got []int
	for i := 0; i < 20; i++ {
		if err := loop.Post(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Post() error: %v", err)
		}
	}

	// Call is queued behind the posts, so got is complete when it returns.
	var n int
	if err := loop.Call(context.Background(), func() { n = len(got) }); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if n != 20 {
		t.Fatalf("ran %d operations, want 20", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("operation %d ran as %d", i, v)
		}
	}
}

func TestLoopStartIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(0, nil)
	loop.Start()
	loop.Start()
	loop.Close()
}

func TestLoopRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	defer loop.Close()

	_ = loop.Post(func() { panic("boom") })

	ran := false
	if err := loop.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !ran {
		t.Error("loop stopped after panic")
	}
	if loop.Panics() != 1 {
		t.Errorf("Panics() = %d, want 1", loop.Panics())
	}
}

func TestLoopClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	loop.Close()

	if err := loop.Post(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Post() after Close = %v, want ErrLoopClosed", err)
	}
	if err := loop.Call(context.Background(), func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Call() after Close = %v, want ErrLoopClosed", err)
	}
}

func TestLoopCallContextTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	defer loop.Close()

	release := make(chan struct{})
	_ = loop.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := loop.Call(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() = %v, want DeadlineExceeded", err)
	}
}

func TestLoopAfterFuncRunsOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	defer loop.Close()

	done := make(chan bool, 1)
	loop.AfterFunc(10*time.Millisecond, func() { done <- loop.OnLoop() })

	select {
	case onLoop := <-done:
		if !onLoop {
			t.Error("AfterFunc callback did not run on the loop")
		}
	case <-time.After(time.Second):
		t.Fatal("AfterFunc callback never ran")
	}
}

func TestAssertOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(4, nil)
	loop.Start()
	defer loop.Close()

	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, ErrOffLoop) {
				t.Errorf("AssertOnLoop() off loop panicked with %v, want ErrOffLoop", r)
			}
		}()
		loop.AssertOnLoop()
	}()

	var panicked bool
	_ = loop.Call(context.Background(), func() {
		defer func() { panicked = recover() != nil }()
		loop.AssertOnLoop()
	})
	if panicked {
		t.Error("AssertOnLoop() panicked on the loop")
	}
}

func TestLoopConcurrentPosters(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop(2, nil)
	loop.Start()
	defer loop.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = loop.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var got int
	_ = loop.Call(context.Background(), func() { got = counter })
	if got != 400 {
		t.Errorf("counter = %d, want 400", got)
	}
}
