package action

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// Kind names a type of action. At most one action of a kind runs per owner.
type Kind string

// Action is a multi-step bus exchange driven by the loop.
//
// All methods are called on the loop goroutine.
type Action interface {
	// Kind identifies the action type for duplicate detection.
	Kind() Kind

	// Start sends the first message(s). Called once, after Add.
	Start()

	// ProcessMessage offers an inbound message. Returns true if the action
	// consumed it.
	ProcessMessage(msg cec.Message) bool

	// HandleTimeout is called when the action's deadline passes while it is
	// still registered.
	HandleTimeout()

	// Timeout bounds how long the action may stay registered.
	// Zero or negative disables the deadline.
	Timeout() time.Duration
}

type actionKey struct {
	owner cec.LogicalAddress
	kind  Kind
}

type entry struct {
	key      actionKey
	action   Action
	deadline *time.Timer
}

// Scheduler is the pending-action table of a unit, keyed by (owner, kind).
//
// It is confined to the loop goroutine; every method asserts that.
type Scheduler struct {
	loop    *Loop
	entries []*entry
	logger  Logger

	onTimeout func(owner cec.LogicalAddress, kind Kind)
}

// NewScheduler creates a scheduler bound to loop. logger may be nil.
func NewScheduler(loop *Loop, logger Logger) *Scheduler {
	return &Scheduler{loop: loop, logger: logger}
}

// SetOnTimeout registers a hook invoked (on the loop) whenever an action's
// deadline fires. Used for metrics.
func (s *Scheduler) SetOnTimeout(fn func(owner cec.LogicalAddress, kind Kind)) {
	s.onTimeout = fn
}

// Add registers a for owner and arms its deadline. It does not start a.
//
// Returns:
//   - error: ErrDuplicateAction if an action of the same kind is registered
func (s *Scheduler) Add(owner cec.LogicalAddress, a Action) error {
	s.loop.AssertOnLoop()

	key := actionKey{owner: owner, kind: a.Kind()}
	if s.find(key) != nil {
		return fmt.Errorf("%w: %s for %s", ErrDuplicateAction, key.kind, owner)
	}

	e := &entry{key: key, action: a}
	if d := a.Timeout(); d > 0 {
		e.deadline = s.loop.AfterFunc(d, func() { s.expire(e) })
	}
	s.entries = append(s.entries, e)

	if s.logger != nil {
		s.logger.Debug("action registered", "owner", owner.String(), "kind", string(key.kind))
	}
	return nil
}

// expire runs on the loop when an entry's deadline fires.
func (s *Scheduler) expire(e *entry) {
	if s.find(e.key) != e {
		return
	}
	if s.logger != nil {
		s.logger.Warn("action timed out", "owner", e.key.owner.String(), "kind", string(e.key.kind))
	}
	if s.onTimeout != nil {
		s.onTimeout(e.key.owner, e.key.kind)
	}
	e.action.HandleTimeout()
}

func (s *Scheduler) find(key actionKey) *entry {
	for _, e := range s.entries {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Find returns the live action of kind for owner, or nil.
func (s *Scheduler) Find(owner cec.LogicalAddress, kind Kind) Action {
	s.loop.AssertOnLoop()

	if e := s.find(actionKey{owner: owner, kind: kind}); e != nil {
		return e.action
	}
	return nil
}

// Remove unregisters a and stops its deadline. Removing an action that is
// not registered is a no-op.
func (s *Scheduler) Remove(owner cec.LogicalAddress, a Action) {
	s.loop.AssertOnLoop()

	for i, e := range s.entries {
		if e.key.owner == owner && e.action == a {
			if e.deadline != nil {
				e.deadline.Stop()
			}
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Dispatch offers msg to owner's actions in registration order until one
// consumes it.
//
// Returns:
//   - bool: true if an action consumed the message
func (s *Scheduler) Dispatch(owner cec.LogicalAddress, msg cec.Message) bool {
	s.loop.AssertOnLoop()

	// Snapshot: ProcessMessage may finish and remove the action.
	var candidates []Action
	for _, e := range s.entries {
		if e.key.owner == owner {
			candidates = append(candidates, e.action)
		}
	}

	for _, a := range candidates {
		if a.ProcessMessage(msg) {
			return true
		}
	}
	return false
}

// Pending returns the number of registered actions.
func (s *Scheduler) Pending() int {
	s.loop.AssertOnLoop()
	return len(s.entries)
}

// Clear drops every action of owner without resolving it.
func (s *Scheduler) Clear(owner cec.LogicalAddress) {
	s.loop.AssertOnLoop()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.key.owner == owner {
			if e.deadline != nil {
				e.deadline.Stop()
			}
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
}
