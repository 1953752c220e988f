package taskcoord

import (
	"context"
	"sync"
	"weak"
)

// StackSchedulerConfig models optional configuration for
// NewStackScheduler.
type StackSchedulerConfig struct {
	// Logger, if non-nil, receives debug/warning events. Defaults to a nil
	// (inert) Logger.
	Logger *Logger

	// MaxConcurrent is the ceiling on concurrently executing nodes.
	// **Defaults to 1, if 0 or negative.**
	MaxConcurrent int
}

// StackScheduler is a LIFO scheduler with a configurable ceiling on
// concurrently executing nodes: newest submissions are preferred, and a
// freshly submitted task runs before older waiting tasks whenever capacity
// allows. See [SubmitStack].
//
// Instances must be initialized using NewStackScheduler.
type StackScheduler struct {
	log           *Logger
	maxConcurrent int

	mu        sync.Mutex
	cond      *sync.Cond
	waiting   lifoStack[*TaskNode]
	executing map[*TaskNode]struct{}
}

// NewStackScheduler initializes a new StackScheduler. The provided config
// may be nil.
func NewStackScheduler(config *StackSchedulerConfig) *StackScheduler {
	s := &StackScheduler{
		maxConcurrent: 1,
		executing:     make(map[*TaskNode]struct{}),
	}
	if config != nil {
		s.log = config.Logger
		if config.MaxConcurrent > 0 {
			s.maxConcurrent = config.MaxConcurrent
		}
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SubmitStack prepends op's node to the waiting stack, then drains,
// returning a handle that resolves with op's result. priority is accepted
// as a hint and not used; see [Priority].
//
// SubmitStack is a function rather than a method for the same reason as
// [SubmitKeyed]: Go methods cannot carry their own type parameters.
func SubmitStack[R any](s *StackScheduler, label string, priority Priority, op func(ctx context.Context) (R, error)) Handle[R] {
	_ = priority

	b := newBridge[R]()
	loopback := func(self weak.Pointer[TaskNode]) { s.loopback(self) }
	operation := buildOperation(label, b, s.log, op, loopback)
	node := newTaskNode(label, operation, s.log)

	s.mu.Lock()
	s.waiting.push(node)
	s.mu.Unlock()

	s.drain()

	watchForAbandonment(node, b)

	return Handle[R]{b: b}
}

// drain activates waiting nodes, most recently submitted first, until
// either the waiting stack is empty or maxConcurrent executing nodes are
// reached.
func (s *StackScheduler) drain() {
	s.mu.Lock()
	var activate []*TaskNode
	for len(s.executing) < s.maxConcurrent {
		node, ok := s.waiting.pop()
		if !ok {
			break
		}
		s.executing[node] = struct{}{}
		activate = append(activate, node)
	}
	if len(activate) > 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	for _, node := range activate {
		node.activate()
	}
}

// loopback runs from within a completed node's own operation goroutine: it
// removes the node from the executing set and re-drains. A node already
// absent from the set (should not happen in normal operation, but tolerated
// defensively) is a safe no-op for the removal step.
func (s *StackScheduler) loopback(self weak.Pointer[TaskNode]) {
	node := self.Value()
	if node == nil {
		return
	}

	s.mu.Lock()
	delete(s.executing, node)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.drain()
}

// WaitUntilAllItemProcessed blocks until both the waiting stack and the
// executing set are empty, or ctx is done, whichever comes first.
func (s *StackScheduler) WaitUntilAllItemProcessed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stopWatch:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.waiting.len() != 0 || len(s.executing) != 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Len reports the combined count of waiting and executing nodes. It is a
// point-in-time snapshot, primarily useful for tests and diagnostics.
func (s *StackScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting.len() + len(s.executing)
}
