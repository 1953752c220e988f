package taskcoord

import (
	"context"
	"sync"
	"weak"
)

// SerialTaskQueueConfig models optional configuration for
// NewSerialTaskQueue.
type SerialTaskQueueConfig struct {
	// Logger, if non-nil, receives debug/warning events. Defaults to a nil
	// (inert) Logger.
	Logger *Logger
}

// SerialTaskQueue is a single logical FIFO stream: equivalent to a
// [KeyedTaskManager] with exactly one key and only [WaitInCurrent]
// semantics, simplified for call sites that need no keying. See
// [SubmitSerial].
//
// Instances must be initialized using NewSerialTaskQueue.
type SerialTaskQueue struct {
	log *Logger

	mu   sync.Mutex
	head *TaskNode
}

// NewSerialTaskQueue initializes a new SerialTaskQueue. The provided config
// may be nil.
func NewSerialTaskQueue(config *SerialTaskQueueConfig) *SerialTaskQueue {
	q := &SerialTaskQueue{}
	if config != nil {
		q.log = config.Logger
	}
	return q
}

// SubmitSerial appends op at the queue's endpoint, returning a handle that
// resolves with op's result. If the queue is empty, the new node becomes
// head and is activated immediately. priority is accepted as a hint and not
// used; see [Priority].
//
// SubmitSerial is a function rather than a method for the same reason as
// [SubmitKeyed]: Go methods cannot carry their own type parameters.
func SubmitSerial[R any](q *SerialTaskQueue, label string, priority Priority, op func(ctx context.Context) (R, error)) Handle[R] {
	_ = priority

	b := newBridge[R]()
	loopback := func(self weak.Pointer[TaskNode]) { q.loopback(self) }
	operation := buildOperation(label, b, q.log, op, loopback)

	q.mu.Lock()
	node := newTaskNode(label, operation, q.log)
	activateNow := false
	if q.head == nil {
		q.head = node
		activateNow = true
	} else {
		q.head.endpoint().addNext(node)
	}
	q.mu.Unlock()

	if activateNow {
		node.activate()
	}

	watchForAbandonment(node, b)

	return Handle[R]{b: b}
}

// HasWork reports whether the queue currently has a head.
func (q *SerialTaskQueue) HasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head != nil
}

// CancelAll invalidates every node reachable from head and clears head.
func (q *SerialTaskQueue) CancelAll() {
	q.mu.Lock()
	head := q.head
	q.head = nil
	q.mu.Unlock()

	if head != nil {
		head.forEach(func(n *TaskNode) { n.invalidate() })
	}
}

// WaitUntilCurrentDrained awaits completion of the chain's present endpoint,
// not tasks appended after this call captures that endpoint. It
// returns immediately if the queue is currently empty.
func (q *SerialTaskQueue) WaitUntilCurrentDrained(ctx context.Context) error {
	q.mu.Lock()
	head := q.head
	q.mu.Unlock()
	if head == nil {
		return nil
	}
	return head.endpoint().wait(ctx)
}

// WaitUntilAllDrained awaits quiescence: it observes head transitions and
// successively awaits each head until head becomes nil, including tasks
// added while draining is in progress.
func (q *SerialTaskQueue) WaitUntilAllDrained(ctx context.Context) error {
	for {
		q.mu.Lock()
		head := q.head
		q.mu.Unlock()
		if head == nil {
			return nil
		}
		if err := head.wait(ctx); err != nil {
			return err
		}
	}
}

// Len reports the number of nodes currently reachable from head. It is a
// point-in-time snapshot, primarily useful for tests and diagnostics.
func (q *SerialTaskQueue) Len() int {
	q.mu.Lock()
	head := q.head
	q.mu.Unlock()
	n := 0
	if head != nil {
		head.forEach(func(*TaskNode) { n++ })
	}
	return n
}

// loopback is the advance protocol run from within a node's own operation
// goroutine: promote next to head and activate it, or clear head if the
// completed node was the tail.
func (q *SerialTaskQueue) loopback(self weak.Pointer[TaskNode]) {
	node := self.Value()
	if node == nil {
		return
	}

	q.mu.Lock()
	if q.head != node {
		// The head was cleared or replaced out from under this node (e.g.
		// CancelAll raced completion); nothing to advance.
		q.mu.Unlock()
		return
	}

	next := node.getNext()
	if next != nil {
		q.head = next
		q.mu.Unlock()
		next.activate()
		return
	}
	q.head = nil
	q.mu.Unlock()
}
