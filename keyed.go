package taskcoord

import (
	"context"
	"sync"
	"weak"
)

// Mode selects how [SubmitKeyed] treats existing work under the same key.
type Mode int

const (
	// WaitInCurrent appends the new node at the key's chain endpoint. If the
	// key has no chain yet, the new node becomes the head and is eligible
	// for immediate activation.
	WaitInCurrent Mode = iota

	// DropCurrent invalidates every node currently linked under the key
	// (head and any queued successors), then installs the new node as the
	// sole head.
	DropCurrent
)

// KeyedTaskManagerConfig models optional configuration for
// NewKeyedTaskManager.
type KeyedTaskManagerConfig struct {
	// Logger, if non-nil, receives debug/warning events for node
	// invalidation, operation panics, and loopback misses. Defaults to a
	// nil (inert) Logger.
	Logger *Logger

	// InitiallyRunning sets the manager's running flag at construction.
	// NewKeyedTaskManager(nil) starts running; a non-nil config starts the
	// manager running only if this is true, so its zero value starts it
	// paused. Callers that want to start paused should use this rather than
	// racing an early SetRunning(false) call.
	InitiallyRunning bool
}

// KeyedTaskManager partitions submitted work by [Key] into independent
// chains, each obeying [DropCurrent] or [WaitInCurrent] semantics, gated by
// a process-wide running flag. See [SubmitKeyed].
//
// Instances must be initialized using NewKeyedTaskManager.
type KeyedTaskManager struct {
	log *Logger

	mu      sync.Mutex
	heads   map[Key]*TaskNode
	running bool
}

// NewKeyedTaskManager initializes a new KeyedTaskManager. The provided
// config may be nil.
func NewKeyedTaskManager(config *KeyedTaskManagerConfig) *KeyedTaskManager {
	m := &KeyedTaskManager{
		heads:   make(map[Key]*TaskNode),
		running: true,
	}
	if config != nil {
		m.log = config.Logger
		m.running = config.InitiallyRunning
	}
	return m
}

// SubmitKeyed submits op under key, per mode, returning a handle that
// resolves with op's result. priority is accepted as a hint and not used;
// see [Priority].
//
// SubmitKeyed is a function rather than a method because Go methods cannot
// carry their own type parameters; R is fixed per call, not per manager, so
// a single KeyedTaskManager can host submissions of differing result types.
func SubmitKeyed[R any](m *KeyedTaskManager, label string, key Key, mode Mode, priority Priority, op func(ctx context.Context) (R, error)) Handle[R] {
	_ = priority

	b := newBridge[R]()
	loopback := func(self weak.Pointer[TaskNode]) { m.loopback(key, self) }
	operation := buildOperation(label, b, m.log, op, loopback)

	m.mu.Lock()
	node := newTaskNode(label, operation, m.log)
	existing, hadExisting := m.heads[key]
	var activateNow bool
	switch mode {
	case DropCurrent:
		m.heads[key] = node
		activateNow = m.running
	case WaitInCurrent:
		if hadExisting {
			existing.endpoint().addNext(node)
		} else {
			m.heads[key] = node
			activateNow = m.running
		}
	default:
		programmingError("SubmitKeyed: unknown mode %d", mode)
	}
	m.mu.Unlock()

	if mode == DropCurrent && hadExisting {
		existing.forEach(func(n *TaskNode) { n.invalidate() })
	}
	if activateNow {
		node.activate()
	}

	watchForAbandonment(node, b)

	return Handle[R]{b: b}
}

// IsRunning reports the manager's current running flag.
func (m *KeyedTaskManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetRunning toggles the manager's running flag. A false-to-true transition
// (re-)activates every key's current head; an activated or finished head is
// a no-op per [TaskNode.activate]'s own guard.
func (m *KeyedTaskManager) SetRunning(running bool) {
	m.mu.Lock()
	prev := m.running
	m.running = running
	var heads []*TaskNode
	if !prev && running {
		heads = make([]*TaskNode, 0, len(m.heads))
		for _, h := range m.heads {
			heads = append(heads, h)
		}
	}
	m.mu.Unlock()

	for _, h := range heads {
		h.activate()
	}
}

// IsRunningFor reports whether key currently has a chain (an outstanding
// head) in the manager, irrespective of the manager-wide running flag.
func (m *KeyedTaskManager) IsRunningFor(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.heads[key]
	return ok
}

// Cancel invalidates every node in key's chain and removes key from the
// manager. A nonexistent key is a safe no-op.
func (m *KeyedTaskManager) Cancel(key Key) {
	m.mu.Lock()
	head, ok := m.heads[key]
	if ok {
		delete(m.heads, key)
	}
	m.mu.Unlock()

	if ok {
		head.forEach(func(n *TaskNode) { n.invalidate() })
	}
}

// CancelAll invalidates every node in every chain and clears the manager.
// Safe to call at any time, including concurrently with in-flight
// submissions, and is idempotent.
func (m *KeyedTaskManager) CancelAll() {
	m.mu.Lock()
	heads := make([]*TaskNode, 0, len(m.heads))
	for _, h := range m.heads {
		heads = append(heads, h)
	}
	m.heads = make(map[Key]*TaskNode)
	m.mu.Unlock()

	for _, h := range heads {
		h.forEach(func(n *TaskNode) { n.invalidate() })
	}
}

// loopback is the completion-time protocol run from within a node's own
// operation goroutine. A missing self (node reclaimed) or a missing head
// (the completion raced a cancel) are both treated as "nothing to do": see
// the tolerant-loopback decision recorded in DESIGN.md.
func (m *KeyedTaskManager) loopback(key Key, self weak.Pointer[TaskNode]) {
	node := self.Value()
	if node == nil {
		return
	}

	m.mu.Lock()
	head, ok := m.heads[key]
	if !ok {
		m.mu.Unlock()
		if m.log != nil {
			logLoopbackMiss(m.log, key, node.Label)
		}
		return
	}

	next := head.getNext()
	switch {
	case next != nil:
		m.heads[key] = next
		running := m.running
		m.mu.Unlock()
		if running {
			next.activate()
		}
	case head == node:
		delete(m.heads, key)
		m.mu.Unlock()
	default:
		m.mu.Unlock()
	}
}

// Len reports the number of keys with an outstanding chain. It is a
// point-in-time snapshot, primarily useful for tests and diagnostics.
func (m *KeyedTaskManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heads)
}

// Keys returns a snapshot of the keys with an outstanding chain, in no
// particular order.
func (m *KeyedTaskManager) Keys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]Key, 0, len(m.heads))
	for k := range m.heads {
		keys = append(keys, k)
	}
	return keys
}
