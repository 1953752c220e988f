// Package taskcoord provides three concurrency coordinators for routing
// fire-and-forget asynchronous work through well-defined ordering,
// concurrency, and cancellation semantics:
//
//   - [KeyedTaskManager] partitions work by an arbitrary [Key] into
//     independent chains, each obeying [DropCurrent] or [WaitInCurrent]
//     semantics, with a run/pause toggle.
//   - [SerialTaskQueue] is a single-head FIFO chain, equivalent to a
//     KeyedTaskManager with exactly one key.
//   - [StackScheduler] is a LIFO scheduler with a configurable ceiling on
//     concurrently executing tasks; newer work is preferred over older
//     waiting work.
//
// All three are built on [TaskNode], a linked-list element wrapping a
// deferred asynchronous operation, and a one-shot result bridge that ties a
// synchronously-returned [Handle] to the operation's eventual resolution.
//
// None of the coordinators schedule across machines, persist state, provide
// fairness beyond what is documented per type, or implement true priority;
// the priority hint accepted by each Submit function is not used.
package taskcoord
