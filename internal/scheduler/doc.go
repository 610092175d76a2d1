// Package scheduler turns "run this at time T" into durable state and back.
//
// Three pieces cooperate:
//
//   - Store holds pending (execution_time, task, payload) records; the Redis
//     implementation keeps them in a sorted set scored by execution time.
//   - Scheduler is the write side: it serializes an entity, stamps a schedule
//     id, and puts the record into the Store.
//   - Dispatcher is the read side: on each tick it claims due records and
//     publishes task invocations onto the broker's tasks stream, where a
//     worker pool executes them with at-least-once semantics.
//
// Claiming removes the record before the invocation is published. A crash
// between the two steps loses that schedule; this at-most-once window at the
// scheduling layer is accepted and documented rather than papered over.
package scheduler
