// Package tasks is the execution side of scheduling: a registry of named
// handlers and a worker that consumes task invocations from the broker and
// runs them. The built-in tasks cover scheduled message sends, scheduled
// deletions, and mailing starts.
package tasks
