// Package engine implements the FlowRL sync orchestrator.
//
// The engine owns one identity resolver, one configuration cache and one
// event queue, all backed by the same store and remote service.
//
// LIFECYCLE:
//
// An Engine starts Unconfigured. Events may be logged immediately; they are
// persisted and wait in the backlog. The first Configure moves the engine to
// Configured and schedules the initial sequence:
//  1. Load the cached configuration, refreshing it when stale or absent
//  2. Flush the backlog once
//  3. Start the recurring flush timer
//  4. Subscribe to the suspend signal, if one was supplied
//
// Every later Configure schedules a reconfigure sequence: a forced refresh, a
// flush, and a timer restart. Sequences run one at a time on the worker
// goroutine in the order Configure was called.
//
// FAILURE MODEL:
//
// Network and storage failures are logged and absorbed. The application sees
// a nil or stale configuration (and falls back to its own defaults) and
// undelivered events stay in the backlog for the next tick or Configure.
// There is no backoff and no retry limit.
package engine
