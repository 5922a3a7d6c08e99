// Package runner schedules feature files onto the UI and API engines.
//
// The main components are:
//   - Unit: a deferred engine invocation that always yields a result code
//   - Pool: a fixed set of workers executing submitted units in FIFO order
//   - Scheduler: turns an execution mode into a batch of submitted units
//   - Aggregator: waits for a batch and escalates wait failures into a forced shutdown
//   - Orchestrator: processes the configured modes strictly one after another
//
// A batch belongs to exactly one mode. Batch N is fully settled, or the pool
// cancelled, before any unit of batch N+1 is submitted.
package runner
