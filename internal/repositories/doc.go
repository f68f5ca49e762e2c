// Package repositories implements SQLite persistence for run history.
//
// Key Implementations:
//   - [RunRepository] : runs and the records each run produced
//   - [RunRecorder] : exporter that saves a finished run through a [RunRepository]
//
// Sequence numbers provide stable, human-readable ordering (run #3) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
