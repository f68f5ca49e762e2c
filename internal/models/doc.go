// Package models defines the fixed-shape records that flow through a placement-tracker run.
//
//   - [WorkItem] : one unit of input, either a catalog id or a song/artist pair
//   - [SongRecord] : the enriched output for one item; optional fields are pointers so that
//     "not obtainable" is nil rather than a sentinel string
//   - [SimplifiedRecord] : the reduced projection handed to export collaborators
//   - [RunSummary] : run-level bookkeeping persisted to the run history
//
// Rendering absent values (empty cells, "None") is left to the formatter package.
package models
