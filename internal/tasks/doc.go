// Package tasks runs placement aggregation: resolving an input reference to work items and enriching
// each item with credits, streaming statistics, and video views.
//
// # Runs
//
// An [Engine] executes one run in four phases, reported on a single progress scale:
//
//  1. Source resolution (0-10%): a [Resolver] picks a [Source] by reference shape
//     - [CatalogAdapter] walks an artist's paginated catalog
//     - [CollectionAdapter] lists streaming playlists and albums by their next cursor
//     - [ManualAdapter] parses "song - artist" lines
//     - [ScrapeAdapter] renders the artist page in a browser when the catalog lookup fails
//
//  2. Item processing (10-90%): a [WorkerPool] drives the [Pipeline] over every item with bounded concurrency
//
//  3. Export (90-100%): each [Exporter] receives the [RunResult]
//
//  4. Cleanup: the run's resources.Manager releases every pool and browser session exactly once
//
// # Progress Reporting
//
// Workers push [Event] values onto a [Reporter]. Push never blocks; the consumer drains at its own pace.
//
// # Rate Limiting
//
// Calls to the stream statistics service share one [RateLimiter], which holds its lock across
// the check, the wait, and the new baseline.
package tasks
