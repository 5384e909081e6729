// Package tasks turns a seed into a media server playlist.
//
// # Pipeline
//
// [SynthesisEngine.Run] executes the phases of one run in order, each a barrier for the next:
//
//  0. Fetch suggestions from the [services.SuggestionSource]
//     - A malformed payload is treated as an empty list
//     - Entries without title or artist and duplicates are dropped
//
//  1. Search the library for every suggestion concurrently, trying the queries from
//     [matching.BuildQueries] in order until [matching.BestMatch] accepts a candidate
//
//  2. Add found tracks to the new playlist
//
//  3. Download what the library lacks, in sequential batches of K concurrent fetches.
//     Skipped with one error per song when no target directory is configured or the tool fails its health check
//
//  4. Trigger one scoped library scan and wait for it. A timeout adds one error and the run continues
//
//  5. Search again for the downloaded songs and add the ones the library now has
//
// # Errors
//
// Only failures before the playlist can be filled are returned, as [*SetupError]: no session, an unreachable
// suggestion source, or playlist creation failing. Everything else becomes an entry in [SynthesisResult.Errors]
// and a tagged [Outcome] per suggestion.
//
// # Ordering
//
// With [Options.PreserveOrder] set, adds in phases 2 and 5 run one at a time in suggestion order, so the playlist
// lists the found tracks in suggestion order followed by the downloaded ones. Otherwise adds run concurrently
// and the order is unspecified.
//
// # Progress Reporting
//
// Runs publish [ProgressUpdate] values on an optional channel. Sends use select with default and never block.
// The update closing each phase has Done set and carries the counters tallied at that boundary.
//
// # Batches
//
// [SynthesisEngine.BulkSynthesize] runs several seeds through a worker pool, writing a report per run and a
// manifest with [formatter.WriteManifest].
package tasks
