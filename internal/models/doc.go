// Package models defines domain entities and persistence interfaces for curate.
//
// The package contains two categories of types:
//
// 1. Value types exchanged between the pipeline and its collaborators
//   - [SongSuggestion] : a title/artist/album triple from a suggestion source
//   - [LibraryTrack] : read-only projection of a media server catalog item
//   - [MatchResult] : a suggestion paired with its best catalog candidate
//   - [ScanTask] : an observed server-side re-index job
//   - [Collection] : a top-level library on the media server
//   - [Playlist] : playlist metadata on the media server
//
// 2. Persistent entities
//   - [Run] : one synthesis run with its counters
//   - [RunOutcome] : the per-suggestion result of a run
//
// Persistent entities implement [Model]; [Repository] defines the CRUD contract used by the repositories package.
package models
