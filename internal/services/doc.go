// Package services defines the [Library], [SuggestionSource] and [Acquirer] collaborators and implements them
// for Jellyfin, OpenAI-compatible chat endpoints, Spotify and yt-dlp.
//
// # Jellyfin
//
// [JellyfinService] is a thin client over the Jellyfin REST API. Every call takes an explicit
// [session.Session] so that no client instance carries mutable credentials. [JellyfinService.Authenticate]
// performs the username/password exchange and satisfies [session.Authenticator].
//
// [GuardedLibrary] pairs the client with a [session.Guard] and implements [Library]. Each call obtains a
// valid session and is retried once with a fresh one when the server rejects the credential.
//
// Server errors (5xx) on idempotent requests are retried with exponential backoff (500ms, 1s, 2s).
//
// # Suggestion Sources
//
// [LLMSuggester] asks an OpenAI-compatible /chat/completions endpoint for a JSON array of songs. Code
// fences and surrounding prose in the answer are tolerated.
//
// [SpotifySuggester] reads the tracks of a Spotify playlist using an app token from the OAuth2 client
// credentials flow.
//
// # Acquisition
//
// [ToolAcquirer] runs yt-dlp (or a compatible command) to fetch the best search hit as audio and writes
// ID3 tags on MP3 output so the media server indexes the expected title and artist.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.StatusError] : non-2xx response, carries status code and body
//   - [shared.ErrServerOffline] : Jellyfin unreachable
//   - [shared.ErrServiceUnavailable] : suggestion source unreachable
//   - [shared.ErrMalformedSuggestions] : suggestion payload unreadable
//   - [shared.ErrAcquisitionUnavailable] : acquisition tool missing or misconfigured
package services
