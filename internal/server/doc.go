// Package server exposes the synthesis pipeline over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] implements it on top of
// [http.ServeMux] method patterns. [Middleware] wraps handlers in reverse order (last added executes first);
// [RequestLogger] and [Recoverer] are the stock ones.
//
// Custom handlers implement [Handler], which adds the list of patterns they own to [http.Handler].
//
// # API
//
// [API] serves the synthesis endpoints. A synthesis request runs synchronously within the request context;
// the response carries the counters, the aggregated errors and one entry per suggestion.
//
// Setup failures answer 502, except a missing seed which is a 400 like any other invalid body.
// Partial failures are not HTTP errors: they are listed in the response body.
//
// # Lifecycle
//
// [Server] wraps [http.Server] and shuts down gracefully when its context is cancelled.
package server
