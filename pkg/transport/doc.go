// Package transport provides the HTTP middleware chain and JSON error
// writing shared by the tokengate server and the gate.
//
// # Middleware
//
// Middleware is a plain func(http.Handler) http.Handler, so it composes
// with chi and any other net/http router. Built-in middleware provides
// panic recovery, request ID assignment (X-Request-ID) and structured
// access logging via log/slog.
//
// # Errors
//
// Error responses use the {"error": {...}} envelope defined in pkg/api.
// WriteAPIError derives the status code from the error type.
package transport
