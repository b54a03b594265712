// Package api defines the error wire format shared by the gate and the
// HTTP transport.
//
// Every error response has the shape
//
//	{"error": {"type": "...", "message": "..."}}
//
// where type is one of the [ErrorType] constants and message is a fixed,
// caller-safe string. Internal causes never appear in an [APIError].
//
// The package has zero external dependencies and performs no I/O.
package api
