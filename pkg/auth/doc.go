// Package auth implements the request-authentication gate for tokengate.
//
// Every request passes through four sequential stages: credential
// extraction (Authorization header or UC_TOKEN cookie), token decoding,
// issuer and signature validation against a resolved key, and identity
// validation against the account store. The first failing stage stops the
// pass and produces a tagged rejection; nothing reaches the inner handler
// unless every stage succeeds.
//
// Rejections are reported to callers with exactly two classes,
// unauthenticated (401) and permission denied (403), each with a fixed
// message. The internal reason and cause of a rejection are only logged.
//
// The gate is implemented as HTTP middleware, keeping it decoupled from
// the protected service. On success the verified token is stored in the
// request context and can be read with TokenFromContext.
package auth
