// Package storage provides the account store contract and the sentinel
// errors shared across storage adapter implementations.
//
// Adapters (memory, postgres) resolve a token subject to an account. The
// redis package wraps any adapter with a read-through cache.
package storage
